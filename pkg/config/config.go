package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// AppDirName is the folder created under the user config directory.
	AppDirName = "terminal174"
	// FileName is the config file inside AppDirName.
	FileName = "config.toml"

	DefaultEndpoint = "https://api.openai.com/v1/chat/completions"
	DefaultAPIKey   = "your-api-key-here"
	DefaultModel    = "gpt-3.5-turbo"
	// FallbackModel replaces an unreadable model field in an existing file.
	FallbackModel = "claude-3.5-sonnet"

	// DefaultSystemPrompt keeps the trailing spaces after "first." and "prompt.".
	DefaultSystemPrompt = "You live inside a terminal, and everything typed by the human user will be forwarded to you first. \n" +
		"\n" +
		"Your task is to understand what they want to achieve, and assist them by:\n" +
		"- Talk to them in <talk></talk> tag\n" +
		"- Run terminal commands using <run_command></run_command> tag. The run result of each command run in each step will be provided to you in the next user prompt. \n" +
		"\n" +
		"Please reduce your talking to a minimal. For example, do not ask the user if they are typing in a correct command, instead just run that in the terminal."
)

// Environment variables that override file values for the current run only.
const (
	EnvEndpoint = "TERMINAL174_ENDPOINT"
	EnvAPIKey   = "TERMINAL174_API_KEY"
	EnvModel    = "TERMINAL174_MODEL"
)

var (
	// ErrNoConfigDir is returned when the platform has no user config directory.
	ErrNoConfigDir = errors.New("could not find config directory")
	// ErrCreatedDefault is returned after a default file was written on first run.
	ErrCreatedDefault = errors.New("created default config")
)

// Config holds the persisted settings for the model endpoint.
type Config struct {
	Endpoint     string `toml:"endpoint"`
	APIKey       string `toml:"api_key"`
	Model        string `toml:"model"`
	SystemPrompt string `toml:"system_prompt"`
}

// DefaultConfig returns the values written on first run.
func DefaultConfig() Config {
	return Config{
		Endpoint:     DefaultEndpoint,
		APIKey:       DefaultAPIKey,
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// DefaultPath returns <user config dir>/terminal174/config.toml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "", fmt.Errorf("%w: %v", ErrNoConfigDir, err)
	}
	return filepath.Join(dir, AppDirName, FileName), nil
}

// Load reads the config at path, filling unreadable fields with fallbacks and
// writing the reconciled result back. When the file does not exist a default
// one is written and ErrCreatedDefault is returned alongside it.
func Load(path string) (Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Config{}, fmt.Errorf("create config dir: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
		return cfg, ErrCreatedDefault
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Decode(data)
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses TOML, substituting a fallback for every field that is missing
// or not a string. Unparseable input yields all fallbacks.
func Decode(data []byte) Config {
	table := map[string]any{}
	if _, err := toml.Decode(string(data), &table); err != nil {
		table = map[string]any{}
	}
	return Config{
		Endpoint:     stringField(table, "endpoint", DefaultEndpoint),
		APIKey:       stringField(table, "api_key", DefaultAPIKey),
		Model:        stringField(table, "model", FallbackModel),
		SystemPrompt: stringField(table, "system_prompt", DefaultSystemPrompt),
	}
}

func stringField(table map[string]any, key, fallback string) string {
	if v, ok := table[key].(string); ok {
		return v
	}
	return fallback
}

// Encode renders cfg as TOML.
func Encode(cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes cfg to path.
func Save(path string, cfg Config) error {
	data, err := Encode(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv loads a .env file if present and lets environment variables
// override endpoint, api key and model. The file on disk is not touched.
func ApplyEnv(cfg Config) Config {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		cfg.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvModel)); v != "" {
		cfg.Model = v
	}
	return cfg
}

// Normalize trims whitespace around values that are used verbatim on the wire.
func Normalize(cfg Config) Config {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return cfg
}
