// Package llm sends transcripts to an OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
	"github.com/minhyannv/terminal174/pkg/transcript"
)

var (
	// ErrNetwork covers transport failures and non-success HTTP statuses.
	ErrNetwork = errors.New("model request failed")
	// ErrSerialization covers request encoding and response decoding failures.
	ErrSerialization = errors.New("model payload could not be encoded or decoded")
	// ErrEmptyResponse is returned when the endpoint answers with zero choices.
	ErrEmptyResponse = errors.New("empty completion choices")
)

// ModelError wraps every failure returned by Complete. Match on the kind with errors.Is.
type ModelError struct {
	Kind error
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Client returns the model's reply to a full transcript.
type Client interface {
	Complete(ctx context.Context, messages []transcript.Message) (string, error)
}

// Config describes where and how to reach the endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	Model    string
	// RequestTimeout bounds a single exchange. Zero leaves only transport defaults.
	RequestTimeout time.Duration
	Verbose        bool
}

// Option configures optional dependencies for OpenAIClient.
type Option func(*clientDeps)

type clientDeps struct {
	logger     loggerpkg.Logger
	httpClient *http.Client
}

// WithLogger injects a logger dependency.
func WithLogger(l loggerpkg.Logger) Option {
	return func(d *clientDeps) {
		d.logger = l
	}
}

// WithHTTPClient replaces the transport used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(d *clientDeps) {
		d.httpClient = c
	}
}

// OpenAIClient talks to the chat completion endpoint through openai-go.
type OpenAIClient struct {
	client   openai.Client
	model    string
	endpoint string

	logger  loggerpkg.Logger
	verbose bool
}

// NewOpenAIClient validates cfg and builds a client. Requests always go to
// cfg.Endpoint verbatim; retries are disabled.
func NewOpenAIClient(cfg Config, opts ...Option) (*OpenAIClient, error) {
	deps := clientDeps{logger: loggerpkg.NopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("APIKey is not set")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("Model is not set")
	}
	endpoint, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" || endpoint.Host == "" {
		return nil, fmt.Errorf("endpoint must be an absolute http(s) URL: %q", cfg.Endpoint)
	}

	reqOpts := []option.RequestOption{
		option.WithBaseURL(endpoint.String()),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithMiddleware(pinEndpoint(endpoint)),
	}
	if cfg.RequestTimeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if deps.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(deps.httpClient))
	}

	loggerpkg.Debug(cfg.Verbose, deps.logger, "model client init", map[string]any{
		"endpoint": endpoint.String(),
		"model":    cfg.Model,
		"timeout":  cfg.RequestTimeout.String(),
	})

	return &OpenAIClient{
		client:   openai.NewClient(reqOpts...),
		model:    cfg.Model,
		endpoint: endpoint.String(),
		logger:   deps.logger,
		verbose:  cfg.Verbose,
	}, nil
}

// pinEndpoint sends every request to the configured URL instead of the
// SDK's base URL plus resource path.
func pinEndpoint(endpoint *url.URL) option.Middleware {
	return func(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
		u := *endpoint
		req.URL = &u
		req.Host = u.Host
		return next(req)
	}
}

// Complete sends the transcript and returns the first choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, messages []transcript.Message) (string, error) {
	params, err := c.newChatParams(messages)
	if err != nil {
		return "", &ModelError{Kind: ErrSerialization, Err: err}
	}

	c.debugf("[verbose] model: sending %d message(s) to %s", len(messages), c.endpoint)
	start := time.Now()
	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.debugf("[verbose] model: request failed after %v: %v", time.Since(start), err)
		return "", classify(err)
	}
	if err := checkShape(completion.RawJSON()); err != nil {
		c.debugf("[verbose] model: malformed response: %v", err)
		return "", &ModelError{Kind: ErrSerialization, Err: err}
	}
	if len(completion.Choices) == 0 {
		c.debugf("[verbose] model: response had no choices")
		return "", &ModelError{Kind: ErrEmptyResponse}
	}

	content := completion.Choices[0].Message.Content
	loggerpkg.Debug(c.verbose, c.logger, "model response received", map[string]any{
		"choices":       len(completion.Choices),
		"finish_reason": completion.Choices[0].FinishReason,
		"bytes":         len(content),
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	return content, nil
}

func (c *OpenAIClient) newChatParams(messages []transcript.Message) (openai.ChatCompletionNewParams, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case transcript.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case transcript.RoleUser:
			out = append(out, openai.UserMessage(msg.Content))
		case transcript.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("message %d: unsupported role %q", i, msg.Role)
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: out,
	}, nil
}

// completionShape is the part of the response body Complete relies on.
type completionShape struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// checkShape rejects bodies the SDK would accept leniently, such as a
// non-array choices field or non-string content.
func checkShape(raw string) error {
	if raw == "" {
		return nil
	}
	var shape completionShape
	if err := json.Unmarshal([]byte(raw), &shape); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	return nil
}

func classify(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &ModelError{Kind: ErrSerialization, Err: err}
	}
	return &ModelError{Kind: ErrNetwork, Err: err}
}

func (c *OpenAIClient) debugf(format string, args ...any) {
	loggerpkg.Debugf(c.verbose, c.logger, format, args...)
}
