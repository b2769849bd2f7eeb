// Package main provides the terminal174 interactive agent CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/minhyannv/terminal174/pkg/agent"
	"github.com/minhyannv/terminal174/pkg/config"
	"github.com/minhyannv/terminal174/pkg/console"
	"github.com/minhyannv/terminal174/pkg/llm"
	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
	"github.com/minhyannv/terminal174/pkg/runner"
	"github.com/minhyannv/terminal174/pkg/transcript"
)

// cliOptions holds flag values for the root command.
type cliOptions struct {
	configPath     string
	verbose        bool
	maxCommands    int
	confirm        bool
	commandTimeout time.Duration
	requestTimeout time.Duration
}

// main is the program entry point.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, config.ErrCreatedDefault) {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := cliOptions{}
	cmd := &cobra.Command{
		Use:   "terminal174",
		Short: "AI-powered terminal",
		Long: `terminal174 forwards what you type to a chat model. The model answers
with <talk> text, which is printed, and <run_command> commands, which are
run in your shell. Command output goes back to the model until it stops
asking for commands.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Config file path (default <user config dir>/terminal174/config.toml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose debug logging on stderr")
	flags.IntVar(&opts.maxCommands, "max-commands", 50, "Max commands run for one message (0 = unlimited)")
	flags.BoolVar(&opts.confirm, "confirm", false, "Ask before running each command")
	flags.DurationVar(&opts.commandTimeout, "command-timeout", 0, "Kill commands running longer than this (0 = no limit)")
	flags.DurationVar(&opts.requestTimeout, "request-timeout", 0, "Abort model requests taking longer than this (0 = no limit)")
	return cmd
}

func run(ctx context.Context, opts cliOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	printer := console.New(os.Stdout)

	cfg, err := loadConfig(opts.configPath, printer)
	if err != nil {
		return err
	}

	appLogger, syncLogger, err := loggerpkg.NewZap(opts.verbose)
	if err != nil {
		return err
	}
	defer func() { _ = syncLogger() }()

	if opts.confirm && !isTerminal(os.Stdin) {
		return errors.New("--confirm needs an interactive terminal on stdin")
	}

	client, err := llm.NewOpenAIClient(llm.Config{
		Endpoint:       cfg.Endpoint,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		RequestTimeout: opts.requestTimeout,
		Verbose:        opts.verbose,
	}, llm.WithLogger(appLogger))
	if err != nil {
		return err
	}

	shell := runner.New(runner.Options{
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Timeout: opts.commandTimeout,
		Verbose: opts.verbose,
		Logger:  appLogger,
	})

	lines := newLineReader(os.Stdin)
	agentOpts := []agent.Option{
		agent.WithLogger(appLogger, opts.verbose),
		agent.WithDisplay(printer),
		agent.WithMaxCommands(opts.maxCommands),
	}
	if opts.confirm {
		agentOpts = append(agentOpts, agent.WithConfirmer(&lineConfirmer{printer: printer, lines: lines}))
	}

	app, err := agent.New(transcript.New(cfg.SystemPrompt), client, shell, agentOpts...)
	if err != nil {
		return err
	}

	turns := &interrupter{}
	stopSignals := watchInterrupts(turns, printer)
	defer stopSignals()

	return runREPL(ctx, app, printer, lines, replOptions{
		Verbose: opts.verbose,
		Logger:  appLogger,
		Turns:   turns,
	})
}

// loadConfig resolves the config path, loads the file and applies environment overrides.
func loadConfig(path string, printer *console.Printer) (config.Config, error) {
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}

	cfg, err := config.Load(path)
	if errors.Is(err, config.ErrCreatedDefault) {
		printer.Info(fmt.Sprintf("Created default config at %q", path))
		printer.Info("Please edit it with your API key and settings before continuing.")
		return config.Config{}, err
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return config.Normalize(config.ApplyEnv(cfg)), nil
}

// watchInterrupts cancels the running turn on Ctrl+C, or exits when idle at the prompt.
func watchInterrupts(turns *interrupter, printer *console.Printer) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case sig := <-sigCh:
				if sig == os.Interrupt && turns.interrupt() {
					continue
				}
				printer.Info("\nShutting down...")
				os.Exit(0)
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
