package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minhyannv/terminal174/pkg/agent"
	"github.com/minhyannv/terminal174/pkg/console"
	"github.com/minhyannv/terminal174/pkg/llm"
	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
	"github.com/minhyannv/terminal174/pkg/transcript"
)

// session is the part of the agent the REPL drives.
type session interface {
	HandleInput(ctx context.Context, input string) error
	Transcript() *transcript.Transcript
}

// replOptions configures REPL behavior.
type replOptions struct {
	Verbose bool
	Logger  loggerpkg.Logger
	Turns   *interrupter
}

// runREPL reads lines until EOF or "exit" and hands each one to the agent.
func runREPL(ctx context.Context, app session, printer *console.Printer, lines *lineReader, opts replOptions) error {
	if app == nil {
		return fmt.Errorf("agent is required")
	}
	if lines == nil {
		return fmt.Errorf("input reader is required")
	}
	if opts.Turns == nil {
		opts.Turns = &interrupter{}
	}

	loggerpkg.Debug(opts.Verbose, opts.Logger, "repl start", map[string]any{
		"session_id": app.Transcript().ID(),
	})
	printer.Banner()

	for {
		printer.Prompt()
		line, ok := lines.ReadLine()
		if !ok {
			break
		}

		input := strings.TrimSpace(line)
		if input == "exit" {
			break
		}
		if input == "" {
			continue
		}
		if handleCommand(input, app, printer) {
			continue
		}

		turnCtx, done := opts.Turns.begin(ctx)
		err := app.HandleInput(turnCtx, input)
		done()
		if err != nil {
			reportTurnError(printer, err)
		}
	}

	if err := lines.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

// reportTurnError prints why a turn ended early. The session continues.
func reportTurnError(printer *console.Printer, err error) {
	switch {
	case errors.Is(err, context.Canceled):
		printer.Error("Interrupted.")
	case errors.Is(err, agent.ErrCommandLimit):
		printer.Error(fmt.Sprintf("Error: %v", err))
	case errors.Is(err, llm.ErrNetwork), errors.Is(err, llm.ErrSerialization), errors.Is(err, llm.ErrEmptyResponse):
		printer.Error(fmt.Sprintf("Error: %v", err))
		printer.Info("The model did not answer. Send your message again to retry.")
	default:
		printer.Error(fmt.Sprintf("Error: %v", err))
	}
}

// handleCommand runs REPL-local slash commands. Anything else goes to the model.
func handleCommand(input string, app session, printer *console.Printer) bool {
	switch strings.ToLower(input) {
	case "/help", "/h":
		printHelp(printer)
		return true
	case "/history":
		if err := app.Transcript().WriteYAML(printer.Writer()); err != nil {
			printer.Error(fmt.Sprintf("Error: %v", err))
		}
		return true
	default:
		return false
	}
}

func printHelp(printer *console.Printer) {
	printer.Info("Commands:")
	printer.Info("  /help    - Show this help message")
	printer.Info("  /history - Print the conversation so far")
	printer.Info("  exit     - Exit the program")
	printer.Info("")
}

// lineReader is shared by the REPL and the confirmation prompt. It reads one
// byte at a time so nothing past the current line is consumed: spawned
// commands inherit the same stdin and must see the rest of it.
type lineReader struct {
	r    io.Reader
	err  error
	done bool
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: r}
}

// ReadLine returns the next line without its terminator. A final line with
// no newline is still returned.
func (l *lineReader) ReadLine() (string, bool) {
	if l.done {
		return "", false
	}
	var line []byte
	var b [1]byte
	for {
		n, err := l.r.Read(b[:])
		if n == 1 {
			if b[0] == '\n' {
				return strings.TrimSuffix(string(line), "\r"), true
			}
			line = append(line, b[0])
		}
		if err != nil {
			l.done = true
			if !errors.Is(err, io.EOF) {
				l.err = err
			}
			if len(line) > 0 {
				return strings.TrimSuffix(string(line), "\r"), true
			}
			return "", false
		}
	}
}

func (l *lineReader) Err() error {
	return l.err
}

// lineConfirmer asks y/N on the console before each command.
type lineConfirmer struct {
	printer *console.Printer
	lines   *lineReader
}

func (c *lineConfirmer) Confirm(ctx context.Context, command string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, _ = fmt.Fprintf(c.printer.Writer(), "Run %q? [y/N] ", command)
	answer, ok := c.lines.ReadLine()
	if !ok {
		if err := c.lines.Err(); err != nil {
			return false, err
		}
		return false, io.EOF
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// interrupter tracks the cancel func of the turn in progress.
type interrupter struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// begin derives a cancelable context for one turn.
func (i *interrupter) begin(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	i.mu.Lock()
	i.cancel = cancel
	i.mu.Unlock()
	return ctx, func() {
		i.mu.Lock()
		i.cancel = nil
		i.mu.Unlock()
		cancel()
	}
}

// interrupt cancels the active turn and reports whether there was one.
func (i *interrupter) interrupt() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.cancel == nil {
		return false
	}
	i.cancel()
	i.cancel = nil
	return true
}
