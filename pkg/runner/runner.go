// Package runner executes shell commands and captures their combined output.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
)

const maxLineBytes = 1024 * 1024

// ErrSpawn is returned when the shell cannot be started.
var ErrSpawn = errors.New("spawn shell")

// Options configures a Runner.
type Options struct {
	// Stdin is handed to the child unchanged. Nil means no input.
	Stdin *os.File
	// Stdout and Stderr receive each captured line as it arrives.
	Stdout io.Writer
	Stderr io.Writer
	// Timeout kills the command after the given duration. Zero disables it.
	Timeout time.Duration
	Verbose bool
	Logger  loggerpkg.Logger
}

// Runner spawns commands through the platform shell.
type Runner struct {
	opts  Options
	errFn func(w io.Writer, a ...any) (int, error)

	mu sync.Mutex
}

// New builds a Runner. Nil writers discard echoed output.
func New(opts Options) *Runner {
	if opts.Stdout == nil {
		opts.Stdout = io.Discard
	}
	if opts.Stderr == nil {
		opts.Stderr = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = loggerpkg.NopLogger{}
	}
	return &Runner{
		opts:  opts,
		errFn: color.New(color.FgRed).Fprintln,
	}
}

// Result is the captured outcome of one command.
type Result struct {
	Command string
	Stdout  []string
	Stderr  []string
	// ExitCode is meaningful only when Exited is true.
	ExitCode int
	// Exited is false when the process was terminated by a signal.
	Exited bool
	// Interrupted holds why the command was killed before it finished.
	Interrupted error
	Duration    time.Duration
}

// Output renders the combined output: every stdout line, then every stderr
// line, each newline-terminated, followed by an exit note for non-zero codes
// or a kill note when the command was cut short.
func (r Result) Output() string {
	var sb strings.Builder
	for _, line := range r.Stdout {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range r.Stderr {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if r.Exited && r.ExitCode != 0 {
		fmt.Fprintf(&sb, "\nProcess exited with code: %d", r.ExitCode)
	}
	if r.Interrupted != nil {
		fmt.Fprintf(&sb, "\nProcess killed: %v", r.Interrupted)
	}
	return sb.String()
}

// shellCommand picks cmd /C on Windows and sh -c elsewhere.
func shellCommand(command string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C", command}
	}
	return "sh", []string{"-c", command}
}

// Run executes command and waits for it to finish. A non-zero exit is reported
// in the Result, not as an error; only a failure to start the shell is.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	name, args := shellCommand(command)
	cmd := exec.CommandContext(ctx, name, args...)
	if r.opts.Stdin != nil {
		cmd.Stdin = r.opts.Stdin
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	r.debugf("[verbose] runner: starting %s %q", name, command)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	// A grandchild can keep the pipes open after the shell is killed.
	stop := context.AfterFunc(ctx, func() {
		_ = stdout.Close()
		_ = stderr.Close()
	})
	defer stop()

	res := Result{Command: command}
	var g errgroup.Group
	g.Go(func() error {
		res.Stdout = r.drain(stdout, r.echoOut)
		return nil
	})
	g.Go(func() error {
		res.Stderr = r.drain(stderr, r.echoErr)
		return nil
	})
	_ = g.Wait()

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
		res.Exited = cmd.ProcessState.Exited()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			r.debugf("[verbose] runner: wait: %v", waitErr)
		}
	}
	if ctx.Err() != nil && !res.Exited {
		res.Interrupted = r.killReason(ctx.Err())
		r.debugf("[verbose] runner: command interrupted: %v", res.Interrupted)
	}

	loggerpkg.Debug(r.opts.Verbose, r.opts.Logger, "command finished", map[string]any{
		"command":      command,
		"exit_code":    res.ExitCode,
		"exited":       res.Exited,
		"interrupted":  res.Interrupted != nil,
		"stdout_lines": len(res.Stdout),
		"stderr_lines": len(res.Stderr),
		"duration_ms":  res.Duration.Milliseconds(),
	})
	return res, nil
}

// killReason describes a context error in terms of the command.
func (r *Runner) killReason(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && r.opts.Timeout > 0 {
		return fmt.Errorf("command timed out after %s", r.opts.Timeout)
	}
	return fmt.Errorf("command interrupted: %w", err)
}

// drain reads pipe to EOF line by line, echoing each line.
func (r *Runner) drain(pipe io.Reader, echo func(string)) []string {
	var lines []string
	scanner := bufio.NewScanner(pipe)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		echo(line)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		r.debugf("[verbose] runner: read pipe: %v", err)
		// Keep the child from blocking on a full pipe.
		_, _ = io.Copy(io.Discard, pipe)
	}
	return lines
}

func (r *Runner) echoOut(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = fmt.Fprintln(r.opts.Stdout, line)
}

func (r *Runner) echoErr(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = r.errFn(r.opts.Stderr, line)
}

func (r *Runner) debugf(format string, args ...any) {
	loggerpkg.Debugf(r.opts.Verbose, r.opts.Logger, format, args...)
}
