package agent

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/minhyannv/terminal174/pkg/directive"
	"github.com/minhyannv/terminal174/pkg/llm"
	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
	"github.com/minhyannv/terminal174/pkg/runner"
	"github.com/minhyannv/terminal174/pkg/transcript"
)

// ErrCommandLimit is returned when a turn asks for more commands than allowed.
var ErrCommandLimit = errors.New("command limit reached")

// CommandRunner executes one shell command.
type CommandRunner interface {
	Run(ctx context.Context, command string) (runner.Result, error)
}

// Display receives everything shown to the user during a turn.
type Display interface {
	Talk(text string)
	Running(command string)
	Error(msg string)
}

// Confirmer decides whether a model-requested command may run.
type Confirmer interface {
	Confirm(ctx context.Context, command string) (bool, error)
}

type nopDisplay struct{}

func (nopDisplay) Talk(string)    {}
func (nopDisplay) Running(string) {}
func (nopDisplay) Error(string)   {}

// Agent drives the conversation: it forwards user input to the model, runs the
// commands the model asks for and feeds their output back until the model
// stops asking. It is not safe for concurrent use.
type Agent struct {
	transcript *transcript.Transcript
	client     llm.Client
	runner     CommandRunner

	display     Display
	confirmer   Confirmer
	maxCommands int
	systemInfo  func() string

	logger  loggerpkg.Logger
	verbose bool
}

// New builds an Agent around an existing transcript.
func New(t *transcript.Transcript, client llm.Client, run CommandRunner, opts ...Option) (*Agent, error) {
	if t == nil {
		return nil, errors.New("transcript is required")
	}
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if run == nil {
		return nil, errors.New("command runner is required")
	}
	if t.Len() == 0 || t.Messages()[0].Role != transcript.RoleSystem {
		return nil, errors.New("transcript must start with a system message")
	}

	deps := agentDeps{
		logger:     loggerpkg.NopLogger{},
		display:    nopDisplay{},
		systemInfo: SystemInformation,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&deps)
		}
	}
	if deps.maxCommands < 0 {
		deps.maxCommands = 0
	}

	loggerpkg.Debug(deps.verbose, deps.logger, "agent init", map[string]any{
		"session_id":   t.ID(),
		"max_commands": deps.maxCommands,
		"confirm":      deps.confirmer != nil,
	})

	return &Agent{
		transcript:  t,
		client:      client,
		runner:      run,
		display:     deps.display,
		confirmer:   deps.confirmer,
		maxCommands: deps.maxCommands,
		systemInfo:  deps.systemInfo,
		logger:      deps.logger,
		verbose:     deps.verbose,
	}, nil
}

// Transcript returns the conversation owned by the agent.
func (a *Agent) Transcript() *transcript.Transcript {
	return a.transcript
}

// HandleInput processes one human utterance: it attaches system information,
// asks the model, shows its talk and runs every command it requested.
func (a *Agent) HandleInput(ctx context.Context, input string) error {
	content := input
	if a.systemInfo != nil {
		content = fmt.Sprintf("%s\n%s", input, a.systemInfo())
	}
	response, err := a.exchange(ctx, content)
	if err != nil {
		// Nothing ran yet, so the unanswered utterance can be taken back.
		a.transcript.RetractUnanswered()
		return err
	}
	return a.runPending(ctx, pushAll(nil, response))
}

// RunChain runs command and every command the model requests in reply,
// depth-first, until a response contains no more commands.
func (a *Agent) RunChain(ctx context.Context, command string) error {
	return a.runPending(ctx, []string{command})
}

// runPending processes a stack of commands. The next command is always the
// first one of the most recent response, so chains run depth-first and
// siblings run in order of appearance.
func (a *Agent) runPending(ctx context.Context, pending []string) error {
	executed := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if a.maxCommands > 0 && executed >= a.maxCommands {
			a.display.Error(fmt.Sprintf("Stopped after %d commands; %d pending command(s) skipped.", executed, len(pending)))
			return fmt.Errorf("%w: %d", ErrCommandLimit, a.maxCommands)
		}

		command := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		executed++

		response, err := a.step(ctx, command)
		if err != nil {
			return err
		}
		pending = pushAll(pending, response)
	}
	return nil
}

// step runs one command, reports its result to the model and returns the reply.
func (a *Agent) step(ctx context.Context, command string) (string, error) {
	a.display.Running(command)
	a.debugf("[verbose] step: transcript=%d command_bytes=%d", a.transcript.Len(), len(command))

	result, err := a.execute(ctx, command)
	if err != nil {
		return "", err
	}
	return a.exchange(ctx, fmt.Sprintf("<command_result>%s</command_result>", result))
}

// execute returns the text reported back to the model for command.
func (a *Agent) execute(ctx context.Context, command string) (string, error) {
	if a.confirmer != nil {
		ok, err := a.confirmer.Confirm(ctx, command)
		if err != nil {
			return "", fmt.Errorf("confirm command: %w", err)
		}
		if !ok {
			return "Command was not run: declined by user", nil
		}
	}

	res, err := a.runner.Run(ctx, command)
	if err != nil {
		msg := fmt.Sprintf("Error executing command: %v", err)
		a.display.Error(msg)
		loggerpkg.Debug(a.verbose, a.logger, "command failed to start", map[string]any{
			"command": command,
			"error":   err.Error(),
		})
		return "ERROR: " + msg, nil
	}
	return res.Output(), nil
}

// exchange appends a user message, asks the model and appends its reply.
// On failure the user message stays, so a command result is never lost.
func (a *Agent) exchange(ctx context.Context, content string) (string, error) {
	if err := a.transcript.Append(transcript.RoleUser, content); err != nil {
		return "", err
	}

	response, err := a.client.Complete(ctx, a.transcript.Messages())
	if err != nil {
		return "", err
	}
	if err := a.transcript.Append(transcript.RoleAssistant, response); err != nil {
		return "", err
	}

	for talk := range directive.Talks(response) {
		a.display.Talk(talk)
	}
	return response, nil
}

// pushAll pushes the commands of response so the first one is popped first.
func pushAll(pending []string, response string) []string {
	commands := slices.Collect(directive.Commands(response))
	slices.Reverse(commands)
	return append(pending, commands...)
}

func (a *Agent) debugf(format string, args ...any) {
	loggerpkg.Debugf(a.verbose, a.logger, format, args...)
}
