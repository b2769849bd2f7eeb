package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/minhyannv/terminal174/pkg/llm"
	loggerpkg "github.com/minhyannv/terminal174/pkg/logger"
	"github.com/minhyannv/terminal174/pkg/runner"
	"github.com/minhyannv/terminal174/pkg/transcript"
)

// scriptedClient replies with queued responses in call order.
type scriptedClient struct {
	responses []string
	errAt     int
	calls     [][]transcript.Message
}

func (c *scriptedClient) Complete(_ context.Context, messages []transcript.Message) (string, error) {
	c.calls = append(c.calls, messages)
	if c.errAt > 0 && len(c.calls) == c.errAt {
		return "", &llm.ModelError{Kind: llm.ErrNetwork, Err: errors.New("connection reset")}
	}
	if len(c.responses) == 0 {
		return "done", nil
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next, nil
}

type fakeRunner struct {
	commands []string
	fail     map[string]error
}

func (r *fakeRunner) Run(_ context.Context, command string) (runner.Result, error) {
	r.commands = append(r.commands, command)
	if err := r.fail[command]; err != nil {
		return runner.Result{}, err
	}
	return runner.Result{Command: command, Stdout: []string{"out:" + command}, Exited: true}, nil
}

type recordingDisplay struct {
	talk    []string
	running []string
	errors  []string
}

func (d *recordingDisplay) Talk(text string)       { d.talk = append(d.talk, text) }
func (d *recordingDisplay) Running(command string) { d.running = append(d.running, command) }
func (d *recordingDisplay) Error(msg string)       { d.errors = append(d.errors, msg) }

type answerConfirmer struct {
	allow  bool
	asked  []string
	answer error
}

func (c *answerConfirmer) Confirm(_ context.Context, command string) (bool, error) {
	c.asked = append(c.asked, command)
	return c.allow, c.answer
}

func fixedInfo() string { return "<system_information>test</system_information>" }

func newTestAgent(t *testing.T, client llm.Client, run CommandRunner, opts ...Option) (*Agent, *recordingDisplay) {
	t.Helper()
	disp := &recordingDisplay{}
	opts = append([]Option{WithDisplay(disp), WithSystemInfo(fixedInfo)}, opts...)
	a, err := New(transcript.New("sys"), client, run, opts...)
	require.NoError(t, err)
	return a, disp
}

func assertAlternates(t *testing.T, msgs []transcript.Message) {
	t.Helper()
	require.NotEmpty(t, msgs)
	assert.Equal(t, transcript.RoleSystem, msgs[0].Role)
	for i, m := range msgs[1:] {
		want := transcript.RoleUser
		if i%2 == 1 {
			want = transcript.RoleAssistant
		}
		assert.Equal(t, want, m.Role, "message %d", i+1)
	}
}

func TestHandleInputTalkAndCommand(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<talk>Hello</talk><run_command>echo hi</run_command>",
		"all good",
	}}
	run := &fakeRunner{}
	a, disp := newTestAgent(t, client, run)

	require.NoError(t, a.HandleInput(context.Background(), "say hi"))

	assert.Equal(t, []string{"Hello"}, disp.talk)
	assert.Equal(t, []string{"echo hi"}, run.commands)
	assert.Equal(t, []string{"echo hi"}, disp.running)
	require.Len(t, client.calls, 2)
	assert.Equal(t, client.calls[0], client.calls[1][:2], "second call extends the first")
	assert.Equal(t, len(client.calls[0])+2, len(client.calls[1]))

	want := []transcript.Message{
		{Role: transcript.RoleSystem, Content: "sys"},
		{Role: transcript.RoleUser, Content: "say hi\n<system_information>test</system_information>"},
		{Role: transcript.RoleAssistant, Content: "<talk>Hello</talk><run_command>echo hi</run_command>"},
		{Role: transcript.RoleUser, Content: "<command_result>out:echo hi\n</command_result>"},
		{Role: transcript.RoleAssistant, Content: "all good"},
	}
	if diff := cmp.Diff(want, a.Transcript().Messages()); diff != "" {
		t.Fatalf("transcript mismatch (-want +got):\n%s", diff)
	}
}

func TestRunChainAddsTwoMessages(t *testing.T) {
	client := &scriptedClient{responses: []string{"finished"}}
	run := &fakeRunner{}
	a, _ := newTestAgent(t, client, run)
	before := a.Transcript().Len()

	require.NoError(t, a.RunChain(context.Background(), "echo hi"))

	assert.Equal(t, before+2, a.Transcript().Len())
	assert.Len(t, client.calls, 1)
	assert.Equal(t, []string{"echo hi"}, run.commands)
}

func TestChainsRunDepthFirst(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<run_command>a</run_command><run_command>b</run_command>",
		"<run_command>a1</run_command>",
		"<run_command>a1x</run_command>",
		"no more",
		"no more",
	}}
	run := &fakeRunner{}
	a, _ := newTestAgent(t, client, run)

	require.NoError(t, a.HandleInput(context.Background(), "go"))

	assert.Equal(t, []string{"a", "a1", "a1x", "b"}, run.commands)
	assert.Len(t, client.calls, 5)
	assertAlternates(t, a.Transcript().Messages())

	// b's result is reported after the whole a-chain has been answered.
	last := client.calls[4]
	assert.Equal(t, "<command_result>out:b\n</command_result>", last[len(last)-1].Content)
}

func TestSystemInformationOnlyOnUserTurns(t *testing.T) {
	client := &scriptedClient{responses: []string{"<run_command>ls</run_command>"}}
	a, _ := newTestAgent(t, client, &fakeRunner{})

	require.NoError(t, a.HandleInput(context.Background(), "list"))

	for _, m := range a.Transcript().Messages() {
		if strings.HasPrefix(m.Content, "<command_result>") {
			assert.NotContains(t, m.Content, "<system_information>")
		}
	}
	assert.Equal(t, 1, strings.Count(fmt.Sprint(a.Transcript().Messages()), "<system_information>"))
}

func TestSpawnErrorIsReportedToModel(t *testing.T) {
	client := &scriptedClient{responses: []string{"<run_command>broken</run_command>", "<talk>sorry</talk>"}}
	run := &fakeRunner{fail: map[string]error{"broken": fmt.Errorf("%w: no shell", runner.ErrSpawn)}}
	core, logs := observer.New(zapcore.DebugLevel)
	a, disp := newTestAgent(t, client, run, WithLogger(loggerpkg.FromZap(zap.New(core)), false))

	require.NoError(t, a.HandleInput(context.Background(), "try"))

	msgs := a.Transcript().Messages()
	assert.Equal(t, "<command_result>ERROR: Error executing command: spawn shell: no shell</command_result>", msgs[3].Content)
	assert.Equal(t, []string{"Error executing command: spawn shell: no shell"}, disp.errors)
	assert.Equal(t, []string{"sorry"}, disp.talk)
	assert.Zero(t, logs.Len(), "the red notice is enough when not verbose")
}

func TestModelErrorKeepsCommandResult(t *testing.T) {
	client := &scriptedClient{
		responses: []string{"<run_command>rm important</run_command><run_command>b</run_command>"},
		errAt:     2,
	}
	run := &fakeRunner{}
	a, _ := newTestAgent(t, client, run)

	err := a.HandleInput(context.Background(), "go")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrNetwork)

	assert.Equal(t, []string{"rm important"}, run.commands, "b must not run after the model failed")
	require.Equal(t, 4, a.Transcript().Len())
	last := a.Transcript().Last()
	assert.Equal(t, transcript.RoleUser, last.Role)
	assert.Equal(t, "<command_result>out:rm important\n</command_result>", last.Content)
}

func TestModelErrorOnFirstCallLeavesOnlySystemPrompt(t *testing.T) {
	client := &scriptedClient{errAt: 1}
	a, _ := newTestAgent(t, client, &fakeRunner{})

	require.Error(t, a.HandleInput(context.Background(), "hi"))
	assert.Equal(t, 1, a.Transcript().Len())
}

func TestMaxCommands(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"<run_command>1</run_command>",
		"<run_command>2</run_command>",
		"<run_command>3</run_command>",
		"<run_command>4</run_command>",
	}}
	run := &fakeRunner{}
	a, disp := newTestAgent(t, client, run, WithMaxCommands(3))

	err := a.HandleInput(context.Background(), "loop")
	assert.ErrorIs(t, err, ErrCommandLimit)
	assert.Equal(t, []string{"1", "2", "3"}, run.commands)
	assert.Len(t, disp.errors, 1)
	assertAlternates(t, a.Transcript().Messages())
}

func TestConfirmerDeclines(t *testing.T) {
	client := &scriptedClient{responses: []string{"<run_command>rm -rf build</run_command>", "ok"}}
	run := &fakeRunner{}
	confirm := &answerConfirmer{allow: false}
	a, _ := newTestAgent(t, client, run, WithConfirmer(confirm))

	require.NoError(t, a.HandleInput(context.Background(), "clean"))

	assert.Empty(t, run.commands)
	assert.Equal(t, []string{"rm -rf build"}, confirm.asked)
	assert.Equal(t, "<command_result>Command was not run: declined by user</command_result>", a.Transcript().Messages()[3].Content)
}

func TestConfirmerErrorAbortsTurn(t *testing.T) {
	client := &scriptedClient{responses: []string{"<run_command>ls</run_command>"}}
	run := &fakeRunner{}
	confirm := &answerConfirmer{answer: errors.New("stdin closed")}
	a, _ := newTestAgent(t, client, run, WithConfirmer(confirm))

	err := a.HandleInput(context.Background(), "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stdin closed")
	assert.Empty(t, run.commands)
	assert.Equal(t, 3, a.Transcript().Len())
}

func TestCanceledContextStopsBeforeRunning(t *testing.T) {
	client := &scriptedClient{responses: []string{"<run_command>ls</run_command>"}}
	run := &fakeRunner{}
	a, _ := newTestAgent(t, client, run)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.RunChain(ctx, "ls")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, run.commands)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, &scriptedClient{}, &fakeRunner{})
	assert.Error(t, err)
	_, err = New(transcript.New("s"), nil, &fakeRunner{})
	assert.Error(t, err)
	_, err = New(transcript.New("s"), &scriptedClient{}, nil)
	assert.Error(t, err)
}

func TestWithRealRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
	client := &scriptedClient{responses: []string{"<run_command>echo hi; exit 3</run_command>", "noted"}}
	a, _ := newTestAgent(t, client, runner.New(runner.Options{}))

	require.NoError(t, a.HandleInput(context.Background(), "run it"))
	assert.Equal(t,
		"<command_result>hi\n\nProcess exited with code: 3</command_result>",
		a.Transcript().Messages()[3].Content,
	)
}

func TestOSFamily(t *testing.T) {
	assert.Equal(t, "Windows", osFamily("windows"))
	assert.Equal(t, "macOS", osFamily("darwin"))
	assert.Equal(t, "Linux", osFamily("linux"))
	assert.Equal(t, "Linux", osFamily("freebsd"))
	assert.Contains(t, SystemInformation(), "Working Directory: ")
}
