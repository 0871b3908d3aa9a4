package dap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubInspector treats a binding as its pre-rendered variable list.
type stubInspector struct{}

func (stubInspector) Inspect(b Binding) []Variable {
	vars, _ := b.([]Variable)
	return vars
}

type serverFixture struct {
	state     *State
	server    *Server
	client    *Client
	console   chan Command
	interrupt chan struct{}
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		state:     NewState(),
		console:   make(chan Command, 8),
		interrupt: make(chan struct{}, 1),
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	f.server = NewServer(f.state, stubInspector{}, f.console, func() {
		select {
		case f.interrupt <- struct{}{}:
		default:
		}
	}, log)

	port, err := f.server.Start("127.0.0.1")
	require.NoError(t, err)
	t.Cleanup(func() { f.server.Stop() })

	transport, err := Dial(fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	f.client = NewClient(transport)
	t.Cleanup(func() { f.client.Close() })

	return f
}

func TestServer_InitializeHandshake(t *testing.T) {
	f := newServerFixture(t)

	caps, err := f.client.Initialize("test-client", "Test Client")
	require.NoError(t, err)
	assert.True(t, caps.SupportsConfigurationDoneRequest)
	assert.True(t, caps.SupportsRestartRequest)

	_, err = f.client.WaitForEvent("initialized", 2*time.Second)
	require.NoError(t, err)

	require.NoError(t, f.client.Attach())
	require.NoError(t, f.client.ConfigurationDone())
}

func TestServer_ThreadsReportsConsole(t *testing.T) {
	f := newServerFixture(t)

	threads, err := f.client.Threads()
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, -1, threads[0].Id)
	assert.Equal(t, "console", threads[0].Name)
}

func TestServer_AttachWhileStoppedResendsStopped(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.client.Initialize("test-client", "Test Client")
	require.NoError(t, err)

	f.state.StartDebug(makeStack(1))

	require.NoError(t, f.client.Attach())
	msg, err := f.client.WaitForEvent("stopped", 2*time.Second)
	require.NoError(t, err)
	stopped := msg.(*godap.StoppedEvent)
	assert.Equal(t, -1, stopped.Body.ThreadId)
	assert.True(t, stopped.Body.AllThreadsStopped)
}

func TestServer_SetBreakpointsReadsFile(t *testing.T) {
	f := newServerFixture(t)

	path := filepath.Join(t.TempDir(), "script.R")
	require.NoError(t, os.WriteFile(path, []byte("x <- 1\ny <- 2\nz <- 3\n"), 0o644))

	bps, err := f.client.SetBreakpoints(godap.Source{Path: path}, []int{2, 3})
	require.NoError(t, err)
	require.Len(t, bps, 2)
	assert.False(t, bps[0].Verified)
	assert.Equal(t, 2, bps[0].Line)
	assert.NotZero(t, bps[0].Id)

	// Same content, same request: ids are stable.
	again, err := f.client.SetBreakpoints(godap.Source{Path: path}, []int{2, 3})
	require.NoError(t, err)
	require.Len(t, again, 2)
	assert.Equal(t, bps[0].Id, again[0].Id)
	assert.Equal(t, bps[1].Id, again[1].Id)
}

func TestServer_SetBreakpointsUnreadableFile(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.client.SetBreakpoints(godap.Source{Path: "/no/such/file.R"}, []int{1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot read source")
}

func TestServer_StackTraceAndVirtualSource(t *testing.T) {
	f := newServerFixture(t)

	const body = "function(x) {\n  x + 1\n}"
	stack := makeStack(1)
	stack = append(stack, FrameInfo{
		FrameName:  "f(x)",
		SourceName: "<call>",
		Source:     FrameSource{Text: body},
		StartLine:  2,
		EndLine:    2,
	})
	f.state.StartDebug(stack)

	frames, total, err := f.client.StackTrace(-1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, frames, 2)

	// File-backed frame carries a path and no source reference.
	assert.Equal(t, "/home/user/analysis.R", frames[0].Source.Path)
	assert.Zero(t, frames[0].Source.SourceReference)

	// Text-backed frame gets a virtual document.
	require.NotZero(t, frames[1].Source.SourceReference)
	assert.Contains(t, frames[1].Source.Path, "egret-debug://session0/")

	content, err := f.client.Source(frames[1].Source.SourceReference)
	require.NoError(t, err)
	assert.Equal(t, body, content)

	_, err = f.client.Source(9999)
	require.Error(t, err)
}

func TestServer_ScopesAndVariables(t *testing.T) {
	f := newServerFixture(t)

	nested := []Variable{{Name: "a", Value: "1", Type: "double"}}
	env := []Variable{
		{Name: "x", Value: "42", Type: "integer"},
		{Name: "lst", Value: "list of 1", Type: "list", Children: nested},
	}
	stack := makeStack(1)
	stack[0].Environment = env
	f.state.StartDebug(stack)

	frames, _, err := f.client.StackTrace(-1, 0, 1)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	scopes, err := f.client.Scopes(frames[0].Id)
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	assert.Equal(t, "Locals", scopes[0].Name)
	require.NotZero(t, scopes[0].VariablesReference)

	vars, err := f.client.Variables(scopes[0].VariablesReference)
	require.NoError(t, err)
	require.Len(t, vars, 2)
	assert.Equal(t, "x", vars[0].Name)
	assert.Zero(t, vars[0].VariablesReference)
	require.NotZero(t, vars[1].VariablesReference)

	children, err := f.client.Variables(vars[1].VariablesReference)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a", children[0].Name)

	_, err = f.client.Variables(424242)
	require.Error(t, err)
}

func TestServer_SteppingGoesToConsole(t *testing.T) {
	f := newServerFixture(t)
	f.state.StartDebug(makeStack(1))

	require.NoError(t, f.client.Continue(-1))
	assert.Equal(t, CmdContinue, <-f.console)

	require.NoError(t, f.client.Next(-1))
	assert.Equal(t, CmdNext, <-f.console)

	require.NoError(t, f.client.StepIn(-1))
	assert.Equal(t, CmdStepIn, <-f.console)

	require.NoError(t, f.client.StepOut(-1))
	assert.Equal(t, CmdStepOut, <-f.console)
}

func TestServer_PauseFlagsInterrupt(t *testing.T) {
	f := newServerFixture(t)

	require.NoError(t, f.client.Pause(-1))

	select {
	case <-f.interrupt:
	case <-time.After(2 * time.Second):
		t.Fatal("interrupt callback not invoked")
	}
	assert.True(t, f.state.Interrupting())
}

func TestServer_DisconnectWhileDebuggingQuits(t *testing.T) {
	f := newServerFixture(t)
	f.state.StartDebug(makeStack(1))

	require.NoError(t, f.client.Disconnect())
	assert.Equal(t, CmdQuit, <-f.console)
}

func TestServer_DisconnectIdleSendsNoQuit(t *testing.T) {
	f := newServerFixture(t)

	require.NoError(t, f.client.Disconnect())
	assert.Empty(t, f.console)
}

func TestServer_StopEventsReachClient(t *testing.T) {
	f := newServerFixture(t)

	_, err := f.client.Initialize("test-client", "Test Client")
	require.NoError(t, err)

	// Give the server a moment to mark the connection live.
	require.Eventually(t, f.state.Connected, 2*time.Second, 10*time.Millisecond)

	f.state.StartDebug(makeStack(1))
	_, err = f.client.WaitForEvent("stopped", 2*time.Second)
	require.NoError(t, err)

	f.state.StopDebug()
	_, err = f.client.WaitForEvent("continued", 2*time.Second)
	require.NoError(t, err)

	f.state.Terminate()
	_, err = f.client.WaitForEvent("terminated", 2*time.Second)
	require.NoError(t, err)
}

func TestServer_SetExceptionBreakpoints(t *testing.T) {
	f := newServerFixture(t)

	require.NoError(t, f.client.SetExceptionBreakpoints([]string{"error"}))
	assert.Equal(t, []string{"error"}, f.state.ExceptionFilters())
}
