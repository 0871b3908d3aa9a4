package dap

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeStack(n int) []FrameInfo {
	stack := make([]FrameInfo, n)
	for i := range stack {
		stack[i] = FrameInfo{
			FrameName:  fmt.Sprintf("frame%d", i),
			SourceName: "analysis.R",
			Source:     FrameSource{Path: "/home/user/analysis.R"},
			StartLine:  i + 1,
		}
	}
	return stack
}

func TestState_FrameIDsMonotonicWithinSession(t *testing.T) {
	s := NewState()

	s.StartDebug(makeStack(2))
	first, total := s.StackSlice(0, 0)
	require.Equal(t, 2, total)
	assert.Equal(t, 0, first[0].ID)
	assert.Equal(t, 1, first[1].ID)

	// A step produces a fresh stack; ids never repeat while the
	// session lasts, so stale client references cannot alias.
	s.StartDebug(makeStack(2))
	second, _ := s.StackSlice(0, 0)
	assert.Equal(t, 2, second[0].ID)
	assert.Equal(t, 3, second[1].ID)

	s.StopDebug()
	s.StartDebug(makeStack(1))
	third, _ := s.StackSlice(0, 0)
	assert.Equal(t, 0, third[0].ID)
}

func TestState_StopDebugAdvancesSessionIndex(t *testing.T) {
	s := NewState()
	assert.Equal(t, 0, s.SessionIndex())

	s.StartDebug(makeStack(1))
	s.StopDebug()
	assert.Equal(t, 1, s.SessionIndex())
	assert.False(t, s.Debugging())
}

func TestState_StackSliceClamps(t *testing.T) {
	s := NewState()
	s.StartDebug(makeStack(5))

	frames, total := s.StackSlice(3, 10)
	assert.Equal(t, 5, total)
	require.Len(t, frames, 2)
	assert.Equal(t, "frame3", frames[0].FrameName)

	frames, _ = s.StackSlice(99, 1)
	assert.Empty(t, frames)

	frames, _ = s.StackSlice(1, 2)
	require.Len(t, frames, 2)
	assert.Equal(t, "frame1", frames[0].FrameName)
}

func TestState_EventsDroppedWhileDisconnected(t *testing.T) {
	s := NewState()

	s.StartDebug(makeStack(1))
	s.StopDebug()
	assert.Empty(t, s.Events())

	s.SetConnected(true)
	s.StartDebug(makeStack(1))

	ev := <-s.Events()
	assert.Equal(t, EventThreadStarted, ev.Kind)
	ev = <-s.Events()
	assert.Equal(t, EventStopped, ev.Kind)
}

func TestState_StopEmitsContinuedThenThreadExited(t *testing.T) {
	s := NewState()
	s.SetConnected(true)
	s.StartDebug(makeStack(1))
	<-s.Events()
	<-s.Events()

	s.StopDebug()
	assert.Equal(t, EventContinued, (<-s.Events()).Kind)
	assert.Equal(t, EventThreadExited, (<-s.Events()).Kind)
}

func TestState_VariablesReferences(t *testing.T) {
	s := NewState()
	env := map[string]int{"x": 1}
	stack := makeStack(2)
	stack[0].Environment = env
	s.StartDebug(stack)

	frames, _ := s.StackSlice(0, 0)
	ref := s.FrameVariablesReference(frames[0].ID)
	require.NotZero(t, ref)

	// Stable on repeat lookups.
	assert.Equal(t, ref, s.FrameVariablesReference(frames[0].ID))

	// No environment means no children.
	assert.Zero(t, s.FrameVariablesReference(frames[1].ID))

	got, ok := s.Binding(ref)
	require.True(t, ok)
	assert.Equal(t, Binding(env), got)

	// References from the previous stop die with it.
	s.StartDebug(makeStack(1))
	_, ok = s.Binding(ref)
	assert.False(t, ok)
}

func TestState_InterruptingReadsAndClears(t *testing.T) {
	s := NewState()
	assert.False(t, s.Interrupting())

	s.SetInterrupting(true)
	assert.True(t, s.Interrupting())
	assert.False(t, s.Interrupting())
}

func TestState_SourceReferenceDedup(t *testing.T) {
	s := NewState()

	ref := s.SourceReference("f <- function(x) x + 1")
	assert.Equal(t, ref, s.SourceReference("f <- function(x) x + 1"))
	assert.NotEqual(t, ref, s.SourceReference("g <- function() NULL"))

	text, ok := s.FallbackSource(ref)
	require.True(t, ok)
	assert.Equal(t, "f <- function(x) x + 1", text)

	_, ok = s.FallbackSource(999)
	assert.False(t, ok)
}

func TestState_VirtualURIVersionedBySession(t *testing.T) {
	s := NewState()
	hash := ContentHash([]byte("body"))

	uri := s.VirtualURI(hash, "<call>")
	assert.Equal(t, fmt.Sprintf("egret-debug://session0/%s/<call>", hash), uri)

	s.StartDebug(makeStack(1))
	s.StopDebug()
	assert.Equal(t, fmt.Sprintf("egret-debug://session1/%s/<call>", hash), s.VirtualURI(hash, "<call>"))
}

func TestContentHash_Stable(t *testing.T) {
	a := ContentHash([]byte("content"))
	b := ContentHash([]byte("content"))
	c := ContentHash([]byte("other"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}
