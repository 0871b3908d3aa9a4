// Package dap implements the debug adapter: a TCP server speaking the
// Debug Adapter Protocol, bridged to the console loop through
// in-process queues, with breakpoint and stack state that survives
// client reconnects.
package dap

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Command is a console debug command injected into the runtime's
// prompt, using the runtime's single-letter stepping vocabulary.
type Command string

const (
	CmdContinue Command = "c"
	CmdNext     Command = "n"
	CmdStepIn   Command = "s"
	CmdStepOut  Command = "f"
	CmdQuit     Command = "Q"
)

// Binding is an opaque runtime value handle. It is only ever
// dereferenced by the inspector on the runtime's own thread; the
// adapter passes it around as a token.
type Binding interface{}

// Variable is one name/value pair produced by the inspector. Children
// holds the handle to expand structured values, nil for scalars.
type Variable struct {
	Name     string
	Value    string
	Type     string
	Children Binding
}

// Inspector expands runtime handles into variables on demand.
type Inspector interface {
	Inspect(b Binding) []Variable
}

// FrameSource locates a frame's code: a file path, or virtual text for
// code that exists only in the console (deparsed calls, srcref-less
// functions).
type FrameSource struct {
	Path string
	Text string
}

// IsFile reports whether the source is file-backed.
func (s FrameSource) IsFile() bool { return s.Path != "" }

// FrameInfo is one stack frame as produced by the console loop on each
// stop. IDs are assigned by the adapter state when the stack is stored.
type FrameInfo struct {
	ID          int
	SourceName  string
	FrameName   string
	Source      FrameSource
	Environment Binding
	StartLine   int
	StartColumn int
	EndLine     int
	EndColumn   int
}

// EventKind enumerates the backend events relayed to the client.
type EventKind int

const (
	EventStopped EventKind = iota
	EventContinued
	EventTerminated
	EventThreadStarted
	EventThreadExited
	EventBreakpoint
)

// Event is one backend event queued for the connection's event writer.
type Event struct {
	Kind       EventKind
	Breakpoint *Breakpoint
}

// State is the debug session state shared between the console loop and
// the DAP server. It is the only mutex-guarded structure in the
// kernel; every critical section is short and does no I/O.
type State struct {
	mu sync.Mutex

	debugging    bool
	connected    bool
	interrupting bool

	stack        []FrameInfo
	nextFrameID  int
	sessionIndex int

	documents        map[string]*documentBreakpoints
	nextBreakpointID int
	exceptionFilters []string

	// frameRefs and varRefs hold the lazily built variables-reference
	// tables, invalidated wholesale on each stop.
	frameRefs  map[int]int
	varRefs    map[int]Binding
	nextVarRef int

	// fallbackSources serves virtual document text by source
	// reference for frames with no backing file.
	fallbackSources map[int]string
	sourceRefs      map[string]int
	nextSourceRef   int

	events chan Event
}

// NewState creates an empty debug state.
func NewState() *State {
	return &State{
		documents:       make(map[string]*documentBreakpoints),
		frameRefs:       make(map[int]int),
		varRefs:         make(map[int]Binding),
		fallbackSources: make(map[int]string),
		sourceRefs:      make(map[string]int),
		events:          make(chan Event, 64),
	}
}

// Events returns the backend event queue drained by the connection's
// event writer.
func (s *State) Events() <-chan Event {
	return s.events
}

// emit queues an event for the client. Events are dropped while no
// client is connected; a reconnecting client resynchronizes from the
// retained state instead.
func (s *State) emit(ev Event) {
	if !s.connected {
		return
	}
	select {
	case s.events <- ev:
	default:
	}
}

// SetConnected flips the connection-liveness flag.
func (s *State) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

// Connected reports whether a client is attached.
func (s *State) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Debugging reports whether the console is stopped at a debug prompt.
func (s *State) Debugging() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debugging
}

// SetInterrupting records that the next runtime interrupt is a pause
// request rather than a user interrupt.
func (s *State) SetInterrupting(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interrupting = v
}

// Interrupting reports and clears the pause flag.
func (s *State) Interrupting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.interrupting
	s.interrupting = false
	return v
}

// StartDebug is called by the console loop on entering a debug prompt.
// It stores the fresh stack, assigns frame ids, drops every variables
// reference from the previous stop, and announces the stop.
func (s *State) StartDebug(stack []FrameInfo) {
	s.mu.Lock()
	for i := range stack {
		stack[i].ID = s.nextFrameID
		s.nextFrameID++
	}
	s.stack = stack
	wasDebugging := s.debugging
	s.debugging = true
	s.frameRefs = make(map[int]int)
	s.varRefs = make(map[int]Binding)
	if !wasDebugging {
		s.emit(Event{Kind: EventThreadStarted})
	}
	s.emit(Event{Kind: EventStopped})
	s.mu.Unlock()
}

// StopDebug is called on leaving the debug prompt. Frame ids restart
// from zero for the next debug session and the session index advances,
// versioning the virtual document namespace.
func (s *State) StopDebug() {
	s.mu.Lock()
	wasDebugging := s.debugging
	s.stack = nil
	s.debugging = false
	s.nextFrameID = 0
	s.sessionIndex++
	s.emit(Event{Kind: EventContinued})
	if wasDebugging {
		s.emit(Event{Kind: EventThreadExited})
	}
	s.mu.Unlock()
}

// Terminate announces the end of the debuggee, typically at runtime
// shutdown, so the client can tear down its session.
func (s *State) Terminate() {
	s.mu.Lock()
	s.emit(Event{Kind: EventTerminated})
	s.mu.Unlock()
}

// SessionIndex returns the current debug session ordinal.
func (s *State) SessionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionIndex
}

// StackSlice returns the frames in [start, start+levels), clamped to
// the stack bounds. levels 0 means all remaining frames. Frames are
// innermost-first, the order the client renders.
func (s *State) StackSlice(start, levels int) ([]FrameInfo, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.stack)
	if start > n {
		start = n
	}
	if start < 0 {
		start = 0
	}
	end := n
	if levels > 0 && start+levels < n {
		end = start + levels
	}
	out := make([]FrameInfo, end-start)
	copy(out, s.stack[start:end])
	return out, n
}

// FrameVariablesReference returns the variables reference for a
// frame's environment, registering one on first use. Frames without an
// environment return 0, the protocol's "no children" sentinel.
func (s *State) FrameVariablesReference(frameID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.frameRefs[frameID]; ok {
		return ref
	}
	for _, frame := range s.stack {
		if frame.ID != frameID {
			continue
		}
		if frame.Environment == nil {
			return 0
		}
		ref := s.registerBindingLocked(frame.Environment)
		s.frameRefs[frameID] = ref
		return ref
	}
	return 0
}

// RegisterBinding allocates a variables reference for a structured
// child value.
func (s *State) RegisterBinding(b Binding) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registerBindingLocked(b)
}

func (s *State) registerBindingLocked(b Binding) int {
	s.nextVarRef++
	s.varRefs[s.nextVarRef] = b
	return s.nextVarRef
}

// Binding resolves a variables reference back to its runtime handle.
func (s *State) Binding(ref int) (Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.varRefs[ref]
	return b, ok
}

// SetExceptionFilters stores the active exception breakpoint filters.
func (s *State) SetExceptionFilters(filters []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptionFilters = append([]string(nil), filters...)
}

// ExceptionFilters returns the active filters.
func (s *State) ExceptionFilters() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.exceptionFilters...)
}

// VirtualURI names a virtual document for the current debug session.
func (s *State) VirtualURI(hash, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("egret-debug://session%d/%s/%s", s.sessionIndex, hash, name)
}

// SourceReference returns the reference serving the given virtual
// text, registering it on first use.
func (s *State) SourceReference(text string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ContentHash([]byte(text))
	if ref, ok := s.sourceRefs[key]; ok {
		return ref
	}
	s.nextSourceRef++
	s.fallbackSources[s.nextSourceRef] = text
	s.sourceRefs[key] = s.nextSourceRef
	return s.nextSourceRef
}

// FallbackSource serves virtual document text by reference.
func (s *State) FallbackSource(ref int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.fallbackSources[ref]
	return text, ok
}

// ContentHash fingerprints document content for breakpoint keying.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:8])
}
