package dap

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	godap "github.com/google/go-dap"

	"github.com/egret-kernel/egret/internal/comm"
)

// threadID is the single dummy thread the adapter reports. The console
// has exactly one thread of execution; the protocol still wants an id.
const threadID = -1

// maxConsecutiveErrors bounds tolerance for malformed requests before
// the connection is dropped.
const maxConsecutiveErrors = 5

// Server speaks DAP over TCP to one client at a time. Breakpoint and
// stack state lives in State and survives client reconnects; only the
// connection itself is per-client. Stepping commands are forwarded to
// the console loop through the comm's RPC envelope when a comm is
// attached, or the console queue otherwise.
type Server struct {
	state     *State
	inspector Inspector
	console   chan<- Command
	interrupt func()
	log       *slog.Logger

	listener net.Listener

	// mu guards the writer, the comm, and the sequence counter. The
	// event writer and the request loop both write to the client.
	mu   sync.Mutex
	conn net.Conn
	comm *comm.Socket
	seq  int
}

// NewServer creates a DAP server around shared debug state. The
// console queue receives stepping commands when no comm is attached;
// interrupt is invoked for pause requests.
func NewServer(state *State, inspector Inspector, console chan<- Command, interrupt func(), log *slog.Logger) *Server {
	return &Server{
		state:     state,
		inspector: inspector,
		console:   console,
		interrupt: interrupt,
		log:       log.With("channel", "dap"),
	}
}

// Start binds an ephemeral port and begins accepting in the
// background. Implements the server-backed comm contract.
func (s *Server) Start(ip string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(ip, "0"))
	if err != nil {
		return 0, err
	}
	s.listener = l
	go s.acceptLoop()
	port := l.Addr().(*net.TCPAddr).Port
	s.log.Info("debug adapter listening", "port", port)
	return port, nil
}

// Attach hands the server its comm socket. The comm's inbound queue is
// drained until the frontend closes the comm, at which point the
// outgoing side closes too so the comm bridge stops watching it.
func (s *Server) Attach(sock *comm.Socket) {
	s.mu.Lock()
	s.comm = sock
	s.mu.Unlock()
	go func() {
		for range sock.Incoming {
		}
		// Detach and close under the lock so no command is written to
		// the outgoing queue while it closes.
		s.mu.Lock()
		if s.comm == sock {
			s.comm = nil
		}
		close(sock.Outgoing)
		s.mu.Unlock()
	}()
}

// Stop closes the listener; the current connection, if any, ends when
// its client disconnects.
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

// acceptLoop serves one client at a time. Client disconnects are
// routine (frontends switch sessions); state is retained and the loop
// re-accepts.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.log.Debug("debug adapter accept loop done", "error", err)
			return
		}
		s.log.Info("debug adapter client connected", "remote", conn.RemoteAddr())
		s.serve(conn)
		s.log.Info("debug adapter client disconnected")
	}
}

func (s *Server) serve(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.state.SetConnected(true)

	done := make(chan struct{})
	go s.writeEvents(done)

	s.readLoop(conn)

	close(done)
	s.state.SetConnected(false)
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) readLoop(conn net.Conn) {
	reader := bufio.NewReader(conn)
	consecutive := 0
	for {
		msg, err := godap.ReadProtocolMessage(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) {
				return
			}
			consecutive++
			s.log.Warn("malformed debug adapter request", "error", err)
			if consecutive >= maxConsecutiveErrors {
				s.log.Error("too many consecutive protocol errors, dropping client")
				return
			}
			continue
		}
		consecutive = 0

		if disconnect := s.dispatch(msg); disconnect {
			return
		}
	}
}

// writeEvents drains the backend event queue for the lifetime of one
// connection. A dedicated goroutine keeps the console loop from ever
// blocking on client I/O.
func (s *Server) writeEvents(done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-s.state.Events():
			s.writeEvent(ev)
		}
	}
}

func (s *Server) writeEvent(ev Event) {
	switch ev.Kind {
	case EventStopped:
		s.send(&godap.StoppedEvent{
			Event: s.newEvent("stopped"),
			Body: godap.StoppedEventBody{
				Reason:            "step",
				ThreadId:          threadID,
				AllThreadsStopped: true,
			},
		})
	case EventContinued:
		s.send(&godap.ContinuedEvent{
			Event: s.newEvent("continued"),
			Body: godap.ContinuedEventBody{
				ThreadId:            threadID,
				AllThreadsContinued: true,
			},
		})
	case EventTerminated:
		s.send(&godap.TerminatedEvent{Event: s.newEvent("terminated")})
	case EventThreadStarted:
		s.send(&godap.ThreadEvent{
			Event: s.newEvent("thread"),
			Body:  godap.ThreadEventBody{Reason: "started", ThreadId: threadID},
		})
	case EventThreadExited:
		s.send(&godap.ThreadEvent{
			Event: s.newEvent("thread"),
			Body:  godap.ThreadEventBody{Reason: "exited", ThreadId: threadID},
		})
	case EventBreakpoint:
		s.send(&godap.BreakpointEvent{
			Event: s.newEvent("breakpoint"),
			Body: godap.BreakpointEventBody{
				Reason:     "changed",
				Breakpoint: toProtocolBreakpoint(*ev.Breakpoint),
			},
		})
	}
}

// dispatch handles one request; a true return ends the connection.
func (s *Server) dispatch(msg godap.Message) bool {
	switch req := msg.(type) {
	case *godap.InitializeRequest:
		s.onInitialize(req)
	case *godap.AttachRequest:
		s.onAttach(req)
	case *godap.ConfigurationDoneRequest:
		s.send(&godap.ConfigurationDoneResponse{Response: s.newResponse(req.Request)})
	case *godap.DisconnectRequest:
		s.onDisconnect(req)
		return true
	case *godap.RestartRequest:
		s.onRestart(req)
	case *godap.ThreadsRequest:
		s.onThreads(req)
	case *godap.SetBreakpointsRequest:
		s.onSetBreakpoints(req)
	case *godap.SetExceptionBreakpointsRequest:
		s.onSetExceptionBreakpoints(req)
	case *godap.StackTraceRequest:
		s.onStackTrace(req)
	case *godap.SourceRequest:
		s.onSource(req)
	case *godap.ScopesRequest:
		s.onScopes(req)
	case *godap.VariablesRequest:
		s.onVariables(req)
	case *godap.ContinueRequest:
		s.sendCommand(CmdContinue)
		s.send(&godap.ContinueResponse{
			Response: s.newResponse(req.Request),
			Body:     godap.ContinueResponseBody{AllThreadsContinued: true},
		})
	case *godap.NextRequest:
		s.sendCommand(CmdNext)
		s.send(&godap.NextResponse{Response: s.newResponse(req.Request)})
	case *godap.StepInRequest:
		s.sendCommand(CmdStepIn)
		s.send(&godap.StepInResponse{Response: s.newResponse(req.Request)})
	case *godap.StepOutRequest:
		s.sendCommand(CmdStepOut)
		s.send(&godap.StepOutResponse{Response: s.newResponse(req.Request)})
	case *godap.PauseRequest:
		s.onPause(req)
	default:
		if r, ok := msg.(godap.RequestMessage); ok {
			s.sendError(*r.GetRequest(), fmt.Sprintf("unsupported request %q", r.GetRequest().Command))
		} else {
			s.log.Warn("ignoring non-request debug adapter message")
		}
	}
	return false
}

func (s *Server) onInitialize(req *godap.InitializeRequest) {
	s.send(&godap.InitializeResponse{
		Response: s.newResponse(req.Request),
		Body: godap.Capabilities{
			SupportsConfigurationDoneRequest: true,
			SupportsRestartRequest:           true,
		},
	})
	s.send(&godap.InitializedEvent{Event: s.newEvent("initialized")})
}

// onAttach acknowledges the attach. A client reconnecting while the
// console sits at a debug prompt is resynchronized with a fresh
// stopped event.
func (s *Server) onAttach(req *godap.AttachRequest) {
	s.send(&godap.AttachResponse{Response: s.newResponse(req.Request)})
	if s.state.Debugging() {
		s.send(&godap.StoppedEvent{
			Event: s.newEvent("stopped"),
			Body: godap.StoppedEventBody{
				Reason:            "step",
				ThreadId:          threadID,
				AllThreadsStopped: true,
			},
		})
	}
}

// onDisconnect quits the debug prompt only when actually stopped in
// one, then acknowledges.
func (s *Server) onDisconnect(req *godap.DisconnectRequest) {
	if s.state.Debugging() {
		s.sendCommand(CmdQuit)
	}
	s.send(&godap.DisconnectResponse{Response: s.newResponse(req.Request)})
}

func (s *Server) onRestart(req *godap.RestartRequest) {
	s.mu.Lock()
	if s.comm == nil {
		s.mu.Unlock()
		s.sendError(req.Request, "restart requires a connected frontend")
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"msg_type": "restart"})
	s.comm.SendData(payload)
	s.mu.Unlock()
	s.send(&godap.RestartResponse{Response: s.newResponse(req.Request)})
}

func (s *Server) onThreads(req *godap.ThreadsRequest) {
	s.send(&godap.ThreadsResponse{
		Response: s.newResponse(req.Request),
		Body: godap.ThreadsResponseBody{
			Threads: []godap.Thread{{Id: threadID, Name: "console"}},
		},
	})
}

func (s *Server) onSetBreakpoints(req *godap.SetBreakpointsRequest) {
	path := req.Arguments.Source.Path
	content, err := os.ReadFile(path)
	if err != nil {
		s.sendError(req.Request, fmt.Sprintf("cannot read source %s: %v", path, err))
		return
	}

	lines := make([]int, 0, len(req.Arguments.Breakpoints))
	for _, sb := range req.Arguments.Breakpoints {
		lines = append(lines, sb.Line)
	}

	result := s.state.SetBreakpoints(path, ContentHash(content), lines)
	body := godap.SetBreakpointsResponseBody{
		Breakpoints: make([]godap.Breakpoint, len(result)),
	}
	for i, bp := range result {
		body.Breakpoints[i] = toProtocolBreakpoint(bp)
	}
	s.send(&godap.SetBreakpointsResponse{
		Response: s.newResponse(req.Request),
		Body:     body,
	})
}

func (s *Server) onSetExceptionBreakpoints(req *godap.SetExceptionBreakpointsRequest) {
	s.state.SetExceptionFilters(req.Arguments.Filters)
	s.send(&godap.SetExceptionBreakpointsResponse{Response: s.newResponse(req.Request)})
}

func (s *Server) onStackTrace(req *godap.StackTraceRequest) {
	frames, total := s.state.StackSlice(req.Arguments.StartFrame, req.Arguments.Levels)
	body := godap.StackTraceResponseBody{
		StackFrames: make([]godap.StackFrame, len(frames)),
		TotalFrames: total,
	}
	for i, frame := range frames {
		body.StackFrames[i] = s.toProtocolFrame(frame)
	}
	s.send(&godap.StackTraceResponse{
		Response: s.newResponse(req.Request),
		Body:     body,
	})
}

func (s *Server) toProtocolFrame(frame FrameInfo) godap.StackFrame {
	src := &godap.Source{Name: frame.SourceName}
	if frame.Source.IsFile() {
		src.Path = frame.Source.Path
	} else {
		src.SourceReference = s.state.SourceReference(frame.Source.Text)
		src.Path = s.state.VirtualURI(ContentHash([]byte(frame.Source.Text)), frame.SourceName)
	}
	return godap.StackFrame{
		Id:        frame.ID,
		Name:      frame.FrameName,
		Source:    src,
		Line:      frame.StartLine,
		Column:    frame.StartColumn,
		EndLine:   frame.EndLine,
		EndColumn: frame.EndColumn,
	}
}

// onSource serves virtual document content. Anything without a known
// source reference is an error; file-backed sources never come here.
func (s *Server) onSource(req *godap.SourceRequest) {
	ref := req.Arguments.SourceReference
	if ref == 0 && req.Arguments.Source != nil {
		ref = req.Arguments.Source.SourceReference
	}
	content, ok := s.state.FallbackSource(ref)
	if !ok {
		s.sendError(req.Request, fmt.Sprintf("no source with reference %d", ref))
		return
	}
	s.send(&godap.SourceResponse{
		Response: s.newResponse(req.Request),
		Body:     godap.SourceResponseBody{Content: content},
	})
}

func (s *Server) onScopes(req *godap.ScopesRequest) {
	ref := s.state.FrameVariablesReference(req.Arguments.FrameId)
	s.send(&godap.ScopesResponse{
		Response: s.newResponse(req.Request),
		Body: godap.ScopesResponseBody{
			Scopes: []godap.Scope{{
				Name:               "Locals",
				VariablesReference: ref,
				Expensive:          false,
			}},
		},
	})
}

func (s *Server) onVariables(req *godap.VariablesRequest) {
	binding, ok := s.state.Binding(req.Arguments.VariablesReference)
	if !ok {
		s.sendError(req.Request, fmt.Sprintf("unknown variables reference %d", req.Arguments.VariablesReference))
		return
	}

	vars := s.inspector.Inspect(binding)
	body := godap.VariablesResponseBody{
		Variables: make([]godap.Variable, len(vars)),
	}
	for i, v := range vars {
		ref := 0
		if v.Children != nil {
			ref = s.state.RegisterBinding(v.Children)
		}
		body.Variables[i] = godap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			VariablesReference: ref,
		}
	}
	s.send(&godap.VariablesResponse{
		Response: s.newResponse(req.Request),
		Body:     body,
	})
}

// onPause flags the interrupt as debugger-initiated and requests an
// out-of-band runtime interrupt. The stopped event follows once the
// runtime reaches a safe checkpoint; none is synthesized here.
func (s *Server) onPause(req *godap.PauseRequest) {
	s.state.SetInterrupting(true)
	if s.interrupt != nil {
		s.interrupt()
	}
	s.send(&godap.PauseResponse{Response: s.newResponse(req.Request)})
}

// sendCommand forwards a console command through the comm's execute
// envelope when a frontend is attached, else the console queue.
func (s *Server) sendCommand(cmd Command) {
	s.mu.Lock()
	if s.comm != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"msg_type": "execute",
			"content":  map[string]string{"command": string(cmd)},
		})
		s.comm.SendData(payload)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if s.console == nil {
		s.log.Warn("no console route for debug command", "command", string(cmd))
		return
	}
	s.console <- cmd
}

func toProtocolBreakpoint(bp Breakpoint) godap.Breakpoint {
	out := godap.Breakpoint{
		Id:       bp.ID,
		Verified: bp.State == Verified,
		Line:     bp.Line,
	}
	if bp.State == Invalid {
		out.Message = bp.InvalidReason
	}
	return out
}

func (s *Server) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Server) newResponse(req godap.Request) godap.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: s.nextSeq(), Type: "response"},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (s *Server) newEvent(name string) godap.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return godap.Event{
		ProtocolMessage: godap.ProtocolMessage{Seq: s.nextSeq(), Type: "event"},
		Event:           name,
	}
}

func (s *Server) sendError(req godap.Request, message string) {
	resp := s.newResponse(req)
	resp.Success = false
	resp.Message = message
	s.send(&godap.ErrorResponse{
		Response: resp,
		Body: godap.ErrorResponseBody{
			Error: &godap.ErrorMessage{Format: message, ShowUser: true},
		},
	})
}

// send writes one message to the current client. Write failures are
// logged; the read loop notices the dead connection on its own.
func (s *Server) send(msg godap.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	if err := godap.WriteProtocolMessage(s.conn, msg); err != nil {
		s.log.Warn("debug adapter write failed", "error", err)
	}
}
