package kernel

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/zsock"
)

// shell is the busiest channel thread. Besides request dispatch it is
// the comm multiplexer: the open-comms set lives here and is touched by
// no other goroutine. Backend-originated comm traffic arrives as values
// through the comm bridge and is drained completely before each
// inbound request.
type shell struct {
	sock *zsock.Socket
	wake *zsock.Socket

	sess    *session.Session
	log     *slog.Logger
	handler ShellHandler
	iopub   *IOPubSender
	bridge  *commBridge
	stdin   chan<- inputRequest

	// ip is the address server-backed comms bind their servers on.
	ip          string
	serverComms map[comm.Kind]ServerComm

	comms       map[string]*comm.Socket
	pendingRPCs map[string]wire.Header
}

func newShell(sock, wake *zsock.Socket, sess *session.Session, log *slog.Logger,
	handler ShellHandler, iopub *IOPubSender, bridge *commBridge,
	stdin chan<- inputRequest, ip string, serverComms map[comm.Kind]ServerComm) *shell {
	return &shell{
		sock:        sock,
		wake:        wake,
		sess:        sess,
		log:         log.With("channel", "shell"),
		handler:     handler,
		iopub:       iopub,
		bridge:      bridge,
		stdin:       stdin,
		ip:          ip,
		serverComms: serverComms,
		comms:       make(map[string]*comm.Socket),
		pendingRPCs: make(map[string]wire.Header),
	}
}

func (s *shell) run(ctx context.Context) {
	s.sock.StartPump()
	s.wake.StartPump()

	for {
		select {
		case _, ok := <-s.wake.Incoming():
			if !ok {
				return
			}
			s.drainCommEvents()
		case msg, ok := <-s.sock.Incoming():
			if !ok {
				return
			}
			s.drainCommEvents()
			s.handleFrames(ctx, msg.Frames)
		}
	}
}

func (s *shell) drainCommEvents() {
	for {
		select {
		case ev := <-s.bridge.dest:
			s.handleCommEvent(ev)
		default:
			return
		}
	}
}

// handleFrames processes one inbound request with the busy/idle wrap.
// Idle is emitted even when the handler errors; frontends gate further
// requests on seeing it.
func (s *shell) handleFrames(ctx context.Context, frames [][]byte) {
	msg, err := wire.Decode(s.sess, frames)
	if err != nil {
		s.log.Warn("rejecting shell message", "error", err)
		return
	}

	parent := msg.Header
	s.iopub.SendStatus(OriginShell, &parent, wire.StateBusy)
	s.dispatch(ctx, msg)
	s.iopub.SendStatus(OriginShell, &parent, wire.StateIdle)
}

func (s *shell) dispatch(ctx context.Context, msg *wire.Message) {
	switch content := msg.Content.(type) {
	case *wire.KernelInfoRequest:
		s.reply(msg, s.handler.KernelInfo(ctx))
	case *wire.ExecuteRequest:
		s.handleExecute(ctx, msg, content)
	case *wire.IsCompleteRequest:
		s.reply(msg, s.handler.IsComplete(ctx, content))
	case *wire.CompleteRequest:
		s.reply(msg, s.handler.Complete(ctx, content))
	case *wire.InspectRequest:
		s.reply(msg, s.handler.Inspect(ctx, content))
	case *wire.CommInfoRequest:
		s.handleCommInfo(msg, content)
	case *wire.CommOpen:
		s.handleCommOpen(msg, content)
	case *wire.CommMsg:
		s.handleCommMsg(msg, content)
	case *wire.CommClose:
		s.handleCommClose(content)
	default:
		s.log.Warn("unsupported shell message", "msg_type", msg.Header.MsgType)
	}
}

func (s *shell) reply(parent *wire.Message, content wire.Content) {
	out := wire.NewReply(s.sess, parent, content)
	frames, err := out.Encode(s.sess)
	if err != nil {
		s.log.Error("could not encode reply", "msg_type", content.MessageType(), "error", err)
		return
	}
	if err := s.sock.Send(frames...); err != nil {
		s.log.Error("could not send reply", "msg_type", content.MessageType(), "error", err)
	}
}

func (s *shell) handleExecute(ctx context.Context, msg *wire.Message, req *wire.ExecuteRequest) {
	req.Metadata = msg.Metadata
	p := &prompter{
		requests:   s.stdin,
		originator: msg.Identities,
		parent:     msg.Header,
		allowed:    req.AllowStdin,
	}
	reply, exc := s.handler.Execute(ctx, req, p)
	if exc != nil {
		s.iopub.SendShell(&wire.ExecuteError{Exception: exc.Exception})
		s.reply(msg, &wire.ExecuteReplyException{
			Status:         wire.StatusError,
			ExecutionCount: exc.ExecutionCount,
			Exception:      exc.Exception,
		})
		return
	}
	s.reply(msg, reply)
}

func (s *shell) handleCommInfo(msg *wire.Message, req *wire.CommInfoRequest) {
	comms := make(map[string]wire.CommInfo)
	for id, sock := range s.comms {
		if req.TargetName == "" || req.TargetName == sock.Name {
			comms[id] = wire.CommInfo{TargetName: sock.Name}
		}
	}
	s.reply(msg, &wire.CommInfoReply{Status: wire.StatusOK, Comms: comms})
}

// handleCommOpen admits a new comm. The open request has no error
// reply shape, so every failure path is an unsolicited comm_close.
func (s *shell) handleCommOpen(msg *wire.Message, req *wire.CommOpen) {
	if _, exists := s.comms[req.CommID]; exists {
		s.log.Warn("comm_open for an already open comm", "comm_id", req.CommID)
		return
	}

	kind, err := comm.ParseTarget(req.TargetName)
	if err != nil {
		s.log.Warn("declining comm open", "target_name", req.TargetName, "error", err)
		s.sendCommClose(&msg.Header, req.CommID)
		return
	}

	switch kind {
	case comm.KindOther:
		sock := comm.NewSocket(req.CommID, req.TargetName, comm.FrontEnd)
		handled, err := s.handler.OpenComm(sock, req.Data)
		if err != nil || !handled {
			if err != nil {
				s.log.Warn("comm open failed", "target_name", req.TargetName, "error", err)
			}
			s.sendCommClose(&msg.Header, req.CommID)
			return
		}
		s.admitComm(sock)
	default:
		s.openServerComm(kind, msg, req)
	}
}

// openServerComm starts a server-backed comm. The server start blocks
// a spawned goroutine, never this loop; the comm joins the open set
// through the bridge once the server reports its port.
func (s *shell) openServerComm(kind comm.Kind, msg *wire.Message, req *wire.CommOpen) {
	server, ok := s.serverComms[kind]
	if !ok {
		s.log.Warn("no server registered for comm", "target_name", req.TargetName)
		s.sendCommClose(&msg.Header, req.CommID)
		return
	}

	sock := comm.NewSocket(req.CommID, req.TargetName, comm.FrontEnd)
	ip := s.ip
	go func() {
		port, err := server.Start(ip)
		if err != nil {
			s.bridge.lifecycle <- commEvent{kind: commOpenFailed, commID: sock.ID, err: err}
			return
		}
		server.Attach(sock)
		started, _ := json.Marshal(map[string]interface{}{
			"msg_type": "server_started",
			"content":  comm.ServerStarted{Port: port},
		})
		sock.SendData(started)
		s.bridge.lifecycle <- commEvent{kind: commOpened, commID: sock.ID, sock: sock}
	}()
}

func (s *shell) admitComm(sock *comm.Socket) {
	s.comms[sock.ID] = sock
	s.bridge.register <- sock
}

func (s *shell) handleCommMsg(msg *wire.Message, req *wire.CommMsg) {
	sock, ok := s.comms[req.CommID]
	if !ok {
		s.log.Warn("dropping comm_msg for unknown comm", "comm_id", req.CommID)
		return
	}
	if id := comm.RPCID(req.Data); id != "" {
		s.pendingRPCs[id] = msg.Header
	}
	sock.Incoming <- req.Data
}

// handleCommClose removes a comm at the frontend's request. Closing an
// unknown comm id is a logged no-op.
func (s *shell) handleCommClose(req *wire.CommClose) {
	sock, ok := s.comms[req.CommID]
	if !ok {
		s.log.Debug("comm_close for unknown comm", "comm_id", req.CommID)
		return
	}
	s.removeComm(sock)
}

// removeComm drops the comm from the open set and closes its inbound
// queue so the owning task terminates.
func (s *shell) removeComm(sock *comm.Socket) {
	delete(s.comms, sock.ID)
	close(sock.Incoming)
}

func (s *shell) handleCommEvent(ev commEvent) {
	switch ev.kind {
	case commOpened:
		s.admitComm(ev.sock)
		if ev.sock.Initiator == comm.BackEnd {
			s.iopub.SendMessage(wire.NewChild(s.sess, nil, &wire.CommOpen{
				CommID:     ev.sock.ID,
				TargetName: ev.sock.Name,
				Data:       json.RawMessage(`{}`),
			}))
		}
	case commOpenFailed:
		s.log.Error("server comm failed to open", "comm_id", ev.commID, "error", ev.err)
		s.sendCommClose(nil, ev.commID)
	case commMessage:
		s.handleOutbound(ev)
	}
}

func (s *shell) handleOutbound(ev commEvent) {
	sock, ok := s.comms[ev.commID]
	if !ok {
		s.log.Debug("dropping message from closed comm", "comm_id", ev.commID)
		return
	}
	switch ev.out.Kind {
	case comm.OutData:
		s.iopub.SendMessage(wire.NewChild(s.sess, nil, &wire.CommMsg{
			CommID: sock.ID,
			Data:   ev.out.Data,
		}))
	case comm.OutRPC:
		var parent *wire.Header
		if hdr, ok := s.pendingRPCs[ev.out.RequestID]; ok {
			parent = &hdr
			delete(s.pendingRPCs, ev.out.RequestID)
		} else {
			s.log.Warn("comm reply with no pending request", "request_id", ev.out.RequestID)
		}
		s.iopub.SendMessage(wire.NewChild(s.sess, parent, &wire.CommMsg{
			CommID: sock.ID,
			Data:   ev.out.Data,
		}))
	case comm.OutClose:
		s.sendCommClose(nil, sock.ID)
		s.removeComm(sock)
	}
}

// sendCommClose broadcasts an unsolicited comm_close, the only way the
// wire protocol can report a comm-level failure.
func (s *shell) sendCommClose(parent *wire.Header, commID string) {
	s.iopub.SendMessage(wire.NewChild(s.sess, parent, &wire.CommClose{CommID: commID}))
}
