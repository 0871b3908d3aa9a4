// Package zsock wraps zmq4 sockets with the conveniences the channel
// threads need: bind-time port resolution, a reader pump with
// non-destructive polling, and inproc notification pairs.
//
// A Socket is owned by a single goroutine. Where a channel thread needs
// both a reader and a writer, the reader runs as the pump and the owner
// keeps the writer side; this split is safe because zmq4 sockets
// serialize Send and Recv internally.
package zsock

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"

	"github.com/egret-kernel/egret/internal/xerrors"
)

// Socket is one named channel endpoint.
type Socket struct {
	// Name identifies the socket in logs and errors ("shell", "iopub").
	Name string

	sock     zmq4.Socket
	log      *slog.Logger
	endpoint string
	port     int

	incoming chan zmq4.Msg
	peeked   *zmq4.Msg
}

// Bind creates a socket listening on transport://ip:port. Port 0 binds
// an ephemeral port, resolved immediately so it can be reported in a
// registration handshake.
func Bind(name string, sock zmq4.Socket, transport, ip string, port int, log *slog.Logger) (*Socket, error) {
	endpoint := fmt.Sprintf("%s://%s:%d", transport, ip, port)
	if err := sock.Listen(endpoint); err != nil {
		return nil, xerrors.SocketBind(name, endpoint, err)
	}
	if addr, ok := sock.Addr().(*net.TCPAddr); ok {
		port = addr.Port
		endpoint = fmt.Sprintf("%s://%s:%d", transport, ip, port)
	}
	log.Debug("socket bound", "channel", name, "endpoint", endpoint)
	return &Socket{Name: name, sock: sock, log: log, endpoint: endpoint, port: port}, nil
}

// Connect creates a socket dialed to an existing endpoint.
func Connect(name string, sock zmq4.Socket, endpoint string, log *slog.Logger) (*Socket, error) {
	if err := sock.Dial(endpoint); err != nil {
		return nil, xerrors.SocketConnect(name, endpoint, err)
	}
	log.Debug("socket connected", "channel", name, "endpoint", endpoint)
	return &Socket{Name: name, sock: sock, log: log, endpoint: endpoint}, nil
}

// Port returns the bound port, 0 for connected sockets.
func (s *Socket) Port() int { return s.port }

// Topics returns the topics peers have subscribed to, nil for socket
// types that do not track subscriptions. The transport consumes XPUB
// subscription frames internally, so this accessor is the only view a
// publisher has of its subscribers.
func (s *Socket) Topics() []string {
	if topics, ok := s.sock.(zmq4.Topics); ok {
		return topics.Topics()
	}
	return nil
}

// Endpoint returns the socket's endpoint string.
func (s *Socket) Endpoint() string { return s.endpoint }

// Send sends one multipart message.
func (s *Socket) Send(frames ...[]byte) error {
	if err := s.sock.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		return xerrors.SocketSend(s.Name, err)
	}
	return nil
}

// Recv receives one multipart message directly from the socket. Not
// for use once the pump is running.
func (s *Socket) Recv() ([][]byte, error) {
	msg, err := s.sock.Recv()
	if err != nil {
		return nil, xerrors.SocketRecv(s.Name, err)
	}
	return msg.Frames, nil
}

// StartPump launches the reader goroutine. Received messages are
// delivered on Incoming; the channel closes when the socket does.
func (s *Socket) StartPump() {
	s.incoming = make(chan zmq4.Msg, 16)
	go func() {
		defer close(s.incoming)
		for {
			msg, err := s.sock.Recv()
			if err != nil {
				s.log.Debug("socket pump stopped", "channel", s.Name, "error", err)
				return
			}
			s.incoming <- msg
		}
	}()
}

// Incoming returns the pump's delivery channel.
func (s *Socket) Incoming() <-chan zmq4.Msg {
	return s.incoming
}

// PollIncoming reports whether a message is available within the
// timeout, holding it for the next RecvPumped. Caller must be the
// socket's owning goroutine.
func (s *Socket) PollIncoming(timeout time.Duration) bool {
	if s.peeked != nil {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg, ok := <-s.incoming:
		if !ok {
			return false
		}
		s.peeked = &msg
		return true
	case <-timer.C:
		return false
	}
}

// HasIncoming reports whether a message is already buffered.
func (s *Socket) HasIncoming() bool {
	if s.peeked != nil {
		return true
	}
	select {
	case msg, ok := <-s.incoming:
		if !ok {
			return false
		}
		s.peeked = &msg
		return true
	default:
		return false
	}
}

// RecvPumped receives the next pumped message, blocking until one
// arrives or the pump stops.
func (s *Socket) RecvPumped() ([][]byte, error) {
	if s.peeked != nil {
		msg := *s.peeked
		s.peeked = nil
		return msg.Frames, nil
	}
	msg, ok := <-s.incoming
	if !ok {
		return nil, xerrors.SocketRecv(s.Name, net.ErrClosed)
	}
	return msg.Frames, nil
}

// Close closes the underlying socket, stopping the pump if running.
func (s *Socket) Close() error {
	return s.sock.Close()
}

// NotificationPair creates a connected PAIR over inproc. Notify on the
// first socket wakes a blocking read on the second. The payload is a
// single zero-byte frame; only the wakeup matters.
func NotificationPair(ctx context.Context, name string, log *slog.Logger) (notify, wake *Socket, err error) {
	endpoint := fmt.Sprintf("inproc://%s-%s", name, uuid.NewString())

	wakeSock := zmq4.NewPair(ctx)
	if err := wakeSock.Listen(endpoint); err != nil {
		return nil, nil, xerrors.SocketBind(name+"-wake", endpoint, err)
	}
	notifySock := zmq4.NewPair(ctx)
	if err := notifySock.Dial(endpoint); err != nil {
		wakeSock.Close()
		return nil, nil, xerrors.SocketConnect(name+"-notify", endpoint, err)
	}

	notify = &Socket{Name: name + "-notify", sock: notifySock, log: log, endpoint: endpoint}
	wake = &Socket{Name: name + "-wake", sock: wakeSock, log: log, endpoint: endpoint}
	return notify, wake, nil
}

// Notify sends the zero-byte wakeup frame.
func (s *Socket) Notify() error {
	return s.Send([]byte{})
}
