// Package kernel wires the five protocol channels, the bridge threads,
// and the comm layer into a running kernel connected to one frontend.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/config"
	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/xerrors"
	"github.com/egret-kernel/egret/internal/zsock"
)

const (
	// handshakeTimeout bounds the wait for a registration reply.
	handshakeTimeout = 5 * time.Second
	// subscriptionTimeout bounds the wait for the first iopub
	// subscriber. Broadcasts sent before one exists are silently
	// dropped by the transport, so startup must not proceed blind.
	subscriptionTimeout = 10 * time.Second
)

// Ports are the concrete bound ports of the five channels, resolved at
// socket creation so they can be reported in a handshake.
type Ports struct {
	Control int
	Shell   int
	Stdin   int
	IOPub   int
	HB      int
}

// Kernel is one kernel connection: a signing session, the channel
// threads, and the bridges between them.
type Kernel struct {
	sess *session.Session
	log  *slog.Logger

	conn *config.Connection

	// mu guards ports, written by Connect while callers may already
	// be polling Ports from another goroutine.
	mu    sync.Mutex
	ports Ports

	iopub    *iopub
	stdin    *stdin
	shutdown chan bool
}

// New prepares a kernel for the given connection. Channel threads do
// not start until Connect.
func New(conn *config.Connection, log *slog.Logger) *Kernel {
	key := ""
	if conn.File != nil {
		key = conn.File.Key
	} else if conn.Registration != nil {
		key = conn.Registration.Key
	}
	sess := session.New("kernel", key)
	return &Kernel{
		sess:     sess,
		log:      log,
		conn:     conn,
		iopub:    newIOPub(sess, log),
		stdin:    newStdin(sess, log),
		shutdown: make(chan bool, 1),
	}
}

// IOPub returns the broadcast sender, available before Connect so
// runtime handlers can be constructed with it.
func (k *Kernel) IOPub() *IOPubSender {
	return k.iopub.sender()
}

// Session returns the connection's signing session.
func (k *Kernel) Session() *session.Session {
	return k.sess
}

// Ports returns the resolved channel ports, zero until Connect has
// bound the sockets.
func (k *Kernel) Ports() Ports {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ports
}

// Shutdown yields the restart flag once a shutdown_request has been
// acknowledged.
func (k *Kernel) Shutdown() <-chan bool {
	return k.shutdown
}

// Connect binds the channel sockets, spawns every thread, performs the
// registration handshake when the connection calls for one, and blocks
// until a frontend subscription confirms the broadcast channel is
// live. Any failure is fatal to the kernel.
func (k *Kernel) Connect(ctx context.Context, shellHandler ShellHandler, controlHandler ControlHandler, serverComms map[comm.Kind]ServerComm) error {
	ip, transport := k.endpointParams()
	ports := k.requestedPorts()

	shellSock, err := zsock.Bind("shell", zmq4.NewRouter(ctx), transport, ip, ports.Shell, k.log)
	if err != nil {
		return err
	}
	controlSock, err := zsock.Bind("control", zmq4.NewRouter(ctx), transport, ip, ports.Control, k.log)
	if err != nil {
		return err
	}
	stdinSock, err := zsock.Bind("stdin", zmq4.NewRouter(ctx), transport, ip, ports.Stdin, k.log)
	if err != nil {
		return err
	}
	iopubSock, err := zsock.Bind("iopub", zmq4.NewXPub(ctx), transport, ip, ports.IOPub, k.log)
	if err != nil {
		return err
	}
	hbSock, err := zsock.Bind("heartbeat", zmq4.NewRep(ctx), transport, ip, ports.HB, k.log)
	if err != nil {
		return err
	}

	k.mu.Lock()
	k.ports = Ports{
		Control: controlSock.Port(),
		Shell:   shellSock.Port(),
		Stdin:   stdinSock.Port(),
		IOPub:   iopubSock.Port(),
		HB:      hbSock.Port(),
	}
	k.mu.Unlock()

	// Outbound bridge: iopub and stdin queue onto one notifier whose
	// wakeup the forwarder polls alongside its sockets.
	outQueue := make(chan outboundItem, 256)
	outNotify, outWake, err := zsock.NotificationPair(ctx, "outbound", k.log)
	if err != nil {
		return err
	}
	outBridge := NewNotifier[outboundItem](outQueue, outNotify, k.log)
	outBridge.AddSource(k.iopub.out)
	outBridge.AddSource(k.stdin.out)
	go outBridge.Run()

	fwd := &forwarder{
		iopubSock:    iopubSock,
		stdinSock:    stdinSock,
		wake:         outWake,
		queue:        outQueue,
		iopub:        k.IOPub(),
		stdinReplies: k.stdin.replies,
		sess:         k.sess,
		log:          k.log.With("channel", "forwarder"),
	}

	commNotify, commWake, err := zsock.NotificationPair(ctx, "comm", k.log)
	if err != nil {
		return err
	}
	bridge := newCommBridge(commNotify, k.log)

	sh := newShell(shellSock, commWake, k.sess, k.log, shellHandler, k.IOPub(), bridge,
		k.stdin.requests, ip, serverComms)
	ctl := &control{
		sock:           controlSock,
		sess:           k.sess,
		log:            k.log.With("channel", "control"),
		handler:        controlHandler,
		iopub:          k.IOPub(),
		stdinInterrupt: k.stdin.notifyInterrupt,
		shutdown:       k.shutdown,
	}

	go k.iopub.run()
	go k.stdin.run()
	go fwd.run()
	go bridge.run()
	go sh.run(ctx)
	go ctl.run(ctx)
	go heartbeat(hbSock, k.log)

	if k.conn.Registration != nil {
		if err := k.handshake(ctx); err != nil {
			return err
		}
	}

	select {
	case <-k.iopub.Subscribed():
	case <-time.After(subscriptionTimeout):
		return xerrors.SubscriptionFailed(nil)
	case <-ctx.Done():
		return ctx.Err()
	}

	k.log.Info("kernel connected",
		"shell", k.ports.Shell, "control", k.ports.Control,
		"stdin", k.ports.Stdin, "iopub", k.ports.IOPub, "hb", k.ports.HB)
	return nil
}

func (k *Kernel) endpointParams() (ip, transport string) {
	if k.conn.File != nil {
		return k.conn.File.IP, k.conn.File.Transport
	}
	return k.conn.Registration.IP, k.conn.Registration.Transport
}

func (k *Kernel) requestedPorts() Ports {
	if k.conn.File == nil {
		// Registration mode binds ephemeral ports and reports them.
		return Ports{}
	}
	f := k.conn.File
	return Ports{
		Control: f.ControlPort,
		Shell:   f.ShellPort,
		Stdin:   f.StdinPort,
		IOPub:   f.IOPubPort,
		HB:      f.HBPort,
	}
}

// handshake reports the resolved ports to the frontend's registration
// socket and waits for acknowledgement. The temporary REQ socket lives
// only for this exchange.
func (k *Kernel) handshake(ctx context.Context) error {
	endpoint := k.conn.Registration.RegistrationEndpoint()
	sock, err := zsock.Connect("registration", zmq4.NewReq(ctx), endpoint, k.log)
	if err != nil {
		return xerrors.HandshakeFailed(endpoint, err)
	}
	defer sock.Close()

	msg := wire.New(k.sess, &wire.HandshakeRequest{
		ControlPort: k.ports.Control,
		ShellPort:   k.ports.Shell,
		StdinPort:   k.ports.Stdin,
		IOPubPort:   k.ports.IOPub,
		HBPort:      k.ports.HB,
	})
	frames, err := msg.Encode(k.sess)
	if err != nil {
		return xerrors.HandshakeFailed(endpoint, err)
	}
	if err := sock.Send(frames...); err != nil {
		return xerrors.HandshakeFailed(endpoint, err)
	}

	sock.StartPump()
	if !sock.PollIncoming(handshakeTimeout) {
		return xerrors.HandshakeFailed(endpoint, fmt.Errorf("no reply within %s", handshakeTimeout))
	}
	raw, err := sock.RecvPumped()
	if err != nil {
		return xerrors.HandshakeFailed(endpoint, err)
	}
	reply, err := wire.Decode(k.sess, raw)
	if err != nil {
		return xerrors.HandshakeFailed(endpoint, err)
	}
	content, ok := reply.Content.(*wire.HandshakeReply)
	if !ok {
		return xerrors.HandshakeFailed(endpoint, xerrors.UnknownType(reply.Header.MsgType))
	}
	if content.Status != wire.StatusOK {
		return xerrors.HandshakeFailed(endpoint, fmt.Errorf("frontend rejected registration"))
	}
	return nil
}
