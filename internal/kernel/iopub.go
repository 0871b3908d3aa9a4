package kernel

import (
	"log/slog"
	"sync"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/xerrors"
)

// Origin names the channel a busy/idle status is attributed to. The
// iopub thread keeps one parent context per origin so output emitted
// while a request runs inherits that request's header.
type Origin int

const (
	OriginShell Origin = iota
	OriginControl
)

type iopubEvent interface{ isIOPubEvent() }

type evStatus struct {
	origin Origin
	parent *wire.Header
	state  wire.ExecutionState
}

// evShellContent inherits the stored shell parent context.
type evShellContent struct{ content wire.Content }

// evMessage is sent as built, parent and all.
type evMessage struct{ msg *wire.Message }

type evSubscription struct{ topic string }

func (evStatus) isIOPubEvent()       {}
func (evShellContent) isIOPubEvent() {}
func (evMessage) isIOPubEvent()      {}
func (evSubscription) isIOPubEvent() {}

// IOPubSender is the handle channel threads and handlers use to queue
// broadcast traffic. Methods never block for long: the queue is
// buffered and drained by the iopub goroutine.
type IOPubSender struct {
	rx chan<- iopubEvent
}

// SendStatus broadcasts an execution state attributed to a request.
func (s *IOPubSender) SendStatus(origin Origin, parent *wire.Header, state wire.ExecutionState) {
	s.rx <- evStatus{origin: origin, parent: parent, state: state}
}

// SendShell broadcasts content parented by the shell channel's current
// request context: execute_input, execute_result, stream output and
// display data all travel this way.
func (s *IOPubSender) SendShell(content wire.Content) {
	s.rx <- evShellContent{content: content}
}

// SendMessage broadcasts a prebuilt message, used for comm traffic
// whose parent is the triggering comm_msg rather than the current
// request.
func (s *IOPubSender) SendMessage(msg *wire.Message) {
	s.rx <- evMessage{msg: msg}
}

func (s *IOPubSender) sendSubscription(topic string) {
	s.rx <- evSubscription{topic: topic}
}

// iopub is the broadcast thread. It owns the per-origin parent
// contexts and the subscription gate; the XPUB socket itself belongs
// to the forwarder, which drains the outbound queue.
type iopub struct {
	sess *session.Session
	log  *slog.Logger

	rx  chan iopubEvent
	out chan outboundItem

	shellParent   *wire.Header
	controlParent *wire.Header

	subscribed chan struct{}
	subOnce    sync.Once
}

func newIOPub(sess *session.Session, log *slog.Logger) *iopub {
	return &iopub{
		sess:       sess,
		log:        log.With("channel", "iopub"),
		rx:         make(chan iopubEvent, 256),
		out:        make(chan outboundItem, 256),
		subscribed: make(chan struct{}),
	}
}

func (p *iopub) sender() *IOPubSender {
	return &IOPubSender{rx: p.rx}
}

// Subscribed closes once the first frontend subscription arrives.
func (p *iopub) Subscribed() <-chan struct{} {
	return p.subscribed
}

func (p *iopub) run() {
	// Frontends treat the first status as the kernel coming up.
	p.emit(wire.NewChild(p.sess, nil, &wire.KernelStatus{ExecutionState: wire.StateStarting}))

	for ev := range p.rx {
		switch ev := ev.(type) {
		case evStatus:
			p.handleStatus(ev)
		case evShellContent:
			p.emit(wire.NewChild(p.sess, p.shellParent, ev.content))
		case evMessage:
			p.emit(ev.msg)
		case evSubscription:
			p.handleSubscription(ev.topic)
		}
	}
	close(p.out)
}

// handleStatus broadcasts the state and maintains the per-origin
// context: busy stores the parent, idle clears it.
func (p *iopub) handleStatus(ev evStatus) {
	if ev.state == wire.StateBusy {
		p.setParent(ev.origin, ev.parent)
	}
	p.emit(wire.NewChild(p.sess, ev.parent, &wire.KernelStatus{ExecutionState: ev.state}))
	if ev.state == wire.StateIdle {
		p.setParent(ev.origin, nil)
	}
}

func (p *iopub) setParent(origin Origin, parent *wire.Header) {
	switch origin {
	case OriginShell:
		p.shellParent = parent
	case OriginControl:
		p.controlParent = parent
	}
}

func (p *iopub) handleSubscription(topic string) {
	p.log.Debug("frontend subscribed", "topic", topic)
	p.emit(wire.NewChild(p.sess, nil, &wire.Welcome{Subscription: topic}))
	p.subOnce.Do(func() { close(p.subscribed) })
}

func (p *iopub) emit(msg *wire.Message) {
	frames, err := msg.Encode(p.sess)
	if err != nil {
		p.log.Warn("dropping unencodable broadcast", "msg_type", msg.Header.MsgType, "error", xerrors.FromError(err))
		return
	}
	p.out <- outboundItem{dest: destIOPub, frames: frames}
}
