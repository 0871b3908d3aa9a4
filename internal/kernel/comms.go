package kernel

import (
	"log/slog"
	"reflect"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/zsock"
)

type commEventKind int

const (
	// commOpened announces a comm ready to join the open set. For
	// backend-initiated comms the shell thread also tells the frontend.
	commOpened commEventKind = iota
	// commOpenFailed aborts a pending open; the frontend is notified
	// with an unsolicited comm_close.
	commOpenFailed
	// commMessage carries one backend-to-frontend comm message.
	commMessage
)

// commEvent is a comm lifecycle change or message delivered to the
// shell thread as a value. The open-comms set itself is confined to
// the shell goroutine; nothing mutates it from outside.
type commEvent struct {
	kind   commEventKind
	commID string
	sock   *comm.Socket
	out    comm.Outbound
	err    error
}

// commBridge watches every open comm's outgoing queue plus a lifecycle
// queue, forwarding each value onto the shell thread's comm-event queue
// and waking the shell poll loop through its notification pair. Comms
// join the watch set through register and leave when their outgoing
// queue closes.
type commBridge struct {
	register  chan *comm.Socket
	lifecycle chan commEvent

	dest   chan commEvent
	notify *zsock.Socket
	log    *slog.Logger
}

func newCommBridge(notify *zsock.Socket, log *slog.Logger) *commBridge {
	return &commBridge{
		register:  make(chan *comm.Socket, 4),
		lifecycle: make(chan commEvent, 16),
		dest:      make(chan commEvent, 64),
		notify:    notify,
		log:       log.With("channel", "comm-bridge"),
	}
}

func (b *commBridge) run() {
	// Fixed cases first, then one receive case per watched comm.
	const fixedCases = 2
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(b.register)},
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(b.lifecycle)},
	}
	var comms []*comm.Socket

	for {
		chosen, value, ok := reflect.Select(cases)
		switch {
		case chosen == 0:
			if !ok {
				return
			}
			sock := value.Interface().(*comm.Socket)
			comms = append(comms, sock)
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(sock.Outgoing),
			})
		case chosen == 1:
			if !ok {
				return
			}
			b.forward(value.Interface().(commEvent))
		default:
			idx := chosen - fixedCases
			if !ok {
				cases = append(cases[:chosen], cases[chosen+1:]...)
				comms = append(comms[:idx], comms[idx+1:]...)
				continue
			}
			b.forward(commEvent{
				kind:   commMessage,
				commID: comms[idx].ID,
				out:    value.Interface().(comm.Outbound),
			})
		}
	}
}

func (b *commBridge) forward(ev commEvent) {
	b.dest <- ev
	if err := b.notify.Notify(); err != nil {
		b.log.Warn("comm notification failed", "error", err)
	}
}
