package kernel

import (
	"log/slog"
	"reflect"

	"github.com/egret-kernel/egret/internal/zsock"
)

// Notifier bridges in-process queues to a thread that blocks on socket
// readiness. It waits on any of its source channels, forwards each
// value unchanged onto the destination queue, then fires a zero-byte
// notification on its paired inproc socket so the consumer's poll loop
// wakes. The notification carries no payload; the work travels on the
// queue.
//
// A closed source is dropped from the select set. Run returns once the
// add channel is closed and every source has been dropped.
type Notifier[T any] struct {
	add    chan (<-chan T)
	dest   chan<- T
	notify *zsock.Socket
	log    *slog.Logger
}

// NewNotifier creates a notifier forwarding to dest and waking through
// the notify socket.
func NewNotifier[T any](dest chan<- T, notify *zsock.Socket, log *slog.Logger) *Notifier[T] {
	return &Notifier[T]{
		add:    make(chan (<-chan T), 4),
		dest:   dest,
		notify: notify,
		log:    log,
	}
}

// AddSource registers another queue to watch. Safe before or during Run.
func (n *Notifier[T]) AddSource(src <-chan T) {
	n.add <- src
}

// CloseSources marks the source set final; Run exits once all sources
// disconnect.
func (n *Notifier[T]) CloseSources() {
	close(n.add)
}

// Run processes sources until all are disconnected.
func (n *Notifier[T]) Run() {
	cases := []reflect.SelectCase{{
		Dir:  reflect.SelectRecv,
		Chan: reflect.ValueOf(n.add),
	}}
	addOpen := true

	for {
		if !addOpen && len(cases) == 1 {
			return
		}

		chosen, value, ok := reflect.Select(cases)
		if chosen == 0 {
			if !ok {
				addOpen = false
				cases[0].Chan = reflect.Value{}
				continue
			}
			cases = append(cases, reflect.SelectCase{
				Dir:  reflect.SelectRecv,
				Chan: reflect.ValueOf(value.Interface()),
			})
			continue
		}
		if !ok {
			cases = append(cases[:chosen], cases[chosen+1:]...)
			continue
		}

		n.dest <- value.Interface().(T)
		if err := n.notify.Notify(); err != nil {
			n.log.Warn("bridge notification failed", "error", err)
		}
	}
}
