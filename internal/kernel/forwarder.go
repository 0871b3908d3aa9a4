package kernel

import (
	"log/slog"
	"time"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/zsock"
)

// subscriptionPollInterval paces the XPUB topic scan. Subscription
// frames never surface through Recv, so new subscribers are detected
// by diffing the socket's topic set.
const subscriptionPollInterval = 20 * time.Millisecond

type outboundDest int

const (
	destIOPub outboundDest = iota
	destStdin
)

// outboundItem is one encoded message bound for a forwarder-owned
// socket.
type outboundItem struct {
	dest   outboundDest
	frames [][]byte
}

// forwarder owns the two sockets no channel thread can: the IOPub XPUB
// (pure broadcast) and the Stdin ROUTER (kernel-initiated requests,
// frontend replies). The stdin reader runs as a pump; the forwarder
// goroutine holds the writer side of both.
//
// On a wakeup from the outbound notifier it drains the queue
// completely; inbound stdin replies are relayed to their in-process
// consumer, and newly subscribed iopub topics are announced to the
// broadcast thread. Individual delivery failures are logged, never
// fatal.
type forwarder struct {
	iopubSock *zsock.Socket
	stdinSock *zsock.Socket
	wake      *zsock.Socket

	queue        <-chan outboundItem
	iopub        *IOPubSender
	stdinReplies chan<- *wire.Message

	sess *session.Session
	log  *slog.Logger
}

func (f *forwarder) run() {
	f.stdinSock.StartPump()
	f.wake.StartPump()

	topics := time.NewTicker(subscriptionPollInterval)
	defer topics.Stop()
	seen := make(map[string]struct{})

	for {
		select {
		case _, ok := <-f.wake.Incoming():
			if !ok {
				return
			}
			f.drain()
		case <-topics.C:
			f.checkSubscriptions(seen)
		case msg, ok := <-f.stdinSock.Incoming():
			if !ok {
				return
			}
			f.handleStdinFrames(msg.Frames)
		}
	}
}

// drain empties the outbound queue. One notification may cover many
// queued items, so everything available is flushed per wakeup.
func (f *forwarder) drain() {
	for {
		select {
		case item, ok := <-f.queue:
			if !ok {
				return
			}
			sock := f.iopubSock
			if item.dest == destStdin {
				sock = f.stdinSock
			}
			if err := sock.Send(item.frames...); err != nil {
				f.log.Warn("outbound forward failed", "channel", sock.Name, "error", err)
			}
		default:
			return
		}
	}
}

// checkSubscriptions announces each iopub topic not seen before. The
// topic set only reflects live subscriptions, so a topic present here
// has a subscriber behind it.
func (f *forwarder) checkSubscriptions(seen map[string]struct{}) {
	for _, topic := range f.iopubSock.Topics() {
		if _, ok := seen[topic]; ok {
			continue
		}
		seen[topic] = struct{}{}
		f.iopub.sendSubscription(topic)
	}
}

func (f *forwarder) handleStdinFrames(frames [][]byte) {
	msg, err := wire.Decode(f.sess, frames)
	if err != nil {
		f.log.Warn("rejecting stdin message", "error", err)
		return
	}
	if _, ok := msg.Content.(*wire.InputReply); !ok {
		f.log.Warn("unexpected stdin message", "msg_type", msg.Header.MsgType)
		return
	}
	f.stdinReplies <- msg
}
