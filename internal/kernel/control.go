package kernel

import (
	"context"
	"log/slog"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/zsock"
)

// control serves shutdown and interrupt requests. It runs its own
// thread so these work while the shell channel is busy executing.
type control struct {
	sock *zsock.Socket

	sess    *session.Session
	log     *slog.Logger
	handler ControlHandler
	iopub   *IOPubSender

	// stdinInterrupt is notified before the runtime's interrupt hook
	// so an execution blocked on frontend input unblocks first.
	stdinInterrupt func()

	// shutdown receives the restart flag once a shutdown reply has
	// been sent; the process exits on it.
	shutdown chan<- bool
}

func (c *control) run(ctx context.Context) {
	c.sock.StartPump()
	for raw := range c.sock.Incoming() {
		msg, err := wire.Decode(c.sess, raw.Frames)
		if err != nil {
			c.log.Warn("rejecting control message", "error", err)
			continue
		}

		parent := msg.Header
		c.iopub.SendStatus(OriginControl, &parent, wire.StateBusy)
		c.dispatch(ctx, msg)
		c.iopub.SendStatus(OriginControl, &parent, wire.StateIdle)
	}
}

func (c *control) dispatch(ctx context.Context, msg *wire.Message) {
	switch content := msg.Content.(type) {
	case *wire.ShutdownRequest:
		c.handleShutdown(ctx, msg, content)
	case *wire.InterruptRequest:
		c.handleInterrupt(ctx, msg)
	default:
		c.log.Warn("unsupported control message", "msg_type", msg.Header.MsgType)
	}
}

func (c *control) handleShutdown(ctx context.Context, msg *wire.Message, req *wire.ShutdownRequest) {
	status := wire.StatusOK
	if err := c.handler.Shutdown(ctx, req.Restart); err != nil {
		c.log.Error("shutdown handler failed", "error", err)
		status = wire.StatusError
	}
	c.reply(msg, &wire.ShutdownReply{Status: status, Restart: req.Restart})
	c.shutdown <- req.Restart
}

func (c *control) handleInterrupt(ctx context.Context, msg *wire.Message) {
	c.stdinInterrupt()
	status := wire.StatusOK
	if err := c.handler.Interrupt(ctx); err != nil {
		c.log.Error("interrupt handler failed", "error", err)
		status = wire.StatusError
	}
	c.reply(msg, &wire.InterruptReply{Status: status})
}

func (c *control) reply(parent *wire.Message, content wire.Content) {
	out := wire.NewReply(c.sess, parent, content)
	frames, err := out.Encode(c.sess)
	if err != nil {
		c.log.Error("could not encode control reply", "error", err)
		return
	}
	if err := c.sock.Send(frames...); err != nil {
		c.log.Error("could not send control reply", "error", err)
	}
}
