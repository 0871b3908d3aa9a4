package kernel

import (
	"log/slog"
	"time"

	"github.com/egret-kernel/egret/internal/zsock"
)

// heartbeat echoes whatever arrives, unmodified. Frontends use the
// round trip to detect a hung kernel. The sleep after a receive error
// keeps a dead socket from flooding the log.
func heartbeat(sock *zsock.Socket, log *slog.Logger) {
	log = log.With("channel", "heartbeat")
	for {
		frames, err := sock.Recv()
		if err != nil {
			log.Warn("heartbeat receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if err := sock.Send(frames...); err != nil {
			log.Warn("heartbeat echo failed", "error", err)
		}
	}
}
