package kernel

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egret-kernel/egret/internal/zsock"
)

func notifierFixture(t *testing.T) (*Notifier[int], chan int, *zsock.Socket) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	notify, wake, err := zsock.NotificationPair(ctx, "notifier-test", log)
	require.NoError(t, err)
	t.Cleanup(func() {
		notify.Close()
		wake.Close()
	})
	wake.StartPump()

	dest := make(chan int, 16)
	return NewNotifier[int](dest, notify, log), dest, wake
}

func recvInt(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for forwarded value")
		return 0
	}
}

func TestNotifier_ForwardsAndWakes(t *testing.T) {
	n, dest, wake := notifierFixture(t)

	src := make(chan int, 4)
	n.AddSource(src)
	go n.Run()

	src <- 7
	assert.Equal(t, 7, recvInt(t, dest))

	select {
	case <-wake.Incoming():
	case <-time.After(5 * time.Second):
		t.Fatal("no wakeup notification observed")
	}
}

func TestNotifier_MultipleSources(t *testing.T) {
	n, dest, _ := notifierFixture(t)

	a := make(chan int, 1)
	b := make(chan int, 1)
	n.AddSource(a)
	go n.Run()
	n.AddSource(b)

	a <- 1
	b <- 2

	got := map[int]bool{recvInt(t, dest): true, recvInt(t, dest): true}
	assert.True(t, got[1])
	assert.True(t, got[2])
}

func TestNotifier_ExitsWhenSourcesDrain(t *testing.T) {
	n, dest, _ := notifierFixture(t)

	src := make(chan int, 1)
	n.AddSource(src)

	done := make(chan struct{})
	go func() {
		n.Run()
		close(done)
	}()

	src <- 3
	assert.Equal(t, 3, recvInt(t, dest))

	close(src)
	n.CloseSources()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("notifier did not exit after sources drained")
	}
}
