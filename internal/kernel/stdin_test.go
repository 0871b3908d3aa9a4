package kernel

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
)

type promptResult struct {
	value string
	err   error
}

type stdinFixture struct {
	sess  *session.Session
	stdin *stdin

	// sent carries the header of each input_request the thread emits.
	sent chan wire.Header
}

func startStdin(t *testing.T) *stdinFixture {
	t.Helper()

	sess := session.New("kernel", "stdin-test-key")
	s := newStdin(sess, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go s.run()
	t.Cleanup(func() { close(s.requests) })

	sent := make(chan wire.Header, 4)
	go func() {
		for item := range s.out {
			msg, err := wire.Decode(sess, item.frames)
			if err != nil {
				continue
			}
			sent <- msg.Header
		}
	}()

	return &stdinFixture{sess: sess, stdin: s, sent: sent}
}

func (f *stdinFixture) prompt(text string) <-chan promptResult {
	p := &prompter{
		requests: f.stdin.requests,
		parent:   wire.NewHeader(f.sess, wire.MsgExecuteRequest),
		allowed:  true,
	}
	results := make(chan promptResult, 1)
	go func() {
		value, err := p.Prompt(text, false)
		results <- promptResult{value: value, err: err}
	}()
	return results
}

func (f *stdinFixture) reply(parent wire.Header, value string) {
	f.stdin.replies <- &wire.Message{
		Header:       wire.NewHeader(f.sess, wire.MsgInputReply),
		ParentHeader: &parent,
		Content:      &wire.InputReply{Value: value},
	}
}

func nextHeader(t *testing.T, ch <-chan wire.Header) wire.Header {
	t.Helper()
	select {
	case h := <-ch:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for input request")
		return wire.Header{}
	}
}

func awaitPrompt(t *testing.T, ch <-chan promptResult) promptResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(5 * time.Second):
		t.Fatal("prompt never resolved")
		return promptResult{}
	}
}

func TestStdin_RoundTrip(t *testing.T) {
	f := startStdin(t)

	results := f.prompt("name?")
	req := nextHeader(t, f.sent)
	f.reply(req, "Ada")

	res := awaitPrompt(t, results)
	require.NoError(t, res.err)
	assert.Equal(t, "Ada", res.value)
}

// A reply to an interrupted request must not leak into the answer for
// the next one; replies correlate by parent msg_id.
func TestStdin_StaleReplyDoesNotAnswerNextRequest(t *testing.T) {
	f := startStdin(t)

	first := f.prompt("first?")
	cancelled := nextHeader(t, f.sent)
	f.stdin.notifyInterrupt()
	require.Error(t, awaitPrompt(t, first).err)

	// The frontend answers the cancelled request anyway.
	f.reply(cancelled, "stale")

	second := f.prompt("second?")
	current := nextHeader(t, f.sent)
	f.reply(current, "fresh")

	res := awaitPrompt(t, second)
	require.NoError(t, res.err)
	assert.Equal(t, "fresh", res.value)
}
