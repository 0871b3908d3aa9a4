package kernel

import (
	"log/slog"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/wire"
	"github.com/egret-kernel/egret/internal/xerrors"
)

// inputRequest is one pending prompt for frontend input. The reply
// channel is buffered so the stdin thread never blocks delivering the
// outcome.
type inputRequest struct {
	prompt     string
	password   bool
	originator [][]byte
	parent     wire.Header
	reply      chan inputResult
}

type inputResult struct {
	value string
	err   error
}

// stdin serves the reverse-direction channel: the kernel requests,
// the frontend replies. At most one request is outstanding; a pending
// request can be cancelled through the interrupt side-channel so an
// interrupted execution does not hang on input.
type stdin struct {
	sess *session.Session
	log  *slog.Logger

	requests  chan inputRequest
	replies   chan *wire.Message
	interrupt chan struct{}
	out       chan outboundItem
}

func newStdin(sess *session.Session, log *slog.Logger) *stdin {
	return &stdin{
		sess:      sess,
		log:       log.With("channel", "stdin"),
		requests:  make(chan inputRequest),
		replies:   make(chan *wire.Message, 1),
		interrupt: make(chan struct{}, 1),
		out:       make(chan outboundItem, 16),
	}
}

// notifyInterrupt cancels a pending input request, if any. Non-blocking.
func (s *stdin) notifyInterrupt() {
	select {
	case s.interrupt <- struct{}{}:
	default:
	}
}

func (s *stdin) run() {
	for req := range s.requests {
		s.serve(req)
	}
	close(s.out)
}

func (s *stdin) serve(req inputRequest) {
	msg := &wire.Message{
		Identities:   req.originator,
		Header:       wire.NewHeader(s.sess, wire.MsgInputRequest),
		ParentHeader: &req.parent,
		Content:      &wire.InputRequest{Prompt: req.prompt, Password: req.password},
	}
	frames, err := msg.Encode(s.sess)
	if err != nil {
		req.reply <- inputResult{err: err}
		return
	}

	// A stale interrupt from before this request must not cancel it.
	select {
	case <-s.interrupt:
	default:
	}

	s.out <- outboundItem{dest: destStdin, frames: frames}

	for {
		select {
		case reply, ok := <-s.replies:
			if !ok {
				req.reply <- inputResult{err: xerrors.SocketRecv("stdin", nil)}
				return
			}
			// A reply to a request cancelled earlier must not answer
			// this one. Replies correlate by parent msg_id.
			if reply.ParentHeader == nil || reply.ParentHeader.MsgID != msg.Header.MsgID {
				s.log.Debug("discarding stale input reply")
				continue
			}
			content := reply.Content.(*wire.InputReply)
			req.reply <- inputResult{value: content.Value}
			return
		case <-s.interrupt:
			s.log.Debug("input request cancelled by interrupt")
			req.reply <- inputResult{err: xerrors.Interrupted("input request")}
			return
		}
	}
}

// prompter is the InputPrompter handed to execute handlers, bound to
// the triggering request's identities so replies route correctly.
type prompter struct {
	requests   chan<- inputRequest
	originator [][]byte
	parent     wire.Header
	allowed    bool
}

func (p *prompter) Prompt(text string, password bool) (string, error) {
	if !p.allowed {
		return "", xerrors.InputNotAllowed()
	}
	req := inputRequest{
		prompt:     text,
		password:   password,
		originator: p.originator,
		parent:     p.parent,
		reply:      make(chan inputResult, 1),
	}
	p.requests <- req
	res := <-req.reply
	return res.value, res.err
}
