// Package wire implements the multipart signed message format used on
// every channel: zero or more routing identities, a literal <IDS|MSG>
// delimiter, a hex HMAC-SHA256 signature, then four JSON parts (header,
// parent header, metadata, content).
package wire

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/xerrors"
)

// msgDelim separates routing identities from the signed payload.
var msgDelim = []byte("<IDS|MSG>")

// Content is implemented by every typed message body.
type Content interface {
	// MessageType returns the wire msg_type this content travels under.
	MessageType() string
}

// Unsupported carries the raw content of a message type the kernel does
// not implement. It is preserved so handlers can report the type back in
// an error reply.
type Unsupported struct {
	MsgType string
	Raw     json.RawMessage
}

func (u *Unsupported) MessageType() string { return u.MsgType }

// Message is one fully decoded protocol message.
type Message struct {
	// Identities are the ROUTER routing frames that preceded the
	// delimiter, echoed verbatim on replies.
	Identities [][]byte

	Header       Header
	ParentHeader *Header
	Metadata     map[string]interface{}
	Content      Content
}

// contentFactories maps msg_type to a constructor for its typed content.
var contentFactories = map[string]func() Content{
	MsgKernelInfoRequest: func() Content { return &KernelInfoRequest{} },
	MsgKernelInfoReply:   func() Content { return &KernelInfoReply{} },
	MsgExecuteRequest:    func() Content { return &ExecuteRequest{} },
	MsgExecuteReply:      func() Content { return &ExecuteReply{} },
	MsgIsCompleteRequest: func() Content { return &IsCompleteRequest{} },
	MsgIsCompleteReply:   func() Content { return &IsCompleteReply{} },
	MsgCompleteRequest:   func() Content { return &CompleteRequest{} },
	MsgCompleteReply:     func() Content { return &CompleteReply{} },
	MsgInspectRequest:    func() Content { return &InspectRequest{} },
	MsgInspectReply:      func() Content { return &InspectReply{} },
	MsgCommInfoRequest:   func() Content { return &CommInfoRequest{} },
	MsgCommInfoReply:     func() Content { return &CommInfoReply{} },
	MsgCommOpen:          func() Content { return &CommOpen{} },
	MsgCommMsg:           func() Content { return &CommMsg{} },
	MsgCommClose:         func() Content { return &CommClose{} },
	MsgShutdownRequest:   func() Content { return &ShutdownRequest{} },
	MsgShutdownReply:     func() Content { return &ShutdownReply{} },
	MsgInterruptRequest:  func() Content { return &InterruptRequest{} },
	MsgInterruptReply:    func() Content { return &InterruptReply{} },
	MsgInputRequest:      func() Content { return &InputRequest{} },
	MsgInputReply:        func() Content { return &InputReply{} },
	MsgHandshakeRequest:  func() Content { return &HandshakeRequest{} },
	MsgHandshakeReply:    func() Content { return &HandshakeReply{} },
	MsgStatus:            func() Content { return &KernelStatus{} },
	MsgExecuteInput:      func() Content { return &ExecuteInput{} },
	MsgExecuteResult:     func() Content { return &ExecuteResult{} },
	MsgExecuteError:      func() Content { return &ExecuteError{} },
	MsgStream:            func() Content { return &StreamOutput{} },
	MsgDisplayData:       func() Content { return &DisplayData{} },
	MsgUpdateDisplayData: func() Content { return &UpdateDisplayData{} },
	MsgWelcome:           func() Content { return &Welcome{} },
}

// New creates a fresh message with no parent.
func New(s *session.Session, content Content) *Message {
	return &Message{
		Header:  NewHeader(s, content.MessageType()),
		Content: content,
	}
}

// NewReply creates a reply to parent: the parent's header becomes the
// new message's parent header and the routing identities are copied so
// ROUTER sockets deliver the reply to the request's originator.
func NewReply(s *session.Session, parent *Message, content Content) *Message {
	hdr := parent.Header
	return &Message{
		Identities:   parent.Identities,
		Header:       NewHeader(s, content.MessageType()),
		ParentHeader: &hdr,
		Content:      content,
	}
}

// NewChild creates a message parented by parent but without its routing
// identities, for broadcast on IOPub.
func NewChild(s *session.Session, parent *Header, content Content) *Message {
	var ph *Header
	if parent != nil {
		cp := *parent
		ph = &cp
	}
	return &Message{
		Header:       NewHeader(s, content.MessageType()),
		ParentHeader: ph,
		Content:      content,
	}
}

// NewErrorReply creates an error reply to parent. The reply travels
// under the request's reply type ("*_request" becomes "*_reply") with
// status=error and the exception fields.
func NewErrorReply(s *session.Session, parent *Message, exc Exception) *Message {
	return NewReply(s, parent, &ErrorReply{
		MsgType:   ReplyTypeFor(parent.Header.MsgType),
		Status:    StatusError,
		Exception: exc,
	})
}

// ReplyTypeFor derives the reply msg_type for a request msg_type.
func ReplyTypeFor(requestType string) string {
	if strings.HasSuffix(requestType, "_request") {
		return strings.TrimSuffix(requestType, "_request") + "_reply"
	}
	return requestType + "_reply"
}

// Encode serializes the message into wire frames, signing the JSON
// parts with the session key.
func (m *Message) Encode(s *session.Session) ([][]byte, error) {
	header, err := json.Marshal(m.Header)
	if err != nil {
		return nil, xerrors.InvalidPart("header", err)
	}

	parent := []byte("{}")
	if m.ParentHeader != nil {
		if parent, err = json.Marshal(m.ParentHeader); err != nil {
			return nil, xerrors.InvalidPart("parent header", err)
		}
	}

	metadata := []byte("{}")
	if m.Metadata != nil {
		if metadata, err = json.Marshal(m.Metadata); err != nil {
			return nil, xerrors.InvalidPart("metadata", err)
		}
	}

	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, xerrors.InvalidPart("content", err)
	}

	signature := s.Sign(header, parent, metadata, content)

	frames := make([][]byte, 0, len(m.Identities)+6)
	frames = append(frames, m.Identities...)
	frames = append(frames, msgDelim, []byte(signature), header, parent, metadata, content)
	return frames, nil
}

// Decode parses wire frames into a message, verifying the signature
// before trusting any JSON part.
func Decode(s *session.Session, frames [][]byte) (*Message, error) {
	delim := -1
	for i, f := range frames {
		if bytes.Equal(f, msgDelim) {
			delim = i
			break
		}
	}
	if delim < 0 {
		return nil, xerrors.MissingDelimiter(len(frames))
	}

	rest := frames[delim+1:]
	if len(rest) < 5 {
		return nil, xerrors.InsufficientParts(len(rest), 5)
	}

	signature := string(rest[0])
	header, parent, metadata, content := rest[1], rest[2], rest[3], rest[4]
	if !s.Verify(signature, header, parent, metadata, content) {
		return nil, xerrors.BadSignature(s.Sign(header, parent, metadata, content), signature)
	}

	msg := &Message{Identities: frames[:delim]}
	if err := json.Unmarshal(header, &msg.Header); err != nil {
		return nil, xerrors.InvalidPart("header", err)
	}

	// The parent header is an empty dict when the message has no parent.
	var ph Header
	if err := json.Unmarshal(parent, &ph); err != nil {
		return nil, xerrors.InvalidPart("parent header", err)
	}
	if ph.MsgID != "" {
		msg.ParentHeader = &ph
	}

	if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
		return nil, xerrors.InvalidPart("metadata", err)
	}

	factory, ok := contentFactories[msg.Header.MsgType]
	if !ok {
		msg.Content = &Unsupported{
			MsgType: msg.Header.MsgType,
			Raw:     append(json.RawMessage(nil), content...),
		}
		return msg, nil
	}
	typed := factory()
	if err := json.Unmarshal(content, typed); err != nil {
		return nil, xerrors.InvalidPart("content", err)
	}
	msg.Content = typed
	return msg, nil
}
