package wire

import (
	"time"

	"github.com/google/uuid"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/version"
)

// Header is the common envelope header carried by every message.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// NewHeader creates a header for a new message in the given session.
func NewHeader(s *session.Session, msgType string) Header {
	return Header{
		MsgID:    uuid.NewString(),
		MsgType:  msgType,
		Session:  s.ID,
		Username: s.Username,
		Date:     time.Now().UTC().Format(time.RFC3339),
		Version:  version.ProtocolVersion,
	}
}
