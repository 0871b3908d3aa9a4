// Package session holds the signing identity shared by every channel of
// a kernel connection.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Session identifies one kernel connection. All messages sent on any
// channel of the connection carry the same session id and are signed
// with the same key.
type Session struct {
	// Username is the name of the user that owns the session
	Username string

	// ID is the unique session identifier
	ID string

	// Key is the shared HMAC-SHA256 signing key, empty when the
	// connection is unauthenticated
	Key string
}

// New creates a session with a fresh random id.
func New(username, key string) *Session {
	return &Session{
		Username: username,
		ID:       uuid.NewString(),
		Key:      key,
	}
}

// Sign computes the hex-encoded HMAC-SHA256 signature over the message
// parts in order. An empty key produces an empty signature, which
// disables authentication for the connection.
func (s *Session) Sign(parts ...[]byte) string {
	if s.Key == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(s.Key))
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received hex signature against the message parts.
// With an empty key every signature is accepted.
func (s *Session) Verify(signature string, parts ...[]byte) bool {
	if s.Key == "" {
		return true
	}
	expected := s.Sign(parts...)
	return hmac.Equal([]byte(expected), []byte(signature))
}
