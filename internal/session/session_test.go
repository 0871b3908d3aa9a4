package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_Verifies(t *testing.T) {
	s := New("kernel", "secret")
	parts := [][]byte{[]byte(`{"msg_id":"1"}`), []byte(`{}`), []byte(`{}`), []byte(`{}`)}

	sig := s.Sign(parts...)
	require.NotEmpty(t, sig)
	assert.True(t, s.Verify(sig, parts...))

	// Any tampered part invalidates the signature.
	tampered := [][]byte{[]byte(`{"msg_id":"2"}`), parts[1], parts[2], parts[3]}
	assert.False(t, s.Verify(sig, tampered...))
}

func TestSign_DifferentKeysDisagree(t *testing.T) {
	a := New("kernel", "key-a")
	b := New("kernel", "key-b")
	parts := [][]byte{[]byte("header")}

	assert.False(t, b.Verify(a.Sign(parts...), parts...))
}

func TestSign_EmptyKeyDisablesSigning(t *testing.T) {
	s := New("kernel", "")

	assert.Empty(t, s.Sign([]byte("header")))
	assert.True(t, s.Verify("", []byte("header")))
	assert.True(t, s.Verify("anything", []byte("header")))
}

func TestNew_AssignsUniqueIDs(t *testing.T) {
	a := New("kernel", "k")
	b := New("kernel", "k")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "kernel", a.Username)
}
