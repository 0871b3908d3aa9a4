package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egret-kernel/egret/internal/session"
	"github.com/egret-kernel/egret/internal/xerrors"
)

func TestMessage_RoundTrip(t *testing.T) {
	sess := session.New("kernel", "secret-key")

	req := New(sess, &ExecuteRequest{Code: "1 + 1", StoreHistory: true})
	req.Identities = [][]byte{[]byte("router-id")}

	frames, err := req.Encode(sess)
	require.NoError(t, err)

	got, err := Decode(sess, frames)
	require.NoError(t, err)

	assert.Equal(t, MsgExecuteRequest, got.Header.MsgType)
	assert.Equal(t, req.Header.MsgID, got.Header.MsgID)
	assert.Equal(t, [][]byte{[]byte("router-id")}, got.Identities)
	assert.Nil(t, got.ParentHeader)

	content, ok := got.Content.(*ExecuteRequest)
	require.True(t, ok)
	assert.Equal(t, "1 + 1", content.Code)
	assert.True(t, content.StoreHistory)
}

func TestMessage_RejectsWrongKey(t *testing.T) {
	signer := session.New("kernel", "key-one")
	verifier := session.New("kernel", "key-two")

	frames, err := New(signer, &KernelInfoRequest{}).Encode(signer)
	require.NoError(t, err)

	_, err = Decode(verifier, frames)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeBadSignature, xerrors.FromError(err).Code)
}

func TestMessage_EmptyKeyDisablesSigning(t *testing.T) {
	signer := session.New("kernel", "")
	verifier := session.New("kernel", "")

	frames, err := New(signer, &KernelInfoRequest{}).Encode(signer)
	require.NoError(t, err)

	got, err := Decode(verifier, frames)
	require.NoError(t, err)
	assert.Equal(t, MsgKernelInfoRequest, got.Header.MsgType)
}

func TestMessage_MissingDelimiter(t *testing.T) {
	sess := session.New("kernel", "k")
	_, err := Decode(sess, [][]byte{[]byte("id"), []byte("{}")})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeMissingDelimiter, xerrors.FromError(err).Code)
}

func TestMessage_UnknownTypePreservesRaw(t *testing.T) {
	sess := session.New("kernel", "k")

	msg := New(sess, &KernelInfoRequest{})
	msg.Header.MsgType = "history_request"
	frames, err := msg.Encode(sess)
	require.NoError(t, err)

	got, err := Decode(sess, frames)
	require.NoError(t, err)

	content, ok := got.Content.(*Unsupported)
	require.True(t, ok)
	assert.Equal(t, "history_request", content.MsgType)
}

func TestNewReply_ParentsAndRoutes(t *testing.T) {
	sess := session.New("kernel", "k")

	req := New(sess, &ExecuteRequest{Code: "x"})
	req.Identities = [][]byte{[]byte("frontend")}

	reply := NewReply(sess, req, &ExecuteReply{Status: StatusOK, ExecutionCount: 1})
	require.NotNil(t, reply.ParentHeader)
	assert.Equal(t, req.Header.MsgID, reply.ParentHeader.MsgID)
	assert.Equal(t, req.Identities, reply.Identities)

	frames, err := reply.Encode(sess)
	require.NoError(t, err)
	got, err := Decode(sess, frames)
	require.NoError(t, err)
	require.NotNil(t, got.ParentHeader)
	assert.Equal(t, req.Header.MsgID, got.ParentHeader.MsgID)
}

func TestNewErrorReply_DerivesReplyType(t *testing.T) {
	sess := session.New("kernel", "k")

	req := New(sess, &ExecuteRequest{Code: "stop()"})
	reply := NewErrorReply(sess, req, Exception{
		Name:      "simpleError",
		Value:     "boom",
		Traceback: []string{"stop()"},
	})

	assert.Equal(t, MsgExecuteReply, reply.Header.MsgType)

	frames, err := reply.Encode(sess)
	require.NoError(t, err)
	got, err := Decode(sess, frames)
	require.NoError(t, err)

	content, ok := got.Content.(*ExecuteReply)
	require.True(t, ok)
	assert.Equal(t, StatusError, content.Status)
}

func TestReplyTypeFor(t *testing.T) {
	assert.Equal(t, "execute_reply", ReplyTypeFor("execute_request"))
	assert.Equal(t, "comm_info_reply", ReplyTypeFor("comm_info_request"))
	assert.Equal(t, "comm_msg_reply", ReplyTypeFor("comm_msg"))
}
