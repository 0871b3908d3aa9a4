package comm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egret-kernel/egret/internal/xerrors"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		want    Kind
		wantErr bool
	}{
		{"dap", "positron.dap", KindDAP, false},
		{"lsp", "positron.lsp", KindLSP, false},
		{"outside namespace", "jupyter.widget", KindOther, false},
		{"unknown in namespace", "positron.frobnicator", KindOther, true},
		{"prefix only", "positron.", KindOther, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.target)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, xerrors.CodeUnknownCommName, xerrors.FromError(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsRPC(t *testing.T) {
	assert.True(t, IsRPC(json.RawMessage(`{"id": "abc", "method": "debug"}`)))
	assert.True(t, IsRPC(json.RawMessage(`{"id": 7}`)))
	assert.False(t, IsRPC(json.RawMessage(`{"msg_type": "event"}`)))
	assert.False(t, IsRPC(json.RawMessage(`{"id": null}`)))
	assert.False(t, IsRPC(json.RawMessage(`not json`)))
}

func TestRPCID(t *testing.T) {
	assert.Equal(t, "abc", RPCID(json.RawMessage(`{"id": "abc"}`)))
	assert.Equal(t, "7", RPCID(json.RawMessage(`{"id": 7}`)))
	assert.Equal(t, "", RPCID(json.RawMessage(`{}`)))
}

func TestSocket_Queues(t *testing.T) {
	s := NewSocket("comm-1", TargetDAP, FrontEnd)

	s.SendData(json.RawMessage(`{"ev": 1}`))
	s.SendRPC("msg-9", json.RawMessage(`{"ok": true}`))
	s.SendClose()

	out := <-s.Outgoing
	assert.Equal(t, OutData, out.Kind)

	out = <-s.Outgoing
	assert.Equal(t, OutRPC, out.Kind)
	assert.Equal(t, "msg-9", out.RequestID)

	out = <-s.Outgoing
	assert.Equal(t, OutClose, out.Kind)
}
