package wire

import "encoding/json"

// Message types carrying comm traffic in both directions.
const (
	MsgCommOpen  = "comm_open"
	MsgCommMsg   = "comm_msg"
	MsgCommClose = "comm_close"
)

type CommOpen struct {
	CommID     string          `json:"comm_id"`
	TargetName string          `json:"target_name"`
	Data       json.RawMessage `json:"data"`
}

func (*CommOpen) MessageType() string { return MsgCommOpen }

type CommMsg struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data"`
}

func (*CommMsg) MessageType() string { return MsgCommMsg }

type CommClose struct {
	CommID string          `json:"comm_id"`
	Data   json.RawMessage `json:"data,omitempty"`
}

func (*CommClose) MessageType() string { return MsgCommClose }
