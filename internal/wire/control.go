package wire

// Message types handled on the control channel.
const (
	MsgShutdownRequest  = "shutdown_request"
	MsgShutdownReply    = "shutdown_reply"
	MsgInterruptRequest = "interrupt_request"
	MsgInterruptReply   = "interrupt_reply"
)

type ShutdownRequest struct {
	Restart bool `json:"restart"`
}

func (*ShutdownRequest) MessageType() string { return MsgShutdownRequest }

type ShutdownReply struct {
	Status  Status `json:"status"`
	Restart bool   `json:"restart"`
}

func (*ShutdownReply) MessageType() string { return MsgShutdownReply }

type InterruptRequest struct{}

func (*InterruptRequest) MessageType() string { return MsgInterruptRequest }

type InterruptReply struct {
	Status Status `json:"status"`
}

func (*InterruptReply) MessageType() string { return MsgInterruptReply }
