package wire

// Message types on the stdin channel, where the kernel is the requester
// and the frontend replies.
const (
	MsgInputRequest = "input_request"
	MsgInputReply   = "input_reply"
)

type InputRequest struct {
	Prompt   string `json:"prompt"`
	Password bool   `json:"password"`
}

func (*InputRequest) MessageType() string { return MsgInputRequest }

type InputReply struct {
	Value string `json:"value"`
}

func (*InputReply) MessageType() string { return MsgInputReply }
