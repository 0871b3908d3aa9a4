package wire

// Message types for the registration handshake, where the kernel picks
// its own ports and reports them to the frontend's registration socket.
const (
	MsgHandshakeRequest = "handshake_request"
	MsgHandshakeReply   = "handshake_reply"
)

type HandshakeRequest struct {
	ControlPort int `json:"control_port"`
	ShellPort   int `json:"shell_port"`
	StdinPort   int `json:"stdin_port"`
	IOPubPort   int `json:"iopub_port"`
	HBPort      int `json:"hb_port"`
}

func (*HandshakeRequest) MessageType() string { return MsgHandshakeRequest }

type HandshakeReply struct {
	Status Status `json:"status"`
}

func (*HandshakeReply) MessageType() string { return MsgHandshakeReply }
