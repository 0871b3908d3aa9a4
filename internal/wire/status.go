package wire

// Status is the outcome field carried by reply contents.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// ExecutionState is the kernel state broadcast in status messages.
type ExecutionState string

const (
	StateStarting ExecutionState = "starting"
	StateBusy     ExecutionState = "busy"
	StateIdle     ExecutionState = "idle"
)

// Exception describes an error in the form frontends render: an error
// name, a message, and a traceback.
type Exception struct {
	Name      string   `json:"ename"`
	Value     string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

// ErrorReply is the error form of any reply: it travels under the
// request's reply type with status=error and the exception fields
// inlined.
type ErrorReply struct {
	MsgType string `json:"-"`
	Status  Status `json:"status"`
	Exception
}

func (e *ErrorReply) MessageType() string { return e.MsgType }
