package wire

// Message types broadcast on the iopub channel.
const (
	MsgStatus            = "status"
	MsgExecuteInput      = "execute_input"
	MsgExecuteResult     = "execute_result"
	MsgExecuteError      = "error"
	MsgStream            = "stream"
	MsgDisplayData       = "display_data"
	MsgUpdateDisplayData = "update_display_data"
	MsgWelcome           = "iopub_welcome"
)

type KernelStatus struct {
	ExecutionState ExecutionState `json:"execution_state"`
}

func (*KernelStatus) MessageType() string { return MsgStatus }

type ExecuteInput struct {
	Code           string `json:"code"`
	ExecutionCount int    `json:"execution_count"`
}

func (*ExecuteInput) MessageType() string { return MsgExecuteInput }

type ExecuteResult struct {
	ExecutionCount int                    `json:"execution_count"`
	Data           map[string]interface{} `json:"data"`
	Metadata       map[string]interface{} `json:"metadata"`
}

func (*ExecuteResult) MessageType() string { return MsgExecuteResult }

// ExecuteError is the broadcast form of an execution failure, distinct
// from the execute_reply sent to the requester.
type ExecuteError struct {
	Exception
}

func (*ExecuteError) MessageType() string { return MsgExecuteError }

// StreamName selects which output stream a stream message carries.
type StreamName string

const (
	StreamStdout StreamName = "stdout"
	StreamStderr StreamName = "stderr"
)

type StreamOutput struct {
	Name StreamName `json:"name"`
	Text string     `json:"text"`
}

func (*StreamOutput) MessageType() string { return MsgStream }

type DisplayData struct {
	Data      map[string]interface{} `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
	Transient map[string]interface{} `json:"transient,omitempty"`
}

func (*DisplayData) MessageType() string { return MsgDisplayData }

type UpdateDisplayData struct {
	Data      map[string]interface{} `json:"data"`
	Metadata  map[string]interface{} `json:"metadata"`
	Transient map[string]interface{} `json:"transient"`
}

func (*UpdateDisplayData) MessageType() string { return MsgUpdateDisplayData }

// Welcome confirms an iopub subscription to clients that understand it.
type Welcome struct {
	Subscription string `json:"subscription"`
}

func (*Welcome) MessageType() string { return MsgWelcome }
