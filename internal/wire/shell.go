package wire

// Message types handled on the shell channel.
const (
	MsgKernelInfoRequest = "kernel_info_request"
	MsgKernelInfoReply   = "kernel_info_reply"
	MsgExecuteRequest    = "execute_request"
	MsgExecuteReply      = "execute_reply"
	MsgIsCompleteRequest = "is_complete_request"
	MsgIsCompleteReply   = "is_complete_reply"
	MsgCompleteRequest   = "complete_request"
	MsgCompleteReply     = "complete_reply"
	MsgInspectRequest    = "inspect_request"
	MsgInspectReply      = "inspect_reply"
	MsgCommInfoRequest   = "comm_info_request"
	MsgCommInfoReply     = "comm_info_reply"
)

// LanguageInfo describes the kernel's language in kernel_info replies.
type LanguageInfo struct {
	Name              string `json:"name"`
	Version           string `json:"version"`
	Mimetype          string `json:"mimetype"`
	FileExtension     string `json:"file_extension"`
	PygmentsLexer     string `json:"pygments_lexer,omitempty"`
	CodemirrorMode    string `json:"codemirror_mode,omitempty"`
	NbconvertExporter string `json:"nbconvert_exporter,omitempty"`
}

// HelpLink is a documentation link advertised to frontends.
type HelpLink struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type KernelInfoRequest struct{}

func (*KernelInfoRequest) MessageType() string { return MsgKernelInfoRequest }

type KernelInfoReply struct {
	Status                Status       `json:"status"`
	ProtocolVersion       string       `json:"protocol_version"`
	Implementation        string       `json:"implementation"`
	ImplementationVersion string       `json:"implementation_version"`
	LanguageInfo          LanguageInfo `json:"language_info"`
	Banner                string       `json:"banner"`
	Debugger              bool         `json:"debugger"`
	HelpLinks             []HelpLink   `json:"help_links,omitempty"`
}

func (*KernelInfoReply) MessageType() string { return MsgKernelInfoReply }

type ExecuteRequest struct {
	Code            string                 `json:"code"`
	Silent          bool                   `json:"silent"`
	StoreHistory    bool                   `json:"store_history"`
	UserExpressions map[string]interface{} `json:"user_expressions,omitempty"`
	AllowStdin      bool                   `json:"allow_stdin"`
	StopOnError     bool                   `json:"stop_on_error"`

	// Metadata is the request envelope's metadata dict, carried
	// opaquely for runtimes that read IDE extensions from it. Not part
	// of the content payload.
	Metadata map[string]interface{} `json:"-"`
}

func (*ExecuteRequest) MessageType() string { return MsgExecuteRequest }

type ExecuteReply struct {
	Status          Status                 `json:"status"`
	ExecutionCount  int                    `json:"execution_count"`
	UserExpressions map[string]interface{} `json:"user_expressions,omitempty"`
}

func (*ExecuteReply) MessageType() string { return MsgExecuteReply }

// ExecuteReplyException is the error form of execute_reply, which
// carries the execution count alongside the exception fields.
type ExecuteReplyException struct {
	Status         Status `json:"status"`
	ExecutionCount int    `json:"execution_count"`
	Exception
}

func (*ExecuteReplyException) MessageType() string { return MsgExecuteReply }

// IsComplete is the verdict on whether buffered input forms a complete
// statement.
type IsComplete string

const (
	Complete   IsComplete = "complete"
	Incomplete IsComplete = "incomplete"
	Invalid    IsComplete = "invalid"
	Unknown    IsComplete = "unknown"
)

type IsCompleteRequest struct {
	Code string `json:"code"`
}

func (*IsCompleteRequest) MessageType() string { return MsgIsCompleteRequest }

type IsCompleteReply struct {
	Status IsComplete `json:"status"`
	Indent string     `json:"indent"`
}

func (*IsCompleteReply) MessageType() string { return MsgIsCompleteReply }

type CompleteRequest struct {
	Code      string `json:"code"`
	CursorPos int    `json:"cursor_pos"`
}

func (*CompleteRequest) MessageType() string { return MsgCompleteRequest }

type CompleteReply struct {
	Status      Status                 `json:"status"`
	Matches     []string               `json:"matches"`
	CursorStart int                    `json:"cursor_start"`
	CursorEnd   int                    `json:"cursor_end"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (*CompleteReply) MessageType() string { return MsgCompleteReply }

type InspectRequest struct {
	Code        string `json:"code"`
	CursorPos   int    `json:"cursor_pos"`
	DetailLevel int    `json:"detail_level"`
}

func (*InspectRequest) MessageType() string { return MsgInspectRequest }

type InspectReply struct {
	Status   Status                 `json:"status"`
	Found    bool                   `json:"found"`
	Data     map[string]interface{} `json:"data"`
	Metadata map[string]interface{} `json:"metadata"`
}

func (*InspectReply) MessageType() string { return MsgInspectReply }

type CommInfoRequest struct {
	TargetName string `json:"target_name,omitempty"`
}

func (*CommInfoRequest) MessageType() string { return MsgCommInfoRequest }

// CommInfo describes one open comm in a comm_info reply.
type CommInfo struct {
	TargetName string `json:"target_name"`
}

type CommInfoReply struct {
	Status Status              `json:"status"`
	Comms  map[string]CommInfo `json:"comms"`
}

func (*CommInfoReply) MessageType() string { return MsgCommInfoReply }
