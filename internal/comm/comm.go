// Package comm implements the custom-channel layer multiplexed over the
// shell and iopub channels. A comm is a named bidirectional pipe tied
// to frontend state; the kernel side sees it as a pair of queues.
package comm

import (
	"encoding/json"
	"strings"

	"github.com/egret-kernel/egret/internal/xerrors"
)

// reservedPrefix marks target names with kernel-defined semantics.
const reservedPrefix = "positron."

// Kind classifies a comm target name.
type Kind int

const (
	// KindOther is any target outside the reserved namespace, passed
	// through to the shell handler untyped.
	KindOther Kind = iota
	// KindDAP is the debug adapter comm.
	KindDAP
	// KindLSP is the language server comm.
	KindLSP
)

// Target names inside the reserved namespace.
const (
	TargetDAP = reservedPrefix + "dap"
	TargetLSP = reservedPrefix + "lsp"
)

// ParseTarget classifies a comm_open target name. Reserved-namespace
// names are a closed set: an unrecognized name inside the namespace is
// an error, everything outside passes through as KindOther.
func ParseTarget(name string) (Kind, error) {
	if !strings.HasPrefix(name, reservedPrefix) {
		return KindOther, nil
	}
	switch name {
	case TargetDAP:
		return KindDAP, nil
	case TargetLSP:
		return KindLSP, nil
	default:
		return KindOther, xerrors.UnknownCommName(name)
	}
}

// Initiator records which side opened the comm.
type Initiator int

const (
	FrontEnd Initiator = iota
	BackEnd
)

// OutboundKind selects how an outbound comm message is delivered.
type OutboundKind int

const (
	// OutData is a fire-and-forget comm_msg.
	OutData OutboundKind = iota
	// OutRPC is a reply correlated with a pending request by id.
	OutRPC
	// OutClose tears the comm down from the kernel side.
	OutClose
)

// Outbound is one backend-to-frontend comm message.
type Outbound struct {
	Kind OutboundKind

	// RequestID is the shell message id of the comm_msg being replied
	// to. Only set for OutRPC.
	RequestID string

	Data json.RawMessage
}

// Socket is the kernel side of one open comm.
type Socket struct {
	// ID is the comm's identity shared with the frontend.
	ID string

	// Name is the target name the comm was opened under.
	Name string

	// Initiator records which side opened the comm.
	Initiator Initiator

	// Outgoing carries backend messages toward the frontend. Drained
	// by the shell thread's comm multiplexer.
	Outgoing chan Outbound

	// Incoming carries frontend comm_msg payloads to the backend.
	Incoming chan json.RawMessage
}

// NewSocket creates a comm socket with bounded queues.
func NewSocket(id, name string, initiator Initiator) *Socket {
	return &Socket{
		ID:        id,
		Name:      name,
		Initiator: initiator,
		Outgoing:  make(chan Outbound, 64),
		Incoming:  make(chan json.RawMessage, 64),
	}
}

// SendData queues a fire-and-forget message to the frontend.
func (s *Socket) SendData(data json.RawMessage) {
	s.Outgoing <- Outbound{Kind: OutData, Data: data}
}

// SendRPC queues a correlated reply to the comm_msg with the given
// shell message id.
func (s *Socket) SendRPC(requestID string, data json.RawMessage) {
	s.Outgoing <- Outbound{Kind: OutRPC, RequestID: requestID, Data: data}
}

// SendClose queues a close of the comm from the kernel side.
func (s *Socket) SendClose() {
	s.Outgoing <- Outbound{Kind: OutClose}
}

// rpcProbe extracts just the correlation id from a comm payload.
type rpcProbe struct {
	ID json.RawMessage `json:"id"`
}

// IsRPC reports whether a comm payload is a request expecting a
// correlated reply, which is signalled by the presence of an id field.
func IsRPC(data json.RawMessage) bool {
	return RPCID(data) != ""
}

// RPCID extracts a comm payload's correlation id, empty when the
// payload is not a request. String and numeric ids are both accepted;
// the id is compared textually so the exact wire form round-trips.
func RPCID(data json.RawMessage) string {
	var probe rpcProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	if len(probe.ID) == 0 || string(probe.ID) == "null" {
		return ""
	}
	var asString string
	if err := json.Unmarshal(probe.ID, &asString); err == nil {
		return asString
	}
	return string(probe.ID)
}

// ServerStarted is the first message of a server-backed comm, reporting
// the TCP port the frontend should connect to.
type ServerStarted struct {
	Port int `json:"port"`
}

// ServerStart is sent by the frontend when opening a server-backed
// comm, naming the address the server should bind.
type ServerStart struct {
	IPAddress string `json:"ip_address"`
}
