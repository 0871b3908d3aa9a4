// Package xerrors provides structured error types for the kernel. Errors
// carry a machine-readable code and optional details so they can be
// reported on the wire as error replies without losing context.
package xerrors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Wire protocol errors
	CodeMissingDelimiter  ErrorCode = "MISSING_DELIMITER"
	CodeBadSignature      ErrorCode = "BAD_SIGNATURE"
	CodeInsufficientParts ErrorCode = "INSUFFICIENT_PARTS"
	CodeInvalidPart       ErrorCode = "INVALID_PART"
	CodeUnknownType       ErrorCode = "UNKNOWN_MESSAGE_TYPE"

	// Socket errors
	CodeSocketBind    ErrorCode = "SOCKET_BIND_FAILED"
	CodeSocketConnect ErrorCode = "SOCKET_CONNECT_FAILED"
	CodeSocketSend    ErrorCode = "SOCKET_SEND_FAILED"
	CodeSocketRecv    ErrorCode = "SOCKET_RECV_FAILED"
	CodeSocketClosed  ErrorCode = "SOCKET_CLOSED"

	// Comm errors
	CodeUnknownComm     ErrorCode = "UNKNOWN_COMM"
	CodeUnknownCommName ErrorCode = "UNKNOWN_COMM_NAME"
	CodeCommStartFailed ErrorCode = "COMM_START_FAILED"

	// Session errors
	CodeHandshakeFailed    ErrorCode = "HANDSHAKE_FAILED"
	CodeSubscriptionFailed ErrorCode = "SUBSCRIPTION_FAILED"
	CodeShutdownFailed     ErrorCode = "SHUTDOWN_FAILED"

	// Request errors
	CodeInvalidRequest  ErrorCode = "INVALID_REQUEST"
	CodeExecuteFailed   ErrorCode = "EXECUTE_FAILED"
	CodeInputNotAllowed ErrorCode = "INPUT_NOT_ALLOWED"
	CodeInterrupted     ErrorCode = "INTERRUPTED"
)

// KernelError is a structured error carrying a category code, a
// human-readable message, and optional key/value details.
type KernelError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Details contains additional context (e.g., the offending value)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *KernelError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// WithDetails adds a detail entry to the error
func (e *KernelError) WithDetails(key string, value interface{}) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying cause
func (e *KernelError) WithCause(err error) *KernelError {
	e.Cause = err
	return e
}

// --- Wire protocol errors ---

// MissingDelimiter reports a multipart message with no <IDS|MSG> frame.
func MissingDelimiter(parts int) *KernelError {
	return &KernelError{
		Code:    CodeMissingDelimiter,
		Message: fmt.Sprintf("message of %d frames has no <IDS|MSG> delimiter", parts),
		Details: map[string]interface{}{"frames": parts},
	}
}

// BadSignature reports an HMAC mismatch on an inbound message.
func BadSignature(expected, actual string) *KernelError {
	return &KernelError{
		Code:    CodeBadSignature,
		Message: "message signature does not match connection key",
		Details: map[string]interface{}{
			"expected": expected,
			"actual":   actual,
		},
	}
}

// InsufficientParts reports a message with fewer frames than the protocol requires.
func InsufficientParts(got, want int) *KernelError {
	return &KernelError{
		Code:    CodeInsufficientParts,
		Message: fmt.Sprintf("message has %d frames after the delimiter, need at least %d", got, want),
		Details: map[string]interface{}{"got": got, "want": want},
	}
}

// InvalidPart reports a frame that failed to deserialize.
func InvalidPart(part string, err error) *KernelError {
	return &KernelError{
		Code:    CodeInvalidPart,
		Message: fmt.Sprintf("could not parse message %s", part),
		Cause:   err,
		Details: map[string]interface{}{"part": part},
	}
}

// UnknownType reports a message type the kernel does not implement.
func UnknownType(msgType string) *KernelError {
	return &KernelError{
		Code:    CodeUnknownType,
		Message: fmt.Sprintf("unknown message type '%s'", msgType),
		Details: map[string]interface{}{"msg_type": msgType},
	}
}

// --- Socket errors ---

// SocketBind reports a failure to bind a channel socket.
func SocketBind(name, endpoint string, err error) *KernelError {
	return &KernelError{
		Code:    CodeSocketBind,
		Message: fmt.Sprintf("could not bind %s socket to %s", name, endpoint),
		Cause:   err,
		Details: map[string]interface{}{"socket": name, "endpoint": endpoint},
	}
}

// SocketConnect reports a failure to connect a channel socket.
func SocketConnect(name, endpoint string, err error) *KernelError {
	return &KernelError{
		Code:    CodeSocketConnect,
		Message: fmt.Sprintf("could not connect %s socket to %s", name, endpoint),
		Cause:   err,
		Details: map[string]interface{}{"socket": name, "endpoint": endpoint},
	}
}

// SocketSend reports a send failure on a channel socket.
func SocketSend(name string, err error) *KernelError {
	return &KernelError{
		Code:    CodeSocketSend,
		Message: fmt.Sprintf("could not send on %s socket", name),
		Cause:   err,
		Details: map[string]interface{}{"socket": name},
	}
}

// SocketRecv reports a receive failure on a channel socket.
func SocketRecv(name string, err error) *KernelError {
	return &KernelError{
		Code:    CodeSocketRecv,
		Message: fmt.Sprintf("could not receive on %s socket", name),
		Cause:   err,
		Details: map[string]interface{}{"socket": name},
	}
}

// --- Comm errors ---

// UnknownComm reports a message addressed to a comm id that is not open.
func UnknownComm(commID string) *KernelError {
	return &KernelError{
		Code:    CodeUnknownComm,
		Message: fmt.Sprintf("no open comm with id '%s'", commID),
		Details: map[string]interface{}{"comm_id": commID},
	}
}

// UnknownCommName reports a comm_open for a target the kernel does not provide.
func UnknownCommName(name string) *KernelError {
	return &KernelError{
		Code:    CodeUnknownCommName,
		Message: fmt.Sprintf("no comm target named '%s'", name),
		Details: map[string]interface{}{"target_name": name},
	}
}

// CommStartFailed reports a server-backed comm that failed to start.
func CommStartFailed(name string, err error) *KernelError {
	return &KernelError{
		Code:    CodeCommStartFailed,
		Message: fmt.Sprintf("comm '%s' server failed to start", name),
		Cause:   err,
		Details: map[string]interface{}{"target_name": name},
	}
}

// --- Session errors ---

// HandshakeFailed reports a registration handshake that did not complete.
func HandshakeFailed(endpoint string, err error) *KernelError {
	return &KernelError{
		Code:    CodeHandshakeFailed,
		Message: fmt.Sprintf("registration handshake with %s failed", endpoint),
		Cause:   err,
		Details: map[string]interface{}{"endpoint": endpoint},
	}
}

// SubscriptionFailed reports that no IOPub subscriber arrived in time.
func SubscriptionFailed(err error) *KernelError {
	return &KernelError{
		Code:    CodeSubscriptionFailed,
		Message: "timed out waiting for an iopub subscription",
		Cause:   err,
	}
}

// --- Request errors ---

// InvalidRequest reports a well-formed message with unusable content.
func InvalidRequest(msgType, reason string) *KernelError {
	return &KernelError{
		Code:    CodeInvalidRequest,
		Message: fmt.Sprintf("invalid %s: %s", msgType, reason),
		Details: map[string]interface{}{"msg_type": msgType, "reason": reason},
	}
}

// InputNotAllowed reports an input_request when the frontend disallowed stdin.
func InputNotAllowed() *KernelError {
	return &KernelError{
		Code:    CodeInputNotAllowed,
		Message: "frontend does not allow stdin input requests",
	}
}

// Interrupted reports a blocking operation cancelled by an interrupt.
func Interrupted(operation string) *KernelError {
	return &KernelError{
		Code:    CodeInterrupted,
		Message: fmt.Sprintf("%s interrupted", operation),
		Details: map[string]interface{}{"operation": operation},
	}
}

// --- Helpers ---

// Wrap wraps a generic error with a code and message
func Wrap(code ErrorCode, message string, err error) *KernelError {
	return &KernelError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// FromError returns err as a KernelError, wrapping it if necessary.
func FromError(err error) *KernelError {
	var ke *KernelError
	if stderrors.As(err, &ke) {
		return ke
	}
	return &KernelError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Cause:   err,
	}
}
