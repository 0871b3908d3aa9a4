package kernel

import (
	"context"
	"encoding/json"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/wire"
)

// InputPrompter lets an execute handler request input from the frontend
// over the stdin channel. Prompt blocks until the frontend replies or a
// pending request is cancelled by an interrupt.
type InputPrompter interface {
	Prompt(prompt string, password bool) (string, error)
}

// ExecuteException is an execution failure: the exception the frontend
// renders plus the count of the failed execution.
type ExecuteException struct {
	ExecutionCount int
	wire.Exception
}

// ShellHandler is the language runtime's side of the shell channel.
// Handlers run on the shell goroutine; a handler that blocks stalls the
// channel, which is the protocol's intent (one request at a time).
//
// Execute returns either a reply or an exception; an exception is
// broadcast as an error and also becomes the error reply.
type ShellHandler interface {
	KernelInfo(ctx context.Context) *wire.KernelInfoReply
	Execute(ctx context.Context, req *wire.ExecuteRequest, prompt InputPrompter) (*wire.ExecuteReply, *ExecuteException)
	IsComplete(ctx context.Context, req *wire.IsCompleteRequest) *wire.IsCompleteReply
	Complete(ctx context.Context, req *wire.CompleteRequest) *wire.CompleteReply
	Inspect(ctx context.Context, req *wire.InspectRequest) *wire.InspectReply

	// OpenComm offers the handler a comm outside the reserved
	// namespace. Returning false declines the open, which the kernel
	// reports with an unsolicited comm_close.
	OpenComm(sock *comm.Socket, data json.RawMessage) (bool, error)
}

// ControlHandler is the runtime's side of the control channel.
type ControlHandler interface {
	Shutdown(ctx context.Context, restart bool) error
	Interrupt(ctx context.Context) error
}

// ServerComm is a comm backed by a TCP protocol server, such as the
// debug adapter. Opening the comm starts the server; the bound port is
// relayed to the frontend as the comm's first message.
type ServerComm interface {
	// Start binds the server on the given address and begins accepting
	// in the background, returning the bound port.
	Start(ip string) (int, error)

	// Attach hands the server its comm socket once the open completes.
	Attach(sock *comm.Socket)
}
