// Package echo is a minimal arithmetic runtime used as the kernel's
// test backend. It evaluates integer expressions, supports a canned
// completion list, and accepts an "echo" comm that reflects messages
// back, so every kernel channel can be exercised without a real
// language runtime.
package echo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/egret-kernel/egret/internal/comm"
	"github.com/egret-kernel/egret/internal/dap"
	"github.com/egret-kernel/egret/internal/kernel"
	"github.com/egret-kernel/egret/internal/version"
	"github.com/egret-kernel/egret/internal/wire"
)

// completions is the canned symbol list offered by Complete.
var completions = []string{"debug", "print", "prompt", "sum", "product"}

// Runtime implements the shell and control handlers over a toy
// evaluator. One instance serves one kernel; the execution counter is
// only touched from the shell goroutine.
type Runtime struct {
	iopub *kernel.IOPubSender
	count int

	// debug and console are set by EnableDebug; nil means "debug(...)"
	// evaluates without pausing.
	debug   *dap.State
	console <-chan dap.Command

	// interrupted records interrupt requests, set on the control
	// goroutine and read from anywhere.
	interrupted atomic.Bool
}

// New creates a runtime broadcasting on the given sender.
func New(iopub *kernel.IOPubSender) *Runtime {
	return &Runtime{iopub: iopub}
}

func (r *Runtime) KernelInfo(ctx context.Context) *wire.KernelInfoReply {
	return &wire.KernelInfoReply{
		Status:                wire.StatusOK,
		ProtocolVersion:       version.ProtocolVersion,
		Implementation:        version.ImplementationName,
		ImplementationVersion: version.Version,
		LanguageInfo: wire.LanguageInfo{
			Name:          "echo",
			Version:       version.Version,
			Mimetype:      "text/plain",
			FileExtension: ".txt",
		},
		Banner:   version.Banner(version.Version),
		Debugger: true,
	}
}

func (r *Runtime) Execute(ctx context.Context, req *wire.ExecuteRequest, prompt kernel.InputPrompter) (*wire.ExecuteReply, *kernel.ExecuteException) {
	if req.Silent {
		if _, err := r.eval(req.Code, prompt); err != nil {
			return nil, &kernel.ExecuteException{ExecutionCount: r.count, Exception: toException(req.Code, err)}
		}
		return &wire.ExecuteReply{Status: wire.StatusOK, ExecutionCount: r.count}, nil
	}

	r.count++
	r.iopub.SendShell(&wire.ExecuteInput{Code: req.Code, ExecutionCount: r.count})

	result, err := r.eval(req.Code, prompt)
	if err != nil {
		return nil, &kernel.ExecuteException{ExecutionCount: r.count, Exception: toException(req.Code, err)}
	}

	r.iopub.SendShell(&wire.ExecuteResult{
		ExecutionCount: r.count,
		Data:           map[string]interface{}{"text/plain": result},
		Metadata:       map[string]interface{}{},
	})
	return &wire.ExecuteReply{Status: wire.StatusOK, ExecutionCount: r.count}, nil
}

// eval runs one unit of code. "prompt(text)" requests frontend input;
// anything else is an integer expression.
func (r *Runtime) eval(code string, prompt kernel.InputPrompter) (string, error) {
	code = strings.TrimSpace(code)
	if body, ok := debugArg(code); ok {
		return r.debugEval(body)
	}
	if inner, ok := promptArg(code); ok {
		value, err := prompt.Prompt(inner, false)
		if err != nil {
			return "", err
		}
		return value, nil
	}
	value, err := evalExpr(code)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", value), nil
}

func promptArg(code string) (string, bool) {
	if !strings.HasPrefix(code, "prompt(") || !strings.HasSuffix(code, ")") {
		return "", false
	}
	return strings.Trim(code[len("prompt("):len(code)-1], `"`), true
}

func toException(code string, err error) wire.Exception {
	return wire.Exception{
		Name:      "EvalError",
		Value:     err.Error(),
		Traceback: []string{code},
	}
}

func (r *Runtime) IsComplete(ctx context.Context, req *wire.IsCompleteRequest) *wire.IsCompleteReply {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return &wire.IsCompleteReply{Status: wire.Complete}
	}
	if strings.HasSuffix(code, "+") || strings.HasSuffix(code, "-") ||
		strings.HasSuffix(code, "*") || strings.HasSuffix(code, "/") {
		return &wire.IsCompleteReply{Status: wire.Incomplete, Indent: "  "}
	}
	if _, err := evalExpr(code); err != nil && !strings.HasPrefix(code, "prompt(") && !strings.HasPrefix(code, "debug(") {
		return &wire.IsCompleteReply{Status: wire.Invalid}
	}
	return &wire.IsCompleteReply{Status: wire.Complete}
}

func (r *Runtime) Complete(ctx context.Context, req *wire.CompleteRequest) *wire.CompleteReply {
	pos := req.CursorPos
	if pos > len(req.Code) {
		pos = len(req.Code)
	}
	prefix := req.Code[:pos]
	if idx := strings.LastIndexAny(prefix, " (+-*/"); idx >= 0 {
		prefix = prefix[idx+1:]
	}

	var matches []string
	for _, c := range completions {
		if strings.HasPrefix(c, prefix) {
			matches = append(matches, c)
		}
	}
	return &wire.CompleteReply{
		Status:      wire.StatusOK,
		Matches:     matches,
		CursorStart: pos - len(prefix),
		CursorEnd:   pos,
		Metadata:    map[string]interface{}{},
	}
}

func (r *Runtime) Inspect(ctx context.Context, req *wire.InspectRequest) *wire.InspectReply {
	token := firstToken(req.Code)
	for _, c := range completions {
		if token == c {
			return &wire.InspectReply{
				Status: wire.StatusOK,
				Found:  true,
				Data: map[string]interface{}{
					"text/plain": fmt.Sprintf("%s: builtin", c),
				},
				Metadata: map[string]interface{}{},
			}
		}
	}
	return &wire.InspectReply{
		Status:   wire.StatusOK,
		Found:    false,
		Data:     map[string]interface{}{},
		Metadata: map[string]interface{}{},
	}
}

// OpenComm accepts "echo" comms and reflects every inbound message:
// requests get correlated replies, data gets echoed as data.
func (r *Runtime) OpenComm(sock *comm.Socket, data json.RawMessage) (bool, error) {
	if sock.Name != "echo" {
		return false, nil
	}
	go func() {
		for payload := range sock.Incoming {
			if id := comm.RPCID(payload); id != "" {
				sock.SendRPC(id, payload)
				continue
			}
			sock.SendData(payload)
		}
	}()
	return true, nil
}

func (r *Runtime) Shutdown(ctx context.Context, restart bool) error {
	return nil
}

func (r *Runtime) Interrupt(ctx context.Context) error {
	r.interrupted.Store(true)
	return nil
}

// Interrupted reports whether an interrupt request has been served.
func (r *Runtime) Interrupted() bool {
	return r.interrupted.Load()
}
