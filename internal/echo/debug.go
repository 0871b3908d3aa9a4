package echo

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/egret-kernel/egret/internal/dap"
)

// EnableDebug attaches shared debug state and the stepping command
// queue. With debugging enabled, "debug(body)" evaluates body line by
// line, pausing before each line while a debug client is connected.
func (r *Runtime) EnableDebug(state *dap.State, console <-chan dap.Command) {
	r.debug = state
	r.console = console
}

// Inspector renders debug bindings for the variables view.
func (r *Runtime) Inspector() dap.Inspector { return bindingInspector{} }

type bindingInspector struct{}

func (bindingInspector) Inspect(b dap.Binding) []dap.Variable {
	vars, _ := b.([]dap.Variable)
	return vars
}

func debugArg(code string) (string, bool) {
	if !strings.HasPrefix(code, "debug(") || !strings.HasSuffix(code, ")") {
		return "", false
	}
	return code[len("debug(") : len(code)-1], true
}

// debugEval evaluates one expression per line, the value of the last
// line being the result. With a client attached, execution pauses
// before every line while stepping, and after a continue only at
// verified breakpoint lines; without a client the body runs straight
// through.
func (r *Runtime) debugEval(body string) (string, error) {
	lines := strings.Split(body, "\n")
	value := int64(0)
	stepping := true
	started := false

	uri, breaks := r.resolveBreakpoints(body, len(lines))

	finish := func() {
		if started {
			r.debug.StopDebug()
		}
	}

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lineNo := i + 1
		if (stepping || breaks[lineNo]) && r.debug != nil && r.debug.Connected() {
			started = true
			r.debug.StartDebug(r.debugStack(uri, body, lineNo, value))
			switch r.waitCommand() {
			case dap.CmdQuit:
				finish()
				return "", fmt.Errorf("debug session aborted at line %d", lineNo)
			case dap.CmdContinue:
				stepping = false
			default:
				stepping = true
			}
		}
		v, err := evalExpr(line)
		if err != nil {
			finish()
			return "", err
		}
		value = v
	}
	finish()
	return strconv.FormatInt(value, 10), nil
}

// resolveBreakpoints matches the body against documents the client set
// breakpoints on, by content hash, and verifies the pending ones so
// the client learns they will be hit. Returns the matched document URI
// and the live breakpoint lines.
func (r *Runtime) resolveBreakpoints(body string, lineCount int) (string, map[int]bool) {
	if r.debug == nil || !r.debug.Connected() {
		return "", nil
	}
	uri := r.debug.LookupDocument(dap.ContentHash([]byte(body)))
	if uri == "" {
		return "", nil
	}
	r.debug.VerifyBreakpoints(uri, 1, lineCount)

	breaks := make(map[int]bool)
	for _, bp := range r.debug.DocumentBreakpoints(uri) {
		if bp.IsVerified() {
			breaks[bp.Line] = true
		}
	}
	return uri, breaks
}

// waitCommand blocks at the debug prompt until the client steps.
func (r *Runtime) waitCommand() dap.Command {
	cmd, ok := <-r.console
	if !ok {
		return dap.CmdContinue
	}
	return cmd
}

func (r *Runtime) debugStack(uri, body string, line int, value int64) []dap.FrameInfo {
	env := []dap.Variable{
		{Name: "line", Value: strconv.Itoa(line), Type: "integer"},
		{Name: "value", Value: strconv.FormatInt(value, 10), Type: "integer"},
	}
	source := dap.FrameSource{Text: body}
	name := "<debug>"
	if uri != "" {
		source = dap.FrameSource{Path: uri}
		name = filepath.Base(uri)
	}
	return []dap.FrameInfo{{
		FrameName:   fmt.Sprintf("debug[%d]", line),
		SourceName:  name,
		Source:      source,
		Environment: env,
		StartLine:   line,
		EndLine:     line,
	}}
}
