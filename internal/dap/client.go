package dap

import (
	"context"
	"fmt"
	"sync"
	"time"

	godap "github.com/google/go-dap"
)

// Client is a typed DAP client over a Transport. Responses are
// correlated by request sequence number; events are delivered on the
// Events channel in arrival order.
type Client struct {
	transport *Transport

	mu      sync.Mutex
	pending map[int]chan godap.Message

	events chan godap.Message

	capabilities godap.Capabilities

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient wraps a connected transport and starts the read loop.
func NewClient(transport *Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		transport: transport,
		pending:   make(map[int]chan godap.Message),
		events:    make(chan godap.Message, 64),
		ctx:       ctx,
		cancel:    cancel,
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

// Events returns the incoming event stream.
func (c *Client) Events() <-chan godap.Message {
	return c.events
}

// Capabilities returns the capabilities from the initialize response.
func (c *Client) Capabilities() godap.Capabilities {
	return c.capabilities
}

// Close shuts down the read loop and the connection.
func (c *Client) Close() error {
	c.cancel()
	err := c.transport.Close()
	c.wg.Wait()
	return err
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			return
		}
		switch m := msg.(type) {
		case godap.ResponseMessage:
			c.mu.Lock()
			if ch, ok := c.pending[m.GetResponse().RequestSeq]; ok {
				ch <- msg
				delete(c.pending, m.GetResponse().RequestSeq)
			}
			c.mu.Unlock()
		case godap.EventMessage:
			select {
			case c.events <- msg:
			default:
			}
		}
	}
}

// sendRequest assigns the sequence number, sends, and waits for the
// matching response.
func (c *Client) sendRequest(req godap.RequestMessage, timeout time.Duration) (godap.Message, error) {
	seq := c.transport.NextSeq()
	req.GetRequest().Seq = seq
	req.GetRequest().Type = "request"

	respCh := make(chan godap.Message, 1)
	c.mu.Lock()
	c.pending[seq] = respCh
	c.mu.Unlock()

	if err := c.transport.Send(req); err != nil {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: request timeout", req.GetRequest().Command)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// checkResponse narrows a response to the expected concrete type and
// surfaces protocol-level failure as an error.
func checkResponse[T godap.ResponseMessage](msg godap.Message) (T, error) {
	resp, ok := msg.(T)
	if !ok {
		var zero T
		if errResp, isErr := msg.(*godap.ErrorResponse); isErr {
			return zero, fmt.Errorf("%s failed: %s", errResp.Command, errResp.Message)
		}
		return zero, fmt.Errorf("unexpected response type %T", msg)
	}
	if !resp.GetResponse().Success {
		var zero T
		return zero, fmt.Errorf("%s failed: %s", resp.GetResponse().Command, resp.GetResponse().Message)
	}
	return resp, nil
}

const defaultTimeout = 10 * time.Second

// Initialize performs the capability exchange.
func (c *Client) Initialize(clientID, clientName string) (godap.Capabilities, error) {
	req := &godap.InitializeRequest{
		Request: godap.Request{Command: "initialize"},
		Arguments: godap.InitializeRequestArguments{
			ClientID:        clientID,
			ClientName:      clientName,
			AdapterID:       "egret",
			Locale:          "en-US",
			LinesStartAt1:   true,
			ColumnsStartAt1: true,
			PathFormat:      "path",
		},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return godap.Capabilities{}, err
	}
	resp, err := checkResponse[*godap.InitializeResponse](msg)
	if err != nil {
		return godap.Capabilities{}, err
	}
	c.capabilities = resp.Body
	return resp.Body, nil
}

// WaitForEvent blocks until an event with the given name arrives.
// Other events received in the meantime are discarded.
func (c *Client) WaitForEvent(name string, timeout time.Duration) (godap.Message, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-c.events:
			if ev, ok := msg.(godap.EventMessage); ok && ev.GetEvent().Event == name {
				return msg, nil
			}
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for %s event", name)
		case <-c.ctx.Done():
			return nil, c.ctx.Err()
		}
	}
}

// Attach attaches to the already running console.
func (c *Client) Attach() error {
	req := &godap.AttachRequest{
		Request:   godap.Request{Command: "attach"},
		Arguments: []byte(`{}`),
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.AttachResponse](msg)
	return err
}

// ConfigurationDone signals that breakpoint configuration is complete.
func (c *Client) ConfigurationDone() error {
	req := &godap.ConfigurationDoneRequest{
		Request: godap.Request{Command: "configurationDone"},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.ConfigurationDoneResponse](msg)
	return err
}

// Disconnect ends the session.
func (c *Client) Disconnect() error {
	req := &godap.DisconnectRequest{
		Request:   godap.Request{Command: "disconnect"},
		Arguments: &godap.DisconnectArguments{},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.DisconnectResponse](msg)
	return err
}

// Restart asks the adapter to restart the console session.
func (c *Client) Restart() error {
	req := &godap.RestartRequest{
		Request: godap.Request{Command: "restart"},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.RestartResponse](msg)
	return err
}

// Threads lists the adapter's threads.
func (c *Client) Threads() ([]godap.Thread, error) {
	req := &godap.ThreadsRequest{Request: godap.Request{Command: "threads"}}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := checkResponse[*godap.ThreadsResponse](msg)
	if err != nil {
		return nil, err
	}
	return resp.Body.Threads, nil
}

// SetBreakpoints replaces the breakpoints for one source file.
func (c *Client) SetBreakpoints(source godap.Source, lines []int) ([]godap.Breakpoint, error) {
	bps := make([]godap.SourceBreakpoint, len(lines))
	for i, line := range lines {
		bps[i] = godap.SourceBreakpoint{Line: line}
	}
	req := &godap.SetBreakpointsRequest{
		Request: godap.Request{Command: "setBreakpoints"},
		Arguments: godap.SetBreakpointsArguments{
			Source:      source,
			Breakpoints: bps,
		},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := checkResponse[*godap.SetBreakpointsResponse](msg)
	if err != nil {
		return nil, err
	}
	return resp.Body.Breakpoints, nil
}

// SetExceptionBreakpoints configures exception filters.
func (c *Client) SetExceptionBreakpoints(filters []string) error {
	req := &godap.SetExceptionBreakpointsRequest{
		Request:   godap.Request{Command: "setExceptionBreakpoints"},
		Arguments: godap.SetExceptionBreakpointsArguments{Filters: filters},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.SetExceptionBreakpointsResponse](msg)
	return err
}

// StackTrace fetches a slice of the paused call stack.
func (c *Client) StackTrace(threadID, startFrame, levels int) ([]godap.StackFrame, int, error) {
	req := &godap.StackTraceRequest{
		Request: godap.Request{Command: "stackTrace"},
		Arguments: godap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return nil, 0, err
	}
	resp, err := checkResponse[*godap.StackTraceResponse](msg)
	if err != nil {
		return nil, 0, err
	}
	return resp.Body.StackFrames, resp.Body.TotalFrames, nil
}

// Scopes fetches the scopes of one frame.
func (c *Client) Scopes(frameID int) ([]godap.Scope, error) {
	req := &godap.ScopesRequest{
		Request:   godap.Request{Command: "scopes"},
		Arguments: godap.ScopesArguments{FrameId: frameID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := checkResponse[*godap.ScopesResponse](msg)
	if err != nil {
		return nil, err
	}
	return resp.Body.Scopes, nil
}

// Variables fetches the children of a variables reference.
func (c *Client) Variables(variablesRef int) ([]godap.Variable, error) {
	req := &godap.VariablesRequest{
		Request:   godap.Request{Command: "variables"},
		Arguments: godap.VariablesArguments{VariablesReference: variablesRef},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return nil, err
	}
	resp, err := checkResponse[*godap.VariablesResponse](msg)
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// Source fetches virtual document content by source reference.
func (c *Client) Source(sourceRef int) (string, error) {
	req := &godap.SourceRequest{
		Request: godap.Request{Command: "source"},
		Arguments: godap.SourceArguments{
			Source:          &godap.Source{SourceReference: sourceRef},
			SourceReference: sourceRef,
		},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return "", err
	}
	resp, err := checkResponse[*godap.SourceResponse](msg)
	if err != nil {
		return "", err
	}
	return resp.Body.Content, nil
}

// Continue resumes execution.
func (c *Client) Continue(threadID int) error {
	req := &godap.ContinueRequest{
		Request:   godap.Request{Command: "continue"},
		Arguments: godap.ContinueArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.ContinueResponse](msg)
	return err
}

// Next steps over the current expression.
func (c *Client) Next(threadID int) error {
	req := &godap.NextRequest{
		Request:   godap.Request{Command: "next"},
		Arguments: godap.NextArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.NextResponse](msg)
	return err
}

// StepIn steps into the next call.
func (c *Client) StepIn(threadID int) error {
	req := &godap.StepInRequest{
		Request:   godap.Request{Command: "stepIn"},
		Arguments: godap.StepInArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.StepInResponse](msg)
	return err
}

// StepOut finishes the current frame.
func (c *Client) StepOut(threadID int) error {
	req := &godap.StepOutRequest{
		Request:   godap.Request{Command: "stepOut"},
		Arguments: godap.StepOutArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.StepOutResponse](msg)
	return err
}

// Pause asks the adapter to interrupt the running console.
func (c *Client) Pause(threadID int) error {
	req := &godap.PauseRequest{
		Request:   godap.Request{Command: "pause"},
		Arguments: godap.PauseArguments{ThreadId: threadID},
	}
	msg, err := c.sendRequest(req, defaultTimeout)
	if err != nil {
		return err
	}
	_, err = checkResponse[*godap.PauseResponse](msg)
	return err
}
