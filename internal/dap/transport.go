// Package dap serves the Debug Adapter Protocol for the console
// runtime. The Server side speaks DAP over TCP to one frontend at a
// time, backed by shared debug State; the Client side is a thin typed
// wrapper over the same wire format, used by tooling and tests.
//
// The protocol is described at:
// https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"fmt"
	"net"
	"sync"

	godap "github.com/google/go-dap"
)

// Transport frames DAP messages over a TCP connection.
type Transport struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// Dial connects to a DAP server.
func Dial(address string) (*Transport, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect to debug adapter at %s: %w", address, err)
	}
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}, nil
}

// NextSeq returns the next request sequence number.
func (t *Transport) NextSeq() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	seq := t.seq
	t.seq++
	return seq
}

// Send writes one message and flushes it.
func (t *Transport) Send(msg godap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := godap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("flush message: %w", err)
	}
	return nil
}

// Receive reads one message.
func (t *Transport) Receive() (godap.Message, error) {
	msg, err := godap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("read message: %w", err)
	}
	return msg, nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}
