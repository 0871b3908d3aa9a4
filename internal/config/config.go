// Package config loads the connection information a frontend hands to
// the kernel at startup.
//
// Two file shapes exist:
//   - A connection file names all five channel ports up front.
//   - A registration file names a single registration port; the kernel
//     then picks its own ports and reports them over a handshake.
//
// Read tries the connection shape first and falls back to the
// registration shape, so callers pass one path without knowing which
// kind the frontend wrote.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ConnectionFile is the classic startup shape with preassigned ports.
type ConnectionFile struct {
	ControlPort     int    `json:"control_port"`
	ShellPort       int    `json:"shell_port"`
	StdinPort       int    `json:"stdin_port"`
	IOPubPort       int    `json:"iopub_port"`
	HBPort          int    `json:"hb_port"`
	Transport       string `json:"transport"`
	SignatureScheme string `json:"signature_scheme"`
	IP              string `json:"ip"`
	Key             string `json:"key"`
}

// RegistrationFile is the handshake startup shape: the kernel binds
// ephemeral ports and reports them to the registration socket.
type RegistrationFile struct {
	RegistrationPort int    `json:"registration_port"`
	Transport        string `json:"transport"`
	SignatureScheme  string `json:"signature_scheme"`
	IP               string `json:"ip"`
	Key              string `json:"key"`
}

// Connection is the parsed result of Read: exactly one of File or
// Registration is set.
type Connection struct {
	File         *ConnectionFile
	Registration *RegistrationFile
}

// Endpoint formats a channel endpoint for the given port.
func (c *ConnectionFile) Endpoint(port int) string {
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, port)
}

// RegistrationEndpoint formats the handshake endpoint.
func (r *RegistrationFile) RegistrationEndpoint() string {
	return fmt.Sprintf("%s://%s:%d", r.Transport, r.IP, r.RegistrationPort)
}

func (c *ConnectionFile) validate() error {
	if c.Transport == "" || c.IP == "" {
		return fmt.Errorf("connection file missing transport or ip")
	}
	for name, port := range map[string]int{
		"control_port": c.ControlPort,
		"shell_port":   c.ShellPort,
		"stdin_port":   c.StdinPort,
		"iopub_port":   c.IOPubPort,
		"hb_port":      c.HBPort,
	} {
		if port <= 0 {
			return fmt.Errorf("connection file missing %s", name)
		}
	}
	return nil
}

func (r *RegistrationFile) validate() error {
	if r.Transport == "" || r.IP == "" {
		return fmt.Errorf("registration file missing transport or ip")
	}
	if r.RegistrationPort <= 0 {
		return fmt.Errorf("registration file missing registration_port")
	}
	return nil
}

// Read loads a connection or registration file from path.
func Read(path string) (*Connection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connection file: %w", err)
	}

	var cf ConnectionFile
	if err := json.Unmarshal(data, &cf); err == nil {
		if cf.validate() == nil {
			return &Connection{File: &cf}, nil
		}
	}

	var rf RegistrationFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing connection file %s: %w", path, err)
	}
	if err := rf.validate(); err != nil {
		return nil, fmt.Errorf("connection file %s matches neither shape: %w", path, err)
	}
	return &Connection{Registration: &rf}, nil
}
