package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connection.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRead_ConnectionFile(t *testing.T) {
	path := writeTemp(t, `{
		"control_port": 50001,
		"shell_port": 50002,
		"stdin_port": 50003,
		"iopub_port": 50004,
		"hb_port": 50005,
		"transport": "tcp",
		"signature_scheme": "hmac-sha256",
		"ip": "127.0.0.1",
		"key": "abc123"
	}`)

	conn, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, conn.File)
	assert.Nil(t, conn.Registration)
	assert.Equal(t, 50002, conn.File.ShellPort)
	assert.Equal(t, "tcp://127.0.0.1:50004", conn.File.Endpoint(conn.File.IOPubPort))
}

func TestRead_RegistrationFallback(t *testing.T) {
	path := writeTemp(t, `{
		"registration_port": 50010,
		"transport": "tcp",
		"signature_scheme": "hmac-sha256",
		"ip": "127.0.0.1",
		"key": "abc123"
	}`)

	conn, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, conn.Registration)
	assert.Nil(t, conn.File)
	assert.Equal(t, "tcp://127.0.0.1:50010", conn.Registration.RegistrationEndpoint())
}

func TestRead_NeitherShape(t *testing.T) {
	path := writeTemp(t, `{"transport": "tcp", "ip": "127.0.0.1"}`)
	_, err := Read(path)
	require.Error(t, err)
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
