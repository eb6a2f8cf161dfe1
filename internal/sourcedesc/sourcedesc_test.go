package sourcedesc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFileSourceDescriptor(t *testing.T) {
	desc, err := Parse(`
source "file" {
    path "/var/log/app.log"
    parser "text"
}
`)
	require.NoError(t, err)
	assert.Equal(t, "file", desc.Kind)
	assert.Equal(t, "/var/log/app.log", desc.Path)
	assert.Equal(t, "text", desc.Parser)
}

func TestParseTCPSourceWithReconnect(t *testing.T) {
	desc, err := Parse(`
source "tcp" {
    address "127.0.0.1:9000"
    parser "dlt"
    reconnect {
        max_attempts 5
        interval_ms 200
    }
}
`)
	require.NoError(t, err)
	assert.Equal(t, "tcp", desc.Kind)
	assert.Equal(t, "127.0.0.1:9000", desc.Address)
	assert.Equal(t, "dlt", desc.Parser)
	assert.Equal(t, 5, desc.ReconnectMaxAttempts)
	assert.Equal(t, 200, desc.ReconnectIntervalMs)
}

func TestParseProcessSourceWithArgs(t *testing.T) {
	desc, err := Parse(`
source "process" {
    command "tail"
    args "-f" "/var/log/app.log"
}
`)
	require.NoError(t, err)
	assert.Equal(t, "process", desc.Kind)
	assert.Equal(t, "tail", desc.Command)
	assert.Equal(t, []string{"-f", "/var/log/app.log"}, desc.Args)
	assert.Equal(t, "text", desc.Parser, "defaults to text when unspecified")
}

func TestParseMissingSourceNodeFails(t *testing.T) {
	_, err := Parse(`not_a_source "x"`)
	require.Error(t, err)
}

func TestParseMissingKindFails(t *testing.T) {
	_, err := Parse(`source {
    path "/tmp/x.log"
}`)
	require.Error(t, err)
}
