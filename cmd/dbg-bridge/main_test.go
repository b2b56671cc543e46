package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbg-bridge/internal/logging"
	"github.com/ctagard/dbg-bridge/internal/trace"
	"github.com/ctagard/dbg-bridge/internal/transport"
	"github.com/ctagard/dbg-bridge/internal/version"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCmd(logging.New("test"))
	require.NoError(t, err)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), err
}

// TestVersionCommand verifies the version line.
func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "dbg-bridge version "+version.Version+"\n", out)
}

// TestTraceDumpCommand verifies a recorded trace is printed as JSON lines.
func TestTraceDumpCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.trace")
	rec, err := trace.Create(logr.Discard(), path)
	require.NoError(t, err)
	rec.For(trace.SourceHost).Record(transport.DirectionOut, 1, `{"seq":1,"type":"request","command":"start"}`)
	rec.For(trace.SourceHost).Record(transport.DirectionIn, 1, `{"type":"response","command":"start","success":true}`)
	require.NoError(t, rec.Close())

	out, err := execute(t, "trace", "dump", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"dir":"engine->remote"`)
	assert.Contains(t, lines[1], `"dir":"remote->engine"`)
}

// TestFlagValidation verifies malformed addresses and modes are rejected
// before anything connects.
func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"host remote", []string{"host", "--remote", "nowhere"}, "--remote must be host:port"},
		{"engine connect", []string{"engine", "--connect", "localhost:0"}, "--connect must be host:port"},
		{"engine mode", []string{"engine", "--mode", "admin"}, "--mode must be"},
		{"missing config", []string{"host", "--config", filepath.Join(t.TempDir(), "absent.yaml")}, "absent.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
