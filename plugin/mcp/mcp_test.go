package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcp_config.json")
	content := `{"mcpServers":{"search":{"command":"uvx","args":["mcp-server-search"]}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Contains(t, cfg.MCPServers, "search")
	assert.Equal(t, "uvx", cfg.MCPServers["search"].Command)
	assert.Equal(t, []string{"mcp-server-search"}, cfg.MCPServers["search"].Args)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.MCPServers)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestManagerCloseTerminatesSessions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	// A stub server: answers the initialize request, then idles.
	cfg := ServerConfig{
		Command: "sh",
		Args:    []string{"-c", `read line; printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'; sleep 60`},
	}
	s, err := newSession(context.Background(), "stub", cfg)
	require.NoError(t, err)

	m := &Manager{
		config:   &Config{MCPServers: map[string]ServerConfig{"stub": cfg}},
		sessions: map[string]*session{"stub": s},
	}
	m.Close()

	assert.Empty(t, m.sessions)
	require.NotNil(t, s.cmd.ProcessState, "child process still running after Close")
	assert.True(t, s.cmd.ProcessState.Exited() || s.cmd.ProcessState.ExitCode() == -1)
}

func TestExtractText(t *testing.T) {
	result := json.RawMessage(`{"content":[{"type":"text","text":"line one"},{"type":"image","data":"x"},{"type":"text","text":"line two"}]}`)

	text, err := extractText(result)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", text)
}

func TestExtractTextToolError(t *testing.T) {
	result := json.RawMessage(`{"content":[{"type":"text","text":"boom"}],"isError":true}`)

	_, err := extractText(result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
