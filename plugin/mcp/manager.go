package mcp

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Manager launches tool servers on demand and routes tool calls to them.
// Sessions are cached after the first successful connect.
type Manager struct {
	config *Config

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a Manager from the configuration at path.
func NewManager(path string) (*Manager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if len(cfg.MCPServers) == 0 {
		slog.Warn("no mcp servers configured", "path", path)
	}
	return &Manager{config: cfg, sessions: map[string]*session{}}, nil
}

func (m *Manager) connect(ctx context.Context, name string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[name]; ok {
		return s, nil
	}
	cfg, ok := m.config.MCPServers[name]
	if !ok {
		return nil, errors.Errorf("server %s not found in config", name)
	}

	s, err := newSession(ctx, name, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to server %s", name)
	}
	slog.Info("connected to mcp server", "server", name)
	m.sessions[name] = s
	return s, nil
}

// ListAllTools aggregates the tools of every configured server. Servers
// that fail to connect or list are skipped with a warning so one broken
// server does not hide the rest.
func (m *Manager) ListAllTools(ctx context.Context) []Tool {
	names := make([]string, 0, len(m.config.MCPServers))
	for name := range m.config.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	var tools []Tool
	for _, name := range names {
		s, err := m.connect(ctx, name)
		if err != nil {
			slog.Warn("skipping mcp server", "server", name, "error", err)
			continue
		}
		serverTools, err := s.listTools(ctx)
		if err != nil {
			slog.Warn("failed to list tools", "server", name, "error", err)
			continue
		}
		tools = append(tools, serverTools...)
	}
	return tools
}

// CallTool invokes a tool on the named server and returns its text output.
func (m *Manager) CallTool(ctx context.Context, serverName, toolName string, arguments map[string]any) (string, error) {
	s, err := m.connect(ctx, serverName)
	if err != nil {
		return "", err
	}
	return s.callTool(ctx, toolName, arguments)
}

// Close shuts down every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, s := range m.sessions {
		s.close()
		delete(m.sessions, name)
	}
}
