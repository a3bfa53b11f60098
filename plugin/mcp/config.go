// Package mcp connects the agent to external tool servers speaking the
// Model Context Protocol over stdio. Each configured server is a child
// process exchanging JSON-RPC messages on its standard streams.
package mcp

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ServerConfig describes how to launch one tool server.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config is the on-disk tool server configuration.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// LoadConfig reads the server configuration from path. A missing file is
// not an error; it yields an empty configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{MCPServers: map[string]ServerConfig{}}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mcp config %s", path)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "invalid mcp config %s", path)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = map[string]ServerConfig{}
	}
	return &cfg, nil
}
