// Package profile holds the runtime configuration for the agent server.
package profile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is the configuration used to start the main server.
type Profile struct {
	// Local LLM configuration (OpenAI-compatible endpoint, e.g. a Docker
	// model runner). This is the default text generation provider.
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout int // request timeout in seconds (default: 120)

	// OpenRouter configuration, the remote fallback provider. Selected per
	// request via the llm_provider field.
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string

	// Embedding configuration for the knowledge base.
	EmbeddingBaseURL    string
	EmbeddingAPIKey     string
	EmbeddingModel      string
	EmbeddingDimensions int

	// Backend stores.
	PostgresDSN   string
	MongoURI      string
	MongoDatabase string

	// Tool provider configuration file (JSON, {"mcpServers": {...}}).
	MCPConfigPath string

	// Server settings.
	Mode      string // prod, dev, demo
	Addr      string
	Port      int
	Data      string // data directory for uploaded knowledge documents
	JWTSecret string
	Version   string
}

// Default endpoints for the two generation providers. The local endpoint
// matches the Docker model runner's OpenAI-compatible engine.
const (
	defaultLLMBaseURL        = "http://localhost:12434/engines/v1"
	defaultLLMModel          = "ai/qwen3:8B-Q4_K_M"
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "tngtech/deepseek-r1t2-chimera:free"
	defaultEmbeddingModel    = "BAAI/bge-m3"
)

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsOpenRouterEnabled reports whether the remote provider can be selected.
func (p *Profile) IsOpenRouterEnabled() bool {
	return p.OpenRouterAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Values already set
// from flags win over the environment.
func (p *Profile) FromEnv() {
	p.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", defaultLLMBaseURL)
	p.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", "docker")
	p.LLMModel = getEnvOrDefault("LLM_MODEL", defaultLLMModel)
	p.LLMTimeout = getEnvOrDefaultInt("LLM_TIMEOUT_SECONDS", 120)

	p.OpenRouterBaseURL = getEnvOrDefault("OPENROUTER_BASE_URL", defaultOpenRouterBaseURL)
	p.OpenRouterAPIKey = getEnvOrDefault("OPENROUTER_API_KEY", "")
	p.OpenRouterModel = getEnvOrDefault("OPENROUTER_MODEL", defaultOpenRouterModel)

	p.EmbeddingBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "")
	p.EmbeddingAPIKey = getEnvOrDefault("EMBEDDING_API_KEY", p.LLMAPIKey)
	p.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", defaultEmbeddingModel)
	p.EmbeddingDimensions = getEnvOrDefaultInt("EMBEDDING_DIMENSIONS", 1024)

	if p.PostgresDSN == "" {
		p.PostgresDSN = buildPostgresDSN()
	}
	if p.MongoURI == "" {
		p.MongoURI = getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017/cnc_logs")
	}
	if p.MongoDatabase == "" {
		p.MongoDatabase = getEnvOrDefault("MONGO_DB", databaseFromURI(p.MongoURI, "cnc_logs"))
	}

	if p.MCPConfigPath == "" {
		p.MCPConfigPath = getEnvOrDefault("MCP_CONFIG_PATH", "mcp_config.json")
	}

	p.JWTSecret = getEnvOrDefault("JWT_SECRET_KEY", p.JWTSecret)
}

// buildPostgresDSN assembles a DSN from the individual POSTGRES_* variables
// used by the deployment environment.
func buildPostgresDSN() string {
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	host := getEnvOrDefault("POSTGRES_HOST", "localhost")
	port := getEnvOrDefault("POSTGRES_PORT", "5432")
	user := getEnvOrDefault("POSTGRES_USER", "user")
	password := getEnvOrDefault("POSTGRES_PASSWORD", "password")
	database := getEnvOrDefault("POSTGRES_DB", "cnc_db")
	return "postgres://" + user + ":" + password + "@" + host + ":" + port + "/" + database + "?sslmode=disable"
}

// databaseFromURI extracts the trailing database name from a mongodb URI.
func databaseFromURI(uri, fallback string) string {
	trimmed := strings.TrimRight(uri, "/")
	if idx := strings.LastIndex(trimmed, "/"); idx >= 0 && idx < len(trimmed)-1 {
		name := trimmed[idx+1:]
		// Strip query options if present.
		if q := strings.Index(name, "?"); q >= 0 {
			name = name[:q]
		}
		if name != "" && !strings.Contains(name, ":") {
			return name
		}
	}
	return fallback
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if a relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		if err := os.MkdirAll(dataDir, 0o770); err != nil {
			return "", errors.Wrapf(err, "unable to create data folder %s", dataDir)
		}
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects configurations the server
// cannot start with.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Data == "" {
		p.Data = "data"
	}
	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", "data", p.Data, "error", err)
		return err
	}
	p.Data = dataDir

	if p.JWTSecret == "" {
		if p.Mode == "prod" {
			return errors.New("JWT_SECRET_KEY must be set in prod mode")
		}
		p.JWTSecret = "dev-secret-change-in-production"
		slog.Warn("JWT secret not configured, using insecure dev default")
	}

	if p.PostgresDSN == "" {
		return errors.New("postgres DSN is not configured")
	}
	if p.MongoURI == "" {
		return errors.New("mongo URI is not configured")
	}
	return nil
}
