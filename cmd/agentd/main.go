package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ttpunch/AgentProject/ai/agent"
	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/ai/rag"
	"github.com/ttpunch/AgentProject/connectors/mongodb"
	"github.com/ttpunch/AgentProject/connectors/postgres"
	"github.com/ttpunch/AgentProject/internal/profile"
	"github.com/ttpunch/AgentProject/internal/version"
	"github.com/ttpunch/AgentProject/plugin/mcp"
	"github.com/ttpunch/AgentProject/server"
	apiv1 "github.com/ttpunch/AgentProject/server/router/api/v1"
	"github.com/ttpunch/AgentProject/store"
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "An AI agent for a CNC machine fleet: ask questions in plain language, get answers grounded in live sensor data, manuals and maintenance history.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// .env is a development convenience; deployments set real env vars.
		_ = godotenv.Load()
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		s, cleanup, err := buildServer(ctx, instanceProfile)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}
		defer cleanup()

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers (systemd, kubernetes).
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instanceProfile)

		if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			return
		}

		<-ctx.Done()
	},
}

// buildServer connects the backends and assembles the engine and API.
func buildServer(ctx context.Context, p *profile.Profile) (*server.Server, func(), error) {
	pg, err := postgres.New(ctx, postgres.Config{DSN: p.PostgresDSN})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}

	mg, err := mongodb.New(ctx, mongodb.Config{URI: p.MongoURI, Database: p.MongoDatabase})
	if err != nil {
		pg.Close()
		return nil, nil, fmt.Errorf("mongodb: %w", err)
	}
	var tools *mcp.Manager
	cleanup := func() {
		if tools != nil {
			tools.Close()
		}
		if err := mg.Close(context.Background()); err != nil {
			slog.Error("failed to close mongo client", "error", err)
		}
		pg.Close()
	}

	local, err := llm.NewService(&llm.Config{
		Provider: "local",
		Model:    p.LLMModel,
		APIKey:   p.LLMAPIKey,
		BaseURL:  p.LLMBaseURL,
		Timeout:  p.LLMTimeout,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("llm: %w", err)
	}
	var openrouter llm.Service
	if p.IsOpenRouterEnabled() {
		openrouter, err = llm.NewService(&llm.Config{
			Provider: "openrouter",
			Model:    p.OpenRouterModel,
			APIKey:   p.OpenRouterAPIKey,
			BaseURL:  p.OpenRouterBaseURL,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("openrouter: %w", err)
		}
	} else {
		slog.Info("openrouter provider disabled, no API key configured")
	}
	providers := llm.NewRegistry(local, openrouter)

	embeddingBaseURL := p.EmbeddingBaseURL
	if embeddingBaseURL == "" {
		embeddingBaseURL = p.LLMBaseURL
	}
	embedder, err := llm.NewEmbedder(&llm.EmbeddingConfig{
		Model:      p.EmbeddingModel,
		APIKey:     p.EmbeddingAPIKey,
		BaseURL:    embeddingBaseURL,
		Dimensions: p.EmbeddingDimensions,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("embedder: %w", err)
	}

	if err := pg.Migrate(ctx, embedder.Dimensions()); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	knowledge := rag.NewManager(pg, embedder)

	tools, err = mcp.NewManager(p.MCPConfigPath)
	if err != nil {
		slog.Warn("tool provider config not loaded, MCP route disabled", "path", p.MCPConfigPath, "error", err)
		tools = nil
	}

	engine := agent.New(providers, pg, mg, knowledge, toolRegistry(tools))
	apiService := apiv1.NewAPIV1Service(p.JWTSecret, p, store.New(mg), engine, knowledge, pg, mg)
	return server.NewServer(p, apiService), cleanup, nil
}

// toolRegistry avoids wrapping a nil *mcp.Manager into a non-nil interface.
func toolRegistry(m *mcp.Manager) agent.ToolRegistry {
	if m == nil {
		return nil
	}
	return m
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("port", 8000)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")

	for _, flag := range []string{"mode", "addr", "port", "data"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("agentd")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(p *profile.Profile) {
	fmt.Printf("agentd %s started\n", p.Version)
	fmt.Printf("Mode: %s\n", p.Mode)
	fmt.Printf("Data directory: %s\n", p.Data)
	if p.Addr == "" {
		fmt.Printf("Listening on port %d\n", p.Port)
	} else {
		fmt.Printf("Listening on %s:%d\n", p.Addr, p.Port)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
