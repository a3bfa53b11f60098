// Package llm provides the text generation service. All providers speak the
// OpenAI-compatible chat protocol through a single client implementation;
// the per-request provider selector picks between the local model runner and
// the remote OpenRouter endpoint.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Well-known role values.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Service is the text generation interface consumed by the agent nodes.
type Service interface {
	// Chat performs a synchronous completion over the full message list.
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Config represents one provider's connection settings.
type Config struct {
	Provider    string // local, openrouter
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0
	Timeout     int     // request timeout in seconds (default: 120)
}

type service struct {
	client      *openai.Client
	provider    string
	model       string
	maxTokens   int
	temperature float32
	timeout     int
}

// newHTTPClient builds an HTTP client with sane connection pooling. The
// overall request deadline is enforced per call via context, not here.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewService creates a Service for one provider configuration.
func NewService(cfg *Config) (Service, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required for provider %q", cfg.Provider)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	return &service{
		client:      openai.NewClientWithConfig(clientConfig),
		provider:    cfg.Provider,
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
	}, nil
}

func (s *service) Chat(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	slog.Debug("llm chat request",
		"provider", s.provider,
		"model", s.model,
		"messages", len(messages),
	)
	startTime := time.Now()

	req := openai.ChatCompletionRequest{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		Messages:    convertMessages(messages),
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("llm chat request failed", "provider", s.provider, "error", err)
		return "", fmt.Errorf("llm chat failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from llm")
	}

	slog.Debug("llm chat response",
		"provider", s.provider,
		"total_tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
	return resp.Choices[0].Message.Content, nil
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	return out
}

// Registry holds the configured providers and resolves the per-request
// provider selector. Unknown selectors fall back to the local provider.
type Registry struct {
	local      Service
	openrouter Service
}

// NewRegistry builds the provider registry. The local provider is required;
// openrouter may be nil when no API key is configured.
func NewRegistry(local, openrouter Service) *Registry {
	return &Registry{local: local, openrouter: openrouter}
}

// Get returns the Service for the given provider selector.
func (r *Registry) Get(provider string) Service {
	if provider == "openrouter" && r.openrouter != nil {
		return r.openrouter
	}
	return r.local
}
