package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Embedder produces dense vectors for knowledge base indexing and search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// EmbeddingConfig represents the embedding endpoint settings.
type EmbeddingConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int // default: 1024
	Timeout    int // request timeout in seconds (default: 60)
}

type embedder struct {
	client     *openai.Client
	model      string
	dimensions int
	timeout    int
}

// NewEmbedder creates an Embedder against an OpenAI-compatible endpoint.
func NewEmbedder(cfg *EmbeddingConfig) (Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: embedding model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60
	}

	return &embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: dimensions,
		timeout:    timeout,
	}, nil
}

func (e *embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(e.timeout)*time.Second)
	defer cancel()

	startTime := time.Now()
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vectors[d.Index] = d.Embedding
	}
	slog.Debug("embedding batch complete",
		"model", e.model,
		"texts", len(texts),
		"duration_ms", time.Since(startTime).Milliseconds(),
	)
	return vectors, nil
}

func (e *embedder) Dimensions() int {
	return e.dimensions
}
