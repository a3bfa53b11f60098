package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/ttpunch/AgentProject/ai/llm"
	"github.com/ttpunch/AgentProject/connectors/postgres"
)

// ChunkStore is the persistence surface for embedded document chunks.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []postgres.KnowledgeChunk) error
	SearchChunks(ctx context.Context, embedding []float32, k int) ([]postgres.ScoredChunk, error)
	DeleteChunksBySource(ctx context.Context, source string) (int64, error)
	ListChunkSources(ctx context.Context) ([]string, error)
	SampleChunks(ctx context.Context, n int) ([]postgres.KnowledgeChunk, error)
}

// Chunk is a retrieved passage with its similarity score.
type Chunk struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// VectorSample is a truncated view of one stored chunk, used by the
// knowledge base inspection endpoint.
type VectorSample struct {
	ID               int64     `json:"id"`
	Source           string    `json:"source"`
	ContentPreview   string    `json:"content_preview"`
	EmbeddingPreview []float32 `json:"embedding_preview"`
}

// Manager chunks, embeds and retrieves knowledge base documents.
type Manager struct {
	store    ChunkStore
	embedder llm.Embedder
}

// NewManager creates a Manager over the given store and embedder.
func NewManager(store ChunkStore, embedder llm.Embedder) *Manager {
	return &Manager{store: store, embedder: embedder}
}

// AddDocument splits the document into chunks, embeds them and stores the
// vectors. Returns the number of chunks indexed.
func (m *Manager) AddDocument(ctx context.Context, source, content string) (int, error) {
	pieces := SplitText(content, defaultChunkSize, defaultChunkOverlap)
	if len(pieces) == 0 {
		return 0, errors.New("document is empty")
	}

	vectors, err := m.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to embed document %s", source)
	}

	now := time.Now().Unix()
	chunks := make([]postgres.KnowledgeChunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = postgres.KnowledgeChunk{
			Source:    source,
			Content:   piece,
			Embedding: vectors[i],
			CreatedTs: now,
		}
	}
	if err := m.store.InsertChunks(ctx, chunks); err != nil {
		return 0, errors.Wrapf(err, "failed to store chunks for %s", source)
	}
	slog.Info("document indexed", "source", source, "chunks", len(chunks))
	return len(chunks), nil
}

// Query embeds the question and returns the k most similar chunks.
func (m *Manager) Query(ctx context.Context, question string, k int) ([]Chunk, error) {
	if k <= 0 {
		k = 4
	}
	vector, err := m.embedder.Embed(ctx, question)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed question")
	}
	scored, err := m.store.SearchChunks(ctx, vector, k)
	if err != nil {
		return nil, errors.Wrap(err, "knowledge search failed")
	}

	chunks := make([]Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = Chunk{Source: s.Source, Content: s.Content, Score: s.Score}
	}
	return chunks, nil
}

// DeleteDocument removes every chunk indexed under the given source name.
func (m *Manager) DeleteDocument(ctx context.Context, source string) error {
	deleted, err := m.store.DeleteChunksBySource(ctx, source)
	if err != nil {
		return errors.Wrapf(err, "failed to delete document %s", source)
	}
	slog.Info("document deleted", "source", source, "chunks", deleted)
	return nil
}

// ListDocuments returns the distinct source names in the knowledge base.
func (m *Manager) ListDocuments(ctx context.Context) ([]string, error) {
	return m.store.ListChunkSources(ctx)
}

// Sample returns a truncated view of up to five stored chunks for
// visualization.
func (m *Manager) Sample(ctx context.Context) ([]VectorSample, error) {
	chunks, err := m.store.SampleChunks(ctx, 5)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sample knowledge base")
	}

	samples := make([]VectorSample, len(chunks))
	for i, c := range chunks {
		preview := c.Content
		if len(preview) > 100 {
			preview = fmt.Sprintf("%s...", preview[:100])
		}
		embPreview := c.Embedding
		if len(embPreview) > 5 {
			embPreview = embPreview[:5]
		}
		samples[i] = VectorSample{
			ID:               c.ID,
			Source:           c.Source,
			ContentPreview:   preview,
			EmbeddingPreview: embPreview,
		}
	}
	return samples, nil
}
