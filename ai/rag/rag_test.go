package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ttpunch/AgentProject/connectors/postgres"
)

func TestSplitTextShortText(t *testing.T) {
	chunks := SplitText("a short document", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "a short document", chunks[0])
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, SplitText("   \n  ", 500, 50))
}

func TestSplitTextPrefersParagraphBoundaries(t *testing.T) {
	para := strings.Repeat("alpha beta gamma ", 20) // ~340 chars
	text := para + "\n\n" + para + "\n\n" + para

	chunks := SplitText(text, 500, 50)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 500)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitTextHardCutWithOverlap(t *testing.T) {
	// No separators at all forces fixed-width cuts.
	text := strings.Repeat("x", 1200)

	chunks := SplitText(text, 500, 50)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 500)
	assert.Len(t, chunks[1], 500)
	// Consecutive chunks share the overlap region.
	assert.Equal(t, chunks[0][450:], chunks[1][:50])
}

type fakeChunkStore struct {
	inserted []postgres.KnowledgeChunk
	scored   []postgres.ScoredChunk
	deleted  string
	sources  []string
}

func (f *fakeChunkStore) InsertChunks(_ context.Context, chunks []postgres.KnowledgeChunk) error {
	f.inserted = append(f.inserted, chunks...)
	return nil
}

func (f *fakeChunkStore) SearchChunks(_ context.Context, _ []float32, k int) ([]postgres.ScoredChunk, error) {
	if k < len(f.scored) {
		return f.scored[:k], nil
	}
	return f.scored, nil
}

func (f *fakeChunkStore) DeleteChunksBySource(_ context.Context, source string) (int64, error) {
	f.deleted = source
	return 3, nil
}

func (f *fakeChunkStore) ListChunkSources(_ context.Context) ([]string, error) {
	return f.sources, nil
}

func (f *fakeChunkStore) SampleChunks(_ context.Context, n int) ([]postgres.KnowledgeChunk, error) {
	if n < len(f.inserted) {
		return f.inserted[:n], nil
	}
	return f.inserted, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 0.5}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int { return 3 }

func TestManagerAddDocument(t *testing.T) {
	store := &fakeChunkStore{}
	m := NewManager(store, fakeEmbedder{})

	para := strings.Repeat("maintenance procedure step. ", 30)
	count, err := m.AddDocument(context.Background(), "manual.txt", para+"\n\n"+para)
	require.NoError(t, err)
	assert.Equal(t, count, len(store.inserted))
	for _, c := range store.inserted {
		assert.Equal(t, "manual.txt", c.Source)
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestManagerAddDocumentEmpty(t *testing.T) {
	m := NewManager(&fakeChunkStore{}, fakeEmbedder{})

	_, err := m.AddDocument(context.Background(), "empty.txt", "")
	assert.Error(t, err)
}

func TestManagerQueryDefaultsK(t *testing.T) {
	store := &fakeChunkStore{scored: []postgres.ScoredChunk{
		{KnowledgeChunk: postgres.KnowledgeChunk{Source: "a.txt", Content: "spindle alignment"}, Score: 0.9},
		{KnowledgeChunk: postgres.KnowledgeChunk{Source: "b.txt", Content: "coolant flush"}, Score: 0.7},
	}}
	m := NewManager(store, fakeEmbedder{})

	chunks, err := m.Query(context.Background(), "how do I align the spindle?", 0)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "a.txt", chunks[0].Source)
	assert.InDelta(t, 0.9, chunks[0].Score, 1e-6)
}

func TestManagerDeleteDocument(t *testing.T) {
	store := &fakeChunkStore{}
	m := NewManager(store, fakeEmbedder{})

	require.NoError(t, m.DeleteDocument(context.Background(), "old.txt"))
	assert.Equal(t, "old.txt", store.deleted)
}

func TestManagerSampleTruncates(t *testing.T) {
	long := strings.Repeat("z", 300)
	store := &fakeChunkStore{inserted: []postgres.KnowledgeChunk{
		{ID: 1, Source: "doc.txt", Content: long, Embedding: []float32{1, 2, 3, 4, 5, 6, 7, 8}},
	}}
	m := NewManager(store, fakeEmbedder{})

	samples, err := m.Sample(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Len(t, samples[0].EmbeddingPreview, 5)
	assert.True(t, strings.HasSuffix(samples[0].ContentPreview, "..."))
	assert.Len(t, samples[0].ContentPreview, 103)
}