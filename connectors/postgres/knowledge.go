package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/ttpunch/AgentProject/connectors/base"
)

// KnowledgeChunk is one embedded passage of an indexed document.
type KnowledgeChunk struct {
	ID        int64
	Source    string
	Content   string
	Embedding []float32
	CreatedTs int64
}

// ScoredChunk is a retrieval result with its cosine distance converted to a
// similarity score in [0, 1].
type ScoredChunk struct {
	KnowledgeChunk
	Score float32
}

// Migrate creates the knowledge chunk table and vector index if missing.
func (c *Connector) Migrate(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		dimensions = 1024
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS knowledge_chunk (
			id BIGSERIAL PRIMARY KEY,
			source TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding vector(` + strconv.Itoa(dimensions) + `) NOT NULL,
			created_ts BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_chunk_source ON knowledge_chunk (source)`,
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return base.NewConnectorError("postgres", "Migrate", "failed to migrate knowledge store", err)
		}
	}
	return nil
}

// InsertChunks stores embedded chunks in one transaction.
func (c *Connector) InsertChunks(ctx context.Context, chunks []KnowledgeChunk) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return base.NewConnectorError("postgres", "InsertChunks", "failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const stmt = `
		INSERT INTO knowledge_chunk (source, content, embedding, created_ts)
		VALUES ($1, $2, $3, $4)
	`
	now := time.Now().Unix()
	for _, chunk := range chunks {
		vector := pgvector.NewVector(chunk.Embedding)
		if _, err := tx.ExecContext(ctx, stmt, chunk.Source, chunk.Content, vector, now); err != nil {
			return base.NewConnectorError("postgres", "InsertChunks", "failed to insert knowledge chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return base.NewConnectorError("postgres", "InsertChunks", "failed to commit knowledge chunks", err)
	}
	return nil
}

// SearchChunks returns the k nearest chunks to the query vector by cosine
// distance.
func (c *Connector) SearchChunks(ctx context.Context, embedding []float32, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 4
	}
	const query = `
		SELECT id, source, content, 1 - (embedding <=> $1) AS score
		FROM knowledge_chunk
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := c.db.QueryContext(ctx, query, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, base.NewConnectorError("postgres", "SearchChunks", "failed to search knowledge chunks", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var chunk ScoredChunk
		if err := rows.Scan(&chunk.ID, &chunk.Source, &chunk.Content, &chunk.Score); err != nil {
			return nil, base.NewConnectorError("postgres", "SearchChunks", "failed to scan knowledge chunk", err)
		}
		results = append(results, chunk)
	}
	return results, rows.Err()
}

// DeleteChunksBySource removes all chunks of one indexed document.
func (c *Connector) DeleteChunksBySource(ctx context.Context, source string) (int64, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM knowledge_chunk WHERE source = $1`, source)
	if err != nil {
		return 0, base.NewConnectorError("postgres", "DeleteChunksBySource", "failed to delete knowledge chunks", err)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

// ListChunkSources returns the distinct indexed document names.
func (c *Connector) ListChunkSources(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT source FROM knowledge_chunk ORDER BY source`)
	if err != nil {
		return nil, base.NewConnectorError("postgres", "ListChunkSources", "failed to list knowledge sources", err)
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			return nil, base.NewConnectorError("postgres", "ListChunkSources", "failed to scan knowledge source", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// SampleChunks returns up to n chunks with truncated embeddings, used by the
// vector visualization endpoint.
func (c *Connector) SampleChunks(ctx context.Context, n int) ([]KnowledgeChunk, error) {
	if n <= 0 {
		n = 5
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, source, content, embedding FROM knowledge_chunk ORDER BY id LIMIT $1`, n)
	if err != nil {
		return nil, base.NewConnectorError("postgres", "SampleChunks", "failed to sample knowledge chunks", err)
	}
	defer rows.Close()

	var chunks []KnowledgeChunk
	for rows.Next() {
		var chunk KnowledgeChunk
		var vector pgvector.Vector
		if err := rows.Scan(&chunk.ID, &chunk.Source, &chunk.Content, &vector); err != nil {
			return nil, base.NewConnectorError("postgres", "SampleChunks", "failed to scan knowledge chunk sample", err)
		}
		chunk.Embedding = vector.Slice()
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}
