// Package pgvector provides a PostgreSQL + pgvector backed [retriever.Retriever].
//
// Document chunks are stored pre-embedded in a single table with a cosine
// HNSW index. The pgvector extension must be available in the target
// database; [Migrate] installs it via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := pgvector.NewStore(ctx, dsn, embedder)
//	_ = store.IndexChunk(ctx, "manual-1#0", "Wheelchair manual", chunkText)
//	context, _ := store.Query(ctx, "how do I charge the battery?", 4)
package pgvector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/mkaiser42/aloud/pkg/provider/embeddings"
	"github.com/mkaiser42/aloud/pkg/provider/retriever"
)

// Compile-time interface assertion.
var _ retriever.Retriever = (*Store)(nil)

// maxTopK caps how many chunks a single query may pull.
const maxTopK = 20

// Store is a pgvector-backed document retriever.
//
// All operations are safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder embeddings.Provider
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate]. The embedder's dimensionality is baked into the vector column at
// first migration; changing models later requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embedder embeddings.Provider) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgvector store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embedder.Dimensions()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgvector store: migrate: %w", err)
	}

	return &Store{pool: pool, embedder: embedder}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// IndexChunk embeds content and upserts it under id. A chunk with the same
// id is completely replaced, so re-vectorising a document is idempotent.
func (s *Store) IndexChunk(ctx context.Context, id, title, content string) error {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("pgvector store: embed chunk: %w", err)
	}

	const q = `
		INSERT INTO doc_chunks (id, title, content, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    title     = EXCLUDED.title,
		    content   = EXCLUDED.content,
		    embedding = EXCLUDED.embedding`

	if _, err := s.pool.Exec(ctx, q, id, title, content, pgvec.NewVector(vec)); err != nil {
		return fmt.Errorf("pgvector store: index chunk: %w", err)
	}
	return nil
}

// Query implements [retriever.Retriever]. It embeds the query, fetches the
// topK nearest chunks by cosine distance, and joins their contents with a
// separator line, most similar first.
func (s *Store) Query(ctx context.Context, query string, topK int) (string, error) {
	if topK < 1 {
		topK = 1
	} else if topK > maxTopK {
		topK = maxTopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("pgvector store: embed query: %w", err)
	}

	const q = `
		SELECT title, content
		FROM   doc_chunks
		ORDER  BY embedding <=> $1
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvec.NewVector(vec), topK)
	if err != nil {
		return "", fmt.Errorf("pgvector store: query: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var title, content string
		if err := rows.Scan(&title, &content); err != nil {
			return "", fmt.Errorf("pgvector store: scan: %w", err)
		}
		if title != "" {
			parts = append(parts, fmt.Sprintf("[%s]\n%s", title, content))
		} else {
			parts = append(parts, content)
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("pgvector store: iterate: %w", err)
	}

	return strings.Join(parts, "\n\n---\n\n"), nil
}

// HasDocuments implements [retriever.Retriever].
func (s *Store) HasDocuments(ctx context.Context) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM doc_chunks)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgvector store: has documents: %w", err)
	}
	return exists, nil
}

// DeleteDocument removes every chunk whose id starts with docID followed by
// "#" (the chunk-id convention used by the upload surface).
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM doc_chunks WHERE id LIKE $1`, docID+"#%")
	if err != nil {
		return fmt.Errorf("pgvector store: delete document: %w", err)
	}
	return nil
}
