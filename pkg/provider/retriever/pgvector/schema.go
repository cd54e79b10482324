package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the document-chunk DDL with the embedding dimension substituted.
// The vector dimension is baked into the column type at schema creation time.
func ddl(dimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS doc_chunks (
    id         TEXT         PRIMARY KEY,
    title      TEXT         NOT NULL DEFAULT '',
    content    TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_doc_chunks_embedding
    ON doc_chunks USING hnsw (embedding vector_cosine_ops);
`, dimensions)
}

// Migrate ensures the pgvector extension, the doc_chunks table, and its HNSW
// index exist. It is idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("pgvector migrate: dimensions must be positive, got %d", dimensions)
	}
	if _, err := pool.Exec(ctx, ddl(dimensions)); err != nil {
		return fmt.Errorf("pgvector migrate: %w", err)
	}
	return nil
}
