// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text strings to dense float32 vectors. The
// document-QA retriever uses these vectors to index uploaded documents and to
// embed the user's question for similarity search.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by one Provider instance share the dimensionality
// reported by Dimensions; callers must not mix vectors from different
// instances in the same similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// result has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one provider
	// call. The i-th result corresponds to texts[i]. On error no partial
	// results are returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and consistency checks.
	ModelID() string
}
