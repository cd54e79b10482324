// Package retriever defines the Retriever interface used by the document-QA
// path of the pipeline.
//
// A retriever answers "give me the most relevant indexed context for this
// question" as a single concatenated string ready for prompt injection. The
// vector-store internals live behind this contract; the pipeline only ever
// calls Query and HasDocuments.
//
// Implementations must be safe for concurrent use.
package retriever

import "context"

// Retriever is the abstraction over any document retrieval backend.
type Retriever interface {
	// Query returns the concatenated content of the topK chunks most
	// relevant to query, or an empty string when nothing matches. topK is
	// clamped by the implementation to a sane range.
	Query(ctx context.Context, query string, topK int) (string, error)

	// HasDocuments reports whether any documents have been indexed. The
	// pipeline uses this to short-circuit document-QA mode with a fixed
	// "no documents" message.
	HasDocuments(ctx context.Context) (bool, error)
}
