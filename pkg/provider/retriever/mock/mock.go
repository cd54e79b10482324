// Package mock provides a scripted [retriever.Retriever] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/mkaiser42/aloud/pkg/provider/retriever"
)

// Compile-time interface assertion.
var _ retriever.Retriever = (*Retriever)(nil)

// Retriever returns a fixed context string for every query. Safe for
// concurrent use.
type Retriever struct {
	mu       sync.Mutex
	Context  string
	HasDocs  bool
	QueryErr error
	queries  []string
}

// Query implements [retriever.Retriever].
func (r *Retriever) Query(_ context.Context, query string, _ int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.QueryErr != nil {
		return "", r.QueryErr
	}
	return r.Context, nil
}

// HasDocuments implements [retriever.Retriever].
func (r *Retriever) HasDocuments(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.HasDocs, nil
}

// Queries returns a copy of all recorded query strings.
func (r *Retriever) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.queries))
	copy(out, r.queries)
	return out
}
