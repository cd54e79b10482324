// Package mock provides a deterministic [embeddings.Provider] for tests.
package mock

import (
	"context"
	"hash/fnv"

	"github.com/mkaiser42/aloud/pkg/provider/embeddings"
)

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Provider produces deterministic pseudo-embeddings derived from an FNV hash
// of the input text. Dims defaults to 8 when zero.
type Provider struct {
	Dims int
	Err  error
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	dims := p.Dims
	if dims == 0 {
		dims = 8
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	out := make([]float32, dims)
	for i := range out {
		seed = seed*6364136223846793005 + 1442695040888963407
		out[i] = float32(int32(seed>>33)) / float32(1<<31)
	}
	return out, nil
}

// EmbedBatch implements [embeddings.Provider].
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements [embeddings.Provider].
func (p *Provider) Dimensions() int {
	if p.Dims == 0 {
		return 8
	}
	return p.Dims
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return "mock" }
