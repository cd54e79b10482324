// Package llm defines the Client interface for Large Language Model backends.
//
// A client wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama or llama.cpp instance) behind the two operations the Aloud pipeline
// needs: a reachability probe used once at pipeline start, and a blocking
// single-shot completion. Streaming is deliberately absent — every pipeline
// turn consumes the whole response before speaking it.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Client is the abstraction over any LLM backend.
type Client interface {
	// CheckConnection probes the backend and returns nil when it is
	// reachable and able to serve completions. The caller bounds the probe
	// with a context deadline.
	CheckConnection(ctx context.Context) error

	// Generate sends the user prompt with an optional system prompt and
	// returns the model's full text response. An empty system string omits
	// the system message entirely.
	//
	// Implementations may return an error; the pipeline always wraps a
	// Client in the resilience layer, which converts persistent failures
	// into a fixed fallback string so errors never reach the worker loop.
	Generate(ctx context.Context, prompt, system string) (string, error)
}
