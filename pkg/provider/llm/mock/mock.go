// Package mock provides a scripted [llm.Client] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/mkaiser42/aloud/pkg/provider/llm"
)

// Compile-time interface assertion.
var _ llm.Client = (*Client)(nil)

// Call records one Generate invocation.
type Call struct {
	Prompt string
	System string
}

// Client is a scripted LLM client. Responses are consumed from Responses in
// order; once exhausted, the last response repeats. A nil Responses slice
// yields empty strings. Safe for concurrent use.
type Client struct {
	mu          sync.Mutex
	Responses   []string
	GenerateErr error
	CheckErr    error
	calls       []Call
	idx         int
}

// CheckConnection implements [llm.Client].
func (c *Client) CheckConnection(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CheckErr
}

// Generate implements [llm.Client].
func (c *Client) Generate(_ context.Context, prompt, system string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Prompt: prompt, System: system})
	if c.GenerateErr != nil {
		return "", c.GenerateErr
	}
	if len(c.Responses) == 0 {
		return "", nil
	}
	i := c.idx
	if i >= len(c.Responses) {
		i = len(c.Responses) - 1
	}
	c.idx++
	return c.Responses[i], nil
}

// Calls returns a copy of all recorded Generate invocations.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns the number of Generate invocations so far.
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
