// Package resilience wraps external providers so their failures never reach
// the pipeline worker.
//
// The central type is [LLMClient], a decorator around any [llm.Client] that
// adds a per-call timeout, a small fixed retry budget with linear back-off,
// and a fixed fallback string once the budget is exhausted. The worker's
// control flow stays linear: Generate never returns an error.
package resilience

import (
	"context"
	"log/slog"
	"time"

	"github.com/mkaiser42/aloud/internal/observe"
	"github.com/mkaiser42/aloud/pkg/provider/llm"
)

// DefaultFallback is spoken when the language model stays unreachable after
// all retries.
const DefaultFallback = "I'm having trouble thinking right now. Please try again."

// Retry and timeout tuning. The budget is deliberately small: the user is
// waiting for a spoken reply, so a long retry loop is worse than the
// fallback sentence.
const (
	maxRetries   = 3
	retryBackoff = 2 * time.Second
	callTimeout  = 60 * time.Second
	probeTimeout = 5 * time.Second
)

// Compile-time interface assertion.
var _ llm.Client = (*LLMClient)(nil)

// LLMClient decorates an inner [llm.Client] with retries and a fallback.
// Safe for concurrent use if the inner client is.
type LLMClient struct {
	inner    llm.Client
	fallback string
	log      *slog.Logger
	metrics  *observe.Metrics

	// sleep is swapped in tests to avoid real back-off waits.
	sleep func(time.Duration)
}

// LLMOption customises a [LLMClient].
type LLMOption func(*LLMClient)

// WithFallback overrides the fallback sentence returned after the retry
// budget is exhausted.
func WithFallback(text string) LLMOption {
	return func(c *LLMClient) {
		if text != "" {
			c.fallback = text
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) LLMOption {
	return func(c *LLMClient) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics records the latency of every inner call, successful or not.
// Without it, nothing is recorded.
func WithMetrics(m *observe.Metrics) LLMOption {
	return func(c *LLMClient) { c.metrics = m }
}

// WrapLLM wraps inner so Generate never errors.
func WrapLLM(inner llm.Client, opts ...LLMOption) *LLMClient {
	c := &LLMClient{
		inner:    inner,
		fallback: DefaultFallback,
		log:      slog.Default(),
		sleep:    time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckConnection probes the inner client with a short timeout. Unlike
// Generate it reports failure to the caller: an unreachable model at startup
// is fatal, not something to paper over.
func (c *LLMClient) CheckConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return c.inner.CheckConnection(ctx)
}

// Generate calls the inner client with a per-attempt timeout, retrying up to
// the fixed budget with a short back-off. Once the budget is spent it
// returns the fallback sentence. The error return is always nil; it exists
// only to satisfy [llm.Client].
func (c *LLMClient) Generate(ctx context.Context, prompt, system string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.sleep(retryBackoff)
		}
		if ctx.Err() != nil {
			break
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		start := time.Now()
		text, err := c.inner.Generate(callCtx, prompt, system)
		cancel()
		if c.metrics != nil {
			c.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.log.Warn("LLM call failed, retrying",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"error", err,
		)
	}

	c.log.Error("LLM retry budget exhausted, returning fallback", "error", lastErr)
	return c.fallback, nil
}
