// Package mock provides a recording [tts.Engine] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/mkaiser42/aloud/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

// Engine records every spoken utterance and Stop call. Safe for concurrent
// use.
type Engine struct {
	mu       sync.Mutex
	SpeakErr error
	spoken   []string
	stops    int
}

// Speak implements [tts.Engine].
func (e *Engine) Speak(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SpeakErr != nil {
		return e.SpeakErr
	}
	e.spoken = append(e.spoken, text)
	return nil
}

// Stop implements [tts.Engine].
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stops++
	e.mu.Unlock()
}

// WaitUntilDone implements [tts.Engine]. The mock plays instantly.
func (e *Engine) WaitUntilDone() {}

// Spoken returns a copy of all utterances passed to Speak.
func (e *Engine) Spoken() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.spoken))
	copy(out, e.spoken)
	return out
}

// Stops returns the number of Stop calls.
func (e *Engine) Stops() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}
