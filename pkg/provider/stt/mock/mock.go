// Package mock provides a scripted [stt.Engine] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/mkaiser42/aloud/pkg/provider/stt"
)

// Compile-time interface assertions.
var (
	_ stt.Engine                = (*Engine)(nil)
	_ stt.ConfidenceTranscriber = (*Engine)(nil)
)

// Result is one scripted transcription outcome.
type Result struct {
	Text       string
	Confidence float64
	HasConf    bool
	Err        error
}

// Engine is a scripted STT engine. Transcribe consumes Results in order;
// once exhausted it returns empty strings. Safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	Results []Result
	idx     int

	StartErr error
	started  bool
	stopped  bool
	chunks   int
}

// Start implements [stt.Engine].
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StartErr != nil {
		return e.StartErr
	}
	e.started = true
	return nil
}

// Stop implements [stt.Engine].
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	return nil
}

// Transcribe implements [stt.Engine].
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	text, _, _, err := e.TranscribeWithConfidence(ctx, pcm)
	return text, err
}

// TranscribeWithConfidence implements [stt.ConfidenceTranscriber].
func (e *Engine) TranscribeWithConfidence(_ context.Context, _ []byte) (string, float64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chunks++
	if e.idx >= len(e.Results) {
		return "", 0, false, nil
	}
	r := e.Results[e.idx]
	e.idx++
	return r.Text, r.Confidence, r.HasConf, r.Err
}

// Started reports whether Start succeeded.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Chunks returns the number of Transcribe calls so far.
func (e *Engine) Chunks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chunks
}
