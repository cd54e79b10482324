// Package tts defines the Engine interface for Text-to-Speech backends.
//
// Speak starts playback asynchronously and never blocks the pipeline worker;
// a new Speak implicitly aborts any in-progress speech, as does Stop. The
// worker treats TTS failures as log-and-continue.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Engine is the abstraction over any TTS backend.
type Engine interface {
	// Speak starts speaking text and returns as soon as playback has been
	// handed off. Empty or whitespace-only text is a no-op. Starting a new
	// utterance aborts any speech still playing.
	Speak(ctx context.Context, text string) error

	// Stop aborts any in-progress speech. Safe to call when idle.
	Stop()

	// WaitUntilDone blocks until the current utterance (if any) has
	// finished playing. Intended for tests and shutdown paths.
	WaitUntilDone()
}

// Noop is an Engine that discards all speech. Used when no TTS backend is
// configured, so the rest of the pipeline keeps working silently.
type Noop struct{}

var _ Engine = Noop{}

// Speak implements [Engine] as a no-op.
func (Noop) Speak(context.Context, string) error { return nil }

// Stop implements [Engine] as a no-op.
func (Noop) Stop() {}

// WaitUntilDone implements [Engine] as a no-op.
func (Noop) WaitUntilDone() {}
