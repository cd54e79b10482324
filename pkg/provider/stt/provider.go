// Package stt defines the Engine interface for Speech-to-Text backends.
//
// An engine transcribes one fixed-size chunk of 16 kHz mono little-endian
// int16 PCM at a time. The pipeline worker owns exactly one engine for its
// lifetime, calling Start before the first chunk and Stop after the last.
//
// Implementations must be safe for concurrent use; in practice the worker
// serialises all calls.
package stt

import "context"

// Engine is the abstraction over any STT backend.
type Engine interface {
	// Start prepares the engine (loads models, opens sessions). It is
	// called once when the pipeline starts.
	Start() error

	// Stop releases engine resources. Safe to call after a failed Start
	// and safe to call more than once.
	Stop() error

	// Transcribe converts one PCM chunk into text. An empty string (no
	// error) means the chunk contained no recognisable speech. Errors are
	// surfaced to the pipeline, which skips the turn and continues.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// ConfidenceTranscriber is an optional extension for engines that can report
// a recognition confidence alongside the text.
type ConfidenceTranscriber interface {
	// TranscribeWithConfidence behaves like [Engine.Transcribe] and
	// additionally returns a confidence in [0, 1]. ok is false when the
	// engine could not produce a confidence for this chunk.
	TranscribeWithConfidence(ctx context.Context, pcm []byte) (text string, confidence float64, ok bool, err error)
}
