// Package whisper provides an [stt.Engine] backed by the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.
//
// The model is loaded once in [New] and shared across all transcriptions;
// each Transcribe call creates a fresh whisper context because contexts are
// not thread-safe while the model is.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/mkaiser42/aloud/pkg/provider/stt"
)

// Compile-time interface assertion.
var _ stt.Engine = (*Engine)(nil)

const defaultLanguage = "en"

// Engine implements [stt.Engine] using whisper.cpp.
type Engine struct {
	modelPath string
	language  string

	mu    sync.Mutex
	model whisperlib.Model
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the transcription language code (e.g. "en", "de").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// New creates an Engine that will load the whisper.cpp model from modelPath
// on [Engine.Start].
func New(modelPath string, opts ...Option) (*Engine, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	e := &Engine{
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Start loads the model. Calling Start on an already-started engine is a
// no-op.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return nil
	}
	model, err := whisperlib.New(e.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", e.modelPath, err)
	}
	e.model = model
	slog.Info("whisper model loaded", "path", e.modelPath, "language", e.language)
	return nil
}

// Stop releases the model. Safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	if err != nil {
		return fmt.Errorf("whisper: close model: %w", err)
	}
	return nil
}

// Transcribe runs whisper.cpp inference on one 16 kHz mono int16 chunk and
// returns the concatenated segment text.
func (e *Engine) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: %w", err)
	}

	e.mu.Lock()
	model := e.model
	e.mu.Unlock()
	if model == nil {
		return "", errors.New("whisper: engine not started")
	}

	samples := pcmToFloat32(pcm)
	if len(samples) == 0 {
		return "", nil
	}

	// Each inference gets its own context; contexts are single-use per
	// goroutine while the model itself is shared.
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		slog.Warn("whisper: failed to set language, using default",
			"language", e.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
