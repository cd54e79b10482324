// Package coqui provides a [tts.Engine] backed by a local Coqui TTS server
// (ghcr.io/coqui-ai/tts-cpu). Synthesis is one HTTP GET /api/tts call per
// utterance returning a WAV body, which is piped into a local audio player
// process (aplay by default).
//
// Because the server operates in batch mode rather than over a streaming
// socket, Speak synthesises the whole utterance in a background goroutine and
// starts playback as soon as the WAV arrives. Stop kills the player process;
// a new Speak aborts the previous one first.
package coqui

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mkaiser42/aloud/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Engine = (*Engine)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	apiTTSEndpoint  = "/api/tts"
)

// defaultPlayer is the command used to play a WAV stream from stdin.
var defaultPlayer = []string{"aplay", "-q"}

// Engine implements [tts.Engine] against a standard Coqui TTS server.
type Engine struct {
	baseURL    string
	language   string
	speakerID  string
	player     []string
	httpClient *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc // cancels the in-flight synthesis + playback
	done   chan struct{}      // closed when the current utterance finishes
}

// Option is a functional option for configuring an Engine.
type Option func(*Engine)

// WithLanguage sets the language id sent to the TTS server. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(e *Engine) { e.language = lang }
}

// WithSpeakerID selects a speaker voice on multi-speaker models.
func WithSpeakerID(id string) Option {
	return func(e *Engine) { e.speakerID = id }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.httpClient.Timeout = d }
}

// WithPlayerCommand overrides the audio player invocation. The WAV stream is
// written to the command's stdin.
func WithPlayerCommand(cmd ...string) Option {
	return func(e *Engine) { e.player = cmd }
}

// New creates an Engine targeting the Coqui server at baseURL
// (e.g. "http://localhost:5002").
func New(baseURL string, opts ...Option) (*Engine, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: baseURL must not be empty")
	}
	e := &Engine{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   defaultLanguage,
		player:     defaultPlayer,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Speak implements [tts.Engine]. Synthesis and playback run in a background
// goroutine; failures are logged, never returned, matching the pipeline's
// log-and-continue policy for TTS.
func (e *Engine) Speak(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// New speech aborts whatever is still playing.
	e.Stop()

	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	e.mu.Lock()
	e.cancel = cancel
	e.done = done
	e.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := e.synthesizeAndPlay(playCtx, text); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("tts playback failed", "err", err)
		}
	}()
	return nil
}

// Stop implements [tts.Engine].
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// WaitUntilDone implements [tts.Engine].
func (e *Engine) WaitUntilDone() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done != nil {
		<-done
	}
}

// synthesizeAndPlay performs the HTTP synthesis call and pipes the WAV body
// into the player process.
func (e *Engine) synthesizeAndPlay(ctx context.Context, text string) error {
	q := url.Values{}
	q.Set("text", text)
	if e.speakerID != "" {
		q.Set("speaker_id", e.speakerID)
	}
	if e.language != "" {
		q.Set("language_id", e.language)
	}

	reqURL := e.baseURL + apiTTSEndpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("coqui: build request: %w", err)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("coqui: server returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("coqui: read wav body: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.player[0], e.player[1:]...)
	cmd.Stdin = bytes.NewReader(wav)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("coqui: player %q: %w", e.player[0], err)
	}
	return nil
}
