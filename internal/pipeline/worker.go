package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mkaiser42/aloud/internal/config"
	"github.com/mkaiser42/aloud/internal/intent"
	"github.com/mkaiser42/aloud/internal/observe"
	"github.com/mkaiser42/aloud/internal/store"
	"github.com/mkaiser42/aloud/pkg/audio"
	"github.com/mkaiser42/aloud/pkg/provider/llm"
	"github.com/mkaiser42/aloud/pkg/provider/stt"
	"github.com/mkaiser42/aloud/pkg/provider/tts"
)

// State is the worker lifecycle phase.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// joinTimeout bounds how long Stop waits for the worker goroutine. The
// worker may be inside an STT or LLM call it cannot abandon; past the bound
// the operator is told, but the process stays up.
const joinTimeout = 7 * time.Second

// ErrNotStopped is returned by Start when the worker is not in the stopped
// state.
var ErrNotStopped = errors.New("pipeline: worker is not stopped")

// SpeakerFilter decides whether a chunk was spoken by the target user.
// Chunks from other voices are skipped without a response.
type SpeakerFilter interface {
	Accept(pcm []byte) bool
}

// ThresholdSetter is implemented by speaker filters whose acceptance
// threshold can be tuned from the stored settings.
type ThresholdSetter interface {
	SetThreshold(v float64)
}

// ProfileInvalidator drops the profile cache after a new interaction is
// persisted. Implemented by the profile builder.
type ProfileInvalidator interface {
	InvalidateCache()
}

// TrainingSink receives raw transcriptions while training mode is active.
type TrainingSink func(ctx context.Context, transcription string)

// Config holds the worker's turn-gating knobs.
type Config struct {
	// MinTranscriptionLength skips turns whose raw transcription is shorter.
	// Zero never skips.
	MinTranscriptionLength int

	// TrainingMode forwards transcriptions to the training sink instead of
	// generating responses.
	TrainingMode bool

	// SpeakerID and SessionID are attached to persisted interactions.
	SpeakerID string
	SessionID string
}

// Corrector cleans a transcription before reconstruction. Implemented by
// the transcript vocabulary corrector.
type Corrector interface {
	Correct(text string) string
}

// Worker owns one capture queue, one STT engine, one LLM client, and one
// TTS engine for its lifetime, and runs the turn loop over them.
type Worker struct {
	queue         *audio.ChunkQueue
	sttEngine     stt.Engine
	llmClient     llm.Client
	ttsEngine     tts.Engine
	reconstructor *intent.Reconstructor
	selector      *intent.Selector
	interactions  *store.InteractionRepo
	hub           *Hub
	log           *slog.Logger

	filter    DuplicateFilter
	autosense *AutoSensitivity

	// Optional collaborators.
	corrector Corrector
	speaker   SpeakerFilter
	profile   ProfileInvalidator
	training  TrainingSink
	metrics   *observe.Metrics
	settings  *store.SettingsRepo

	cfg Config

	mu      sync.Mutex
	state   State
	running bool
	done    chan struct{}
}

// WorkerOption customises a Worker.
type WorkerOption func(*Worker)

// WithCorrector attaches a transcription corrector.
func WithCorrector(c Corrector) WorkerOption {
	return func(w *Worker) { w.corrector = c }
}

// WithSpeakerFilter attaches a speaker filter.
func WithSpeakerFilter(f SpeakerFilter) WorkerOption {
	return func(w *Worker) { w.speaker = f }
}

// WithProfileInvalidator attaches the profile cache invalidator.
func WithProfileInvalidator(p ProfileInvalidator) WorkerOption {
	return func(w *Worker) { w.profile = p }
}

// WithTrainingSink attaches the training-mode callback.
func WithTrainingSink(sink TrainingSink) WorkerOption {
	return func(w *Worker) { w.training = sink }
}

// WithAutoSensitivity attaches the auto-sensitivity controller.
func WithAutoSensitivity(a *AutoSensitivity) WorkerOption {
	return func(w *Worker) { w.autosense = a }
}

// WithMetrics attaches the metrics instruments. Without it, nothing is
// recorded.
func WithMetrics(m *observe.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// WithSettings attaches the user settings repository. Stored calibration
// values (sensitivity, chunk duration, minimum transcription length, voice
// threshold) then override the configured defaults on every Start.
func WithSettings(s *store.SettingsRepo) WorkerOption {
	return func(w *Worker) { w.settings = s }
}

// NewWorker wires a Worker. The llm client must already carry its own retry
// and fallback behaviour; the worker never retries LLM calls itself.
func NewWorker(
	queue *audio.ChunkQueue,
	sttEngine stt.Engine,
	llmClient llm.Client,
	ttsEngine tts.Engine,
	reconstructor *intent.Reconstructor,
	selector *intent.Selector,
	interactions *store.InteractionRepo,
	hub *Hub,
	cfg Config,
	log *slog.Logger,
	opts ...WorkerOption,
) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		queue:         queue,
		sttEngine:     sttEngine,
		llmClient:     llmClient,
		ttsEngine:     ttsEngine,
		reconstructor: reconstructor,
		selector:      selector,
		interactions:  interactions,
		hub:           hub,
		cfg:           cfg,
		log:           log,
		autosense:     &AutoSensitivity{},
		state:         StateStopped,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State returns the current lifecycle phase.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start brings the pipeline up: capture, then STT, then an LLM reachability
// probe. A failed probe is fatal; the worker transitions straight back to
// stopped without entering the loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateStopped {
		w.mu.Unlock()
		return ErrNotStopped
	}
	w.state = StateStarting
	w.mu.Unlock()

	fail := func(err error) error {
		w.hub.Emit(Event{Type: EventError, Text: err.Error()})
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
		return err
	}

	w.applyStoredSettings(ctx)
	w.queue.Start()

	if err := w.sttEngine.Start(); err != nil {
		w.queue.Stop()
		return fail(fmt.Errorf("pipeline: start STT: %w", err))
	}

	if err := w.llmClient.CheckConnection(ctx); err != nil {
		w.queue.Stop()
		_ = w.sttEngine.Stop()
		return fail(fmt.Errorf("pipeline: LLM unreachable: %w", err))
	}

	w.mu.Lock()
	w.state = StateRunning
	w.running = true
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go w.run(ctx, done)
	return nil
}

// Stop asks the loop to exit and joins it with a bounded timeout. The worker
// itself shuts down the capture queue and the STT engine on the way out; if
// the join times out the operator is notified and the goroutine is left to
// finish its in-flight call.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state != StateRunning {
		w.mu.Unlock()
		return
	}
	w.state = StateStopping
	w.running = false
	done := w.done
	w.mu.Unlock()

	// Wake a reader blocked in ReadChunk.
	w.queue.Stop()

	select {
	case <-done:
	case <-time.After(joinTimeout):
		w.log.Error("worker did not stop within the join timeout")
		w.hub.Emit(Event{Type: EventError, Text: "pipeline is taking too long to stop"})
	}
}

// applyStoredSettings overrides the configured calibration values with the
// ones stored in the settings repository, so a PUT /api/settings survives a
// pipeline restart. Absent keys leave the configured value in place;
// malformed values are logged and skipped.
func (w *Worker) applyStoredSettings(ctx context.Context) {
	if w.settings == nil {
		return
	}

	if v := w.storedSetting(ctx, store.SettingSensitivity); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			w.queue.SetSensitivity(f)
		} else {
			w.log.Warn("ignoring malformed stored setting", "key", store.SettingSensitivity, "value", v)
		}
	}

	if v := w.storedSetting(ctx, store.SettingChunkDuration); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			if d < config.MinChunkDuration {
				d = config.MinChunkDuration
			} else if d > config.MaxChunkDuration {
				d = config.MaxChunkDuration
			}
			w.queue.SetChunkSize(int(d.Seconds()*float64(audio.TargetSampleRate)) * 2)
		} else {
			w.log.Warn("ignoring malformed stored setting", "key", store.SettingChunkDuration, "value", v)
		}
	}

	if v := w.storedSetting(ctx, store.SettingMinTranscriptionLn); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			w.cfg.MinTranscriptionLength = n
		} else {
			w.log.Warn("ignoring malformed stored setting", "key", store.SettingMinTranscriptionLn, "value", v)
		}
	}

	if v := w.storedSetting(ctx, store.SettingVoiceThreshold); v != "" {
		if ts, ok := w.speaker.(ThresholdSetter); ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				ts.SetThreshold(f)
			} else {
				w.log.Warn("ignoring malformed stored setting", "key", store.SettingVoiceThreshold, "value", v)
			}
		}
	}
}

// storedSetting reads one settings key, treating lookup failure as unset.
func (w *Worker) storedSetting(ctx context.Context, key string) string {
	v, err := w.settings.Get(ctx, key)
	if err != nil {
		w.log.Warn("failed to read stored setting", "key", key, "error", err)
		return ""
	}
	return v
}

// isRunning reports whether the loop should keep going.
func (w *Worker) isRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run is the worker loop. It owns capture and STT shutdown on exit.
func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer func() {
		w.queue.Stop()
		if err := w.sttEngine.Stop(); err != nil {
			w.log.Warn("STT shutdown failed", "error", err)
		}
		w.mu.Lock()
		w.state = StateStopped
		w.running = false
		w.mu.Unlock()
		w.hub.Emit(Event{Type: EventStatus, Status: StatusStopped})
		close(done)
	}()

	for {
		w.hub.Emit(Event{Type: EventStatus, Status: StatusListening})

		var level float64
		chunk, err := w.queue.ReadChunk(func(l float64) { level = l })
		if !w.isRunning() {
			return
		}
		if err != nil {
			// The queue closed underneath a running worker: the capture side
			// is gone. Fatal for this pipeline.
			w.hub.Emit(Event{Type: EventError, Text: "microphone input closed"})
			return
		}

		w.hub.Emit(Event{Type: EventVolume, Level: level})
		w.turn(ctx, chunk, level)
	}
}

// turn processes one chunk end to end.
func (w *Worker) turn(ctx context.Context, chunk []byte, level float64) {
	turnStart := time.Now()

	w.hub.Emit(Event{Type: EventStatus, Status: StatusTranscribing})

	gained := audio.ApplyGain(chunk, w.queue.Sensitivity())
	sttStart := time.Now()
	text, err := w.sttEngine.Transcribe(ctx, gained)
	sttSeconds := time.Since(sttStart).Seconds()
	if err != nil {
		w.recordTranscription(ctx, "error", sttSeconds)
		w.hub.Emit(Event{Type: EventError, Text: "transcription failed: " + err.Error()})
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		w.recordTranscription(ctx, "empty", sttSeconds)
	} else {
		w.recordTranscription(ctx, "ok", sttSeconds)
	}

	if text == "" {
		if next, adjusted := w.autosense.OnEmptyTranscription(level, w.queue.Sensitivity()); adjusted {
			w.queue.SetSensitivity(next)
			w.hub.Emit(Event{Type: EventSensitivity, Value: next})
		}
		return
	}

	if w.corrector != nil {
		text = w.corrector.Correct(text)
	}

	if len(text) < w.cfg.MinTranscriptionLength {
		w.recordDrop(ctx, "short_input")
		w.hub.Emit(Event{Type: EventDebug, Text: fmt.Sprintf("skipping short transcription %q", text)})
		return
	}
	if w.speaker != nil && !w.speaker.Accept(chunk) {
		w.recordDrop(ctx, "speaker_filter")
		w.hub.Emit(Event{Type: EventDebug, Text: "chunk rejected by speaker filter"})
		return
	}
	if w.filter.ShouldDrop(text) {
		w.recordDrop(ctx, "duplicate")
		w.hub.Emit(Event{Type: EventDebug, Text: fmt.Sprintf("dropping duplicate or echo %q", text)})
		return
	}
	w.filter.Accept(text)

	// A new utterance always interrupts whatever is still being spoken.
	w.ttsEngine.Stop()

	rec := w.reconstructor.Reconstruct(ctx, text)

	if w.cfg.TrainingMode {
		if w.training != nil {
			w.training(ctx, text)
		}
		w.hub.Emit(Event{Type: EventDebug, Text: "training mode: transcription recorded"})
		return
	}

	w.hub.Emit(Event{Type: EventStatus, Status: StatusResponding})
	response := w.selector.Select(ctx, text, rec)
	if strings.TrimSpace(response) == "" {
		return
	}

	var id int64
	id, err = w.interactions.Insert(ctx, text, response, w.cfg.SpeakerID, w.cfg.SessionID)
	if err != nil {
		w.hub.Emit(Event{Type: EventError, Text: "failed to save interaction: " + err.Error()})
		id = 0
	}
	if w.profile != nil {
		w.profile.InvalidateCache()
	}

	w.hub.Emit(Event{Type: EventResponse, Text: response, InteractionID: id})
	w.filter.SetLastSpoken(response)

	ttsStart := time.Now()
	if err := w.ttsEngine.Speak(ctx, response); err != nil {
		w.log.Warn("TTS failed", "error", err)
	}

	if w.metrics != nil {
		w.metrics.TTSDuration.Record(ctx, time.Since(ttsStart).Seconds())
		w.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
	}
}

func (w *Worker) recordTranscription(ctx context.Context, outcome string, seconds float64) {
	if w.metrics != nil {
		w.metrics.RecordTranscription(ctx, outcome, seconds)
	}
}

func (w *Worker) recordDrop(ctx context.Context, reason string) {
	if w.metrics != nil {
		w.metrics.RecordDrop(ctx, reason)
	}
}
