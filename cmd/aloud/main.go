// Command aloud is the voice assistant server: it accepts microphone audio
// over a WebSocket, turns fragmented speech into full sentences, speaks a
// response, and streams pipeline events back to connected clients.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/mkaiser42/aloud/internal/browse"
	"github.com/mkaiser42/aloud/internal/config"
	"github.com/mkaiser42/aloud/internal/curation"
	"github.com/mkaiser42/aloud/internal/intent"
	"github.com/mkaiser42/aloud/internal/observe"
	"github.com/mkaiser42/aloud/internal/pipeline"
	"github.com/mkaiser42/aloud/internal/profile"
	"github.com/mkaiser42/aloud/internal/resilience"
	"github.com/mkaiser42/aloud/internal/server"
	"github.com/mkaiser42/aloud/internal/store"
	"github.com/mkaiser42/aloud/internal/transcript"
	"github.com/mkaiser42/aloud/pkg/audio"
	"github.com/mkaiser42/aloud/pkg/provider/embeddings/openai"
	"github.com/mkaiser42/aloud/pkg/provider/llm/anyllm"
	"github.com/mkaiser42/aloud/pkg/provider/retriever"
	"github.com/mkaiser42/aloud/pkg/provider/retriever/pgvector"
	"github.com/mkaiser42/aloud/pkg/provider/stt/whisper"
	"github.com/mkaiser42/aloud/pkg/provider/tts"
	"github.com/mkaiser42/aloud/pkg/provider/tts/coqui"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aloud: config file %q not found — copy config.example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "aloud: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aloud starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"mode", cfg.Pipeline.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "aloud"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Persistence ───────────────────────────────────────────────────────────
	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Store.Path, "err", err)
		return 1
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		slog.Error("failed to migrate store", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	llmInner, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to build LLM provider", "provider", cfg.Providers.LLM.Provider, "err", err)
		return 1
	}
	llmClient := resilience.WrapLLM(llmInner,
		resilience.WithLogger(logger),
		resilience.WithMetrics(metrics))

	sttEngine, err := whisper.New(cfg.Providers.STT.ModelPath, whisper.WithLanguage(cfg.Providers.STT.Language))
	if err != nil {
		slog.Error("failed to build STT engine", "model_path", cfg.Providers.STT.ModelPath, "err", err)
		return 1
	}

	var ttsEngine tts.Engine = tts.Noop{}
	if cfg.Providers.TTS.ServerURL != "" {
		var opts []coqui.Option
		if cfg.Providers.TTS.SpeakerID != "" {
			opts = append(opts, coqui.WithSpeakerID(cfg.Providers.TTS.SpeakerID))
		}
		if cfg.Providers.TTS.Language != "" {
			opts = append(opts, coqui.WithLanguage(cfg.Providers.TTS.Language))
		}
		if len(cfg.Providers.TTS.PlayerCommand) > 0 {
			opts = append(opts, coqui.WithPlayerCommand(cfg.Providers.TTS.PlayerCommand...))
		}
		ttsEngine, err = coqui.New(cfg.Providers.TTS.ServerURL, opts...)
		if err != nil {
			slog.Error("failed to build TTS engine", "server_url", cfg.Providers.TTS.ServerURL, "err", err)
			return 1
		}
	}

	var docStore retriever.Retriever
	if cfg.Documents.PostgresDSN != "" {
		var embedOpts []openai.Option
		if cfg.Providers.Embeddings.BaseURL != "" {
			embedOpts = append(embedOpts, openai.WithBaseURL(cfg.Providers.Embeddings.BaseURL))
		}
		embedder, err := openai.New(cfg.Providers.Embeddings.APIKey, cfg.Providers.Embeddings.Model, embedOpts...)
		if err != nil {
			slog.Error("failed to build embeddings provider", "err", err)
			return 1
		}
		pgStore, err := pgvector.NewStore(ctx, cfg.Documents.PostgresDSN, embedder)
		if err != nil {
			slog.Error("failed to connect document store", "err", err)
			return 1
		}
		defer pgStore.Close()
		docStore = pgStore
		slog.Info("document store connected")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	chunkBytes := int(cfg.Audio.ChunkDuration.Std().Seconds()*float64(audio.TargetSampleRate)) * 2
	queue := audio.NewChunkQueue(chunkBytes)
	queue.SetSensitivity(cfg.Audio.Sensitivity)

	hub := pipeline.NewHub(logger)

	builder := profile.NewBuilder(st.Interactions(), st.Settings(), st.TrainingFacts(), logger)

	browseHandler := browse.NewHandler(server.NewEventActions(hub), cfg.Browse.Sites,
		browse.WithClassifier(llmClient),
		browse.WithLogger(logger))

	reconstructor := intent.NewReconstructor(llmClient, intent.Descriptor{
		Enabled:          true,
		RequestCertainty: cfg.Pipeline.UseReconstructionAsResponse,
		SystemPrompt:     cfg.Pipeline.ReconstructionPrompt,
	}, logger)

	selector := intent.NewSelector(llmClient, docStore, browseHandler, builder, intent.SelectorConfig{
		DocumentQA:                  cfg.Pipeline.Mode == config.ModeDocumentQA,
		Browse:                      cfg.Pipeline.Mode == config.ModeBrowse,
		UseReconstructionAsResponse: cfg.Pipeline.UseReconstructionAsResponse,
		CertaintyThreshold:          cfg.Pipeline.CertaintyThreshold,
		TopK:                        cfg.Documents.TopK,
		OnBranch: func(branch string) {
			metrics.RecordResponse(context.Background(), branch)
		},
	}, logger)

	workerOpts := []pipeline.WorkerOption{
		pipeline.WithProfileInvalidator(builder),
		pipeline.WithMetrics(metrics),
		pipeline.WithSettings(st.Settings()),
		pipeline.WithAutoSensitivity(&pipeline.AutoSensitivity{
			Enabled:        cfg.Audio.AutoSensitivity,
			MinLevel:       cfg.Audio.MinLevel,
			MaxLevel:       cfg.Audio.MaxLevel,
			Step:           cfg.Audio.SensitivityStep,
			CooldownChunks: cfg.Audio.SensitivityCooldown,
		}),
	}
	if len(cfg.Pipeline.VocabularyHints) > 0 {
		workerOpts = append(workerOpts, pipeline.WithCorrector(transcript.NewCorrector(cfg.Pipeline.VocabularyHints)))
	}
	if cfg.Pipeline.TrainingMode {
		facts := st.TrainingFacts()
		workerOpts = append(workerOpts, pipeline.WithTrainingSink(func(ctx context.Context, transcription string) {
			if _, err := facts.Add(ctx, transcription); err != nil {
				slog.Warn("failed to record training transcription", "err", err)
			}
		}))
	}

	worker := pipeline.NewWorker(queue, sttEngine, llmClient, ttsEngine,
		reconstructor, selector, st.Interactions(), hub,
		pipeline.Config{
			MinTranscriptionLength: cfg.Pipeline.MinTranscriptionLength,
			TrainingMode:           cfg.Pipeline.TrainingMode,
			SessionID:              time.Now().UTC().Format("20060102T150405Z"),
		},
		logger, workerOpts...)

	// ── Curation ──────────────────────────────────────────────────────────────
	if cfg.Curation.Enabled {
		curator := curation.New(st.Interactions(), curation.Config{
			CorrectionBump:            cfg.Curation.CorrectionBump,
			RepeatScale:               cfg.Curation.RepeatScale,
			MinWeight:                 cfg.Curation.MinWeight,
			MaxWeight:                 cfg.Curation.MaxWeight,
			ExcludeEmptyTranscription: true,
			DeleteOlderThanDays:       cfg.Curation.RetentionDays,
		}, logger)
		go curator.RunLoop(ctx, cfg.Curation.IntervalHours)
		slog.Info("curation scheduler running", "interval_hours", cfg.Curation.IntervalHours)
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	checks := []server.HealthCheck{
		{Name: "database", Probe: func(ctx context.Context) error {
			_, err := st.Settings().All(ctx)
			return err
		}},
		{Name: "llm", Probe: llmClient.CheckConnection},
	}
	srv := server.New(queue, hub, worker, st.Settings(), metrics, logger, checks...)

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		httpErr <- httpSrv.ListenAndServe()
	}()

	// The pipeline starts immediately; a failed start (e.g. LLM unreachable)
	// is not fatal because the client can retry via POST /api/pipeline/start.
	if err := worker.Start(ctx); err != nil {
		slog.Warn("pipeline did not start", "err", err)
	}

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	worker.Stop()
	ttsEngine.WaitUntilDone()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	slog.Info("goodbye")
	return 0
}

// buildLLM constructs the configured language-model backend.
func buildLLM(cfg config.LLMConfig) (*anyllm.Client, error) {
	var opts []anyllmlib.Option
	if cfg.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(cfg.BaseURL))
	}
	return anyllm.New(cfg.Provider, cfg.Model, opts...)
}

// newLogger builds the root slog logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
