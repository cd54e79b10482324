package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviders lists known LLM provider names. Used by [Validate] to
// warn about unrecognised names.
var ValidLLMProviders = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Defaults applied by [Validate] when the corresponding field is zero.
const (
	DefaultListenAddr    = ":8090"
	DefaultChunkDuration = 6 * time.Second
	DefaultSensitivity   = 1.0
	DefaultMinLevel      = 0.02
	DefaultMaxLevel      = 0.6
	DefaultStorePath     = "aloud.db"
	DefaultTopK          = 4

	DefaultSensitivityStep     = 0.5
	DefaultSensitivityCooldown = 3
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills in defaults, clamps runtime-adjustable values to their
// documented ranges, and returns a joined error listing all hard validation
// failures. Out-of-range clamps are logged, not treated as errors.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Audio
	if cfg.Audio.ChunkDuration == 0 {
		cfg.Audio.ChunkDuration = Duration(DefaultChunkDuration)
	}
	cfg.Audio.ChunkDuration = Duration(clampDuration("audio.chunk_duration", cfg.Audio.ChunkDuration.Std(), MinChunkDuration, MaxChunkDuration))
	if cfg.Audio.Sensitivity == 0 {
		cfg.Audio.Sensitivity = DefaultSensitivity
	}
	cfg.Audio.Sensitivity = clampFloat("audio.sensitivity", cfg.Audio.Sensitivity, MinSensitivity, MaxSensitivity)
	if cfg.Audio.MinLevel == 0 && cfg.Audio.MaxLevel == 0 {
		cfg.Audio.MinLevel = DefaultMinLevel
		cfg.Audio.MaxLevel = DefaultMaxLevel
	}
	cfg.Audio.MinLevel = clampFloat("audio.min_level", cfg.Audio.MinLevel, 0, 1)
	cfg.Audio.MaxLevel = clampFloat("audio.max_level", cfg.Audio.MaxLevel, 0, 1)
	if cfg.Audio.MinLevel > cfg.Audio.MaxLevel {
		errs = append(errs, fmt.Errorf("audio.min_level %.3f exceeds audio.max_level %.3f", cfg.Audio.MinLevel, cfg.Audio.MaxLevel))
	}
	if cfg.Audio.SensitivityStep == 0 {
		cfg.Audio.SensitivityStep = DefaultSensitivityStep
	}
	if cfg.Audio.SensitivityCooldown == 0 {
		cfg.Audio.SensitivityCooldown = DefaultSensitivityCooldown
	}

	// Providers
	if cfg.Providers.LLM.Provider == "" {
		errs = append(errs, errors.New("providers.llm.provider is required"))
	} else if !slices.Contains(ValidLLMProviders, cfg.Providers.LLM.Provider) {
		slog.Warn("unknown LLM provider name, may be a typo",
			"provider", cfg.Providers.LLM.Provider,
			"known", ValidLLMProviders,
		)
	}
	if cfg.Providers.LLM.Model == "" {
		errs = append(errs, errors.New("providers.llm.model is required"))
	}
	if cfg.Providers.STT.ModelPath == "" {
		errs = append(errs, errors.New("providers.stt.model_path is required"))
	}
	if cfg.Providers.TTS.ServerURL == "" {
		slog.Warn("providers.tts.server_url is empty; responses will not be spoken")
	}

	// Pipeline
	if cfg.Pipeline.Mode == "" {
		cfg.Pipeline.Mode = ModeCompletion
	}
	if !cfg.Pipeline.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.mode %q is invalid; valid values: completion, reconstruction, document_qa, browse", cfg.Pipeline.Mode))
	}
	cfg.Pipeline.CertaintyThreshold = clampInt("pipeline.certainty_threshold", cfg.Pipeline.CertaintyThreshold, MinCertaintyThreshold, MaxCertaintyThreshold)
	if cfg.Pipeline.ReconstructionPrompt != "" && !strings.Contains(cfg.Pipeline.ReconstructionPrompt, "{transcription}") {
		errs = append(errs, errors.New("pipeline.reconstruction_prompt must contain the {transcription} placeholder"))
	}

	// Store
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath
	}

	// Documents
	if cfg.Documents.TopK == 0 {
		cfg.Documents.TopK = DefaultTopK
	}
	cfg.Documents.TopK = clampInt("documents.top_k", cfg.Documents.TopK, MinTopK, MaxTopK)
	if cfg.Pipeline.Mode == ModeDocumentQA && cfg.Documents.PostgresDSN == "" {
		slog.Warn("pipeline.mode is document_qa but documents.postgres_dsn is empty; questions will get the empty-index message")
	}

	// Curation
	if cfg.Curation.Enabled && cfg.Curation.IntervalHours <= 0 {
		errs = append(errs, errors.New("curation.interval_hours must be positive when curation is enabled"))
	}
	if cfg.Curation.MinWeight > cfg.Curation.MaxWeight && cfg.Curation.MaxWeight != 0 {
		errs = append(errs, fmt.Errorf("curation.min_weight %.2f exceeds curation.max_weight %.2f", cfg.Curation.MinWeight, cfg.Curation.MaxWeight))
	}

	return errors.Join(errs...)
}

func clampFloat(field string, v, lo, hi float64) float64 {
	switch {
	case v < lo:
		slog.Warn("config value below range, clamping", "field", field, "value", v, "min", lo)
		return lo
	case v > hi:
		slog.Warn("config value above range, clamping", "field", field, "value", v, "max", hi)
		return hi
	}
	return v
}

func clampInt(field string, v, lo, hi int) int {
	switch {
	case v < lo:
		slog.Warn("config value below range, clamping", "field", field, "value", v, "min", lo)
		return lo
	case v > hi:
		slog.Warn("config value above range, clamping", "field", field, "value", v, "max", hi)
		return hi
	}
	return v
}

func clampDuration(field string, v, lo, hi time.Duration) time.Duration {
	switch {
	case v < lo:
		slog.Warn("config value below range, clamping", "field", field, "value", v, "min", lo)
		return lo
	case v > hi:
		slog.Warn("config value above range, clamping", "field", field, "value", v, "max", hi)
		return hi
	}
	return v
}
