// Package config provides the configuration schema and loader for the aloud
// server.
//
// Configuration is read once at startup from a YAML file. Runtime-adjustable
// settings (sensitivity, chunk duration, response mode and so on) are seeded
// from this file and thereafter live in the settings repository, where the
// control surfaces can change them without a restart.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string such as
// "6s" or "1h30m", or from a bare integer in nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler. The integer form must be
// tried first: yaml decodes a bare integer scalar into a string without
// complaint, which would send it down the ParseDuration path.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String returns the duration formatted as a string.
func (d Duration) String() string { return time.Duration(d).String() }

// LogLevel controls log verbosity for the aloud server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// ResponseMode selects how the pipeline turns a reconstruction into the final
// spoken response.
type ResponseMode string

const (
	// ModeCompletion sends the reconstruction through a second LLM call that
	// produces a conversational reply.
	ModeCompletion ResponseMode = "completion"

	// ModeReconstruction speaks the reconstruction itself when its certainty
	// clears the configured threshold.
	ModeReconstruction ResponseMode = "reconstruction"

	// ModeDocumentQA answers from the indexed document store.
	ModeDocumentQA ResponseMode = "document_qa"

	// ModeBrowse routes utterances to the browse handler.
	ModeBrowse ResponseMode = "browse"
)

// IsValid reports whether m is a recognised response mode.
func (m ResponseMode) IsValid() bool {
	switch m {
	case ModeCompletion, ModeReconstruction, ModeDocumentQA, ModeBrowse:
		return true
	}
	return false
}

// Clamp limits for runtime-adjustable audio and selection settings. Values
// outside these ranges are pulled back to the nearest bound during validation
// rather than rejected, so a hand-edited config never refuses to start.
const (
	MinChunkDuration = 4 * time.Second
	MaxChunkDuration = 15 * time.Second

	MinSensitivity = 0.1
	MaxSensitivity = 10.0

	MinCertaintyThreshold = 0
	MaxCertaintyThreshold = 100

	MinTopK = 1
	MaxTopK = 20
)

// Config is the root configuration structure for aloud.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
	Documents DocumentsConfig `yaml:"documents"`
	Browse    BrowseConfig    `yaml:"browse"`
	Curation  CurationConfig  `yaml:"curation"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8090").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture and level-detection settings.
type AudioConfig struct {
	// ChunkDuration is how much audio the pipeline accumulates before a
	// transcription attempt. Clamped to [4s, 15s].
	ChunkDuration Duration `yaml:"chunk_duration"`

	// Sensitivity scales the measured input level before band comparison.
	// Clamped to [0.1, 10.0].
	Sensitivity float64 `yaml:"sensitivity"`

	// AutoSensitivity enables the controller that nudges Sensitivity to keep
	// speech levels inside the target band.
	AutoSensitivity bool `yaml:"auto_sensitivity"`

	// MinLevel and MaxLevel bound the target loudness band used by the
	// auto-sensitivity controller. Both are normalised to [0, 1].
	MinLevel float64 `yaml:"min_level"`
	MaxLevel float64 `yaml:"max_level"`

	// SensitivityStep is added to the sensitivity per auto-adjustment.
	SensitivityStep float64 `yaml:"sensitivity_step"`

	// SensitivityCooldown is how many empty-transcription turns must pass
	// between auto-adjustments.
	SensitivityCooldown int `yaml:"sensitivity_cooldown"`
}

// ProvidersConfig declares which external engine to use for each pipeline
// stage.
type ProvidersConfig struct {
	LLM        LLMConfig        `yaml:"llm"`
	STT        STTConfig        `yaml:"stt"`
	TTS        TTSConfig        `yaml:"tts"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
}

// LLMConfig selects the language-model backend used for reconstruction and
// response generation.
type LLMConfig struct {
	// Provider names the backend (e.g., "openai", "ollama", "anthropic").
	Provider string `yaml:"provider"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// APIKey is the authentication key for hosted providers.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint (used for local
	// servers such as Ollama).
	BaseURL string `yaml:"base_url"`
}

// STTConfig configures the local whisper transcriber.
type STTConfig struct {
	// ModelPath is the filesystem path to the whisper GGML model file.
	ModelPath string `yaml:"model_path"`

	// Language hints the transcription language (e.g., "en"). Empty means
	// auto-detect.
	Language string `yaml:"language"`
}

// TTSConfig configures the speech synthesiser.
type TTSConfig struct {
	// ServerURL is the base URL of the Coqui TTS server.
	ServerURL string `yaml:"server_url"`

	// SpeakerID selects a voice on multi-speaker models.
	SpeakerID string `yaml:"speaker_id"`

	// Language selects the synthesis language on multilingual models.
	Language string `yaml:"language"`

	// PlayerCommand overrides the audio playback command. Defaults to
	// "aplay -q" when empty.
	PlayerCommand []string `yaml:"player_command"`
}

// EmbeddingsConfig configures the embedding provider backing document QA.
type EmbeddingsConfig struct {
	// Model selects the embedding model (e.g., "text-embedding-3-small").
	Model string `yaml:"model"`

	// APIKey is the authentication key for the embeddings API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the default endpoint.
	BaseURL string `yaml:"base_url"`
}

// PipelineConfig holds intent-reconstruction and response-selection settings.
type PipelineConfig struct {
	// Mode selects the response path. Defaults to "completion".
	Mode ResponseMode `yaml:"mode"`

	// UseReconstructionAsResponse short-circuits the second LLM call when the
	// reconstruction certainty clears CertaintyThreshold.
	UseReconstructionAsResponse bool `yaml:"use_reconstruction_as_response"`

	// CertaintyThreshold is the minimum certainty (0-100) at which a
	// reconstruction may be spoken directly. Clamped to [0, 100].
	CertaintyThreshold int `yaml:"certainty_threshold"`

	// ReconstructionPrompt overrides the built-in first-person
	// reconstruction prompt. Must contain the {transcription} placeholder.
	ReconstructionPrompt string `yaml:"reconstruction_prompt"`

	// TrainingMode suppresses response generation so the operator can record
	// transcription/correction pairs.
	TrainingMode bool `yaml:"training_mode"`

	// MinTranscriptionLength skips turns whose raw transcription is shorter
	// than this many characters. Zero never skips.
	MinTranscriptionLength int `yaml:"min_transcription_length"`

	// VocabularyHints lists domain words the phonetic corrector may snap
	// near-miss transcription tokens to.
	VocabularyHints []string `yaml:"vocabulary_hints"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Path is the SQLite database file. Defaults to "aloud.db" in the
	// working directory when empty.
	Path string `yaml:"path"`
}

// DocumentsConfig holds document-QA retrieval settings.
type DocumentsConfig struct {
	// PostgresDSN is the connection string for the pgvector store. Document
	// QA is unavailable when empty.
	PostgresDSN string `yaml:"postgres_dsn"`

	// TopK is how many chunks to retrieve per question. Clamped to [1, 20].
	TopK int `yaml:"top_k"`
}

// BrowseConfig holds voice-browsing settings.
type BrowseConfig struct {
	// Sites maps spoken site names to URLs for the "open <site>" command
	// family (e.g. "the news" -> "https://news.example.com").
	Sites map[string]string `yaml:"sites"`
}

// CurationConfig holds training-data curation settings.
type CurationConfig struct {
	// Enabled turns the background curation scheduler on.
	Enabled bool `yaml:"enabled"`

	// IntervalHours is the wall-clock spacing between curation runs.
	IntervalHours float64 `yaml:"interval_hours"`

	// RetentionDays is how long raw interactions are kept before pruning.
	// Zero disables pruning.
	RetentionDays int `yaml:"retention_days"`

	// CorrectionBump is the weight bonus applied to corrected pairs.
	CorrectionBump float64 `yaml:"correction_bump"`

	// RepeatScale is the per-repeat weight increment.
	RepeatScale float64 `yaml:"repeat_scale"`

	// MinWeight and MaxWeight clamp computed training weights.
	MinWeight float64 `yaml:"min_weight"`
	MaxWeight float64 `yaml:"max_weight"`
}
