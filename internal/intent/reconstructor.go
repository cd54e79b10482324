// Package intent turns raw transcriptions into intended sentences and
// selects the final spoken response.
//
// The two stages are deliberately separate. The [Reconstructor] makes one
// LLM call to recover what the user meant from garbled speech-to-text
// output, optionally with a certainty estimate. The [Selector] then decides
// whether that sentence is spoken as-is, routed to the document store or
// browse handler, or sent through a second completion call.
package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mkaiser42/aloud/pkg/provider/llm"
)

// Descriptor configures intent reconstruction.
type Descriptor struct {
	// Enabled turns the reconstruction stage on. When false, Reconstruct
	// returns the raw transcription untouched with Ran=false.
	Enabled bool

	// RequestCertainty asks the model for a JSON object with a certainty
	// estimate instead of a bare sentence.
	RequestCertainty bool

	// SystemPrompt overrides the built-in reconstruction prompt.
	SystemPrompt string

	// UserTemplate overrides the built-in user prompt template. Must contain
	// the {transcription} placeholder.
	UserTemplate string
}

// Reconstruction is the outcome of one reconstruction attempt.
type Reconstruction struct {
	// Sentence is the recovered intended sentence. Falls back to the raw
	// transcription whenever the model's output is unusable.
	Sentence string

	// Certainty is the model's confidence in [0, 100], or nil when the model
	// did not report one or reconstruction did not run.
	Certainty *int

	// Ran reports whether an LLM call was made.
	Ran bool
}

// Reconstructor recovers intended sentences from raw transcriptions.
type Reconstructor struct {
	client llm.Client
	desc   Descriptor
	log    *slog.Logger
}

// NewReconstructor builds a Reconstructor over client.
func NewReconstructor(client llm.Client, desc Descriptor, log *slog.Logger) *Reconstructor {
	if log == nil {
		log = slog.Default()
	}
	return &Reconstructor{client: client, desc: desc, log: log}
}

// Reconstruct runs one reconstruction attempt. It never fails: any model
// error, empty output, or parse failure falls back to the raw transcription
// with a nil certainty.
func (r *Reconstructor) Reconstruct(ctx context.Context, raw string) Reconstruction {
	if !r.desc.Enabled {
		return Reconstruction{Sentence: raw}
	}

	system := r.desc.SystemPrompt
	if system == "" {
		system = defaultReconstructionPrompt
	}
	if r.desc.RequestCertainty {
		system += certaintyClause
	}

	template := r.desc.UserTemplate
	if template == "" {
		template = defaultUserTemplate
	}
	prompt := strings.ReplaceAll(template, "{transcription}", raw)

	reply, err := r.client.Generate(ctx, prompt, system)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			r.log.Warn("reconstruction call failed, using raw transcription", "error", err)
		}
		return Reconstruction{Sentence: raw, Ran: true}
	}

	sentence, certainty := parseReconstruction(reply, raw)
	return Reconstruction{Sentence: sentence, Certainty: certainty, Ran: true}
}

// parseReconstruction extracts the sentence and optional certainty from a
// model reply. A reply that never attempted JSON is taken as a plain
// sentence; a reply that looks like JSON but cannot be parsed falls back to
// the raw transcription.
func parseReconstruction(reply, raw string) (string, *int) {
	reply = stripCodeFence(strings.TrimSpace(reply))

	var parsed struct {
		Sentence  string   `json:"sentence"`
		Certainty *float64 `json:"certainty"`
	}

	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		if !strings.HasPrefix(reply, "{") {
			return reply, nil
		}
		// Models truncate or lightly mangle JSON often enough that a repair
		// pass is worth one more attempt before giving up.
		repaired, repErr := jsonrepair.JSONRepair(reply)
		if repErr != nil || json.Unmarshal([]byte(repaired), &parsed) != nil {
			return raw, nil
		}
	}

	sentence := strings.TrimSpace(parsed.Sentence)
	if sentence == "" {
		return raw, nil
	}

	var certainty *int
	if parsed.Certainty != nil {
		c := int(*parsed.Certainty)
		if c < 0 {
			c = 0
		} else if c > 100 {
			c = 100
		}
		certainty = &c
	}
	return sentence, certainty
}

// stripCodeFence removes a single surrounding fenced code block, with or
// without a language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, "```"), "```")
	// Drop the language tag line if present.
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		first := strings.TrimSpace(body[:i])
		if first != "" && !strings.ContainsAny(first, "{}\" ") {
			body = body[i+1:]
		}
	}
	return strings.TrimSpace(body)
}
