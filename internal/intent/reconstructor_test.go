package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	llmmock "github.com/mkaiser42/aloud/pkg/provider/llm/mock"
)

func TestReconstructDisabledPassesThrough(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{}
	r := NewReconstructor(inner, Descriptor{Enabled: false}, nil)

	rec := r.Reconstruct(context.Background(), "want water")
	if rec.Ran {
		t.Error("Ran = true for disabled reconstructor")
	}
	if rec.Sentence != "want water" {
		t.Errorf("Sentence = %q, want raw", rec.Sentence)
	}
	if inner.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", inner.CallCount())
	}
}

func TestReconstructParsesJSON(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{`{"sentence":"I want water.","certainty":95}`}}
	r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

	rec := r.Reconstruct(context.Background(), "want water")
	if rec.Sentence != "I want water." {
		t.Errorf("Sentence = %q", rec.Sentence)
	}
	if rec.Certainty == nil || *rec.Certainty != 95 {
		t.Errorf("Certainty = %v, want 95", rec.Certainty)
	}
}

func TestReconstructStripsCodeFence(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{"```json\n{\"sentence\":\"I am tired.\",\"certainty\":80}\n```"}}
	r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

	rec := r.Reconstruct(context.Background(), "tired")
	if rec.Sentence != "I am tired." {
		t.Errorf("Sentence = %q", rec.Sentence)
	}
	if rec.Certainty == nil || *rec.Certainty != 80 {
		t.Errorf("Certainty = %v, want 80", rec.Certainty)
	}
}

func TestReconstructRepairsBrokenJSON(t *testing.T) {
	t.Parallel()

	// Missing closing brace, the kind of truncation small models produce.
	inner := &llmmock.Client{Responses: []string{`{"sentence":"Please close the window.","certainty":80`}}
	r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

	rec := r.Reconstruct(context.Background(), "close window")
	if rec.Sentence != "Please close the window." {
		t.Errorf("Sentence = %q, want repaired JSON sentence", rec.Sentence)
	}
}

func TestReconstructCertaintyClamped(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
		want  int
	}{
		{"above range", `{"sentence":"Hi.","certainty":150}`, 100},
		{"below range", `{"sentence":"Hi.","certainty":-3}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			inner := &llmmock.Client{Responses: []string{tt.reply}}
			r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

			rec := r.Reconstruct(context.Background(), "hi")
			if rec.Certainty == nil || *rec.Certainty != tt.want {
				t.Errorf("Certainty = %v, want %d", rec.Certainty, tt.want)
			}
		})
	}
}

func TestReconstructPlainTextReply(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{"I need the bathroom."}}
	r := NewReconstructor(inner, Descriptor{Enabled: true}, nil)

	rec := r.Reconstruct(context.Background(), "need bath room")
	if rec.Sentence != "I need the bathroom." {
		t.Errorf("Sentence = %q", rec.Sentence)
	}
	if rec.Certainty != nil {
		t.Errorf("Certainty = %v, want nil", rec.Certainty)
	}
}

func TestReconstructUnparseableJSONFallsBackToRaw(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{`{: 12 garbage ::}`}}
	r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

	rec := r.Reconstruct(context.Background(), "the raw words")
	if rec.Sentence != "the raw words" {
		t.Errorf("Sentence = %q, want raw fallback", rec.Sentence)
	}
	if rec.Certainty != nil {
		t.Errorf("Certainty = %v, want nil", rec.Certainty)
	}
}

func TestReconstructEmptyReplyFallsBackToRaw(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{"   "}}
	r := NewReconstructor(inner, Descriptor{Enabled: true}, nil)

	rec := r.Reconstruct(context.Background(), "raw")
	if rec.Sentence != "raw" || !rec.Ran {
		t.Errorf("got (%q, ran=%v), want raw fallback with Ran=true", rec.Sentence, rec.Ran)
	}
}

func TestReconstructErrorFallsBackToRaw(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{GenerateErr: errors.New("down")}
	r := NewReconstructor(inner, Descriptor{Enabled: true}, nil)

	rec := r.Reconstruct(context.Background(), "raw")
	if rec.Sentence != "raw" {
		t.Errorf("Sentence = %q, want raw", rec.Sentence)
	}
}

func TestReconstructTemplateSubstitution(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{"ok"}}
	r := NewReconstructor(inner, Descriptor{
		Enabled:      true,
		UserTemplate: "They said: {transcription}. What did they mean?",
	}, nil)

	r.Reconstruct(context.Background(), "cold")
	calls := inner.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(calls))
	}
	if calls[0].Prompt != "They said: cold. What did they mean?" {
		t.Errorf("prompt = %q", calls[0].Prompt)
	}
}

func TestReconstructCertaintyClauseAppended(t *testing.T) {
	t.Parallel()

	inner := &llmmock.Client{Responses: []string{`{"sentence":"x"}`}}
	r := NewReconstructor(inner, Descriptor{Enabled: true, RequestCertainty: true}, nil)

	r.Reconstruct(context.Background(), "x")
	calls := inner.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].System, `"certainty"`) {
		t.Errorf("system prompt missing certainty clause: %q", calls[0].System)
	}
}
