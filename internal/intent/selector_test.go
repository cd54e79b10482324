package intent

import (
	"context"
	"strings"
	"testing"

	llmmock "github.com/mkaiser42/aloud/pkg/provider/llm/mock"
	retmock "github.com/mkaiser42/aloud/pkg/provider/retriever/mock"
)

func intPtr(v int) *int { return &v }

type stubBrowse struct {
	message string
	handled bool
	seen    []string
}

func (b *stubBrowse) Handle(_ context.Context, utterance string) (string, bool) {
	b.seen = append(b.seen, utterance)
	return b.message, b.handled
}

type stubProfile struct{ text string }

func (p stubProfile) ProfileText(context.Context) string { return p.text }

func TestSelectAgreementRepeatSkipsSecondCall(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{Responses: []string{"should not be used"}}
	s := NewSelector(client, nil, nil, nil, SelectorConfig{}, nil)

	rec := Reconstruction{Sentence: "I want water.", Certainty: intPtr(95), Ran: true}
	got := s.Select(context.Background(), "I want water", rec)
	if got != "I want water." {
		t.Errorf("Select() = %q, want reconstruction verbatim", got)
	}
	if client.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", client.CallCount())
	}
}

func TestSelectReconstructionAboveThreshold(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{Responses: []string{"unused"}}
	s := NewSelector(client, nil, nil, nil, SelectorConfig{
		UseReconstructionAsResponse: true,
		CertaintyThreshold:          70,
	}, nil)

	rec := Reconstruction{Sentence: "Please close the window.", Certainty: intPtr(80), Ran: true}
	got := s.Select(context.Background(), "close window pls", rec)
	if got != "Please close the window." {
		t.Errorf("Select() = %q", got)
	}
	if client.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", client.CallCount())
	}
}

func TestSelectReconstructionBelowThresholdRunsCompletion(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{Responses: []string{"I think I meant something else."}}
	s := NewSelector(client, nil, nil, nil, SelectorConfig{
		UseReconstructionAsResponse: true,
		CertaintyThreshold:          70,
	}, nil)

	rec := Reconstruction{Sentence: "Something…", Certainty: intPtr(40), Ran: true}
	got := s.Select(context.Background(), "smthg", rec)
	if got != "I think I meant something else." {
		t.Errorf("Select() = %q, want completion output", got)
	}
	if client.CallCount() != 1 {
		t.Errorf("LLM calls = %d, want 1 completion call", client.CallCount())
	}
}

func TestSelectNilCertaintyCountsAsConfident(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{}
	s := NewSelector(client, nil, nil, nil, SelectorConfig{
		UseReconstructionAsResponse: true,
		CertaintyThreshold:          100,
	}, nil)

	rec := Reconstruction{Sentence: "I am fine.", Ran: true}
	got := s.Select(context.Background(), "fine thing", rec)
	if got != "I am fine." {
		t.Errorf("Select() = %q, want reconstruction with nil certainty", got)
	}
}

func TestSelectThresholdBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		threshold  int
		certainty  int
		wantDirect bool
	}{
		{"zero threshold always direct", 0, 1, true},
		{"at threshold", 70, 70, true},
		{"just below threshold", 70, 69, false},
		{"max threshold never direct", 100, 99, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &llmmock.Client{Responses: []string{"completion text"}}
			s := NewSelector(client, nil, nil, nil, SelectorConfig{
				UseReconstructionAsResponse: true,
				CertaintyThreshold:          tt.threshold,
			}, nil)

			rec := Reconstruction{Sentence: "Direct sentence.", Certainty: intPtr(tt.certainty), Ran: true}
			got := s.Select(context.Background(), "raw words", rec)
			if tt.wantDirect && got != "Direct sentence." {
				t.Errorf("Select() = %q, want direct", got)
			}
			if !tt.wantDirect && got != "completion text" {
				t.Errorf("Select() = %q, want completion", got)
			}
		})
	}
}

func TestSelectDocumentQAEmptyIndex(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{}
	ret := &retmock.Retriever{HasDocs: false}
	s := NewSelector(client, ret, nil, nil, SelectorConfig{DocumentQA: true}, nil)

	rec := Reconstruction{Sentence: "What does the manual say?", Ran: true}
	got := s.Select(context.Background(), "what does manual say", rec)
	if got != DocumentsEmptyMessage {
		t.Errorf("Select() = %q, want fixed empty-index message", got)
	}
	if client.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", client.CallCount())
	}
}

func TestSelectDocumentQAWithDocuments(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{Responses: []string{"Charge it overnight."}}
	ret := &retmock.Retriever{HasDocs: true, Context: "[Manual]\nCharge the battery overnight."}
	s := NewSelector(client, ret, nil, nil, SelectorConfig{DocumentQA: true, TopK: 4}, nil)

	rec := Reconstruction{Sentence: "How do I charge the battery?", Ran: true}
	got := s.Select(context.Background(), "how charge battery", rec)
	if got != "Charge it overnight." {
		t.Errorf("Select() = %q", got)
	}

	calls := client.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].System, "Charge the battery overnight.") {
		t.Errorf("system prompt missing retrieved context: %q", calls[0].System)
	}
	queries := ret.Queries()
	if len(queries) != 1 || queries[0] != "How do I charge the battery?" {
		t.Errorf("retriever queries = %v", queries)
	}
}

func TestSelectBrowseHandlerWins(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{}
	browse := &stubBrowse{message: "Opening the news site.", handled: true}
	s := NewSelector(client, nil, browse, nil, SelectorConfig{Browse: true}, nil)

	rec := Reconstruction{Sentence: "Open the news.", Ran: true}
	got := s.Select(context.Background(), "open the news", rec)
	if got != "Opening the news site." {
		t.Errorf("Select() = %q", got)
	}
	if len(browse.seen) != 1 || browse.seen[0] != "open the news" {
		t.Errorf("browse handler saw %v, want the raw utterance", browse.seen)
	}
	if client.CallCount() != 0 {
		t.Errorf("LLM calls = %d, want 0", client.CallCount())
	}
}

func TestSelectBrowseDeclinedContinuesNormally(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{}
	browse := &stubBrowse{handled: false}
	s := NewSelector(client, nil, browse, nil, SelectorConfig{
		Browse:                      true,
		UseReconstructionAsResponse: true,
	}, nil)

	rec := Reconstruction{Sentence: "I am hungry.", Certainty: intPtr(90), Ran: true}
	got := s.Select(context.Background(), "hungry now", rec)
	if got != "I am hungry." {
		t.Errorf("Select() = %q, want normal flow after browse declined", got)
	}
}

func TestSelectCompletionIncludesProfile(t *testing.T) {
	t.Parallel()

	client := &llmmock.Client{Responses: []string{"ok"}}
	s := NewSelector(client, nil, nil, stubProfile{text: "User context:\nPrefers short replies."}, SelectorConfig{}, nil)

	rec := Reconstruction{Sentence: "I want tea.", Ran: false}
	s.Select(context.Background(), "want tea", rec)

	calls := client.Calls()
	if len(calls) != 1 {
		t.Fatalf("LLM calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].System, "Prefers short replies.") {
		t.Errorf("system prompt missing profile text: %q", calls[0].System)
	}
	if calls[0].Prompt != "I want tea." {
		t.Errorf("prompt = %q, want intent sentence", calls[0].Prompt)
	}
}
