package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mkaiser42/aloud/pkg/provider/llm"
	"github.com/mkaiser42/aloud/pkg/provider/retriever"
)

// BrowseHandler routes an utterance to the web-browsing surface. A true
// handled flag with a non-empty message means the message is the final
// user-visible response for this turn; handled=false means the pipeline
// continues its normal flow.
type BrowseHandler interface {
	Handle(ctx context.Context, utterance string) (message string, handled bool)
}

// ProfileSource supplies the personalization text appended to completion
// prompts. Implemented by the profile builder.
type ProfileSource interface {
	ProfileText(ctx context.Context) string
}

// SelectorConfig holds the response-selection knobs.
type SelectorConfig struct {
	// DocumentQA answers from the indexed document store instead of free
	// generation.
	DocumentQA bool

	// Browse delegates utterances to the browse handler first.
	Browse bool

	// UseReconstructionAsResponse speaks the reconstruction verbatim when
	// its certainty clears CertaintyThreshold (or is absent).
	UseReconstructionAsResponse bool

	// CertaintyThreshold is the minimum certainty in [0, 100].
	CertaintyThreshold int

	// TopK is how many document chunks to retrieve per question.
	TopK int

	// CompletionPrompt overrides the built-in completion system prompt.
	CompletionPrompt string

	// OnBranch, when non-nil, is told which branch produced the response:
	// "browse", "document_qa", "agreement", "reconstruction", or
	// "completion". Used for metrics.
	OnBranch func(branch string)
}

// Selector decides the final response for one turn.
type Selector struct {
	client    llm.Client
	retriever retriever.Retriever
	browse    BrowseHandler
	profile   ProfileSource
	cfg       SelectorConfig
	log       *slog.Logger
}

// NewSelector builds a Selector. retriever, browse, and profile may be nil;
// the corresponding branches are then skipped.
func NewSelector(client llm.Client, ret retriever.Retriever, browse BrowseHandler, profile ProfileSource, cfg SelectorConfig, log *slog.Logger) *Selector {
	if log == nil {
		log = slog.Default()
	}
	return &Selector{
		client:    client,
		retriever: ret,
		browse:    browse,
		profile:   profile,
		cfg:       cfg,
		log:       log,
	}
}

// Select picks the response text for a turn. The branches are ordered;
// the first match wins:
//
//  1. Browse mode with a handler that claims the utterance.
//  2. Document-QA mode (fixed message when the index is empty).
//  3. Agreement repeat: reconstruction equals the raw transcription.
//  4. Reconstruction-as-response when certainty clears the threshold.
//  5. Completion call.
//
// The returned text may be empty only when a branch produced nothing to say
// (for example an LLM fallback path that returned empty).
func (s *Selector) Select(ctx context.Context, raw string, rec Reconstruction) string {
	if s.cfg.Browse && s.browse != nil {
		if msg, handled := s.browse.Handle(ctx, raw); handled {
			s.branch("browse")
			return msg
		}
	}

	if s.cfg.DocumentQA && s.retriever != nil {
		s.branch("document_qa")
		return s.answerFromDocuments(ctx, rec.Sentence)
	}

	if rec.Ran && Normalize(raw) == Normalize(rec.Sentence) {
		// The model agreed with the transcription; a second call would only
		// paraphrase it.
		s.branch("agreement")
		return rec.Sentence
	}

	if s.cfg.UseReconstructionAsResponse && rec.Ran {
		if rec.Certainty == nil || *rec.Certainty >= s.cfg.CertaintyThreshold {
			s.branch("reconstruction")
			return rec.Sentence
		}
		s.log.Debug("reconstruction certainty below threshold, running completion",
			"certainty", *rec.Certainty,
			"threshold", s.cfg.CertaintyThreshold,
		)
	}

	s.branch("completion")
	return s.complete(ctx, rec.Sentence)
}

// branch reports the winning selection branch to the configured hook.
func (s *Selector) branch(name string) {
	if s.cfg.OnBranch != nil {
		s.cfg.OnBranch(name)
	}
}

// answerFromDocuments handles document-QA mode.
func (s *Selector) answerFromDocuments(ctx context.Context, question string) string {
	has, err := s.retriever.HasDocuments(ctx)
	if err != nil {
		s.log.Error("document check failed", "error", err)
		return DocumentsEmptyMessage
	}
	if !has {
		return DocumentsEmptyMessage
	}

	docs, err := s.retriever.Query(ctx, question, s.cfg.TopK)
	if err != nil {
		s.log.Error("document retrieval failed", "error", err)
		docs = ""
	}

	system := documentQAPromptPrefix + docs
	reply, err := s.client.Generate(ctx, question, system)
	if err != nil {
		s.log.Error("document answer call failed", "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}

// complete runs the final completion call with the profile text appended to
// the system prompt.
func (s *Selector) complete(ctx context.Context, sentence string) string {
	system := s.cfg.CompletionPrompt
	if system == "" {
		system = defaultCompletionPrompt
	}
	if s.profile != nil {
		if p := s.profile.ProfileText(ctx); p != "" {
			system += "\n\n" + p
		}
	}

	reply, err := s.client.Generate(ctx, sentence, system)
	if err != nil {
		s.log.Error("completion call failed", "error", err)
		return ""
	}
	return strings.TrimSpace(reply)
}
