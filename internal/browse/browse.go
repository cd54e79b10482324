// Package browse interprets utterances as web-browsing commands.
//
// Interpretation runs in two stages. A small keyword grammar decides
// deterministically whether an utterance is a browsing command, which command
// it is, and which configured site it targets; the grammar always wins when
// it matches. Utterances the grammar does not recognise can optionally be
// classified by an LLM into the same intent record, so phrasings like "could
// you pull up the news for me" still reach the browser. Anything neither
// stage claims is passed back to the pipeline's normal flow. Navigation
// effects run on the user's client (the page is rendered there), so the
// handler only dispatches actions; it never fetches pages itself.
package browse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/mkaiser42/aloud/internal/intent"
	"github.com/mkaiser42/aloud/pkg/provider/llm"
)

// Actions dispatches client-side browsing effects. Implemented by the event
// layer, which forwards them to the connected client.
type Actions interface {
	// SetBrowseMode switches the client's browse pane on or off.
	SetBrowseMode(enabled bool)

	// OpenURL asks the client to open url in the browse pane.
	OpenURL(url string)

	// Scroll moves the browse pane. direction is "up" or "down".
	Scroll(direction string)
}

// Browse-intent actions shared by the keyword grammar and the classifier.
const (
	ActionOpen       = "open"
	ActionScrollUp   = "scroll_up"
	ActionScrollDown = "scroll_down"
	ActionClose      = "close"
	ActionNone       = "none"
)

// Intent is one classified browsing command. Target names the site for
// [ActionOpen] and is empty otherwise.
type Intent struct {
	Action string `json:"action"`
	Target string `json:"target"`
}

// Handler interprets utterances as browsing commands. Read-only after
// construction, so safe for concurrent use.
type Handler struct {
	actions Actions
	sites   map[string]string
	client  llm.Client
	prompt  string
	log     *slog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithClassifier attaches an LLM that classifies utterances the keyword
// grammar does not recognise. Without it, only the grammar runs.
func WithClassifier(client llm.Client) Option {
	return func(h *Handler) { h.client = client }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// NewHandler creates a Handler. sites maps spoken site names (matched
// case-insensitively) to URLs.
func NewHandler(actions Actions, sites map[string]string, opts ...Option) *Handler {
	normalized := make(map[string]string, len(sites))
	for name, url := range sites {
		normalized[intent.Normalize(name)] = url
	}
	h := &Handler{
		actions: actions,
		sites:   normalized,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.prompt = classifyPrompt(normalized)
	return h
}

// Compile-time interface assertion.
var _ intent.BrowseHandler = (*Handler)(nil)

// Handle implements [intent.BrowseHandler]. A handled utterance returns the
// confirmation message to speak; handled=false means the utterance is not a
// browsing command and the pipeline continues its normal flow. The keyword
// grammar is consulted first and wins when it matches; the classifier, when
// configured, only sees utterances the grammar passed on.
func (h *Handler) Handle(ctx context.Context, utterance string) (string, bool) {
	if in, ok := h.classifyKeywords(intent.Normalize(utterance)); ok {
		return h.dispatch(in)
	}
	if h.client == nil {
		return "", false
	}
	in, ok := h.classify(ctx, utterance)
	if !ok || in.Action == ActionNone {
		return "", false
	}
	return h.dispatch(in)
}

// classifyKeywords is the deterministic grammar: exact commands plus a few
// "open <site>" prefixes over the configured site names.
func (h *Handler) classifyKeywords(norm string) (Intent, bool) {
	switch norm {
	case "stop browsing", "close the browser", "close browser", "exit browsing":
		return Intent{Action: ActionClose}, true
	case "scroll down", "go down":
		return Intent{Action: ActionScrollDown}, true
	case "scroll up", "go up":
		return Intent{Action: ActionScrollUp}, true
	}

	for _, prefix := range []string{"open ", "go to ", "show me "} {
		if !strings.HasPrefix(norm, prefix) {
			continue
		}
		target := strings.TrimSpace(strings.TrimPrefix(norm, prefix))
		if _, ok := h.sites[target]; ok {
			return Intent{Action: ActionOpen, Target: target}, true
		}
	}
	return Intent{}, false
}

// classify asks the LLM to map the utterance onto an [Intent]. Any model
// error or unparseable reply reports ok=false so the pipeline continues its
// normal flow rather than guessing.
func (h *Handler) classify(ctx context.Context, utterance string) (Intent, bool) {
	reply, err := h.client.Generate(ctx, utterance, h.prompt)
	if err != nil {
		h.log.Warn("browse classification call failed", "error", err)
		return Intent{}, false
	}
	reply = strings.TrimSpace(reply)

	var in Intent
	if err := json.Unmarshal([]byte(reply), &in); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(reply)
		if repErr != nil || json.Unmarshal([]byte(repaired), &in) != nil {
			h.log.Debug("browse classification reply not parseable", "reply", reply)
			return Intent{}, false
		}
	}
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	in.Target = intent.Normalize(in.Target)
	return in, true
}

// dispatch runs the client-side effect for one intent. An open intent whose
// target is not a configured site is passed back to the normal flow.
func (h *Handler) dispatch(in Intent) (string, bool) {
	switch in.Action {
	case ActionClose:
		h.actions.SetBrowseMode(false)
		return "Okay, closing the browser.", true
	case ActionScrollDown:
		h.actions.Scroll("down")
		return "Scrolling down.", true
	case ActionScrollUp:
		h.actions.Scroll("up")
		return "Scrolling up.", true
	case ActionOpen:
		url, ok := h.sites[in.Target]
		if !ok {
			return "", false
		}
		h.actions.SetBrowseMode(true)
		h.actions.OpenURL(url)
		return fmt.Sprintf("Opening %s.", in.Target), true
	}
	return "", false
}

// classifyPrompt builds the classification system prompt over the configured
// site names, sorted for a stable prompt.
func classifyPrompt(sites map[string]string) string {
	names := make([]string, 0, len(sites))
	for name := range sites {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(`You classify whether an utterance is a web-browsing command.

Actions:
- "open": open one of the available sites; put the site name in "target".
- "scroll_up" / "scroll_down": move the current page.
- "close": stop browsing.
- "none": the utterance is not a browsing command.

Available sites: `)
	if len(names) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(names, ", "))
	}
	b.WriteString(`

Only classify as a browsing command when the utterance clearly asks for one; when in doubt, use "none".
Output strict JSON only, with no surrounding prose or code fences:
{"action": "<action>", "target": "<site name or empty>"}`)
	return b.String()
}
