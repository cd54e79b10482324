// Package profile assembles the personalization text appended to completion
// prompts.
//
// The profile is derived entirely from the store: user context and identity
// settings, recent training facts, the highest-weight corrections, and the
// highest-weight accepted pairs. Assembly is cheap but hits four tables, so
// the result is cached for a short TTL; any write that could change the
// profile calls InvalidateCache.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkaiser42/aloud/internal/store"
)

// Caps on how much of each source flows into the profile. Corrections and
// pairs are ranked weight-then-recency, so the caps keep the best material.
const (
	maxFacts       = 20
	maxCorrections = 15
	maxPairs       = 10

	// itemTextCap truncates individual lines so one pasted essay cannot
	// crowd out everything else.
	itemTextCap = 200

	cacheTTL = 30 * time.Second
)

// Builder assembles and caches the profile text.
type Builder struct {
	interactions *store.InteractionRepo
	settings     *store.SettingsRepo
	facts        *store.TrainingFactRepo
	log          *slog.Logger

	mu        sync.Mutex
	cached    string
	cachedAt  time.Time
	haveCache bool
}

// NewBuilder creates a Builder over the given repositories.
func NewBuilder(interactions *store.InteractionRepo, settings *store.SettingsRepo, facts *store.TrainingFactRepo, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{
		interactions: interactions,
		settings:     settings,
		facts:        facts,
		log:          log,
	}
}

// ProfileText returns the assembled profile, serving from cache within the
// TTL. Repository errors degrade to a partial (possibly empty) profile
// rather than failing the turn.
func (b *Builder) ProfileText(ctx context.Context) string {
	b.mu.Lock()
	if b.haveCache && time.Since(b.cachedAt) < cacheTTL {
		text := b.cached
		b.mu.Unlock()
		return text
	}
	b.mu.Unlock()

	text := b.build(ctx)

	b.mu.Lock()
	b.cached = text
	b.cachedAt = time.Now()
	b.haveCache = true
	b.mu.Unlock()
	return text
}

// InvalidateCache drops the cached profile. Idempotent and cheap.
func (b *Builder) InvalidateCache() {
	b.mu.Lock()
	b.haveCache = false
	b.mu.Unlock()
}

// build fetches all four sources concurrently and assembles the sections in
// their fixed order: user context, facts, corrections, accepted pairs.
func (b *Builder) build(ctx context.Context) string {
	var (
		settings    map[string]string
		facts       []store.TrainingFact
		corrections []store.Interaction
		pairs       []store.Interaction
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = b.settings.All(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		facts, err = b.facts.ListRecent(gctx, maxFacts)
		return err
	})
	g.Go(func() error {
		var err error
		corrections, err = b.interactions.CorrectionsForProfile(gctx, maxCorrections)
		return err
	})
	g.Go(func() error {
		var err error
		pairs, err = b.interactions.AcceptedForProfile(gctx, maxPairs)
		return err
	})
	if err := g.Wait(); err != nil {
		b.log.Warn("profile assembly incomplete", "error", err)
	}

	var sections []string

	if s := contextSection(settings); s != "" {
		sections = append(sections, s)
	}
	if s := factsSection(facts); s != "" {
		sections = append(sections, s)
	}
	if s := correctionsSection(corrections); s != "" {
		sections = append(sections, s)
	}
	if s := pairsSection(pairs); s != "" {
		sections = append(sections, s)
	}

	return strings.Join(sections, "\n\n")
}

// contextSection renders the user context and identity settings.
func contextSection(settings map[string]string) string {
	if settings == nil {
		return ""
	}
	var lines []string
	if v := strings.TrimSpace(settings[store.SettingUserContext]); v != "" {
		lines = append(lines, clip(v))
	}
	if v := strings.TrimSpace(settings[store.SettingPreferredName]); v != "" {
		lines = append(lines, "Preferred name: "+clip(v))
	}
	if v := strings.TrimSpace(settings[store.SettingPronouns]); v != "" {
		lines = append(lines, "Pronouns: "+clip(v))
	}
	if len(lines) == 0 {
		return ""
	}
	return "About the user:\n" + strings.Join(lines, "\n")
}

// factsSection renders recent training facts, newest first.
func factsSection(facts []store.TrainingFact) string {
	if len(facts) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Known facts:")
	for _, f := range facts {
		sb.WriteString("\n- ")
		sb.WriteString(clip(f.Text))
	}
	return sb.String()
}

// correctionsSection renders corrected pairs as preference hints.
func correctionsSection(corrections []store.Interaction) string {
	if len(corrections) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Phrasing the user prefers:")
	for _, c := range corrections {
		sb.WriteString(fmt.Sprintf("\n- Prefer: %q (instead of %q)",
			clip(c.CorrectedResponse), clip(c.Response)))
	}
	return sb.String()
}

// pairsSection renders accepted transcription/response pairs as examples.
func pairsSection(pairs []store.Interaction) string {
	if len(pairs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Past exchanges the user accepted:")
	for _, p := range pairs {
		sb.WriteString(fmt.Sprintf("\n- Heard: %q -> Said: %q",
			clip(p.Original), clip(p.FinalResponse())))
	}
	return sb.String()
}

// clip shortens one line to the item cap.
func clip(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= itemTextCap {
		return s
	}
	cut := itemTextCap
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "..."
}
