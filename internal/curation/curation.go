// Package curation periodically rescores the interaction history so the
// profile builder and training exports favour the phrases that matter.
//
// A pass walks the history oldest-first, counts how often each normalized
// response and transcription recurs, and derives a weight per row: corrected
// rows get a fixed bump, recurring phrasings get a per-repeat increment, and
// everything is clamped to a configured band. Blank transcriptions can be
// excluded from the profile, and rows past the retention window deleted.
package curation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mkaiser42/aloud/internal/store"
)

// Config tunes one curation pass.
type Config struct {
	// MaxRows caps how many interactions a single pass examines.
	MaxRows int

	// CorrectionBump is added to the weight of corrected rows.
	CorrectionBump float64

	// RepeatScale is added per extra recurrence of a response or
	// transcription pattern.
	RepeatScale float64

	// MinWeight and MaxWeight clamp computed weights.
	MinWeight float64
	MaxWeight float64

	// ExcludeEmptyTranscription marks rows with a blank original as excluded
	// from the profile.
	ExcludeEmptyTranscription bool

	// DeleteOlderThanDays prunes interactions older than this many days.
	// Zero disables pruning.
	DeleteOlderThanDays int
}

// Result reports what one pass changed.
type Result struct {
	WeightsUpdated int
	Excluded       int
	Deleted        int
}

// Curator runs curation passes against the interaction repository.
type Curator struct {
	repo *store.InteractionRepo
	cfg  Config
	log  *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// New creates a Curator. Zero-value config fields get usable defaults.
func New(repo *store.InteractionRepo, cfg Config, log *slog.Logger) *Curator {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if cfg.MaxWeight <= 0 {
		cfg.MaxWeight = 5.0
	}
	if cfg.MinWeight <= 0 {
		cfg.MinWeight = 0.1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Curator{repo: repo, cfg: cfg, log: log, now: time.Now}
}

// RunOnce executes a single curation pass and returns the change counts.
func (c *Curator) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	rows, err := c.repo.ListOldestFirst(ctx, c.cfg.MaxRows)
	if err != nil {
		return res, fmt.Errorf("curation: fetch rows: %w", err)
	}

	respCounts := make(map[string]int, len(rows))
	transCounts := make(map[string]int, len(rows))
	for _, row := range rows {
		if k := PatternKey(row.FinalResponse()); k != "" {
			respCounts[k]++
		}
		if k := PatternKey(row.Original); k != "" {
			transCounts[k]++
		}
	}

	var (
		weights []store.WeightUpdate
		exclude []int64
	)
	for _, row := range rows {
		w := c.weightFor(row, respCounts, transCounts)
		if row.Weight == nil || *row.Weight != w {
			weights = append(weights, store.WeightUpdate{ID: row.ID, Weight: w})
		}
		if c.cfg.ExcludeEmptyTranscription && strings.TrimSpace(row.Original) == "" && !row.ExcludeFromProfile {
			exclude = append(exclude, row.ID)
		}
	}

	if len(weights) > 0 || len(exclude) > 0 {
		if err := c.repo.ApplyCuration(ctx, weights, exclude); err != nil {
			return res, fmt.Errorf("curation: apply updates: %w", err)
		}
	}
	res.WeightsUpdated = len(weights)
	res.Excluded = len(exclude)

	if c.cfg.DeleteOlderThanDays > 0 {
		cutoff := c.now().AddDate(0, 0, -c.cfg.DeleteOlderThanDays)
		n, err := c.repo.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return res, fmt.Errorf("curation: prune: %w", err)
		}
		res.Deleted = int(n)
	}

	c.log.Info("curation pass complete",
		"weights_updated", res.WeightsUpdated,
		"excluded", res.Excluded,
		"deleted", res.Deleted,
	)
	return res, nil
}

// weightFor computes the clamped training weight for one row.
func (c *Curator) weightFor(row store.Interaction, respCounts, transCounts map[string]int) float64 {
	w := 1.0
	if strings.TrimSpace(row.CorrectedResponse) != "" {
		w += c.cfg.CorrectionBump
	}
	if n := respCounts[PatternKey(row.FinalResponse())]; n > 1 {
		w += float64(n-1) * c.cfg.RepeatScale
	}
	if n := transCounts[PatternKey(row.Original)]; n > 1 {
		w += float64(n-1) * c.cfg.RepeatScale
	}
	if w < c.cfg.MinWeight {
		w = c.cfg.MinWeight
	}
	if w > c.cfg.MaxWeight {
		w = c.cfg.MaxWeight
	}
	return w
}

// PatternKey normalizes a phrase for recurrence grouping: lowercased,
// whitespace-collapsed, trailing sentence punctuation stripped.
func PatternKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, ".,!?;:")
}
