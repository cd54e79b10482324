package curation

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mkaiser42/aloud/internal/store"
)

func newTestRepo(t *testing.T) *store.InteractionRepo {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "curation.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.Interactions()
}

func TestPatternKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"I want water.", "i want water"},
		{"I  Want   WATER!!", "i want water"},
		{"  hello ;:", "hello"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PatternKey(tt.in); got != tt.want {
			t.Errorf("PatternKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunOnceWeights(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)

	// Three rows sharing one response pattern, one of them corrected.
	var corrected int64
	for i := 0; i < 3; i++ {
		id, err := repo.Insert(ctx, "want water", "I want water.", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			corrected = id
		}
	}
	if err := repo.UpdateCorrection(ctx, corrected, "I would like water."); err != nil {
		t.Fatal(err)
	}
	unique, err := repo.Insert(ctx, "something else entirely", "A one-off reply.", "", "")
	if err != nil {
		t.Fatal(err)
	}

	c := New(repo, Config{
		CorrectionBump: 0.5,
		RepeatScale:    0.1,
		MinWeight:      0.1,
		MaxWeight:      5.0,
	}, nil)

	res, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.WeightsUpdated != 4 {
		t.Errorf("WeightsUpdated = %d, want 4", res.WeightsUpdated)
	}

	// The corrected row: 1.0 + 0.5 bump + 2 transcription repeats * 0.1.
	// Its response pattern is unique after correction.
	row, err := repo.Get(ctx, corrected)
	if err != nil {
		t.Fatal(err)
	}
	if row.Weight == nil || !floatNear(*row.Weight, 1.7) {
		t.Errorf("corrected row weight = %v, want 1.7", row.Weight)
	}

	// The unique row: bare 1.0.
	row, err = repo.Get(ctx, unique)
	if err != nil {
		t.Fatal(err)
	}
	if row.Weight == nil || !floatNear(*row.Weight, 1.0) {
		t.Errorf("unique row weight = %v, want 1.0", row.Weight)
	}
}

func TestRunOnceWeightClamped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)

	for i := 0; i < 30; i++ {
		if _, err := repo.Insert(ctx, "same thing", "Same reply.", "", ""); err != nil {
			t.Fatal(err)
		}
	}

	c := New(repo, Config{RepeatScale: 1.0, MinWeight: 0.5, MaxWeight: 2.0}, nil)
	if _, err := c.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}

	rows, err := repo.ListRecent(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range rows {
		if row.Weight == nil || *row.Weight < 0.5 || *row.Weight > 2.0 {
			t.Fatalf("weight %v outside [0.5, 2.0]", row.Weight)
		}
	}
}

func TestRunOnceExcludesBlankTranscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)

	blank, err := repo.Insert(ctx, "   ", "spurious reply", "", "")
	if err != nil {
		t.Fatal(err)
	}
	kept, err := repo.Insert(ctx, "real words", "real reply", "", "")
	if err != nil {
		t.Fatal(err)
	}

	c := New(repo, Config{ExcludeEmptyTranscription: true}, nil)
	res, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Excluded != 1 {
		t.Errorf("Excluded = %d, want 1", res.Excluded)
	}

	row, err := repo.Get(ctx, blank)
	if err != nil {
		t.Fatal(err)
	}
	if !row.ExcludeFromProfile {
		t.Error("blank row not excluded")
	}
	row, err = repo.Get(ctx, kept)
	if err != nil {
		t.Fatal(err)
	}
	if row.ExcludeFromProfile {
		t.Error("non-blank row wrongly excluded")
	}

	// A second pass finds nothing new to exclude.
	res, err = c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() second pass error = %v", err)
	}
	if res.Excluded != 0 {
		t.Errorf("second pass Excluded = %d, want 0", res.Excluded)
	}
}

func TestRunOncePrunesOldRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.Insert(ctx, "recent", "reply", "", ""); err != nil {
		t.Fatal(err)
	}

	c := New(repo, Config{DeleteOlderThanDays: 30}, nil)
	// Pretend the pass runs far in the future so today's row ages out.
	c.now = func() time.Time { return time.Now().AddDate(0, 0, 60) }

	res, err := c.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("Deleted = %d, want 1", res.Deleted)
	}
}

func floatNear(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
