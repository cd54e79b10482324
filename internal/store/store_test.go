package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIdempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if err := s.Migrate(); err != nil {
			t.Fatalf("Migrate() pass %d error = %v", i, err)
		}
	}
}

func TestInsertAndListRecent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	id1, err := repo.Insert(ctx, "i am cold", "I am cold.", "", "")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	id2, err := repo.Insert(ctx, "want water", "I want water.", "spk1", "sess1")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not strictly increasing: %d then %d", id1, id2)
	}

	got, err := repo.ListRecent(ctx, 1)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ListRecent(1) returned %d rows", len(got))
	}
	if got[0].ID != id2 || got[0].Original != "want water" || got[0].SpeakerID != "spk1" {
		t.Errorf("ListRecent(1) = %+v, want latest row", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCorrectionPreferred(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	id, err := repo.Insert(ctx, "cold", "I am cold.", "", "")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.UpdateCorrection(ctx, id, "I feel cold."); err != nil {
		t.Fatalf("UpdateCorrection() error = %v", err)
	}

	in, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if in.FinalResponse() != "I feel cold." {
		t.Errorf("FinalResponse() = %q, want correction", in.FinalResponse())
	}

	// Repeating the same update changes nothing.
	if err := repo.UpdateCorrection(ctx, id, "I feel cold."); err != nil {
		t.Fatalf("UpdateCorrection() repeat error = %v", err)
	}
	in, err = repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if in.CorrectedResponse != "I feel cold." {
		t.Errorf("CorrectedResponse = %q after repeat update", in.CorrectedResponse)
	}

	corr, err := repo.CorrectionsForProfile(ctx, 10)
	if err != nil {
		t.Fatalf("CorrectionsForProfile() error = %v", err)
	}
	if len(corr) != 1 || corr[0].CorrectedResponse != "I feel cold." {
		t.Errorf("CorrectionsForProfile() = %+v, want one corrected row", corr)
	}
}

func TestExcludeFromProfile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	id, err := repo.Insert(ctx, "noise", "?", "", "")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.SetExcluded(ctx, id, true); err != nil {
		t.Fatalf("SetExcluded() error = %v", err)
	}

	accepted, err := repo.AcceptedForProfile(ctx, 10)
	if err != nil {
		t.Fatalf("AcceptedForProfile() error = %v", err)
	}
	if len(accepted) != 0 {
		t.Errorf("excluded row visible to profile: %+v", accepted)
	}

	history, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(history) != 1 {
		t.Errorf("excluded row missing from history, got %d rows", len(history))
	}
}

func TestProfileOrderingWeightThenRecency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	low, _ := repo.Insert(ctx, "a", "ra", "", "")
	high, _ := repo.Insert(ctx, "b", "rb", "", "")
	newest, _ := repo.Insert(ctx, "c", "rc", "", "")

	err := repo.ApplyCuration(ctx, []WeightUpdate{
		{ID: low, Weight: 0.5},
		{ID: high, Weight: 3.0},
		{ID: newest, Weight: 0.5},
	}, nil)
	if err != nil {
		t.Fatalf("ApplyCuration() error = %v", err)
	}

	got, err := repo.AcceptedForProfile(ctx, 10)
	if err != nil {
		t.Fatalf("AcceptedForProfile() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("AcceptedForProfile() returned %d rows", len(got))
	}
	if got[0].ID != high {
		t.Errorf("first row id = %d, want highest weight %d", got[0].ID, high)
	}
	if got[1].ID != newest {
		t.Errorf("second row id = %d, want newest of equal weights %d", got[1].ID, newest)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	if _, err := repo.Insert(ctx, "x", "y", "", ""); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	n, err := repo.DeleteOlderThan(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 0 {
		t.Errorf("deleted %d recent rows, want 0", n)
	}

	n, err = repo.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d rows, want 1", n)
	}
}

func TestTruncation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Interactions()

	long := strings.Repeat("x", maxTextLen+500)
	id, err := repo.Insert(ctx, long, "ok", "", "")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	in, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(in.Original) > maxTextLen {
		t.Errorf("stored length %d exceeds cap %d", len(in.Original), maxTextLen)
	}
	if !strings.HasSuffix(in.Original, truncationMarker) {
		t.Errorf("truncated text missing marker suffix, got tail %q", in.Original[len(in.Original)-20:])
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).Settings()

	if v, err := repo.Get(ctx, SettingPreferredName); err != nil || v != "" {
		t.Fatalf("Get(unset) = %q, %v, want empty, nil", v, err)
	}
	if err := repo.Set(ctx, SettingPreferredName, "Sam"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, SettingPreferredName, "Samuel"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if v, err := repo.Get(ctx, SettingPreferredName); err != nil || v != "Samuel" {
		t.Fatalf("Get() = %q, %v, want Samuel", v, err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if all[SettingPreferredName] != "Samuel" {
		t.Errorf("All() = %v, missing preferred name", all)
	}

	if err := repo.Delete(ctx, SettingPreferredName); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if v, _ := repo.Get(ctx, SettingPreferredName); v != "" {
		t.Errorf("Get() after delete = %q, want empty", v)
	}
}

func TestTrainingFacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := openTestStore(t).TrainingFacts()

	if _, err := repo.Add(ctx, "   "); err != ErrEmptyFact {
		t.Errorf("Add(blank) error = %v, want ErrEmptyFact", err)
	}

	id1, err := repo.Add(ctx, "  I use a wheelchair.  ")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	id2, err := repo.Add(ctx, "My nurse is called Ada.")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	facts, err := repo.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(facts) != 2 || facts[0].ID != id2 || facts[1].ID != id1 {
		t.Fatalf("ListRecent() = %+v, want newest first", facts)
	}
	if facts[1].Text != "I use a wheelchair." {
		t.Errorf("fact text = %q, want trimmed", facts[1].Text)
	}
}
