package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkaiser42/aloud/internal/store"
)

func TestExportCuratedPrefersCorrections(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	repo := st.Interactions()

	correctedID, err := repo.Insert(ctx, "water pls", "You want water?", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateCorrection(ctx, correctedID, "I would like some water."); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Insert(ctx, "I am tired", "You are tired.", "", ""); err != nil {
		t.Fatal(err)
	}
	excludedID, err := repo.Insert(ctx, "noise", "Pardon?", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.SetExcluded(ctx, excludedID, true); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(t.TempDir(), "export.jsonl")
	if err := exportCurated(ctx, st, out, 0); err != nil {
		t.Fatalf("exportCurated() error = %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	byTranscription := map[string]exportRecord{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec exportRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad JSON line %q: %v", sc.Text(), err)
		}
		byTranscription[rec.Transcription] = rec
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}

	if len(byTranscription) != 2 {
		t.Fatalf("exported %d pairs, want 2 (excluded row must be skipped)", len(byTranscription))
	}
	corrected, ok := byTranscription["water pls"]
	if !ok {
		t.Fatal("corrected interaction missing from export")
	}
	if corrected.Response != "I would like some water." {
		t.Errorf("corrected pair response = %q, want the correction", corrected.Response)
	}
	if accepted := byTranscription["I am tired"]; accepted.Response != "You are tired." {
		t.Errorf("accepted pair response = %q", accepted.Response)
	}
	if _, ok := byTranscription["noise"]; ok {
		t.Error("excluded interaction leaked into export")
	}
}
