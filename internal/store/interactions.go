package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Interaction is one persisted conversation turn.
type Interaction struct {
	ID                 int64
	CreatedAt          time.Time
	Original           string
	Response           string
	CorrectedResponse  string
	ExcludeFromProfile bool
	Weight             *float64
	SpeakerID          string
	SessionID          string
}

// FinalResponse returns the corrected response when one exists, otherwise
// the raw model response. Exports and the profile builder always prefer the
// correction.
func (i Interaction) FinalResponse() string {
	if strings.TrimSpace(i.CorrectedResponse) != "" {
		return i.CorrectedResponse
	}
	return i.Response
}

// InteractionRepo persists and queries interaction rows. Obtain one via
// [Store.Interactions]. Safe for concurrent use; the underlying pool is
// limited to a single connection so writes are serialized.
type InteractionRepo struct {
	db *sql.DB
}

const interactionColumns = `id, created_at, original_transcription, llm_response,
	COALESCE(corrected_response, ''), exclude_from_profile, weight,
	COALESCE(speaker_id, ''), COALESCE(session_id, '')`

// Insert stores a new interaction and returns its assigned id. Text fields
// are truncated to the storage cap with a marker suffix. Timestamps are
// recorded in UTC ISO-8601.
func (r *InteractionRepo) Insert(ctx context.Context, original, response, speakerID, sessionID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO interactions (created_at, original_transcription, llm_response, speaker_id, session_id)
		VALUES (?, ?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339),
		truncate(original),
		truncate(response),
		nullable(speakerID),
		nullable(sessionID),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: insert interaction id: %w", err)
	}
	return id, nil
}

// Get returns the interaction with the given id.
func (r *InteractionRepo) Get(ctx context.Context, id int64) (*Interaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id)
	in, err := scanInteraction(row)
	if err != nil {
		return nil, fmt.Errorf("store: get interaction %d: %w", id, err)
	}
	return in, nil
}

// ListRecent returns up to limit interactions, newest first.
func (r *InteractionRepo) ListRecent(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent: %w", err)
	}
	return collectInteractions(rows)
}

// ListOldestFirst returns up to limit interactions in insertion order. The
// curation pass uses this to scan the full history in stable order.
func (r *InteractionRepo) ListOldestFirst(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list oldest first: %w", err)
	}
	return collectInteractions(rows)
}

// UpdateCorrection sets the corrected response for an interaction. Passing
// an empty string clears the correction.
func (r *InteractionRepo) UpdateCorrection(ctx context.Context, id int64, corrected string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE interactions SET corrected_response = ? WHERE id = ?`,
		nullable(truncate(corrected)), id)
	if err != nil {
		return fmt.Errorf("store: update correction %d: %w", id, err)
	}
	return nil
}

// SetExcluded marks or unmarks an interaction as hidden from the profile
// builder. Excluded rows remain visible to history listings.
func (r *InteractionRepo) SetExcluded(ctx context.Context, id int64, excluded bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE interactions SET exclude_from_profile = ? WHERE id = ?`,
		boolToInt(excluded), id)
	if err != nil {
		return fmt.Errorf("store: set excluded %d: %w", id, err)
	}
	return nil
}

// WeightUpdate pairs an interaction id with its recomputed training weight.
type WeightUpdate struct {
	ID     int64
	Weight float64
}

// ApplyCuration commits a curation pass in one transaction: weight updates
// and exclusion marks together. The transaction rolls back on any failure so
// a pass is never half-applied.
func (r *InteractionRepo) ApplyCuration(ctx context.Context, weights []WeightUpdate, exclude []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin curation tx: %w", err)
	}
	defer tx.Rollback()

	for _, w := range weights {
		if _, err := tx.ExecContext(ctx,
			`UPDATE interactions SET weight = ? WHERE id = ?`, w.Weight, w.ID); err != nil {
			return fmt.Errorf("store: update weight %d: %w", w.ID, err)
		}
	}
	for _, id := range exclude {
		if _, err := tx.ExecContext(ctx,
			`UPDATE interactions SET exclude_from_profile = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("store: exclude %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit curation tx: %w", err)
	}
	return nil
}

// DeleteOlderThan removes interactions created before cutoff and returns how
// many rows were deleted.
func (r *InteractionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM interactions WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("store: delete older than: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete older than count: %w", err)
	}
	return n, nil
}

// Clear removes every interaction.
func (r *InteractionRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM interactions`); err != nil {
		return fmt.Errorf("store: clear interactions: %w", err)
	}
	return nil
}

// CorrectionsForProfile returns up to limit corrected interactions ordered
// by weight then recency, both descending. Rows excluded from the profile
// and rows without a correction are skipped.
func (r *InteractionRepo) CorrectionsForProfile(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+interactionColumns+`
		FROM   interactions
		WHERE  exclude_from_profile = 0
		  AND  corrected_response IS NOT NULL
		  AND  TRIM(corrected_response) != ''
		ORDER  BY COALESCE(weight, 1.0) DESC, id DESC
		LIMIT  ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: corrections for profile: %w", err)
	}
	return collectInteractions(rows)
}

// AcceptedForProfile returns up to limit uncorrected, unexcluded
// interactions ordered by weight then recency descending. These are the
// pairs the user let stand without editing.
func (r *InteractionRepo) AcceptedForProfile(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+interactionColumns+`
		FROM   interactions
		WHERE  exclude_from_profile = 0
		  AND  (corrected_response IS NULL OR TRIM(corrected_response) = '')
		ORDER  BY COALESCE(weight, 1.0) DESC, id DESC
		LIMIT  ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: accepted for profile: %w", err)
	}
	return collectInteractions(rows)
}

// EligibleForExport returns up to limit unexcluded interactions, corrected
// or not, ordered by weight then recency descending. Callers read the
// response through [Interaction.FinalResponse] so a correction always wins
// over what the model originally said.
func (r *InteractionRepo) EligibleForExport(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+interactionColumns+`
		FROM   interactions
		WHERE  exclude_from_profile = 0
		ORDER  BY COALESCE(weight, 1.0) DESC, id DESC
		LIMIT  ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: eligible for export: %w", err)
	}
	return collectInteractions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*Interaction, error) {
	var (
		in      Interaction
		created string
		weight  sql.NullFloat64
		excl    int
	)
	err := row.Scan(&in.ID, &created, &in.Original, &in.Response,
		&in.CorrectedResponse, &excl, &weight, &in.SpeakerID, &in.SessionID)
	if err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339, created); err == nil {
		in.CreatedAt = t
	}
	in.ExcludeFromProfile = excl != 0
	if weight.Valid {
		w := weight.Float64
		in.Weight = &w
	}
	return &in, nil
}

func collectInteractions(rows *sql.Rows) ([]Interaction, error) {
	defer rows.Close()
	var out []Interaction
	for rows.Next() {
		in, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan interaction: %w", err)
		}
		out = append(out, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate interactions: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
