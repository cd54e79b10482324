package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyFact is returned when a training fact is blank after trimming.
var ErrEmptyFact = errors.New("store: training fact is empty")

// TrainingFact is one free-text statement recorded in training mode.
type TrainingFact struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// TrainingFactRepo persists training facts. Obtain one via
// [Store.TrainingFacts].
type TrainingFactRepo struct {
	db *sql.DB
}

// Add stores a new fact and returns its id. The text is trimmed first;
// blank facts are rejected with [ErrEmptyFact].
func (r *TrainingFactRepo) Add(ctx context.Context, text string) (int64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyFact
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO training_facts (text, created_at) VALUES (?, ?)`,
		truncate(text), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("store: add training fact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: add training fact id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit facts, newest first.
func (r *TrainingFactRepo) ListRecent(ctx context.Context, limit int) ([]TrainingFact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, created_at FROM training_facts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list training facts: %w", err)
	}
	defer rows.Close()

	var out []TrainingFact
	for rows.Next() {
		var (
			f       TrainingFact
			created string
		)
		if err := rows.Scan(&f.ID, &f.Text, &created); err != nil {
			return nil, fmt.Errorf("store: scan training fact: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, created); err == nil {
			f.CreatedAt = t
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate training facts: %w", err)
	}
	return out, nil
}

// Delete removes a fact by id.
func (r *TrainingFactRepo) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM training_facts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete training fact %d: %w", id, err)
	}
	return nil
}
