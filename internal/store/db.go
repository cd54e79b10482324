// Package store provides the SQLite-backed persistence layer for aloud.
// It uses modernc.org/sqlite for pure-Go, CGO-free database access.
//
// One [Store] owns one database file. Repositories hand out typed access to
// the three tables (interactions, user_settings, training_facts); all writes
// funnel through a single connection so SQLite never sees concurrent writers.
package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// maxTextLen caps every free-text column on write. Longer values are cut and
// suffixed with truncationMarker so a reader can tell the row was shortened.
const (
	maxTextLen       = 4000
	truncationMarker = " [truncated]"
)

// Store provides access to the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database file at path, applies the runtime
// pragmas, and runs the idempotent migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite works best with a single writer. Keeping the pool at one
	// connection also makes the session pragmas below stick.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initPragmas(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: initialize pragmas: %w", err)
	}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Interactions returns the interaction repository.
func (s *Store) Interactions() *InteractionRepo {
	return &InteractionRepo{db: s.db}
}

// Settings returns the user-settings repository.
func (s *Store) Settings() *SettingsRepo {
	return &SettingsRepo{db: s.db}
}

// TrainingFacts returns the training-facts repository.
func (s *Store) TrainingFacts() *TrainingFactRepo {
	return &TrainingFactRepo{db: s.db}
}

// initPragmas configures SQLite for WAL journaling and bounded lock waits.
func (s *Store) initPragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Migrate creates the schema and brings older databases up to date. It is
// idempotent: base tables use CREATE TABLE IF NOT EXISTS, later columns are
// added with ALTER TABLE guarded by a column-existence check, and indexes use
// CREATE INDEX IF NOT EXISTS. Safe to call on every startup.
func (s *Store) Migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id                     INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at             TEXT    NOT NULL,
    original_transcription TEXT    NOT NULL,
    llm_response           TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS training_facts (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    text       TEXT NOT NULL,
    created_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	// Columns added after the initial release. ALTER TABLE ADD COLUMN is not
	// idempotent in SQLite, so each one is guarded by a lookup.
	added := []struct{ table, column, ddl string }{
		{"interactions", "corrected_response", "ALTER TABLE interactions ADD COLUMN corrected_response TEXT"},
		{"interactions", "exclude_from_profile", "ALTER TABLE interactions ADD COLUMN exclude_from_profile INTEGER NOT NULL DEFAULT 0"},
		{"interactions", "weight", "ALTER TABLE interactions ADD COLUMN weight REAL"},
		{"interactions", "speaker_id", "ALTER TABLE interactions ADD COLUMN speaker_id TEXT"},
		{"interactions", "session_id", "ALTER TABLE interactions ADD COLUMN session_id TEXT"},
	}
	for _, a := range added {
		ok, err := s.hasColumn(a.table, a.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		if _, err := s.db.Exec(a.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", a.table, a.column, err)
		}
	}

	const indexes = `
CREATE INDEX IF NOT EXISTS idx_interactions_created_at ON interactions(created_at);
CREATE INDEX IF NOT EXISTS idx_interactions_weight     ON interactions(weight);
CREATE INDEX IF NOT EXISTS idx_training_facts_created  ON training_facts(created_at);
`
	if _, err := s.db.Exec(indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// hasColumn reports whether table already has the named column.
func (s *Store) hasColumn(table, column string) (bool, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name, typ string
			notNull   int
			dflt      sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return false, fmt.Errorf("scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// truncate shortens text to maxTextLen runes, appending the truncation
// marker when it does.
func truncate(text string) string {
	if len(text) <= maxTextLen {
		return text
	}
	cut := maxTextLen - len(truncationMarker)
	// Back up to a rune boundary so the cut never splits a UTF-8 sequence.
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return strings.TrimRight(text[:cut], " ") + truncationMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
