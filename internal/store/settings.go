package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known settings keys. Free-form keys are also accepted; these are the
// ones the server and control surfaces read.
const (
	SettingSensitivity        = "sensitivity"
	SettingChunkDuration      = "chunk_duration"
	SettingMinTranscriptionLn = "min_transcription_length"
	SettingVoiceThreshold     = "voice_profile_threshold"
	SettingTTSVoice           = "tts_voice"
	SettingTTSRate            = "tts_rate"
	SettingUserContext        = "user_context"
	SettingPreferredName      = "preferred_name"
	SettingPronouns           = "pronouns"
	SettingResponseStyle      = "response_style"
	SettingResponseLength     = "response_length"
)

// SettingsRepo is a key-value store of short user-adjustable strings.
// Obtain one via [Store.Settings].
type SettingsRepo struct {
	db *sql.DB
}

// Get returns the value for key, or "" when the key is unset.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM user_settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return value, nil
}

// Set upserts key to value.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO user_settings (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, truncate(value))
	if err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is a no-op.
func (r *SettingsRepo) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM user_settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete setting %q: %w", key, err)
	}
	return nil
}

// All returns every stored setting.
func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM user_settings`)
	if err != nil {
		return nil, fmt.Errorf("store: list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("store: scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate settings: %w", err)
	}
	return out, nil
}
