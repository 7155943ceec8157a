package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Keys for the app_state documents.
const (
	StateLessons  = "lessons"
	StateProfiles = "profiles"
	StateProgress = "progress"
	StateMode     = "active-mode"
)

// GetState returns the JSON document stored under key, or nil when none
// exists.
func (db *DB) GetState(ctx context.Context, key string) ([]byte, error) {
	var value string
	row := db.conn.QueryRowContext(ctx, `SELECT value FROM app_state WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return []byte(value), nil
}

// PutState upserts the JSON document stored under key.
func (db *DB) PutState(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO app_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, string(value), db.timestamp())
	if err != nil {
		return fmt.Errorf("failed to put state %s: %w", key, err)
	}
	return nil
}
