package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// ReferenceModel is the stored "correct" pronunciation recording for one
// flashcard. At most one exists per card key; writes overwrite in place.
type ReferenceModel struct {
	CardKey    string `validate:"required"`
	Audio      []byte `validate:"required"`
	MimeType   string `validate:"required"`
	DurationMs int64  `validate:"gte=0"`
	CreatedAt  string
	UpdatedAt  string
}

// Attempt is one recorded pronunciation try. Attempts with Kept=false are
// transient takes and are never surfaced in history views.
type Attempt struct {
	ID         string
	CardKey    string `validate:"required"`
	Audio      []byte `validate:"required"`
	MimeType   string `validate:"required"`
	DurationMs int64  `validate:"gte=0"`

	// Score is the duration-heuristic score in [0, 1], nil when no reference
	// model existed at validation time.
	Score *float64

	Note      string
	Kept      bool
	CreatedAt string
}

// PutReferenceModel upserts the reference recording for rec.CardKey.
// CreatedAt is preserved on overwrite; UpdatedAt is always refreshed.
func (db *DB) PutReferenceModel(ctx context.Context, rec *ReferenceModel) error {
	if err := db.validate.Struct(rec); err != nil {
		return fmt.Errorf("invalid reference model: %w", err)
	}

	now := db.timestamp()
	created := rec.CreatedAt
	if created == "" {
		created = now
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO reference_models (card_key, audio, mime_type, duration_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(card_key) DO UPDATE SET
			audio = excluded.audio,
			mime_type = excluded.mime_type,
			duration_ms = excluded.duration_ms,
			updated_at = excluded.updated_at
	`, rec.CardKey, rec.Audio, rec.MimeType, rec.DurationMs, created, now)
	if err != nil {
		return fmt.Errorf("failed to put reference model %s: %w", rec.CardKey, err)
	}
	return nil
}

// GetReferenceModel returns the reference recording for cardKey, or nil when
// none exists. Absence is not an error.
func (db *DB) GetReferenceModel(ctx context.Context, cardKey string) (*ReferenceModel, error) {
	var rec ReferenceModel
	row := db.conn.QueryRowContext(ctx, `
		SELECT card_key, audio, mime_type, duration_ms, created_at, updated_at
		FROM reference_models WHERE card_key = ?
	`, cardKey)

	err := row.Scan(&rec.CardKey, &rec.Audio, &rec.MimeType, &rec.DurationMs, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // No model recorded yet
		}
		return nil, fmt.Errorf("failed to get reference model %s: %w", cardKey, err)
	}
	return &rec, nil
}

// InsertAttempt stores a new attempt and returns the stored record. A missing
// ID is generated and a missing CreatedAt defaults to now, so callers can
// chain a follow-up SetAttemptKept on the returned record.
func (db *DB) InsertAttempt(ctx context.Context, rec *Attempt) (*Attempt, error) {
	if err := db.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("invalid attempt: %w", err)
	}

	stored := *rec
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt == "" {
		stored.CreatedAt = db.timestamp()
	}

	var score sql.NullFloat64
	if stored.Score != nil {
		score = sql.NullFloat64{Float64: *stored.Score, Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO attempts (id, card_key, audio, mime_type, duration_ms, score, note, kept, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stored.ID, stored.CardKey, stored.Audio, stored.MimeType, stored.DurationMs, score, stored.Note, stored.Kept, stored.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert attempt for %s: %w", stored.CardKey, err)
	}
	return &stored, nil
}

// SetAttemptKept updates the kept flag of exactly one attempt. It resolves
// successfully without effect when id does not exist.
func (db *DB) SetAttemptKept(ctx context.Context, id string, kept bool) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE attempts SET kept = ? WHERE id = ?
	`, kept, id)
	if err != nil {
		return fmt.Errorf("failed to update kept flag for attempt %s: %w", id, err)
	}
	return nil
}

const attemptColumns = `id, card_key, audio, mime_type, duration_ms, score, note, kept, created_at`

// ListAttemptsByCard returns every attempt for cardKey, kept or not, newest
// first.
func (db *DB) ListAttemptsByCard(ctx context.Context, cardKey string) ([]Attempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts WHERE card_key = ?
		ORDER BY created_at DESC, id
	`, cardKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts for %s: %w", cardKey, err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// ListAllAttempts returns every attempt across all cards, newest first.
func (db *DB) ListAllAttempts(ctx context.Context) ([]Attempt, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// GetAttempt returns one attempt by id, or nil when it does not exist.
func (db *DB) GetAttempt(ctx context.Context, id string) (*Attempt, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT `+attemptColumns+`
		FROM attempts WHERE id = ?
	`, id)

	rec, err := scanAttempt(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attempt %s: %w", id, err)
	}
	return rec, nil
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var attempts []Attempt
	for rows.Next() {
		rec, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		attempts = append(attempts, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading attempt rows: %w", err)
	}
	return attempts, nil
}

func scanAttempt(scan func(dest ...any) error) (*Attempt, error) {
	var rec Attempt
	var score sql.NullFloat64
	err := scan(&rec.ID, &rec.CardKey, &rec.Audio, &rec.MimeType, &rec.DurationMs, &score, &rec.Note, &rec.Kept, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if score.Valid {
		rec.Score = &score.Float64
	}
	return &rec, nil
}
