package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// PackSource is one configured lesson-pack origin, either a local directory
// or a git repository URL.
type PackSource struct {
	ID         int64
	Path       string
	Kind       string // "local" or "git"
	LastSynced sql.NullTime
}

// InsertPackSource stores a new lesson-pack source and returns its ID.
func (db *DB) InsertPackSource(ctx context.Context, path, kind string) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO pack_sources (path, kind)
		VALUES (?, ?)
	`, path, kind)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pack source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for pack source %s: %w", path, err)
	}
	return id, nil
}

// GetAllPackSources retrieves all stored lesson-pack sources.
func (db *DB) GetAllPackSources(ctx context.Context) ([]PackSource, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, path, kind, last_synced
		FROM pack_sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get pack sources: %w", err)
	}
	defer rows.Close()

	var sources []PackSource
	for rows.Next() {
		var s PackSource
		if err := rows.Scan(&s.ID, &s.Path, &s.Kind, &s.LastSynced); err != nil {
			return nil, fmt.Errorf("failed to scan pack source row: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed while reading pack source rows: %w", err)
	}
	return sources, nil
}

// DeletePackSource removes a lesson-pack source by ID.
func (db *DB) DeletePackSource(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM pack_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pack source %d: %w", id, err)
	}
	return nil
}

// MarkPackSourceSynced updates the last_synced timestamp for a source.
func (db *DB) MarkPackSourceSynced(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE pack_sources
		SET last_synced = ?
		WHERE id = ?
	`, db.now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark pack source %d synced: %w", id, err)
	}
	return nil
}
