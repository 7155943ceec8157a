// Package storage is the single owner of all persisted state: audio records,
// app-state documents, and lesson-pack sources, in one SQLite database file.
//
// Every exported operation runs as its own transaction; the package offers no
// cross-operation atomicity. Callers treat a failed operation as non-fatal
// and degrade to an empty view.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// timeLayout is RFC 3339 with fixed millisecond precision. Values are always
// stored in UTC, so the lexicographic order of the column matches
// chronological order and the created_at index can serve sorted listings.
const timeLayout = "2006-01-02T15:04:05.000Z"

// DB wraps the SQL database connection.
type DB struct {
	conn     *sql.DB
	validate *validator.Validate
	now      func() time.Time
}

// Open creates a new database connection, applies the schema, and verifies
// the on-disk schema version. It fails if the file was written by a newer
// version of the application.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := checkVersion(conn); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{
		conn:     conn,
		validate: validator.New(),
		now:      time.Now,
	}, nil
}

func checkVersion(conn *sql.DB) error {
	var version int
	err := conn.QueryRow(`SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := conn.Exec(`INSERT INTO schema_info (version) VALUES (?)`, SchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) timestamp() string {
	return db.now().UTC().Format(timeLayout)
}
