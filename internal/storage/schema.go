package storage

// SchemaVersion is the on-disk schema version this build reads and writes.
// There is no migration logic: opening a database written by a newer schema
// fails, and any schema change must bump this constant together with an
// explicit migration strategy.
const SchemaVersion = 1

const schema = `
-- Tracks the schema version of this database file.
CREATE TABLE IF NOT EXISTS schema_info (
    version INTEGER NOT NULL
);

-- One reference pronunciation recording per flashcard. The card_key is the
-- composite "{lessonId}:{cardId}" identifier and writes are upserts.
CREATE TABLE IF NOT EXISTS reference_models (
    card_key    TEXT PRIMARY KEY,
    audio       BLOB NOT NULL,
    mime_type   TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

-- Append-only log of practice attempts. Rows never change after the kept
-- flag is set and are never deleted.
CREATE TABLE IF NOT EXISTS attempts (
    id          TEXT PRIMARY KEY,
    card_key    TEXT NOT NULL,
    audio       BLOB NOT NULL,
    mime_type   TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    score       REAL,
    note        TEXT NOT NULL DEFAULT '',
    kept        INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attempts_card_key ON attempts(card_key);
CREATE INDEX IF NOT EXISTS idx_attempts_created_at ON attempts(created_at);

-- Small JSON documents for app state: lessons, profiles, stars, active mode.
CREATE TABLE IF NOT EXISTS app_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

-- Lesson-pack sources, either a local directory or a git repository URL.
CREATE TABLE IF NOT EXISTS pack_sources (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    path        TEXT NOT NULL UNIQUE,
    kind        TEXT NOT NULL,
    last_synced DATETIME
);
`
