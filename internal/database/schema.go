package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema holds the tables of the interaction service. Applied idempotently
// at startup; subjects are created by the publishing pipeline, this service
// only appends likes/comments and maintains aggregates.
const schema = `
CREATE TABLE IF NOT EXISTS subjects (
	id             TEXT PRIMARY KEY,
	profile_id     TEXT NOT NULL,
	likes_count    INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS likes (
	id         TEXT PRIMARY KEY,
	viewer_id  TEXT NOT NULL,
	subject_id TEXT NOT NULL REFERENCES subjects (id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (viewer_id, subject_id)
);

CREATE TABLE IF NOT EXISTS comments (
	id         TEXT PRIMARY KEY,
	viewer_id  TEXT NOT NULL,
	subject_id TEXT NOT NULL REFERENCES subjects (id),
	text       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_comments_subject ON comments (subject_id, created_at DESC);
`

// EnsureSchema creates the tables if they don't exist.
func EnsureSchema(db *sqlx.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
