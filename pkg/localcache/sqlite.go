package localcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS interaction_state (
	subject_id     TEXT NOT NULL,
	viewer_id      TEXT NOT NULL,
	is_liked       INTEGER NOT NULL DEFAULT 0,
	likes_count    INTEGER NOT NULL DEFAULT 0,
	comments_count INTEGER NOT NULL DEFAULT 0,
	updated_at     TIMESTAMP NOT NULL,
	PRIMARY KEY (subject_id, viewer_id)
);
`

// SQLiteCache implements Cache on a local sqlite file.
type SQLiteCache struct {
	db *sqlx.DB
}

// OpenSQLite opens (and initializes) the cache at the given path.
// Use ":memory:" for an ephemeral cache.
func OpenSQLite(path string) (*SQLiteCache, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local cache: %w", err)
	}

	// A single writer avoids SQLITE_BUSY under concurrent state writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init local cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Load(ctx context.Context, subjectID, viewerID string) (Entry, bool, error) {
	var entry Entry
	query := `
		SELECT subject_id, viewer_id, is_liked, likes_count, comments_count, updated_at
		FROM interaction_state
		WHERE subject_id = ? AND viewer_id = ?
	`
	err := c.db.GetContext(ctx, &entry, query, subjectID, viewerID)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("load cached state: %w", err)
	}
	return entry, true, nil
}

func (c *SQLiteCache) Save(ctx context.Context, entry Entry) error {
	query := `
		INSERT INTO interaction_state (subject_id, viewer_id, is_liked, likes_count, comments_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (subject_id, viewer_id) DO UPDATE SET
			is_liked = excluded.is_liked,
			likes_count = excluded.likes_count,
			comments_count = excluded.comments_count,
			updated_at = excluded.updated_at
	`
	_, err := c.db.ExecContext(ctx, query,
		entry.SubjectID, entry.ViewerID, entry.IsLiked,
		entry.LikesCount, entry.CommentsCount, entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save cached state: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
