// Package localcache persists last-known interaction state per
// (subject, viewer) pair so the engine can serve something meaningful on
// cold start while the service is unreachable.
//
// Writes are best-effort: callers must treat every error as ignorable and
// never let cache failures affect in-memory state.
package localcache

import (
	"context"
	"time"
)

// Entry is one cached (subject, viewer) interaction state.
type Entry struct {
	SubjectID     string    `db:"subject_id"`
	ViewerID      string    `db:"viewer_id"`
	IsLiked       bool      `db:"is_liked"`
	LikesCount    int       `db:"likes_count"`
	CommentsCount int       `db:"comments_count"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// Cache defines the interface for the local persistent cache.
// Using an interface keeps the engine testable without a filesystem.
type Cache interface {
	// Load returns the cached entry for a pair, found=false on a miss.
	Load(ctx context.Context, subjectID, viewerID string) (Entry, bool, error)

	// Save upserts the entry for a pair.
	Save(ctx context.Context, entry Entry) error

	// Close releases the underlying store.
	Close() error
}

// Noop is a Cache that stores nothing, for callers without persistence.
type Noop struct{}

func (Noop) Load(ctx context.Context, subjectID, viewerID string) (Entry, bool, error) {
	return Entry{}, false, nil
}

func (Noop) Save(ctx context.Context, entry Entry) error { return nil }

func (Noop) Close() error { return nil }
