package model

import (
	"errors"
	"time"
)

// Like represents one (viewer, subject) like relationship.
// At most one row exists per pair; the row's existence is the sole source of
// truth for "has liked".
type Like struct {
	ID        string    `db:"id"`
	ViewerID  string    `db:"viewer_id"`
	SubjectID string    `db:"subject_id"`
	CreatedAt time.Time `db:"created_at"`
}

// Interaction errors
var (
	ErrSubjectNotFound = errors.New("subject not found")
	ErrCommentNotFound = errors.New("comment not found")
	ErrNotCommentOwner = errors.New("not the owner of this comment")
	ErrTextRequired    = errors.New("comment text is required")
	ErrTextTooLong     = errors.New("comment text too long")
	ErrEmptyPatch      = errors.New("counter patch has no fields")
)
