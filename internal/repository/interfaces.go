package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"vibesync/pkg/api"
)

type SubjectRepository interface {
	Create(ctx context.Context, profileID string) (*api.Subject, error)
	GetByID(ctx context.Context, subjectID string) (*api.Subject, error)
	Exists(ctx context.Context, subjectID string) (bool, error)
	// IncrementLikeCount adjusts the denormalized like counter inside the
	// toggle transaction and returns the new value (floored at zero).
	IncrementLikeCount(ctx context.Context, tx *sqlx.Tx, subjectID string, delta int) (int, error)
	// SetCounts overwrites the denormalized counters; nil fields are left
	// untouched (the PATCH endpoint's sparse shape).
	SetCounts(ctx context.Context, subjectID string, likesCount, commentsCount *int) error
}

type LikeRepository interface {
	Exists(ctx context.Context, viewerID, subjectID string) (bool, error)
	Create(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error
	Delete(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error
	Count(ctx context.Context, subjectID string) (int, error)
}

type CommentRepository interface {
	Create(ctx context.Context, viewerID, subjectID, text string) (*api.Comment, error)
	GetByID(ctx context.Context, commentID string) (*api.Comment, error)
	Delete(ctx context.Context, commentID string) (subjectID string, err error)
	// ListBySubject returns all comments for a subject, newest first.
	ListBySubject(ctx context.Context, subjectID string) ([]api.Comment, error)
	CountBySubject(ctx context.Context, subjectID string) (int, error)
}
