package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"vibesync/internal/model"
	"vibesync/pkg/api"
)

type subjectRepository struct {
	db *sqlx.DB
}

func NewSubjectRepository(db *sqlx.DB) SubjectRepository {
	return &subjectRepository{db: db}
}

func (r *subjectRepository) Create(ctx context.Context, profileID string) (*api.Subject, error) {
	var subject api.Subject
	query := `
		INSERT INTO subjects (id, profile_id)
		VALUES ($1, $2)
		RETURNING id, profile_id, likes_count, comments_count, created_at
	`
	err := r.db.GetContext(ctx, &subject, query, uuid.NewString(), profileID)
	if err != nil {
		return nil, fmt.Errorf("insert subject: %w", err)
	}
	return &subject, nil
}

func (r *subjectRepository) GetByID(ctx context.Context, subjectID string) (*api.Subject, error) {
	var subject api.Subject
	query := `
		SELECT id, profile_id, likes_count, comments_count, created_at
		FROM subjects
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &subject, query, subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSubjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return &subject, nil
}

func (r *subjectRepository) Exists(ctx context.Context, subjectID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)`
	if err := r.db.GetContext(ctx, &exists, query, subjectID); err != nil {
		return false, fmt.Errorf("check subject exists: %w", err)
	}
	return exists, nil
}

// IncrementLikeCount adjusts likes_count and returns the new value.
// GREATEST keeps the counter from going negative if it ever drifts.
func (r *subjectRepository) IncrementLikeCount(ctx context.Context, tx *sqlx.Tx, subjectID string, delta int) (int, error) {
	var count int
	query := `
		UPDATE subjects
		SET likes_count = GREATEST(likes_count + $1, 0)
		WHERE id = $2
		RETURNING likes_count
	`
	err := tx.GetContext(ctx, &count, query, delta, subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, model.ErrSubjectNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment like count: %w", err)
	}
	return count, nil
}

func (r *subjectRepository) SetCounts(ctx context.Context, subjectID string, likesCount, commentsCount *int) error {
	query := `
		UPDATE subjects
		SET likes_count = GREATEST(COALESCE($1, likes_count), 0),
		    comments_count = GREATEST(COALESCE($2, comments_count), 0)
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, likesCount, commentsCount, subjectID)
	if err != nil {
		return fmt.Errorf("set counts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set counts rows affected: %w", err)
	}
	if rows == 0 {
		return model.ErrSubjectNotFound
	}
	return nil
}
