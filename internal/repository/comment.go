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

type commentRepository struct {
	db *sqlx.DB
}

func NewCommentRepository(db *sqlx.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, viewerID, subjectID, text string) (*api.Comment, error) {
	var comment api.Comment
	query := `
		INSERT INTO comments (id, viewer_id, subject_id, text)
		VALUES ($1, $2, $3, $4)
		RETURNING id, viewer_id, subject_id, text, created_at
	`
	err := r.db.GetContext(ctx, &comment, query, uuid.NewString(), viewerID, subjectID, text)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return &comment, nil
}

func (r *commentRepository) GetByID(ctx context.Context, commentID string) (*api.Comment, error) {
	var comment api.Comment
	query := `
		SELECT id, viewer_id, subject_id, text, created_at
		FROM comments
		WHERE id = $1
	`
	err := r.db.GetContext(ctx, &comment, query, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	return &comment, nil
}

func (r *commentRepository) Delete(ctx context.Context, commentID string) (string, error) {
	var subjectID string
	query := `DELETE FROM comments WHERE id = $1 RETURNING subject_id`
	err := r.db.GetContext(ctx, &subjectID, query, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", model.ErrCommentNotFound
	}
	if err != nil {
		return "", fmt.Errorf("delete comment: %w", err)
	}
	return subjectID, nil
}

func (r *commentRepository) ListBySubject(ctx context.Context, subjectID string) ([]api.Comment, error) {
	comments := []api.Comment{}
	query := `
		SELECT id, viewer_id, subject_id, text, created_at
		FROM comments
		WHERE subject_id = $1
		ORDER BY created_at DESC, id DESC
	`
	if err := r.db.SelectContext(ctx, &comments, query, subjectID); err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (r *commentRepository) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM comments WHERE subject_id = $1`
	if err := r.db.GetContext(ctx, &count, query, subjectID); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return count, nil
}
