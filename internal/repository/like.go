package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type likeRepository struct {
	db *sqlx.DB
}

func NewLikeRepository(db *sqlx.DB) LikeRepository {
	return &likeRepository{db: db}
}

func (r *likeRepository) Exists(ctx context.Context, viewerID, subjectID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM likes WHERE viewer_id = $1 AND subject_id = $2)`
	if err := r.db.GetContext(ctx, &exists, query, viewerID, subjectID); err != nil {
		return false, fmt.Errorf("check like exists: %w", err)
	}
	return exists, nil
}

// Create inserts the (viewer, subject) like row. The unique constraint makes
// a duplicate insert inside a racing toggle fail loudly instead of double
// counting.
func (r *likeRepository) Create(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error {
	query := `INSERT INTO likes (id, viewer_id, subject_id) VALUES ($1, $2, $3)`
	if _, err := tx.ExecContext(ctx, query, uuid.NewString(), viewerID, subjectID); err != nil {
		return fmt.Errorf("insert like: %w", err)
	}
	return nil
}

func (r *likeRepository) Delete(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error {
	query := `DELETE FROM likes WHERE viewer_id = $1 AND subject_id = $2`
	if _, err := tx.ExecContext(ctx, query, viewerID, subjectID); err != nil {
		return fmt.Errorf("delete like: %w", err)
	}
	return nil
}

func (r *likeRepository) Count(ctx context.Context, subjectID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM likes WHERE subject_id = $1`
	if err := r.db.GetContext(ctx, &count, query, subjectID); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return count, nil
}
