package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"

	"vibesync/internal/cache"
	"vibesync/internal/model"
	"vibesync/internal/queue"
	"vibesync/internal/repository"
	"vibesync/pkg/api"
)

// InteractionService owns likes, comments and subject aggregates.
type InteractionService struct {
	subjectRepo repository.SubjectRepository
	likeRepo    repository.LikeRepository
	commentRepo repository.CommentRepository
	db          *sqlx.DB
	countCache  cache.CountCache // Can be nil if redis not wired
	publisher   queue.Publisher  // Can be nil if queue not wired
}

func NewInteractionService(
	subjectRepo repository.SubjectRepository,
	likeRepo repository.LikeRepository,
	commentRepo repository.CommentRepository,
	db *sqlx.DB,
) *InteractionService {
	return &InteractionService{
		subjectRepo: subjectRepo,
		likeRepo:    likeRepo,
		commentRepo: commentRepo,
		db:          db,
	}
}

// SetCountCache wires the hot count cache (optional).
func (s *InteractionService) SetCountCache(c cache.CountCache) {
	s.countCache = c
}

// SetPublisher wires the event publisher (optional).
func (s *InteractionService) SetPublisher(p queue.Publisher) {
	s.publisher = p
}

// CreateSubject registers a new interaction subject.
func (s *InteractionService) CreateSubject(ctx context.Context, profileID string) (*api.Subject, error) {
	if strings.TrimSpace(profileID) == "" {
		return nil, fmt.Errorf("profile id is required")
	}

	subject, err := s.subjectRepo.Create(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("create subject: %w", err)
	}

	log.Printf("[InteractionService] Subject created: subject=%s profile=%s", subject.ID, profileID)
	return subject, nil
}

// GetSubject returns a subject with its denormalized aggregates.
func (s *InteractionService) GetSubject(ctx context.Context, subjectID string) (*api.Subject, error) {
	return s.subjectRepo.GetByID(ctx, subjectID)
}

// ToggleLike flips the (viewer, subject) like inside a transaction and
// returns the authoritative state. Not idempotent: each call toggles.
func (s *InteractionService) ToggleLike(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
	exists, err := s.subjectRepo.Exists(ctx, subjectID)
	if err != nil {
		return api.LikeStatus{}, fmt.Errorf("check subject exists: %w", err)
	}
	if !exists {
		return api.LikeStatus{}, model.ErrSubjectNotFound
	}

	liked, err := s.likeRepo.Exists(ctx, viewerID, subjectID)
	if err != nil {
		return api.LikeStatus{}, fmt.Errorf("check like exists: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return api.LikeStatus{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if liked {
		if err := s.likeRepo.Delete(ctx, tx, viewerID, subjectID); err != nil {
			return api.LikeStatus{}, err
		}
		count, err = s.subjectRepo.IncrementLikeCount(ctx, tx, subjectID, -1)
	} else {
		if err := s.likeRepo.Create(ctx, tx, viewerID, subjectID); err != nil {
			return api.LikeStatus{}, err
		}
		count, err = s.subjectRepo.IncrementLikeCount(ctx, tx, subjectID, 1)
	}
	if err != nil {
		return api.LikeStatus{}, err
	}

	if err := tx.Commit(); err != nil {
		return api.LikeStatus{}, fmt.Errorf("commit transaction: %w", err)
	}

	hasLiked := !liked
	log.Printf("[InteractionService] Viewer %s %s subject %s (count=%d)",
		viewerID, likeVerb(hasLiked), subjectID, count)

	// Write-through to the count cache and publish (after commit, best-effort)
	if s.countCache != nil {
		comments, err := s.commentRepo.CountBySubject(ctx, subjectID)
		if err == nil {
			if err := s.countCache.Set(ctx, subjectID, count, comments); err != nil {
				log.Printf("[InteractionService] Count cache write failed: %v", err)
			}
		}
	}
	if s.publisher != nil {
		event := queue.NewLikeEvent(subjectID, viewerID, hasLiked)
		if _, err := s.publisher.Publish(ctx, queue.StreamInteractions, event); err != nil {
			log.Printf("[InteractionService] Failed to publish like event: %v", err)
		}
	}

	return api.LikeStatus{HasLiked: hasLiked, Count: count}, nil
}

// GetLikes returns the count (cache first, DB on miss) and, when a viewer is
// given, whether that viewer has liked the subject.
func (s *InteractionService) GetLikes(ctx context.Context, subjectID, viewerID string) (api.LikeStatus, error) {
	var status api.LikeStatus

	var cached bool
	if s.countCache != nil {
		likes, _, found, err := s.countCache.Get(ctx, subjectID)
		if err != nil {
			log.Printf("[InteractionService] Count cache read failed: %v", err)
		} else if found {
			status.Count = likes
			cached = true
		}
	}

	if !cached {
		subject, err := s.subjectRepo.GetByID(ctx, subjectID)
		if err != nil {
			return api.LikeStatus{}, err
		}
		status.Count = subject.LikesCount

		// Warm the cache for the next read
		if s.countCache != nil {
			if err := s.countCache.Set(ctx, subjectID, subject.LikesCount, subject.CommentsCount); err != nil {
				log.Printf("[InteractionService] Count cache warm failed: %v", err)
			}
		}
	}

	if viewerID != "" {
		hasLiked, err := s.likeRepo.Exists(ctx, viewerID, subjectID)
		if err != nil {
			log.Printf("[InteractionService] Failed to check like status: %v", err)
		} else {
			status.HasLiked = hasLiked
		}
	}

	return status, nil
}

// CreateComment validates and stores a comment. The subject's denormalized
// comment counter is NOT touched here: clients own that aggregate via
// PATCH /subjects/{id}, and its drift is accepted.
func (s *InteractionService) CreateComment(ctx context.Context, subjectID, viewerID, text string) (*api.Comment, error) {
	if len(strings.TrimSpace(text)) == 0 {
		return nil, model.ErrTextRequired
	}
	if len(text) > api.MaxCommentLength {
		return nil, model.ErrTextTooLong
	}

	exists, err := s.subjectRepo.Exists(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("check subject exists: %w", err)
	}
	if !exists {
		return nil, model.ErrSubjectNotFound
	}

	comment, err := s.commentRepo.Create(ctx, viewerID, subjectID, text)
	if err != nil {
		return nil, err
	}

	log.Printf("[InteractionService] Viewer %s commented on subject %s", viewerID, subjectID)

	if s.publisher != nil {
		event := queue.NewCommentCreatedEvent(subjectID, viewerID, comment.ID)
		if _, err := s.publisher.Publish(ctx, queue.StreamInteractions, event); err != nil {
			log.Printf("[InteractionService] Failed to publish comment event: %v", err)
		}
	}

	return comment, nil
}

// DeleteComment removes a viewer-owned comment.
func (s *InteractionService) DeleteComment(ctx context.Context, commentID, viewerID string) error {
	comment, err := s.commentRepo.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.ViewerID != viewerID {
		return model.ErrNotCommentOwner
	}

	subjectID, err := s.commentRepo.Delete(ctx, commentID)
	if err != nil {
		return err
	}

	log.Printf("[InteractionService] Viewer %s deleted comment %s from subject %s",
		viewerID, commentID, subjectID)

	if s.publisher != nil {
		event := queue.NewCommentDeletedEvent(subjectID, viewerID, commentID)
		if _, err := s.publisher.Publish(ctx, queue.StreamInteractions, event); err != nil {
			log.Printf("[InteractionService] Failed to publish comment event: %v", err)
		}
	}

	return nil
}

// ListComments returns all comments for a subject, newest first.
func (s *InteractionService) ListComments(ctx context.Context, subjectID string) ([]api.Comment, error) {
	exists, err := s.subjectRepo.Exists(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("check subject exists: %w", err)
	}
	if !exists {
		return nil, model.ErrSubjectNotFound
	}

	return s.commentRepo.ListBySubject(ctx, subjectID)
}

// PatchCounts overwrites denormalized counters. Accepts both the sparse and
// the full payload shape.
func (s *InteractionService) PatchCounts(ctx context.Context, subjectID string, patch api.SubjectCountsPatch) error {
	if patch.LikesCount == nil && patch.CommentsCount == nil {
		return model.ErrEmptyPatch
	}

	if err := s.subjectRepo.SetCounts(ctx, subjectID, patch.LikesCount, patch.CommentsCount); err != nil {
		return err
	}

	// The cache may now be stale; drop it so the next read re-warms
	if s.countCache != nil {
		if err := s.countCache.Invalidate(ctx, subjectID); err != nil {
			log.Printf("[InteractionService] Count cache invalidate failed: %v", err)
		}
	}

	return nil
}

// GetAggregateCounts returns authoritative counts for a subject: likes from
// the transactionally maintained counter, comments counted from rows.
// Implements worker.CountsProvider.
func (s *InteractionService) GetAggregateCounts(ctx context.Context, subjectID string) (int, int, error) {
	subject, err := s.subjectRepo.GetByID(ctx, subjectID)
	if err != nil {
		return 0, 0, err
	}

	comments, err := s.commentRepo.CountBySubject(ctx, subjectID)
	if err != nil {
		return 0, 0, err
	}

	return subject.LikesCount, comments, nil
}

func likeVerb(liked bool) string {
	if liked {
		return "liked"
	}
	return "unliked"
}
