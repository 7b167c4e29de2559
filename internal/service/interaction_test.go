package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"vibesync/internal/model"
	"vibesync/internal/queue"
	"vibesync/pkg/api"
)

// =============================================================================
// MOCK REPOSITORIES
// =============================================================================
//
// The service depends on repository interfaces, so tests swap in mocks whose
// behavior each test defines through function fields.

type mockSubjectRepo struct {
	createFn    func(ctx context.Context, profileID string) (*api.Subject, error)
	getByIDFn   func(ctx context.Context, subjectID string) (*api.Subject, error)
	existsFn    func(ctx context.Context, subjectID string) (bool, error)
	setCountsFn func(ctx context.Context, subjectID string, likesCount, commentsCount *int) error

	setCountsCalls int
}

func (m *mockSubjectRepo) Create(ctx context.Context, profileID string) (*api.Subject, error) {
	if m.createFn != nil {
		return m.createFn(ctx, profileID)
	}
	return &api.Subject{ID: "subject-1", ProfileID: profileID}, nil
}

func (m *mockSubjectRepo) GetByID(ctx context.Context, subjectID string) (*api.Subject, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, subjectID)
	}
	return nil, model.ErrSubjectNotFound
}

func (m *mockSubjectRepo) Exists(ctx context.Context, subjectID string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, subjectID)
	}
	return false, nil
}

func (m *mockSubjectRepo) IncrementLikeCount(ctx context.Context, tx *sqlx.Tx, subjectID string, delta int) (int, error) {
	return 0, errors.New("not implemented in mock")
}

func (m *mockSubjectRepo) SetCounts(ctx context.Context, subjectID string, likesCount, commentsCount *int) error {
	m.setCountsCalls++
	if m.setCountsFn != nil {
		return m.setCountsFn(ctx, subjectID, likesCount, commentsCount)
	}
	return nil
}

type mockLikeRepo struct {
	existsFn func(ctx context.Context, viewerID, subjectID string) (bool, error)
	countFn  func(ctx context.Context, subjectID string) (int, error)
}

func (m *mockLikeRepo) Exists(ctx context.Context, viewerID, subjectID string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, viewerID, subjectID)
	}
	return false, nil
}

func (m *mockLikeRepo) Create(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error {
	return errors.New("not implemented in mock")
}

func (m *mockLikeRepo) Delete(ctx context.Context, tx *sqlx.Tx, viewerID, subjectID string) error {
	return errors.New("not implemented in mock")
}

func (m *mockLikeRepo) Count(ctx context.Context, subjectID string) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, subjectID)
	}
	return 0, nil
}

type mockCommentRepo struct {
	createFn         func(ctx context.Context, viewerID, subjectID, text string) (*api.Comment, error)
	getByIDFn        func(ctx context.Context, commentID string) (*api.Comment, error)
	deleteFn         func(ctx context.Context, commentID string) (string, error)
	listBySubjectFn  func(ctx context.Context, subjectID string) ([]api.Comment, error)
	countBySubjectFn func(ctx context.Context, subjectID string) (int, error)

	deleteCalls int
}

func (m *mockCommentRepo) Create(ctx context.Context, viewerID, subjectID, text string) (*api.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, viewerID, subjectID, text)
	}
	return &api.Comment{ID: "comment-1", ViewerID: viewerID, SubjectID: subjectID, Text: text}, nil
}

func (m *mockCommentRepo) GetByID(ctx context.Context, commentID string) (*api.Comment, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, commentID)
	}
	return nil, model.ErrCommentNotFound
}

func (m *mockCommentRepo) Delete(ctx context.Context, commentID string) (string, error) {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, commentID)
	}
	return "", model.ErrCommentNotFound
}

func (m *mockCommentRepo) ListBySubject(ctx context.Context, subjectID string) ([]api.Comment, error) {
	if m.listBySubjectFn != nil {
		return m.listBySubjectFn(ctx, subjectID)
	}
	return nil, nil
}

func (m *mockCommentRepo) CountBySubject(ctx context.Context, subjectID string) (int, error) {
	if m.countBySubjectFn != nil {
		return m.countBySubjectFn(ctx, subjectID)
	}
	return 0, nil
}

// mockCountCache records cache traffic for assertions.
type mockCountCache struct {
	likes, comments int
	found           bool

	setCalls        int
	invalidateCalls int
}

func (m *mockCountCache) Get(ctx context.Context, subjectID string) (int, int, bool, error) {
	return m.likes, m.comments, m.found, nil
}

func (m *mockCountCache) Set(ctx context.Context, subjectID string, likes, comments int) error {
	m.setCalls++
	m.likes, m.comments, m.found = likes, comments, true
	return nil
}

func (m *mockCountCache) Invalidate(ctx context.Context, subjectID string) error {
	m.invalidateCalls++
	m.found = false
	return nil
}

// mockPublisher records published events.
type mockPublisher struct {
	events []queue.InteractionEvent
}

func (m *mockPublisher) Publish(ctx context.Context, stream string, event queue.InteractionEvent) (string, error) {
	m.events = append(m.events, event)
	return "1-0", nil
}

// =============================================================================
// CREATE COMMENT TESTS
// =============================================================================

func TestCreateComment_Success(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		existsFn: func(ctx context.Context, subjectID string) (bool, error) { return true, nil },
	}
	commentRepo := &mockCommentRepo{
		createFn: func(ctx context.Context, viewerID, subjectID, text string) (*api.Comment, error) {
			return &api.Comment{
				ID: "comment-1", ViewerID: viewerID, SubjectID: subjectID,
				Text: text, CreatedAt: time.Now(),
			}, nil
		},
	}
	pub := &mockPublisher{}

	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, commentRepo, nil)
	svc.SetPublisher(pub)

	comment, err := svc.CreateComment(context.Background(), "subject-1", "viewer-1", "nice track")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if comment.ID != "comment-1" {
		t.Errorf("comment ID = %q, want %q", comment.ID, "comment-1")
	}

	if len(pub.events) != 1 {
		t.Fatalf("published %d events, want 1", len(pub.events))
	}
	if pub.events[0].Type != queue.EventCommentCreated {
		t.Errorf("event type = %q, want %q", pub.events[0].Type, queue.EventCommentCreated)
	}
	if pub.events[0].CommentID != "comment-1" {
		t.Errorf("event comment ID = %q, want %q", pub.events[0].CommentID, "comment-1")
	}
}

func TestCreateComment_Validation(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		existsFn: func(ctx context.Context, subjectID string) (bool, error) { return true, nil },
	}
	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	cases := []struct {
		name string
		text string
		want error
	}{
		{"empty text", "", model.ErrTextRequired},
		{"whitespace only", "   ", model.ErrTextRequired},
		{"too long", strings.Repeat("a", api.MaxCommentLength+1), model.ErrTextTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateComment(context.Background(), "subject-1", "viewer-1", tc.text)
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCreateComment_SubjectNotFound(t *testing.T) {
	svc := NewInteractionService(&mockSubjectRepo{}, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	_, err := svc.CreateComment(context.Background(), "missing", "viewer-1", "hello")
	if !errors.Is(err, model.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got: %v", err)
	}
}

// =============================================================================
// DELETE COMMENT TESTS
// =============================================================================

func TestDeleteComment_Success(t *testing.T) {
	commentRepo := &mockCommentRepo{
		getByIDFn: func(ctx context.Context, commentID string) (*api.Comment, error) {
			return &api.Comment{ID: commentID, ViewerID: "viewer-1", SubjectID: "subject-1"}, nil
		},
		deleteFn: func(ctx context.Context, commentID string) (string, error) {
			return "subject-1", nil
		},
	}
	pub := &mockPublisher{}
	svc := NewInteractionService(&mockSubjectRepo{}, &mockLikeRepo{}, commentRepo, nil)
	svc.SetPublisher(pub)

	if err := svc.DeleteComment(context.Background(), "comment-1", "viewer-1"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != queue.EventCommentDeleted {
		t.Errorf("events = %+v, want one comment_deleted event", pub.events)
	}
}

func TestDeleteComment_NotOwner(t *testing.T) {
	commentRepo := &mockCommentRepo{
		getByIDFn: func(ctx context.Context, commentID string) (*api.Comment, error) {
			return &api.Comment{ID: commentID, ViewerID: "viewer-2", SubjectID: "subject-1"}, nil
		},
	}
	svc := NewInteractionService(&mockSubjectRepo{}, &mockLikeRepo{}, commentRepo, nil)

	err := svc.DeleteComment(context.Background(), "comment-1", "viewer-1")
	if !errors.Is(err, model.ErrNotCommentOwner) {
		t.Fatalf("expected ErrNotCommentOwner, got: %v", err)
	}
	if commentRepo.deleteCalls != 0 {
		t.Errorf("Delete called %d times, want 0", commentRepo.deleteCalls)
	}
}

func TestDeleteComment_NotFound(t *testing.T) {
	svc := NewInteractionService(&mockSubjectRepo{}, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	err := svc.DeleteComment(context.Background(), "missing", "viewer-1")
	if !errors.Is(err, model.ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got: %v", err)
	}
}

// =============================================================================
// GET LIKES TESTS
// =============================================================================

func TestGetLikes_CacheHit(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		getByIDFn: func(ctx context.Context, subjectID string) (*api.Subject, error) {
			t.Fatal("DB should not be read on a cache hit")
			return nil, nil
		},
	}
	likeRepo := &mockLikeRepo{
		existsFn: func(ctx context.Context, viewerID, subjectID string) (bool, error) {
			return true, nil
		},
	}
	cc := &mockCountCache{likes: 9, comments: 2, found: true}

	svc := NewInteractionService(subjectRepo, likeRepo, &mockCommentRepo{}, nil)
	svc.SetCountCache(cc)

	status, err := svc.GetLikes(context.Background(), "subject-1", "viewer-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if status.Count != 9 {
		t.Errorf("Count = %d, want cached 9", status.Count)
	}
	if !status.HasLiked {
		t.Error("expected HasLiked=true from like repo")
	}
}

func TestGetLikes_CacheMissFallsBackAndWarms(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		getByIDFn: func(ctx context.Context, subjectID string) (*api.Subject, error) {
			return &api.Subject{ID: subjectID, LikesCount: 6, CommentsCount: 4}, nil
		},
	}
	cc := &mockCountCache{}

	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, &mockCommentRepo{}, nil)
	svc.SetCountCache(cc)

	status, err := svc.GetLikes(context.Background(), "subject-1", "")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if status.Count != 6 {
		t.Errorf("Count = %d, want DB value 6", status.Count)
	}
	if status.HasLiked {
		t.Error("anonymous read should have HasLiked=false")
	}
	if cc.setCalls != 1 {
		t.Errorf("cache warmed %d times, want 1", cc.setCalls)
	}
	if cc.likes != 6 || cc.comments != 4 {
		t.Errorf("warmed cache = {likes=%d comments=%d}, want {6 4}", cc.likes, cc.comments)
	}
}

// =============================================================================
// TOGGLE LIKE TESTS (pre-transaction paths)
// =============================================================================

func TestToggleLike_SubjectNotFound(t *testing.T) {
	svc := NewInteractionService(&mockSubjectRepo{}, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	_, err := svc.ToggleLike(context.Background(), "missing", "viewer-1")
	if !errors.Is(err, model.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got: %v", err)
	}
}

// =============================================================================
// PATCH COUNTS TESTS
// =============================================================================

func TestPatchCounts_EmptyPatchRejected(t *testing.T) {
	subjectRepo := &mockSubjectRepo{}
	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	err := svc.PatchCounts(context.Background(), "subject-1", api.SubjectCountsPatch{})
	if !errors.Is(err, model.ErrEmptyPatch) {
		t.Fatalf("expected ErrEmptyPatch, got: %v", err)
	}
	if subjectRepo.setCountsCalls != 0 {
		t.Errorf("SetCounts called %d times, want 0", subjectRepo.setCountsCalls)
	}
}

func TestPatchCounts_SparseShapeInvalidatesCache(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		setCountsFn: func(ctx context.Context, subjectID string, likesCount, commentsCount *int) error {
			if likesCount != nil {
				t.Error("sparse comments-only patch should not carry likes")
			}
			if commentsCount == nil || *commentsCount != 5 {
				t.Errorf("commentsCount = %v, want 5", commentsCount)
			}
			return nil
		},
	}
	cc := &mockCountCache{found: true, likes: 1, comments: 1}

	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, &mockCommentRepo{}, nil)
	svc.SetCountCache(cc)

	comments := 5
	err := svc.PatchCounts(context.Background(), "subject-1", api.SubjectCountsPatch{CommentsCount: &comments})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cc.invalidateCalls != 1 {
		t.Errorf("cache invalidated %d times, want 1", cc.invalidateCalls)
	}
}

func TestPatchCounts_SubjectNotFound(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		setCountsFn: func(ctx context.Context, subjectID string, likesCount, commentsCount *int) error {
			return model.ErrSubjectNotFound
		},
	}
	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, &mockCommentRepo{}, nil)

	likes := 1
	err := svc.PatchCounts(context.Background(), "missing", api.SubjectCountsPatch{LikesCount: &likes})
	if !errors.Is(err, model.ErrSubjectNotFound) {
		t.Fatalf("expected ErrSubjectNotFound, got: %v", err)
	}
}

// =============================================================================
// AGGREGATE COUNTS TESTS
// =============================================================================

func TestGetAggregateCounts(t *testing.T) {
	subjectRepo := &mockSubjectRepo{
		getByIDFn: func(ctx context.Context, subjectID string) (*api.Subject, error) {
			return &api.Subject{ID: subjectID, LikesCount: 11}, nil
		},
	}
	commentRepo := &mockCommentRepo{
		countBySubjectFn: func(ctx context.Context, subjectID string) (int, error) {
			return 7, nil
		},
	}
	svc := NewInteractionService(subjectRepo, &mockLikeRepo{}, commentRepo, nil)

	likes, comments, err := svc.GetAggregateCounts(context.Background(), "subject-1")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if likes != 11 || comments != 7 {
		t.Errorf("counts = {likes=%d comments=%d}, want {11 7}", likes, comments)
	}
}
