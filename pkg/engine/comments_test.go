package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"vibesync/pkg/api"
)

// =============================================================================
// ADD COMMENT TESTS
// =============================================================================

func TestAddComment_OptimisticThenConfirm(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})

	mock := &mockAPI{
		createCommentFn: func(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
			close(inFlight)
			<-release
			return api.Comment{
				ID:        "comment-1",
				ViewerID:  viewerID,
				SubjectID: subjectID,
				Text:      text,
				CreatedAt: time.Now().UTC(),
			}, nil
		},
	}
	e := newTestEngine(mock)

	done := make(chan struct{})
	var created api.Comment
	var err error
	go func() {
		created, err = e.AddComment(context.Background(), "subject-1", "viewer-1", "hello")
		close(done)
	}()

	<-inFlight
	comments := e.Comments("subject-1", "viewer-1")
	if len(comments) != 1 {
		t.Fatalf("got %d comments in flight, want 1", len(comments))
	}
	if !comments[0].Optimistic {
		t.Error("expected in-flight comment to be marked optimistic")
	}
	if !strings.HasPrefix(comments[0].ID, "optimistic-") {
		t.Errorf("optimistic ID = %q, want optimistic- prefix", comments[0].ID)
	}
	if st := e.State("subject-1", "viewer-1"); st.CommentsCount != 1 {
		t.Errorf("optimistic CommentsCount = %d, want 1", st.CommentsCount)
	}

	close(release)
	<-done

	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if created.ID != "comment-1" {
		t.Errorf("created ID = %q, want %q", created.ID, "comment-1")
	}

	comments = e.Comments("subject-1", "viewer-1")
	if len(comments) != 1 {
		t.Fatalf("got %d comments after confirm, want 1", len(comments))
	}
	if comments[0].ID != "comment-1" {
		t.Errorf("confirmed ID = %q, want server ID %q", comments[0].ID, "comment-1")
	}
	if comments[0].Optimistic {
		t.Error("confirmed comment should not be marked optimistic")
	}
}

func TestAddComment_RemovedOnFailure(t *testing.T) {
	mock := &mockAPI{
		createCommentFn: func(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
			return api.Comment{}, api.ErrTransient
		},
	}
	e := newTestEngine(mock)

	_, err := e.AddComment(context.Background(), "subject-1", "viewer-1", "hello")
	if !errors.Is(err, api.ErrTransient) {
		t.Fatalf("expected transient error, got: %v", err)
	}

	if comments := e.Comments("subject-1", "viewer-1"); len(comments) != 0 {
		t.Errorf("got %d comments after failure, want 0", len(comments))
	}
	st := e.State("subject-1", "viewer-1")
	if st.CommentsCount != 0 {
		t.Errorf("CommentsCount = %d after failure, want 0", st.CommentsCount)
	}
	if st.Error != api.CodeTransient {
		t.Errorf("Error = %q, want %q", st.Error, api.CodeTransient)
	}
}

func TestAddComment_Validation(t *testing.T) {
	mock := &mockAPI{}
	e := newTestEngine(mock)

	cases := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t "},
		{"too long", strings.Repeat("a", api.MaxCommentLength+1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.AddComment(context.Background(), "subject-1", "viewer-1", tc.text)
			if !errors.Is(err, api.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got: %v", err)
			}
		})
	}

	mock.mu.Lock()
	calls := mock.createCalls
	mock.mu.Unlock()
	if calls != 0 {
		t.Errorf("CreateComment called %d times for invalid input, want 0", calls)
	}
}

func TestAddComment_RequiresViewer(t *testing.T) {
	e := newTestEngine(&mockAPI{})

	_, err := e.AddComment(context.Background(), "subject-1", "", "hello")
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got: %v", err)
	}
}

func TestAddComment_PatchesSubjectCounter(t *testing.T) {
	var patched *api.SubjectCountsPatch
	mock := &mockAPI{
		createCommentFn: func(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
			return api.Comment{ID: "comment-1", ViewerID: viewerID, SubjectID: subjectID, Text: text}, nil
		},
		updateCountsFn: func(ctx context.Context, subjectID string, patch api.SubjectCountsPatch) error {
			patched = &patch
			return nil
		},
	}
	e := newTestEngine(mock)

	if _, err := e.AddComment(context.Background(), "subject-1", "viewer-1", "hello"); err != nil {
		t.Fatalf("add comment failed: %v", err)
	}

	if patched == nil {
		t.Fatal("expected subject counter patch after confirmed comment")
	}
	if patched.CommentsCount == nil || *patched.CommentsCount != 1 {
		t.Errorf("patched CommentsCount = %v, want 1", patched.CommentsCount)
	}
}

func TestAddComment_PatchRetriesFullShape(t *testing.T) {
	var shapes []api.SubjectCountsPatch
	mock := &mockAPI{
		createCommentFn: func(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
			return api.Comment{ID: "comment-1", ViewerID: viewerID, SubjectID: subjectID, Text: text}, nil
		},
		updateCountsFn: func(ctx context.Context, subjectID string, patch api.SubjectCountsPatch) error {
			shapes = append(shapes, patch)
			if len(shapes) == 1 {
				return api.ErrInvalidInput
			}
			return nil
		},
	}
	e := newTestEngine(mock)

	if _, err := e.AddComment(context.Background(), "subject-1", "viewer-1", "hello"); err != nil {
		t.Fatalf("add comment failed: %v", err)
	}

	if len(shapes) != 2 {
		t.Fatalf("got %d patch attempts, want 2", len(shapes))
	}
	if shapes[0].LikesCount != nil {
		t.Error("first attempt should be the sparse shape")
	}
	if shapes[1].LikesCount == nil || shapes[1].CommentsCount == nil {
		t.Error("retry should carry the full shape with both counters")
	}
}

// =============================================================================
// DELETE COMMENT TESTS
// =============================================================================

func seedComments(t *testing.T, e *Engine, mock *mockAPI, comments []api.Comment) {
	t.Helper()
	mock.mu.Lock()
	mock.listCommentsFn = func(ctx context.Context, subjectID string) ([]api.Comment, error) {
		return comments, nil
	}
	mock.mu.Unlock()
	if err := e.RefreshComments(context.Background(), "subject-1", "viewer-1"); err != nil {
		t.Fatalf("seed refresh failed: %v", err)
	}
}

func TestDeleteComment_OptimisticRemoval(t *testing.T) {
	mock := &mockAPI{}
	e := newTestEngine(mock)
	seedComments(t, e, mock, []api.Comment{
		{ID: "comment-1", ViewerID: "viewer-1", SubjectID: "subject-1", Text: "mine"},
		{ID: "comment-2", ViewerID: "viewer-2", SubjectID: "subject-1", Text: "theirs"},
	})

	if err := e.DeleteComment(context.Background(), "subject-1", "viewer-1", "comment-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	comments := e.Comments("subject-1", "viewer-1")
	if len(comments) != 1 || comments[0].ID != "comment-2" {
		t.Errorf("comments after delete = %v, want only comment-2", comments)
	}
	if st := e.State("subject-1", "viewer-1"); st.CommentsCount != 1 {
		t.Errorf("CommentsCount = %d, want 1", st.CommentsCount)
	}
}

func TestDeleteComment_NotOwner(t *testing.T) {
	mock := &mockAPI{}
	e := newTestEngine(mock)
	seedComments(t, e, mock, []api.Comment{
		{ID: "comment-1", ViewerID: "viewer-2", SubjectID: "subject-1", Text: "theirs"},
	})

	err := e.DeleteComment(context.Background(), "subject-1", "viewer-1", "comment-1")
	if !errors.Is(err, api.ErrPermission) {
		t.Fatalf("expected ErrPermission, got: %v", err)
	}

	mock.mu.Lock()
	deletes := mock.deleteCalls
	mock.mu.Unlock()
	if deletes != 0 {
		t.Errorf("DeleteComment called %d times, want 0", deletes)
	}

	if comments := e.Comments("subject-1", "viewer-1"); len(comments) != 1 {
		t.Errorf("got %d comments, want untouched 1", len(comments))
	}
}

func TestDeleteComment_FailureRecoversByRefetch(t *testing.T) {
	mock := &mockAPI{
		deleteCommentFn: func(ctx context.Context, commentID string) error {
			return api.ErrTransient
		},
	}
	e := newTestEngine(mock)
	seedComments(t, e, mock, []api.Comment{
		{ID: "comment-1", ViewerID: "viewer-1", SubjectID: "subject-1", Text: "mine"},
	})

	err := e.DeleteComment(context.Background(), "subject-1", "viewer-1", "comment-1")
	if !errors.Is(err, api.ErrTransient) {
		t.Fatalf("expected transient error, got: %v", err)
	}

	// Recovery is a refetch, which still lists the comment on the server.
	comments := e.Comments("subject-1", "viewer-1")
	if len(comments) != 1 || comments[0].ID != "comment-1" {
		t.Errorf("comments after recovery = %v, want comment-1 restored", comments)
	}
	if st := e.State("subject-1", "viewer-1"); st.Error != api.CodeTransient {
		t.Errorf("Error = %q, want %q", st.Error, api.CodeTransient)
	}
}

// =============================================================================
// REFRESH COMMENTS TESTS
// =============================================================================

func TestRefreshComments_PreservesOptimisticAtHead(t *testing.T) {
	release := make(chan struct{})
	inFlight := make(chan struct{})

	mock := &mockAPI{
		createCommentFn: func(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
			close(inFlight)
			<-release
			return api.Comment{ID: "comment-new", ViewerID: viewerID, SubjectID: subjectID, Text: text}, nil
		},
		listCommentsFn: func(ctx context.Context, subjectID string) ([]api.Comment, error) {
			return []api.Comment{
				{ID: "comment-1", ViewerID: "viewer-2", SubjectID: subjectID, Text: "existing"},
			}, nil
		},
	}
	e := newTestEngine(mock)

	done := make(chan struct{})
	go func() {
		e.AddComment(context.Background(), "subject-1", "viewer-1", "pending")
		close(done)
	}()
	<-inFlight

	if err := e.RefreshComments(context.Background(), "subject-1", "viewer-1"); err != nil {
		t.Fatalf("refresh comments failed: %v", err)
	}

	comments := e.Comments("subject-1", "viewer-1")
	if len(comments) != 2 {
		t.Fatalf("got %d comments, want 2 (optimistic + server)", len(comments))
	}
	if !comments[0].Optimistic {
		t.Error("expected the optimistic comment to stay at the head")
	}
	if comments[1].ID != "comment-1" {
		t.Errorf("comments[1].ID = %q, want server comment", comments[1].ID)
	}

	close(release)
	<-done
}
