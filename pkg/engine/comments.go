package engine

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"vibesync/pkg/api"
)

// AddComment inserts an optimistic comment at the head of the subject's list
// and reconciles it against the service. On failure the optimistic record is
// removed: there is no previous value to restore, so rollback is deletion.
func (e *Engine) AddComment(ctx context.Context, subjectID, viewerID, text string) (api.Comment, error) {
	if viewerID == "" {
		return api.Comment{}, api.ErrUnauthenticated
	}
	if strings.TrimSpace(text) == "" || len(text) > api.MaxCommentLength {
		return api.Comment{}, api.ErrInvalidInput
	}

	k := key{SubjectID: subjectID, ViewerID: viewerID}
	optimistic := api.Comment{
		ID:         "optimistic-" + uuid.NewString(),
		ViewerID:   viewerID,
		SubjectID:  subjectID,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
		Optimistic: true,
	}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	ent.comments = append([]api.Comment{optimistic}, ent.comments...)
	st := e.store.applyLocked(ent, func(s *State) {
		s.CommentsCount++
		s.Error = ""
	})
	observers := e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
	log.Printf("[Engine] AddComment optimistic: subject=%s temp=%s", subjectID, optimistic.ID)

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.MutationTimeout)
	defer cancel()

	created, err := e.api.CreateComment(reqCtx, subjectID, viewerID, text)
	if err != nil {
		code := api.Code(err)

		e.store.mu.Lock()
		removeComment(ent, optimistic.ID)
		st := e.store.applyLocked(ent, func(s *State) {
			s.CommentsCount = maxZero(s.CommentsCount - 1)
			s.Error = code
		})
		observers := e.store.observersLocked(ent)
		e.store.mu.Unlock()

		e.notify(observers, st)
		e.persist(k, st)
		log.Printf("[Engine] AddComment FAILED, optimistic removed: subject=%s code=%s err=%v", subjectID, code, err)
		return api.Comment{}, err
	}

	e.store.mu.Lock()
	replaced := false
	for i := range ent.comments {
		if ent.comments[i].ID == optimistic.ID {
			ent.comments[i] = created
			replaced = true
			break
		}
	}
	if !replaced {
		// The optimistic copy was dropped by a concurrent list rebuild;
		// keep the confirmed comment visible.
		ent.comments = append([]api.Comment{created}, ent.comments...)
	}
	st = e.store.applyLocked(ent, func(s *State) { s.Error = "" })
	commentsCount := st.CommentsCount
	observers = e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
	e.persist(k, st)
	log.Printf("[Engine] AddComment OK: subject=%s comment=%s", subjectID, created.ID)

	// Denormalized aggregate on the subject document, best-effort. Losing
	// the counter is acceptable; losing the comment is not.
	e.patchCommentCount(ctx, subjectID, commentsCount, st.LikesCount)

	return created, nil
}

// DeleteComment optimistically removes a viewer-owned comment and deletes it
// remotely. On failure the list is recovered by a full refetch rather than
// reinsertion. A remote 404 counts as success.
func (e *Engine) DeleteComment(ctx context.Context, subjectID, viewerID, commentID string) error {
	if viewerID == "" {
		return api.ErrUnauthenticated
	}
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	ent := e.store.ensureLocked(k)
	var found bool
	for _, c := range ent.comments {
		if c.ID == commentID {
			// Ownership is also enforced remotely; this check is UX only.
			if c.ViewerID != viewerID {
				e.store.mu.Unlock()
				return api.ErrPermission
			}
			found = true
			break
		}
	}

	var st State
	var observers []func(State)
	if found {
		removeComment(ent, commentID)
		st = e.store.applyLocked(ent, func(s *State) {
			s.CommentsCount = maxZero(s.CommentsCount - 1)
			s.Error = ""
		})
		observers = e.store.observersLocked(ent)
	}
	e.store.mu.Unlock()

	if found {
		e.notify(observers, st)
		log.Printf("[Engine] DeleteComment optimistic: subject=%s comment=%s", subjectID, commentID)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.cfg.MutationTimeout)
	defer cancel()

	if err := e.api.DeleteComment(reqCtx, commentID); err != nil {
		code := api.Code(err)
		log.Printf("[Engine] DeleteComment FAILED: subject=%s comment=%s code=%s err=%v",
			subjectID, commentID, code, err)

		// Recovery is a full list resync, not reinsertion of the removed
		// record. A refetch failure leaves the previous good state; the next
		// resync repairs it.
		if refreshErr := e.RefreshComments(ctx, subjectID, viewerID); refreshErr != nil {
			log.Printf("[Engine] DeleteComment recovery refetch failed (ignored): subject=%s err=%v",
				subjectID, refreshErr)
		}

		e.store.mu.Lock()
		st := e.store.applyLocked(ent, func(s *State) { s.Error = code })
		observers := e.store.observersLocked(ent)
		e.store.mu.Unlock()

		e.notify(observers, st)
		e.persist(k, st)
		return err
	}

	e.store.mu.Lock()
	st = e.store.applyLocked(ent, func(s *State) { s.Error = "" })
	commentsCount := st.CommentsCount
	observers = e.store.observersLocked(ent)
	e.store.mu.Unlock()

	e.notify(observers, st)
	e.persist(k, st)
	log.Printf("[Engine] DeleteComment OK: subject=%s comment=%s", subjectID, commentID)

	e.patchCommentCount(ctx, subjectID, commentsCount, st.LikesCount)
	return nil
}

// Comments returns a copy of the subject's comment list, newest first.
// Optimistic entries carry Optimistic=true until confirmed.
func (e *Engine) Comments(subjectID, viewerID string) []api.Comment {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	e.store.mu.Lock()
	defer e.store.mu.Unlock()

	ent := e.store.ensureLocked(k)
	out := make([]api.Comment, len(ent.comments))
	copy(out, ent.comments)
	return out
}

// RefreshComments replaces the subject's comment list with the server's,
// preserving local optimistic entries still awaiting confirmation at the
// head. Concurrent calls for the same pair are collapsed.
func (e *Engine) RefreshComments(ctx context.Context, subjectID, viewerID string) error {
	k := key{SubjectID: subjectID, ViewerID: viewerID}

	_, err, _ := e.refreshGroup.Do("comments\x00"+k.String(), func() (interface{}, error) {
		comments, err := e.api.ListComments(ctx, subjectID)
		if err != nil {
			return nil, err
		}

		e.store.mu.Lock()
		ent := e.store.ensureLocked(k)
		var pending []api.Comment
		for _, c := range ent.comments {
			if c.Optimistic {
				pending = append(pending, c)
			}
		}
		ent.comments = append(pending, comments...)
		st := e.store.applyLocked(ent, func(s *State) {
			s.CommentsCount = len(ent.comments)
		})
		observers := e.store.observersLocked(ent)
		e.store.mu.Unlock()

		e.notify(observers, st)
		e.persist(k, st)
		return nil, nil
	})
	return err
}

// patchCommentCount pushes the denormalized counters to the subject
// document. One retry with the full payload shape, then the failure is
// dropped: counter drift is accepted, surfacing it is not worth a user-facing
// error.
func (e *Engine) patchCommentCount(ctx context.Context, subjectID string, commentsCount, likesCount int) {
	patchCtx, cancel := context.WithTimeout(ctx, e.cfg.MutationTimeout)
	defer cancel()

	sparse := api.SubjectCountsPatch{CommentsCount: &commentsCount}
	err := e.api.UpdateSubjectCounts(patchCtx, subjectID, sparse)
	if err == nil {
		return
	}
	log.Printf("[Engine] Subject counter patch failed, retrying with full shape: subject=%s err=%v", subjectID, err)

	full := api.SubjectCountsPatch{CommentsCount: &commentsCount, LikesCount: &likesCount}
	if err := e.api.UpdateSubjectCounts(patchCtx, subjectID, full); err != nil {
		log.Printf("[Engine] Subject counter patch dropped: subject=%s err=%v", subjectID, err)
	}
}

// removeComment drops a comment from the entry's list by id.
func removeComment(ent *entry, commentID string) {
	for i, c := range ent.comments {
		if c.ID == commentID {
			ent.comments = append(ent.comments[:i], ent.comments[i+1:]...)
			return
		}
	}
}
