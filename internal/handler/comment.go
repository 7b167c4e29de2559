package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"vibesync/internal/httputil"
	"vibesync/internal/model"
	"vibesync/internal/service"
	"vibesync/internal/transport/http/middleware"
	"vibesync/pkg/api"
)

type CommentHandler struct {
	interactions *service.InteractionService
}

func NewCommentHandler(interactions *service.InteractionService) *CommentHandler {
	return &CommentHandler{
		interactions: interactions,
	}
}

// Create handles POST /comments
// Creates a comment on a subject for the authenticated viewer.
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req api.CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.SubjectID == "" {
		httputil.WriteBadRequest(w, "Subject ID is required")
		return
	}
	if req.ViewerID != "" && req.ViewerID != viewerID {
		httputil.WriteForbidden(w, "Viewer ID does not match token")
		return
	}

	comment, err := h.interactions.CreateComment(r.Context(), req.SubjectID, viewerID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSubjectNotFound):
			httputil.WriteNotFound(w, "Subject not found")
		case errors.Is(err, model.ErrTextRequired):
			httputil.WriteBadRequest(w, "Comment text is required")
		case errors.Is(err, model.ErrTextTooLong):
			httputil.WriteBadRequest(w, "Comment text too long")
		default:
			log.Printf("[ERROR] Create comment handler: viewer=%s subject=%s err=%v", viewerID, req.SubjectID, err)
			httputil.WriteInternalError(w, "Failed to create comment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, comment)
}

// Delete handles DELETE /comments/{id}
// Deletes a comment (only the owner can delete).
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	commentID := chi.URLParam(r, "id")
	if commentID == "" {
		httputil.WriteBadRequest(w, "Comment ID is required")
		return
	}

	err := h.interactions.DeleteComment(r.Context(), commentID, viewerID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCommentNotFound):
			httputil.WriteNotFound(w, "Comment not found")
		case errors.Is(err, model.ErrNotCommentOwner):
			httputil.WriteForbidden(w, "You can only delete your own comments")
		default:
			log.Printf("[ERROR] Delete comment handler: viewer=%s comment=%s err=%v", viewerID, commentID, err)
			httputil.WriteInternalError(w, "Failed to delete comment")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Comment deleted successfully",
	})
}

// List handles GET /comments?subjectId=...
// Returns all comments for a subject, newest first.
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subjectId")
	if subjectID == "" {
		httputil.WriteBadRequest(w, "subjectId query parameter is required")
		return
	}

	comments, err := h.interactions.ListComments(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, model.ErrSubjectNotFound) {
			httputil.WriteNotFound(w, "Subject not found")
			return
		}
		log.Printf("[ERROR] List comments handler: subject=%s err=%v", subjectID, err)
		httputil.WriteInternalError(w, "Failed to get comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, api.CommentListResponse{Comments: comments})
}
