package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"vibesync/internal/httputil"
	"vibesync/internal/model"
	"vibesync/internal/service"
	"vibesync/internal/transport/http/middleware"
	"vibesync/pkg/api"
)

type LikeHandler struct {
	interactions *service.InteractionService
}

func NewLikeHandler(interactions *service.InteractionService) *LikeHandler {
	return &LikeHandler{
		interactions: interactions,
	}
}

// Toggle handles POST /likes/toggle
// Flips the authenticated viewer's like on a subject and returns the
// authoritative state.
func (h *LikeHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req api.ToggleLikeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.SubjectID == "" {
		httputil.WriteBadRequest(w, "Subject ID is required")
		return
	}
	// The body names a viewer for auditability; it must match the token
	if req.ViewerID != "" && req.ViewerID != viewerID {
		httputil.WriteForbidden(w, "Viewer ID does not match token")
		return
	}

	status, err := h.interactions.ToggleLike(r.Context(), req.SubjectID, viewerID)
	if err != nil {
		if errors.Is(err, model.ErrSubjectNotFound) {
			httputil.WriteNotFound(w, "Subject not found")
			return
		}
		log.Printf("[ERROR] Toggle like handler: viewer=%s subject=%s err=%v", viewerID, req.SubjectID, err)
		httputil.WriteInternalError(w, "Failed to toggle like")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}

// Get handles GET /likes?subjectId=...
// Returns the like count and, when the request carries a valid token, whether
// that viewer has liked the subject.
func (h *LikeHandler) Get(w http.ResponseWriter, r *http.Request) {
	subjectID := r.URL.Query().Get("subjectId")
	if subjectID == "" {
		httputil.WriteBadRequest(w, "subjectId query parameter is required")
		return
	}

	// Anonymous reads are fine; hasLiked stays false without a viewer
	viewerID, _ := middleware.GetViewerIDFromContext(r.Context())

	status, err := h.interactions.GetLikes(r.Context(), subjectID, viewerID)
	if err != nil {
		if errors.Is(err, model.ErrSubjectNotFound) {
			httputil.WriteNotFound(w, "Subject not found")
			return
		}
		log.Printf("[ERROR] Get likes handler: subject=%s err=%v", subjectID, err)
		httputil.WriteInternalError(w, "Failed to get likes")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, status)
}
