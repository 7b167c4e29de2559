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

type SubjectHandler struct {
	interactions *service.InteractionService
}

func NewSubjectHandler(interactions *service.InteractionService) *SubjectHandler {
	return &SubjectHandler{
		interactions: interactions,
	}
}

// Create handles POST /subjects
// Registers a new interaction subject for a profile.
func (h *SubjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	if _, ok := middleware.GetViewerIDFromContext(r.Context()); !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req api.CreateSubjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.ProfileID == "" {
		httputil.WriteBadRequest(w, "Profile ID is required")
		return
	}

	subject, err := h.interactions.CreateSubject(r.Context(), req.ProfileID)
	if err != nil {
		log.Printf("[ERROR] Create subject handler: profile=%s err=%v", req.ProfileID, err)
		httputil.WriteInternalError(w, "Failed to create subject")
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, subject)
}

// Get handles GET /subjects/{id}
// Returns the subject with its denormalized aggregate counts.
func (h *SubjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "id")

	subject, err := h.interactions.GetSubject(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, model.ErrSubjectNotFound) {
			httputil.WriteNotFound(w, "Subject not found")
			return
		}
		log.Printf("[ERROR] Get subject handler: subject=%s err=%v", subjectID, err)
		httputil.WriteInternalError(w, "Failed to get subject")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, subject)
}

// PatchCounts handles PATCH /subjects/{id}
// Overwrites the subject's denormalized counters. Accepts a sparse body
// (either counter alone) or the full shape.
func (h *SubjectHandler) PatchCounts(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.GetViewerIDFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	subjectID := chi.URLParam(r, "id")

	var patch api.SubjectCountsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	err := h.interactions.PatchCounts(r.Context(), subjectID, patch)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSubjectNotFound):
			httputil.WriteNotFound(w, "Subject not found")
		case errors.Is(err, model.ErrEmptyPatch):
			httputil.WriteBadRequest(w, "Patch body has no counter fields")
		default:
			log.Printf("[ERROR] Patch counts handler: viewer=%s subject=%s err=%v", viewerID, subjectID, err)
			httputil.WriteInternalError(w, "Failed to update counts")
		}
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Counts updated successfully",
	})
}
