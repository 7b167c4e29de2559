package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vibesync/internal/handler"
	"vibesync/internal/httputil"
	"vibesync/internal/realtime"
	authmw "vibesync/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	LikeHandler    *handler.LikeHandler
	CommentHandler *handler.CommentHandler
	SubjectHandler *handler.SubjectHandler
	Hub            *realtime.Hub
	JWTSecret      string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Public reads with optional authentication: counts are public, the
	// hasLiked flag resolves only for an authenticated viewer
	r.With(authmw.OptionalAuth(cfg.JWTSecret)).Get("/likes", cfg.LikeHandler.Get)
	r.With(authmw.OptionalAuth(cfg.JWTSecret)).Get("/comments", cfg.CommentHandler.List)
	r.With(authmw.OptionalAuth(cfg.JWTSecret)).Get("/subjects/{id}", cfg.SubjectHandler.Get)

	// Realtime count updates over websocket
	if cfg.Hub != nil {
		r.Get("/realtime", cfg.Hub.ServeHTTP)
	}

	// Protected routes - require authentication
	r.Group(func(r chi.Router) {
		r.Use(authmw.Auth(cfg.JWTSecret))

		r.Post("/likes/toggle", cfg.LikeHandler.Toggle)

		r.Post("/comments", cfg.CommentHandler.Create)
		r.Delete("/comments/{id}", cfg.CommentHandler.Delete)

		r.Post("/subjects", cfg.SubjectHandler.Create)
		r.Patch("/subjects/{id}", cfg.SubjectHandler.PatchCounts)
	})

	return r
}
