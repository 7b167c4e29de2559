package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"vibesync/internal/httputil"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// ViewerIDKey is the context key for the authenticated viewer's ID
	ViewerIDKey contextKey = "viewer_id"
)

// Auth creates a middleware that validates JWT bearer tokens and puts the
// viewer ID into the request context. Requests without a valid token are
// rejected with 401.
func Auth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewerID, err := viewerFromRequest(r, jwtSecret)
			if err != nil {
				httputil.WriteUnauthorized(w, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), ViewerIDKey, viewerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth resolves the viewer when a valid token is present but lets the
// request through anonymously otherwise. Read endpoints use this so counts
// are public while hasLiked is viewer-specific.
func OptionalAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			viewerID, err := viewerFromRequest(r, jwtSecret)
			if err == nil {
				ctx := context.WithValue(r.Context(), ViewerIDKey, viewerID)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetViewerIDFromContext extracts the viewer ID from the request context.
// Returns the viewer ID and true if found, or "" and false if not found.
func GetViewerIDFromContext(ctx context.Context) (string, bool) {
	viewerID, ok := ctx.Value(ViewerIDKey).(string)
	return viewerID, ok
}

// viewerFromRequest parses the bearer token and returns the viewer_id claim.
func viewerFromRequest(r *http.Request, jwtSecret string) (string, error) {
	var tokenString string

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			tokenString = parts[1]
		}
	}

	if tokenString == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", errInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", errInvalidToken
	}

	viewerID, ok := claims["viewer_id"].(string)
	if !ok || viewerID == "" {
		return "", errInvalidToken
	}

	return viewerID, nil
}

type authError string

func (e authError) Error() string { return string(e) }

const (
	errMissingToken = authError("Missing authentication token")
	errInvalidToken = authError("Invalid authentication token")
)
