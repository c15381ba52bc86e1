package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"bereal-backend/internal/models"
	"bereal-backend/internal/services"

	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	viewerKey contextKey = "viewer"
)

// AuthMiddleware creates a middleware for JWT authentication. It loads the
// caller's viewer record so handlers see a fresh last posted date.
func AuthMiddleware(userService *services.UserService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			viewer, err := Authenticate(r.Context(), parts[1], userService)
			if err != nil {
				if errors.Is(err, errUnauthorized) {
					respondError(w, "Invalid token", http.StatusUnauthorized)
					return
				}
				log.Error().Err(err).Msg("Failed to load viewer")
				respondError(w, "Failed to load user", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), viewer)))
		})
	}
}

var errUnauthorized = errors.New("unauthorized")

// Authenticate resolves a bearer token to the viewer it belongs to
func Authenticate(ctx context.Context, token string, userService *services.UserService) (*models.Viewer, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token required", errUnauthorized)
	}
	userID, err := userService.ValidateJWT(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	viewer, err := userService.GetViewer(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", errUnauthorized, err)
		}
		return nil, err
	}
	return viewer, nil
}

// IsUnauthorized reports whether err came from a rejected token
func IsUnauthorized(err error) bool {
	return errors.Is(err, errUnauthorized)
}

// WithViewer stores viewer in ctx
func WithViewer(ctx context.Context, viewer *models.Viewer) context.Context {
	ctx = context.WithValue(ctx, userIDKey, viewer.ID)
	return context.WithValue(ctx, viewerKey, viewer)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	userID, ok := ctx.Value(userIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

// GetViewer extracts the authenticated viewer from context
func GetViewer(ctx context.Context) *models.Viewer {
	viewer, _ := ctx.Value(viewerKey).(*models.Viewer)
	return viewer
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
