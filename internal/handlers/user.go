package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"bereal-backend/internal/middleware"
	"bereal-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUserRequest is the body of POST /api/v1/users
type CreateUserRequest struct {
	Username string `json:"username"`
}

// PushTokenRequest is the body of PUT /api/v1/me/push-token
type PushTokenRequest struct {
	PushToken *string `json:"push_token"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.userService.CreateUser(ctx, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidUsername):
			respondError(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, services.ErrUsernameTaken):
			respondError(w, err.Error(), http.StatusConflict)
		default:
			log.Error().Err(err).Msg("Failed to create user")
			respondError(w, "Failed to create user", http.StatusInternalServerError)
		}
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("username", user.Username).
		Msg("User created")

	respondJSON(w, http.StatusCreated, user)
}

// Me handles GET /api/v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	user, err := h.userService.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user")
		respondError(w, "Failed to get user", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// UpdatePushToken handles PUT /api/v1/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.PushToken != nil && *req.PushToken == "" {
		req.PushToken = nil
	}

	if err := h.userService.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			respondError(w, err.Error(), http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondError(w, "Failed to update push token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
