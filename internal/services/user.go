package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"bereal-backend/internal/cache"
	"bereal-backend/internal/models"
	"bereal-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 365

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.]{3,30}$`)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidUsername = errors.New("username must be 3-30 letters, digits, '_' or '.'")
	ErrUsernameTaken   = errors.New("username is already taken")
)

// UserStore persists users
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
	UpdateLastPostedDate(ctx context.Context, userID string, at time.Time) error
	ListPushTokens(ctx context.Context, excludeID string) ([]string, error)
}

// UserService handles user-related business logic
type UserService struct {
	userRepo  UserStore
	cache     *cache.Cache
	viewerTTL time.Duration
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(userRepo UserStore, c *cache.Cache, viewerTTL time.Duration, jwtSecret string) *UserService {
	return &UserService{
		userRepo:  userRepo,
		cache:     c,
		viewerTTL: viewerTTL,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// CreateUser registers a user and issues their token
func (s *UserService) CreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	exists, err := s.userRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if exists {
		return nil, ErrUsernameTaken
	}

	userID := uuid.New().String()

	token, err := s.GenerateJWT(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user := &models.User{
		ID:        userID,
		Username:  username,
		CreatedAt: time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	user.Token = token
	return user, nil
}

// GetUser loads a user, going through the viewer cache
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.cache.CacheAside(ctx, cache.ViewerKey(userID), &user, s.viewerTTL, func() error {
		u, err := s.userRepo.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		user = *u
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetViewer loads the session view of a user
func (s *UserService) GetViewer(ctx context.Context, userID string) (*models.Viewer, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.Viewer(), nil
}

// UpdatePushToken stores the device token used for push notifications
func (s *UserService) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	if err := s.userRepo.UpdatePushToken(ctx, userID, pushToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// RecordPost sets the user's last posted date
func (s *UserService) RecordPost(ctx context.Context, userID string, at time.Time) error {
	if err := s.userRepo.UpdateLastPostedDate(ctx, userID, at); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// ListPushTokens returns the device tokens of every user except excludeID
func (s *UserService) ListPushTokens(ctx context.Context, excludeID string) ([]string, error) {
	return s.userRepo.ListPushTokens(ctx, excludeID)
}

func (s *UserService) invalidate(ctx context.Context, userID string) {
	if err := s.cache.Invalidate(ctx, cache.ViewerKey(userID)); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Failed to invalidate cached viewer")
	}
}
