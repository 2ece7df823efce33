package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yukikurage/priority-matrix/internal/constants"
	"github.com/yukikurage/priority-matrix/internal/models"
	"github.com/yukikurage/priority-matrix/internal/repository"
)

var (
	ErrIdentityRequired = errors.New("identity subject is required")
	ErrUserNotFound     = errors.New("user not found")
)

// AuthService records users handed over by the external identity provider.
type AuthService struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// LoginInput is a profile the identity provider has already verified.
type LoginInput struct {
	ID       string
	Email    string
	Name     string
	Avatar   string
	Provider string
}

// Login upserts the user and advances its last login.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*models.User, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, ErrIdentityRequired
	}

	provider := strings.TrimSpace(input.Provider)
	if provider == "" {
		provider = constants.DefaultAuthProvider
	}

	now := s.now()
	user := &models.User{
		ID:        id,
		Email:     strings.TrimSpace(input.Email),
		Name:      strings.TrimSpace(input.Name),
		Avatar:    strings.TrimSpace(input.Avatar),
		Provider:  provider,
		CreatedAt: now,
		LastLogin: now,
	}

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}

	return s.GetUser(ctx, id)
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}
