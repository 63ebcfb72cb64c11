package service

import (
	"context"
	"errors"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AuthService handles authentication-related business logic
type AuthService struct {
	userRepo domain.UserRepository
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo domain.UserRepository) *AuthService {
	return &AuthService{userRepo: userRepo}
}

// AuthResult represents the result of an authentication operation
type AuthResult struct {
	User      *domain.User
	IsNewUser bool
}

// AuthenticateUser handles the authentication flow after Auth0 callback.
// The user record is created on first login.
func (s *AuthService) AuthenticateUser(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*AuthResult, error) {
	existing, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err == nil {
		log.Info().Str("user_id", existing.ID.String()).Msg("Existing user authenticated")
		return &AuthResult{User: existing}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to get user")
		return nil, err
	}

	user, err := s.userRepo.CreateOrGetByAuth0ID(ctx, auth0ID, email, name, pictureURL)
	if err != nil {
		log.Error().Err(err).Str("auth0_id", auth0ID).Msg("Failed to create or get user")
		return nil, err
	}

	log.Info().Str("user_id", user.ID.String()).Msg("Created new user")
	return &AuthResult{User: user, IsNewUser: true}, nil
}

// GetUserByID retrieves a user by their ID
func (s *AuthService) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// GetUserByAuth0ID retrieves a user by their Auth0 ID
func (s *AuthService) GetUserByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	return s.userRepo.GetByAuth0ID(ctx, auth0ID)
}

// GetUserIDByAuth0ID resolves an Auth0 subject to the owning user's ID
func (s *AuthService) GetUserIDByAuth0ID(ctx context.Context, auth0ID string) (uuid.UUID, error) {
	user, err := s.userRepo.GetByAuth0ID(ctx, auth0ID)
	if err != nil {
		return uuid.Nil, err
	}
	return user.ID, nil
}
