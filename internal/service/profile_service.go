package service

import (
	"context"
	"strings"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
)

// ProfileService handles profile-related business logic
type ProfileService struct {
	userRepo domain.UserRepository
}

// NewProfileService creates a new ProfileService
func NewProfileService(userRepo domain.UserRepository) *ProfileService {
	return &ProfileService{userRepo: userRepo}
}

// UpdateProfileInput holds the editable profile fields; nil leaves a field as is
type UpdateProfileInput struct {
	Name     *string
	Currency *string
}

// GetProfile retrieves a user's profile
func (s *ProfileService) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// UpdateProfile updates a user's display name and preferred currency
func (s *ProfileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*domain.User, error) {
	var name, currency *string
	if input.Name != nil {
		n, err := validateName(*input.Name)
		if err != nil {
			return nil, err
		}
		name = &n
	}
	if input.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*input.Currency))
		if len(c) != domain.MaxCurrencyLength {
			return nil, domain.NewValidationError("currency", "must be a 3-letter currency code")
		}
		currency = &c
	}
	return s.userRepo.UpdateProfile(ctx, userID, name, currency)
}
