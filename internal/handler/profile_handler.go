package handler

import (
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ProfileHandler handles profile-related HTTP requests
type ProfileHandler struct {
	profileService *service.ProfileService
}

// NewProfileHandler creates a new ProfileHandler
func NewProfileHandler(profileService *service.ProfileService) *ProfileHandler {
	return &ProfileHandler{profileService: profileService}
}

// UpdateProfileRequest represents the update profile request. Omitted fields
// are left unchanged.
type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Currency *string `json:"currency"`
}

// GetProfile handles GET /api/v1/profile
func (h *ProfileHandler) GetProfile(c echo.Context) error {
	userID := middleware.GetUserID(c)

	user, err := h.profileService.GetProfile(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err, "get profile")
	}

	return c.JSON(http.StatusOK, toUserResponse(user))
}

// UpdateProfile handles PUT /api/v1/profile
func (h *ProfileHandler) UpdateProfile(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	if req.Name == nil && req.Currency == nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "name", Message: "At least one of name or currency is required"},
		})
	}

	user, err := h.profileService.UpdateProfile(c.Request().Context(), userID, service.UpdateProfileInput{
		Name:     req.Name,
		Currency: req.Currency,
	})
	if err != nil {
		return respondError(c, err, "update profile")
	}

	log.Info().Str("user_id", userID.String()).Msg("Profile updated")

	return c.JSON(http.StatusOK, toUserResponse(user))
}
