package handler

import (
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// GoalHandler handles savings goal HTTP requests
type GoalHandler struct {
	goalService *service.GoalService
}

// NewGoalHandler creates a new GoalHandler
func NewGoalHandler(goalService *service.GoalService) *GoalHandler {
	return &GoalHandler{goalService: goalService}
}

// AutoSaveRequest configures a goal's auto-save policy
type AutoSaveRequest struct {
	Enabled   bool    `json:"enabled"`
	Amount    string  `json:"amount"`
	Frequency string  `json:"frequency"`
	StartDate *string `json:"startDate,omitempty"`
}

// CreateGoalRequest represents the create goal request body
type CreateGoalRequest struct {
	Name         string           `json:"name"`
	Description  *string          `json:"description,omitempty"`
	TargetAmount string           `json:"targetAmount"`
	Currency     string           `json:"currency"`
	Deadline     string           `json:"deadline"`
	AutoSave     *AutoSaveRequest `json:"autoSave,omitempty"`
}

// UpdateGoalRequest represents the update goal request body
type UpdateGoalRequest struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	TargetAmount *string          `json:"targetAmount,omitempty"`
	Deadline     *string          `json:"deadline,omitempty"`
	AutoSave     *AutoSaveRequest `json:"autoSave,omitempty"`
}

// ContributeRequest represents a contribution to a goal
type ContributeRequest struct {
	Amount      string  `json:"amount"`
	Source      string  `json:"source,omitempty"`
	Description *string `json:"description,omitempty"`
}

func parseAutoSave(req *AutoSaveRequest) (*service.AutoSaveInput, error) {
	if req == nil {
		return nil, nil
	}
	input := &service.AutoSaveInput{
		Enabled:   req.Enabled,
		Frequency: domain.Frequency(req.Frequency),
	}
	if req.Enabled || req.Amount != "" {
		amount, err := parseAmount("autoSave.amount", req.Amount)
		if err != nil {
			return nil, err
		}
		input.Amount = amount
	}
	start, err := parseOptionalDate("autoSave.startDate", req.StartDate)
	if err != nil {
		return nil, err
	}
	input.StartDate = start
	return input, nil
}

// CreateGoal handles POST /api/v1/goals
// @Summary Create a savings goal
// @Tags goals
// @Accept json
// @Produce json
// @Param request body CreateGoalRequest true "Goal"
// @Success 201 {object} service.GoalView
// @Failure 400 {object} ProblemDetails
// @Router /goals [post]
func (h *GoalHandler) CreateGoal(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req CreateGoalRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	target, err := parseAmount("targetAmount", req.TargetAmount)
	if err != nil {
		return respondParamError(c, err)
	}
	deadline, err := parseDate("deadline", req.Deadline)
	if err != nil {
		return respondParamError(c, err)
	}
	autoSave, err := parseAutoSave(req.AutoSave)
	if err != nil {
		return respondParamError(c, err)
	}

	goal, err := h.goalService.CreateGoal(c.Request().Context(), userID, service.CreateGoalInput{
		Name:         req.Name,
		Description:  req.Description,
		TargetAmount: target,
		Currency:     req.Currency,
		Deadline:     deadline,
		AutoSave:     autoSave,
	})
	if err != nil {
		return respondError(c, err, "create goal")
	}

	log.Info().Str("user_id", userID.String()).Int32("goal_id", goal.ID).Msg("Goal created")
	return c.JSON(http.StatusCreated, goal)
}

// ListGoals handles GET /api/v1/goals
func (h *GoalHandler) ListGoals(c echo.Context) error {
	goals, err := h.goalService.ListGoals(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err, "list goals")
	}
	return c.JSON(http.StatusOK, goals)
}

// GetGoal handles GET /api/v1/goals/:id
func (h *GoalHandler) GetGoal(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	goal, err := h.goalService.GetGoal(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "get goal")
	}
	return c.JSON(http.StatusOK, goal)
}

// UpdateGoal handles PUT /api/v1/goals/:id
func (h *GoalHandler) UpdateGoal(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req UpdateGoalRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input := service.UpdateGoalInput{
		Name:        req.Name,
		Description: req.Description,
	}
	if input.TargetAmount, err = parseOptionalAmount("targetAmount", req.TargetAmount); err != nil {
		return respondParamError(c, err)
	}
	if input.Deadline, err = parseOptionalDate("deadline", req.Deadline); err != nil {
		return respondParamError(c, err)
	}
	if input.AutoSave, err = parseAutoSave(req.AutoSave); err != nil {
		return respondParamError(c, err)
	}

	goal, err := h.goalService.UpdateGoal(c.Request().Context(), middleware.GetUserID(c), id, input)
	if err != nil {
		return respondError(c, err, "update goal")
	}
	return c.JSON(http.StatusOK, goal)
}

// DeleteGoal handles DELETE /api/v1/goals/:id
func (h *GoalHandler) DeleteGoal(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	if err := h.goalService.DeleteGoal(c.Request().Context(), userID, id); err != nil {
		return respondError(c, err, "delete goal")
	}

	log.Info().Str("user_id", userID.String()).Int32("goal_id", id).Msg("Goal deleted")
	return c.NoContent(http.StatusNoContent)
}

// Contribute handles POST /api/v1/goals/:id/contributions
// @Summary Contribute to a goal
// @Description Amounts above the remaining target are truncated; the response reports whether that happened.
// @Tags goals
// @Accept json
// @Produce json
// @Param id path int true "Goal ID"
// @Param request body ContributeRequest true "Contribution"
// @Success 200 {object} service.ContributionResult
// @Failure 400 {object} ProblemDetails
// @Failure 404 {object} ProblemDetails
// @Router /goals/{id}/contributions [post]
func (h *GoalHandler) Contribute(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req ContributeRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return respondParamError(c, err)
	}

	result, err := h.goalService.Contribute(c.Request().Context(), userID, id, amount, domain.ContributionSource(req.Source), req.Description)
	if err != nil {
		return respondError(c, err, "contribute to goal")
	}

	if result.Clamped {
		log.Info().
			Str("user_id", userID.String()).
			Int32("goal_id", id).
			Str("requested", amount.String()).
			Str("applied", result.Contribution.Amount.String()).
			Msg("Contribution truncated to remaining target")
	}
	return c.JSON(http.StatusOK, result)
}
