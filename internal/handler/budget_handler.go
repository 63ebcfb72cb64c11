package handler

import (
	"net/http"
	"strconv"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// BudgetHandler handles budget-related HTTP requests
type BudgetHandler struct {
	budgetService *service.BudgetService
}

// NewBudgetHandler creates a new BudgetHandler
func NewBudgetHandler(budgetService *service.BudgetService) *BudgetHandler {
	return &BudgetHandler{budgetService: budgetService}
}

// CreateBudgetRequest represents the create budget request body. Category
// is an expense category code or "total" for all categories.
type CreateBudgetRequest struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Alerts    []int  `json:"alerts,omitempty"`
	AutoRenew bool   `json:"autoRenew"`
}

// UpdateBudgetRequest represents the update budget request body
type UpdateBudgetRequest struct {
	Name      *string `json:"name,omitempty"`
	Amount    *string `json:"amount,omitempty"`
	Alerts    []int   `json:"alerts,omitempty"`
	AutoRenew *bool   `json:"autoRenew,omitempty"`
}

// CreateBudget handles POST /api/v1/budgets
// @Summary Create a budget
// @Description Amounts are summed as recorded; expenses in other currencies are not converted.
// @Tags budgets
// @Accept json
// @Produce json
// @Param request body CreateBudgetRequest true "Budget"
// @Success 201 {object} service.BudgetView
// @Failure 400 {object} ProblemDetails
// @Failure 409 {object} ProblemDetails
// @Router /budgets [post]
func (h *BudgetHandler) CreateBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req CreateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	scope, err := domain.ParseBudgetScope(req.Category)
	if err != nil {
		return respondError(c, err, "create budget")
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return respondParamError(c, err)
	}
	startDate, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return respondParamError(c, err)
	}
	endDate, err := parseDate("endDate", req.EndDate)
	if err != nil {
		return respondParamError(c, err)
	}

	budget, err := h.budgetService.CreateBudget(c.Request().Context(), userID, service.CreateBudgetInput{
		Name:      req.Name,
		Scope:     scope,
		Amount:    amount,
		Currency:  req.Currency,
		StartDate: startDate,
		EndDate:   endDate,
		Alerts:    req.Alerts,
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		return respondError(c, err, "create budget")
	}

	log.Info().Str("user_id", userID.String()).Int32("budget_id", budget.ID).Str("category", budget.Scope.String()).Msg("Budget created")
	return c.JSON(http.StatusCreated, budget)
}

// ListBudgets handles GET /api/v1/budgets?active=true
func (h *BudgetHandler) ListBudgets(c echo.Context) error {
	activeOnly := false
	if raw := c.QueryParam("active"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return respondParamError(c, &paramError{field: "active", message: "Must be true or false"})
		}
		activeOnly = parsed
	}

	budgets, err := h.budgetService.ListBudgets(c.Request().Context(), middleware.GetUserID(c), activeOnly)
	if err != nil {
		return respondError(c, err, "list budgets")
	}
	return c.JSON(http.StatusOK, budgets)
}

// GetBudget handles GET /api/v1/budgets/:id
func (h *BudgetHandler) GetBudget(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	budget, err := h.budgetService.GetBudget(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "get budget")
	}
	return c.JSON(http.StatusOK, budget)
}

// UpdateBudget handles PUT /api/v1/budgets/:id
func (h *BudgetHandler) UpdateBudget(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req UpdateBudgetRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := parseOptionalAmount("amount", req.Amount)
	if err != nil {
		return respondParamError(c, err)
	}

	budget, err := h.budgetService.UpdateBudget(c.Request().Context(), middleware.GetUserID(c), id, service.UpdateBudgetInput{
		Name:      req.Name,
		Amount:    amount,
		Alerts:    req.Alerts,
		AutoRenew: req.AutoRenew,
	})
	if err != nil {
		return respondError(c, err, "update budget")
	}
	return c.JSON(http.StatusOK, budget)
}

// DeleteBudget handles DELETE /api/v1/budgets/:id
func (h *BudgetHandler) DeleteBudget(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	if err := h.budgetService.DeleteBudget(c.Request().Context(), userID, id); err != nil {
		return respondError(c, err, "delete budget")
	}

	log.Info().Str("user_id", userID.String()).Int32("budget_id", id).Msg("Budget deactivated")
	return c.NoContent(http.StatusNoContent)
}

// RecalculateBudget handles POST /api/v1/budgets/:id/recalculate
func (h *BudgetHandler) RecalculateBudget(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	budget, err := h.budgetService.RecalculateBudget(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "recalculate budget")
	}
	return c.JSON(http.StatusOK, budget)
}

// DuplicateBudget handles POST /api/v1/budgets/:id/duplicate
func (h *BudgetHandler) DuplicateBudget(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	budget, err := h.budgetService.DuplicateBudget(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "duplicate budget")
	}
	return c.JSON(http.StatusCreated, budget)
}

// GetBudgetAlerts handles GET /api/v1/budgets/alerts
func (h *BudgetHandler) GetBudgetAlerts(c echo.Context) error {
	alerts, err := h.budgetService.GetBudgetAlerts(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err, "get budget alerts")
	}
	return c.JSON(http.StatusOK, alerts)
}
