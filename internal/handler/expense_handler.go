package handler

import (
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ExpenseHandler handles expense-related HTTP requests
type ExpenseHandler struct {
	expenseService *service.ExpenseService
}

// NewExpenseHandler creates a new ExpenseHandler
func NewExpenseHandler(expenseService *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{expenseService: expenseService}
}

// CreateExpenseRequest represents the create expense request body
type CreateExpenseRequest struct {
	Amount              string  `json:"amount"`
	Currency            string  `json:"currency"`
	Category            string  `json:"category"`
	Description         *string `json:"description,omitempty"`
	ExpenseDate         string  `json:"expenseDate"`
	Status              string  `json:"status,omitempty"`
	RecurringTemplateID *int32  `json:"recurringTemplateId,omitempty"`
}

// UpdateExpenseRequest represents the update expense request body
type UpdateExpenseRequest struct {
	Amount      *string `json:"amount,omitempty"`
	Currency    *string `json:"currency,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
	ExpenseDate *string `json:"expenseDate,omitempty"`
	Status      *string `json:"status,omitempty"`
}

// CreateExpense handles POST /api/v1/expenses
// @Summary Record an expense
// @Tags expenses
// @Accept json
// @Produce json
// @Param request body CreateExpenseRequest true "Expense"
// @Success 201 {object} domain.Expense
// @Failure 400 {object} ProblemDetails
// @Router /expenses [post]
func (h *ExpenseHandler) CreateExpense(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req CreateExpenseRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return respondParamError(c, err)
	}
	expenseDate, err := parseDate("expenseDate", req.ExpenseDate)
	if err != nil {
		return respondParamError(c, err)
	}

	expense, err := h.expenseService.CreateExpense(c.Request().Context(), userID, service.CreateExpenseInput{
		Amount:              amount,
		Currency:            req.Currency,
		Category:            domain.ExpenseCategory(req.Category),
		Description:         req.Description,
		ExpenseDate:         expenseDate,
		Status:              domain.ExpenseStatus(req.Status),
		RecurringTemplateID: req.RecurringTemplateID,
	})
	if err != nil {
		return respondError(c, err, "create expense")
	}

	log.Info().Str("user_id", userID.String()).Int32("expense_id", expense.ID).Msg("Expense created")
	return c.JSON(http.StatusCreated, expense)
}

// GetExpense handles GET /api/v1/expenses/:id
func (h *ExpenseHandler) GetExpense(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	expense, err := h.expenseService.GetExpense(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "get expense")
	}
	return c.JSON(http.StatusOK, expense)
}

// ListExpenses handles GET /api/v1/expenses
// Query: category, status, startDate, endDate, page, pageSize
func (h *ExpenseHandler) ListExpenses(c echo.Context) error {
	filters := &domain.ExpenseFilters{}

	if raw := c.QueryParam("category"); raw != "" {
		category := domain.ExpenseCategory(raw)
		filters.Category = &category
	}
	if raw := c.QueryParam("status"); raw != "" {
		status := domain.ExpenseStatus(raw)
		filters.Status = &status
	}

	startDate := c.QueryParam("startDate")
	start, err := parseOptionalDate("startDate", &startDate)
	if err != nil {
		return respondParamError(c, err)
	}
	filters.StartDate = start

	endDate := c.QueryParam("endDate")
	end, err := parseOptionalDate("endDate", &endDate)
	if err != nil {
		return respondParamError(c, err)
	}
	filters.EndDate = end

	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		return respondError(c, domain.ErrInvalidWindow, "list expenses")
	}

	if filters.Page, err = queryInt32(c, "page", 1); err != nil {
		return respondParamError(c, err)
	}
	if filters.PageSize, err = queryInt32(c, "pageSize", domain.DefaultPageSize); err != nil {
		return respondParamError(c, err)
	}

	page, err := h.expenseService.ListExpenses(c.Request().Context(), middleware.GetUserID(c), filters)
	if err != nil {
		return respondError(c, err, "list expenses")
	}
	return c.JSON(http.StatusOK, page)
}

// UpdateExpense handles PUT /api/v1/expenses/:id
func (h *ExpenseHandler) UpdateExpense(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req UpdateExpenseRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input := service.UpdateExpenseInput{
		Currency:    req.Currency,
		Description: req.Description,
	}
	if input.Amount, err = parseOptionalAmount("amount", req.Amount); err != nil {
		return respondParamError(c, err)
	}
	if input.ExpenseDate, err = parseOptionalDate("expenseDate", req.ExpenseDate); err != nil {
		return respondParamError(c, err)
	}
	if req.Category != nil {
		category := domain.ExpenseCategory(*req.Category)
		input.Category = &category
	}
	if req.Status != nil {
		status := domain.ExpenseStatus(*req.Status)
		input.Status = &status
	}

	expense, err := h.expenseService.UpdateExpense(c.Request().Context(), userID, id, input)
	if err != nil {
		return respondError(c, err, "update expense")
	}
	return c.JSON(http.StatusOK, expense)
}

// DeleteExpense handles DELETE /api/v1/expenses/:id
func (h *ExpenseHandler) DeleteExpense(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	if err := h.expenseService.DeleteExpense(c.Request().Context(), userID, id); err != nil {
		return respondError(c, err, "delete expense")
	}

	log.Info().Str("user_id", userID.String()).Int32("expense_id", id).Msg("Expense deleted")
	return c.NoContent(http.StatusNoContent)
}
