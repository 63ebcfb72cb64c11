package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// IncomeHandler handles income source HTTP requests
type IncomeHandler struct {
	incomeService *service.IncomeService
}

// NewIncomeHandler creates a new IncomeHandler
func NewIncomeHandler(incomeService *service.IncomeService) *IncomeHandler {
	return &IncomeHandler{incomeService: incomeService}
}

// CreateIncomeRequest represents the create income source request body
type CreateIncomeRequest struct {
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	Frequency        string  `json:"frequency"`
	StartDate        string  `json:"startDate"`
	EndDate          *string `json:"endDate,omitempty"`
	IsRecurring      *bool   `json:"isRecurring,omitempty"`
	NextExpectedDate *string `json:"nextExpectedDate,omitempty"`
}

// UpdateIncomeRequest represents the update income source request body.
// An empty endDate string clears the end date.
type UpdateIncomeRequest struct {
	Name             *string `json:"name,omitempty"`
	Type             *string `json:"type,omitempty"`
	Amount           *string `json:"amount,omitempty"`
	Frequency        *string `json:"frequency,omitempty"`
	StartDate        *string `json:"startDate,omitempty"`
	EndDate          *string `json:"endDate,omitempty"`
	IsActive         *bool   `json:"isActive,omitempty"`
	IsRecurring      *bool   `json:"isRecurring,omitempty"`
	NextExpectedDate *string `json:"nextExpectedDate,omitempty"`
}

// MarkReceivedRequest represents the mark received request body
type MarkReceivedRequest struct {
	ReceivedOn *string `json:"receivedOn,omitempty"`
}

// CreateIncome handles POST /api/v1/income
func (h *IncomeHandler) CreateIncome(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req CreateIncomeRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return respondParamError(c, err)
	}
	startDate, err := parseDate("startDate", req.StartDate)
	if err != nil {
		return respondParamError(c, err)
	}
	endDate, err := parseOptionalDate("endDate", req.EndDate)
	if err != nil {
		return respondParamError(c, err)
	}
	nextExpected, err := parseOptionalDate("nextExpectedDate", req.NextExpectedDate)
	if err != nil {
		return respondParamError(c, err)
	}

	source, err := h.incomeService.CreateIncome(c.Request().Context(), userID, service.CreateIncomeInput{
		Name:             req.Name,
		Type:             domain.IncomeType(req.Type),
		Amount:           amount,
		Currency:         req.Currency,
		Frequency:        domain.Frequency(req.Frequency),
		StartDate:        startDate,
		EndDate:          endDate,
		IsRecurring:      req.IsRecurring,
		NextExpectedDate: nextExpected,
	})
	if err != nil {
		return respondError(c, err, "create income source")
	}

	log.Info().Str("user_id", userID.String()).Int32("income_id", source.ID).Msg("Income source created")
	return c.JSON(http.StatusCreated, source)
}

// ListIncome handles GET /api/v1/income
func (h *IncomeHandler) ListIncome(c echo.Context) error {
	sources, err := h.incomeService.ListIncome(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err, "list income sources")
	}
	return c.JSON(http.StatusOK, sources)
}

// GetIncome handles GET /api/v1/income/:id
func (h *IncomeHandler) GetIncome(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	source, err := h.incomeService.GetIncome(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		return respondError(c, err, "get income source")
	}
	return c.JSON(http.StatusOK, source)
}

// UpdateIncome handles PUT /api/v1/income/:id
func (h *IncomeHandler) UpdateIncome(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req UpdateIncomeRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	input := service.UpdateIncomeInput{
		Name:        req.Name,
		IsActive:    req.IsActive,
		IsRecurring: req.IsRecurring,
	}
	if req.Type != nil {
		t := domain.IncomeType(*req.Type)
		input.Type = &t
	}
	if req.Frequency != nil {
		f := domain.Frequency(*req.Frequency)
		input.Frequency = &f
	}
	if input.Amount, err = parseOptionalAmount("amount", req.Amount); err != nil {
		return respondParamError(c, err)
	}
	if input.StartDate, err = parseOptionalDate("startDate", req.StartDate); err != nil {
		return respondParamError(c, err)
	}
	if req.EndDate != nil && *req.EndDate == "" {
		input.ClearEndDate = true
	} else if input.EndDate, err = parseOptionalDate("endDate", req.EndDate); err != nil {
		return respondParamError(c, err)
	}
	if input.NextExpectedDate, err = parseOptionalDate("nextExpectedDate", req.NextExpectedDate); err != nil {
		return respondParamError(c, err)
	}

	source, err := h.incomeService.UpdateIncome(c.Request().Context(), middleware.GetUserID(c), id, input)
	if err != nil {
		return respondError(c, err, "update income source")
	}
	return c.JSON(http.StatusOK, source)
}

// DeleteIncome handles DELETE /api/v1/income/:id
func (h *IncomeHandler) DeleteIncome(c echo.Context) error {
	userID := middleware.GetUserID(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	if err := h.incomeService.DeleteIncome(c.Request().Context(), userID, id); err != nil {
		return respondError(c, err, "delete income source")
	}

	log.Info().Str("user_id", userID.String()).Int32("income_id", id).Msg("Income source deleted")
	return c.NoContent(http.StatusNoContent)
}

// MarkReceived handles POST /api/v1/income/:id/received
func (h *IncomeHandler) MarkReceived(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	var req MarkReceivedRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}
	receivedOn, err := parseOptionalDate("receivedOn", req.ReceivedOn)
	if err != nil {
		return respondParamError(c, err)
	}

	source, err := h.incomeService.MarkReceived(c.Request().Context(), middleware.GetUserID(c), id, receivedOn)
	if err != nil {
		return respondError(c, err, "mark income received")
	}
	return c.JSON(http.StatusOK, source)
}

// GetSummary handles GET /api/v1/income/summary
func (h *IncomeHandler) GetSummary(c echo.Context) error {
	summary, err := h.incomeService.TotalAnnualIncome(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err, "get income summary")
	}
	return c.JSON(http.StatusOK, summary)
}

// GetByType handles GET /api/v1/income/by-type?year=2026
func (h *IncomeHandler) GetByType(c echo.Context) error {
	year := time.Now().Year()
	if raw := c.QueryParam("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			return respondParamError(c, &paramError{field: "year", message: "Invalid year"})
		}
		year = parsed
	}

	totals, err := h.incomeService.IncomeByType(c.Request().Context(), middleware.GetUserID(c), year)
	if err != nil {
		return respondError(c, err, "get income by type")
	}
	return c.JSON(http.StatusOK, totals)
}

// GetAnalysis handles GET /api/v1/income/analysis?months=6
func (h *IncomeHandler) GetAnalysis(c echo.Context) error {
	months := service.DefaultAnalysisMonths
	if raw := c.QueryParam("months"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return respondParamError(c, &paramError{field: "months", message: "Must be an integer"})
		}
		months = parsed
	}

	analysis, err := h.incomeService.GetIncomeVsExpenseAnalysis(c.Request().Context(), middleware.GetUserID(c), months)
	if err != nil {
		return respondError(c, err, "get income analysis")
	}
	return c.JSON(http.StatusOK, analysis)
}
