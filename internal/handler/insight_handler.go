package handler

import (
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
)

// InsightHandler serves the rule-based financial insights
type InsightHandler struct {
	insightService *service.InsightService
}

// NewInsightHandler creates a new InsightHandler
func NewInsightHandler(insightService *service.InsightService) *InsightHandler {
	return &InsightHandler{insightService: insightService}
}

// GetInsights handles GET /api/v1/insights
func (h *InsightHandler) GetInsights(c echo.Context) error {
	insights, err := h.insightService.GetInsights(c.Request().Context(), middleware.GetUserID(c))
	if err != nil {
		return respondError(c, err, "get insights")
	}
	return c.JSON(http.StatusOK, insights)
}
