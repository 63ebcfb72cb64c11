package handler

import (
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// AdminHandler exposes operator-triggered sweeps
type AdminHandler struct {
	sweepRunner *service.SweepRunner
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(sweepRunner *service.SweepRunner) *AdminHandler {
	return &AdminHandler{sweepRunner: sweepRunner}
}

// RunSweep handles POST /api/v1/admin/sweeps/:kind
// @Summary Run a batch sweep now
// @Tags admin
// @Produce json
// @Param kind path string true "renewal, reconcile, autosave or income-expectations"
// @Success 200 {object} service.SweepReport
// @Failure 400 {object} ProblemDetails
// @Router /admin/sweeps/{kind} [post]
func (h *AdminHandler) RunSweep(c echo.Context) error {
	kind, err := service.ParseSweepKind(c.Param("kind"))
	if err != nil {
		return NewValidationError(c, "Validation failed", []ValidationError{
			{Field: "kind", Message: "Must be one of: renewal, reconcile, autosave, income-expectations"},
		})
	}

	log.Info().Str("sweep", string(kind)).Msg("Admin triggered sweep")

	report, err := h.sweepRunner.RunSweep(c.Request().Context(), kind)
	if err != nil {
		log.Error().Err(err).Str("sweep", string(kind)).Msg("Admin sweep failed")
		return NewInternalError(c, "Sweep failed: "+report.Error)
	}
	return c.JSON(http.StatusOK, report)
}
