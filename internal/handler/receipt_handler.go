package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ReceiptHandler handles receipt image uploads for expenses
type ReceiptHandler struct {
	receiptService *service.ReceiptService
}

// NewReceiptHandler creates a new ReceiptHandler
func NewReceiptHandler(receiptService *service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

func (h *ReceiptHandler) unavailable(c echo.Context) error {
	return NewServiceUnavailableError(c, "Receipt uploads are disabled (storage not configured)")
}

// UploadReceipt handles POST /api/v1/expenses/:id/receipt (multipart, field "file")
func (h *ReceiptHandler) UploadReceipt(c echo.Context) error {
	userID := middleware.GetUserID(c)
	if !h.receiptService.IsEnabled() {
		return h.unavailable(c)
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewValidationError(c, "No file provided", []ValidationError{
			{Field: "file", Message: "File is required"},
		})
	}
	if file.Size > service.MaxReceiptSize {
		return respondError(c, service.ErrReceiptTooLarge, "upload receipt")
	}

	src, err := file.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return NewInternalError(c, "Failed to process file")
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, service.MaxReceiptSize+1))
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return NewInternalError(c, "Failed to read file")
	}

	expense, err := h.receiptService.AttachReceipt(c.Request().Context(), userID, id, data, file.Filename)
	if err != nil {
		return respondError(c, err, "upload receipt")
	}

	log.Info().
		Str("user_id", userID.String()).
		Int32("expense_id", id).
		Int("size", len(data)).
		Msg("Receipt uploaded")

	return c.JSON(http.StatusOK, expense)
}

// GetReceipt handles GET /api/v1/expenses/:id/receipt
func (h *ReceiptHandler) GetReceipt(c echo.Context) error {
	if !h.receiptService.IsEnabled() {
		return h.unavailable(c)
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	urls, err := h.receiptService.GetReceiptURLs(c.Request().Context(), middleware.GetUserID(c), id)
	if err != nil {
		if errors.Is(err, service.ErrReceiptsNotConfigured) {
			return h.unavailable(c)
		}
		return respondError(c, err, "get receipt")
	}
	return c.JSON(http.StatusOK, urls)
}

// DeleteReceipt handles DELETE /api/v1/expenses/:id/receipt
func (h *ReceiptHandler) DeleteReceipt(c echo.Context) error {
	if !h.receiptService.IsEnabled() {
		return h.unavailable(c)
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondParamError(c, err)
	}

	if err := h.receiptService.RemoveReceipt(c.Request().Context(), middleware.GetUserID(c), id); err != nil {
		return respondError(c, err, "delete receipt")
	}
	return c.NoContent(http.StatusNoContent)
}
