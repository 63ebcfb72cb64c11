package handler

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/middleware"
	"github.com/dafibh/tally/tally-backend/internal/service"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 120, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func (f *apiFixture) multipartRequest(t *testing.T, filename string, data []byte) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("Failed to write form file: %v", err)
	}
	writer.Close()

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/expenses/1/receipt", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	middleware.SetUserID(c, f.userID)
	return withID(c, "1"), rec
}

func seedExpense(f *apiFixture) *domain.Expense {
	return f.expenses.AddExpense(&domain.Expense{
		UserID:      f.userID,
		Amount:      decimal.NewFromInt(25),
		Category:    domain.CategoryFood,
		ExpenseDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Status:      domain.ExpenseStatusCompleted,
	})
}

func TestReceipt_DisabledWithoutStorage(t *testing.T) {
	f := newAPIFixture()
	h := NewReceiptHandler(service.NewReceiptService(nil, f.expenses, zerolog.Nop()))

	handlers := map[string]echo.HandlerFunc{
		"upload": h.UploadReceipt,
		"get":    h.GetReceipt,
		"delete": h.DeleteReceipt,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			c, rec := f.request(http.MethodPost, "/api/v1/expenses/1/receipt", "")
			withID(c, "1")
			if err := fn(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			expectStatus(t, rec, http.StatusServiceUnavailable)
		})
	}
}

func TestUploadReceipt_StoresOriginalAndThumbnail(t *testing.T) {
	f := newAPIFixture()
	seedExpense(f)
	h := NewReceiptHandler(f.receiptService)

	c, rec := f.multipartRequest(t, "lunch.png", pngBytes(t, 400, 300))
	if err := h.UploadReceipt(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusOK)

	var expense domain.Expense
	decodeJSON(t, rec, &expense)
	if expense.Receipt == nil {
		t.Fatal("Expected receipt to be linked")
	}
	if !strings.HasSuffix(expense.Receipt.ThumbnailKey, "_thumb.jpg") {
		t.Errorf("Expected thumbnail key, got %s", expense.Receipt.ThumbnailKey)
	}
	if keys := f.store.Keys(); len(keys) != 2 {
		t.Errorf("Expected 2 stored objects, got %d", len(keys))
	}

	get, rec := f.request(http.MethodGet, "/api/v1/expenses/1/receipt", "")
	withID(get, "1")
	if err := h.GetReceipt(get); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusOK)
	var urls service.ReceiptURLs
	decodeJSON(t, rec, &urls)
	if !strings.HasPrefix(urls.OriginalURL, "https://receipts.test/") {
		t.Errorf("Expected presigned URL, got %s", urls.OriginalURL)
	}
}

func TestUploadReceipt_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     func(t *testing.T) []byte
	}{
		{"unsupported extension", "receipt.gif", func(t *testing.T) []byte { return pngBytes(t, 100, 100) }},
		{"too small", "receipt.png", func(t *testing.T) []byte { return pngBytes(t, 20, 20) }},
		{"not an image", "receipt.png", func(t *testing.T) []byte { return []byte("definitely not a png") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture()
			seedExpense(f)
			h := NewReceiptHandler(f.receiptService)

			c, rec := f.multipartRequest(t, tt.filename, tt.data(t))
			if err := h.UploadReceipt(c); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			expectFieldError(t, rec, "file")
			if keys := f.store.Keys(); len(keys) != 0 {
				t.Errorf("Expected nothing stored, got %v", keys)
			}
		})
	}
}

func TestUploadReceipt_MissingFile(t *testing.T) {
	f := newAPIFixture()
	seedExpense(f)
	h := NewReceiptHandler(f.receiptService)

	c, rec := f.request(http.MethodPost, "/api/v1/expenses/1/receipt", "")
	withID(c, "1")
	if err := h.UploadReceipt(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectFieldError(t, rec, "file")
}

func TestGetReceipt_NoneAttached(t *testing.T) {
	f := newAPIFixture()
	seedExpense(f)
	h := NewReceiptHandler(f.receiptService)

	c, rec := f.request(http.MethodGet, "/api/v1/expenses/1/receipt", "")
	withID(c, "1")
	if err := h.GetReceipt(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	expectStatus(t, rec, http.StatusNotFound)
}
