package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/repository/storage"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	MaxReceiptSize     = 10 * 1024 * 1024 // 10MB
	MinReceiptWidth    = 50
	MinReceiptHeight   = 50
	MaxReceiptWidth    = 2000
	ThumbnailWidth     = 200
	JPEGQuality        = 85
	ReceiptURLLifetime = 15 * time.Minute
)

var (
	ErrReceiptTooLarge       = domain.NewValidationError("file", "file too large. Maximum size is 10MB")
	ErrInvalidReceiptFormat  = domain.NewValidationError("file", "invalid format. Supported: JPEG, PNG")
	ErrReceiptTooSmall       = domain.NewValidationError("file", "image too small. Minimum 50x50 pixels")
	ErrInvalidReceiptData    = domain.NewValidationError("file", "invalid image data")
	ErrReceiptNotFound       = &domain.NotFoundError{Resource: "receipt"}
	ErrReceiptsNotConfigured = errors.New("receipt storage not configured")
)

// AllowedReceiptExtensions maps accepted file extensions to content types
var AllowedReceiptExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ReceiptURLs are presigned download links for an expense's receipt
type ReceiptURLs struct {
	OriginalURL  string    `json:"originalUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// ReceiptService stores receipt images for expenses
type ReceiptService struct {
	store       storage.ReceiptStore
	expenseRepo domain.ExpenseRepository
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReceiptService creates a new ReceiptService. A nil store disables uploads.
func NewReceiptService(store storage.ReceiptStore, expenseRepo domain.ExpenseRepository, logger zerolog.Logger) *ReceiptService {
	return &ReceiptService{
		store:       store,
		expenseRepo: expenseRepo,
		logger:      logger.With().Str("component", "receipts").Logger(),
		now:         time.Now,
	}
}

// IsEnabled indicates whether receipt storage is configured
func (s *ReceiptService) IsEnabled() bool {
	return s != nil && s.store != nil
}

// ValidateReceipt checks size, extension and dimensions of an upload
func (s *ReceiptService) ValidateReceipt(data []byte, filename string) error {
	_, err := decodeReceipt(data, filename)
	return err
}

func decodeReceipt(data []byte, filename string) (image.Image, error) {
	if len(data) > MaxReceiptSize {
		return nil, ErrReceiptTooLarge
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := AllowedReceiptExtensions[ext]; !ok {
		return nil, ErrInvalidReceiptFormat
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrInvalidReceiptData
	}
	bounds := img.Bounds()
	if bounds.Dx() < MinReceiptWidth || bounds.Dy() < MinReceiptHeight {
		return nil, ErrReceiptTooSmall
	}
	return img, nil
}

// AttachReceipt stores a JPEG original and thumbnail of the upload and links
// them to the expense. A previous receipt is removed afterwards.
func (s *ReceiptService) AttachReceipt(ctx context.Context, userID uuid.UUID, expenseID int32, data []byte, filename string) (*domain.Expense, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptsNotConfigured
	}

	expense, err := s.expenseRepo.GetByID(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}
	img, err := decodeReceipt(data, filename)
	if err != nil {
		return nil, err
	}

	base := fmt.Sprintf("receipts/%s/%d/%s", userID, expenseID, uuid.New())
	variants := []struct {
		key      string
		maxWidth int
	}{
		{base + "_original.jpg", MaxReceiptWidth},
		{base + "_thumb.jpg", ThumbnailWidth},
	}

	var uploaded []string
	for _, v := range variants {
		processed := img
		if img.Bounds().Dx() > v.maxWidth {
			processed = imaging.Resize(img, v.maxWidth, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
			s.cleanup(ctx, uploaded)
			return nil, fmt.Errorf("failed to encode receipt: %w", err)
		}
		if _, err := s.store.Put(ctx, v.key, bytes.NewReader(buf.Bytes()), "image/jpeg", int64(buf.Len())); err != nil {
			s.cleanup(ctx, uploaded)
			return nil, err
		}
		uploaded = append(uploaded, v.key)
	}

	receipt := &domain.Receipt{
		ObjectKey:    variants[0].key,
		ThumbnailKey: variants[1].key,
		UploadedAt:   s.now().UTC(),
	}
	updated, err := s.expenseRepo.SetReceipt(ctx, userID, expenseID, receipt)
	if err != nil {
		s.cleanup(ctx, uploaded)
		return nil, err
	}

	if expense.Receipt != nil {
		s.cleanup(ctx, []string{expense.Receipt.ObjectKey, expense.Receipt.ThumbnailKey})
	}
	return updated, nil
}

// GetReceiptURLs returns presigned links to an expense's receipt
func (s *ReceiptService) GetReceiptURLs(ctx context.Context, userID uuid.UUID, expenseID int32) (*ReceiptURLs, error) {
	if !s.IsEnabled() {
		return nil, ErrReceiptsNotConfigured
	}
	expense, err := s.expenseRepo.GetByID(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}
	if expense.Receipt == nil {
		return nil, ErrReceiptNotFound
	}

	original, err := s.store.PresignGet(ctx, expense.Receipt.ObjectKey, ReceiptURLLifetime)
	if err != nil {
		return nil, err
	}
	thumb, err := s.store.PresignGet(ctx, expense.Receipt.ThumbnailKey, ReceiptURLLifetime)
	if err != nil {
		return nil, err
	}
	return &ReceiptURLs{
		OriginalURL:  original,
		ThumbnailURL: thumb,
		ExpiresAt:    s.now().UTC().Add(ReceiptURLLifetime),
	}, nil
}

// RemoveReceipt unlinks and deletes an expense's receipt
func (s *ReceiptService) RemoveReceipt(ctx context.Context, userID uuid.UUID, expenseID int32) error {
	if !s.IsEnabled() {
		return ErrReceiptsNotConfigured
	}
	expense, err := s.expenseRepo.GetByID(ctx, userID, expenseID)
	if err != nil {
		return err
	}
	if expense.Receipt == nil {
		return ErrReceiptNotFound
	}
	if _, err := s.expenseRepo.SetReceipt(ctx, userID, expenseID, nil); err != nil {
		return err
	}
	s.cleanup(ctx, []string{expense.Receipt.ObjectKey, expense.Receipt.ThumbnailKey})
	return nil
}

// cleanup deletes objects best effort
func (s *ReceiptService) cleanup(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to delete receipt object")
		}
	}
}

// ReceiptContentType returns the content type for a receipt filename
func ReceiptContentType(filename string) string {
	if ct, ok := AllowedReceiptExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}
