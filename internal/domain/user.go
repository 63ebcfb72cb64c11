package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// UserStats caches the income roll-up and realized spend for a user.
// The ledger stays authoritative; these values may lag within a request.
type UserStats struct {
	CurrentIncome decimal.Decimal `json:"currentIncome"`
	AnnualIncome  decimal.Decimal `json:"annualIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
}

// User represents a user in the system
type User struct {
	ID         uuid.UUID `json:"id"`
	Auth0ID    string    `json:"auth0Id"`
	Email      string    `json:"email"`
	Name       *string   `json:"name"`
	PictureURL *string   `json:"pictureUrl"`
	Currency   string    `json:"currency"`
	Stats      UserStats `json:"stats"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserRepository defines the interface for user persistence operations
type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByAuth0ID(ctx context.Context, auth0ID string) (*User, error)
	CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, name *string, currency *string) (*User, error)
	UpdateStats(ctx context.Context, id uuid.UUID, stats UserStats) error
}
