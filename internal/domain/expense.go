package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExpenseStatus string

const (
	ExpenseStatusPending   ExpenseStatus = "pending"
	ExpenseStatusCompleted ExpenseStatus = "completed"
	ExpenseStatusCancelled ExpenseStatus = "cancelled"
)

func (s ExpenseStatus) IsValid() bool {
	switch s {
	case ExpenseStatusPending, ExpenseStatusCompleted, ExpenseStatusCancelled:
		return true
	}
	return false
}

type Expense struct {
	ID                  int32           `json:"id"`
	UserID              uuid.UUID       `json:"userId"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Category            ExpenseCategory `json:"category"`
	Description         *string         `json:"description,omitempty"`
	ExpenseDate         time.Time       `json:"expenseDate"`
	Status              ExpenseStatus   `json:"status"`
	RecurringTemplateID *int32          `json:"recurringTemplateId,omitempty"`
	Receipt             *Receipt        `json:"receipt,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Counts reports whether the expense contributes to aggregates
func (e *Expense) Counts() bool {
	return e.Status == ExpenseStatusCompleted
}

// Receipt holds the object keys of an uploaded receipt image
type Receipt struct {
	ObjectKey    string    `json:"objectKey"`
	ThumbnailKey string    `json:"thumbnailKey"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

type ExpenseFilters struct {
	Category  *ExpenseCategory
	Status    *ExpenseStatus
	StartDate *time.Time
	EndDate   *time.Time
	Page      int32
	PageSize  int32
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PaginatedExpenses struct {
	Data       []*Expense `json:"data"`
	Page       int32      `json:"page"`
	PageSize   int32      `json:"pageSize"`
	TotalItems int64      `json:"totalItems"`
	TotalPages int32      `json:"totalPages"`
}

// MonthlyExpenseTotal is the realized (completed) spend of one calendar month
type MonthlyExpenseTotal struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Total decimal.Decimal `json:"total"`
}

type ExpenseRepository interface {
	Create(ctx context.Context, expense *Expense) (*Expense, error)
	GetByID(ctx context.Context, userID uuid.UUID, id int32) (*Expense, error)
	List(ctx context.Context, userID uuid.UUID, filters *ExpenseFilters) (*PaginatedExpenses, error)
	Update(ctx context.Context, expense *Expense) (*Expense, error)
	Delete(ctx context.Context, userID uuid.UUID, id int32) error
	SetReceipt(ctx context.Context, userID uuid.UUID, id int32, receipt *Receipt) (*Expense, error)
	// SumCompleted sums completed expenses matching scope whose date lies in
	// window. Implementations must read a single consistent snapshot.
	SumCompleted(ctx context.Context, userID uuid.UUID, scope BudgetScope, window Window) (decimal.Decimal, error)
	// SumCompletedByMonth returns one row per calendar month in [from, to]
	// that has completed expenses.
	SumCompletedByMonth(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*MonthlyExpenseTotal, error)
	SumAllCompleted(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
}
