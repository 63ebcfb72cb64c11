package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStatus classifies how much of a budget is used
type BudgetStatus string

const (
	BudgetStatusGood     BudgetStatus = "good"
	BudgetStatusModerate BudgetStatus = "moderate"
	BudgetStatusWarning  BudgetStatus = "warning"
	BudgetStatusCritical BudgetStatus = "critical"
	BudgetStatusExceeded BudgetStatus = "exceeded"
)

// AlertThreshold is a percentage-of-budget trip-wire
type AlertThreshold struct {
	Percentage  int        `json:"percentage"`
	Triggered   bool       `json:"triggered"`
	TriggeredAt *time.Time `json:"triggeredAt,omitempty"`
}

type Budget struct {
	ID        int32            `json:"id"`
	UserID    uuid.UUID        `json:"userId"`
	Name      string           `json:"name"`
	Scope     BudgetScope      `json:"category"`
	Amount    decimal.Decimal  `json:"amount"`
	Currency  string           `json:"currency"`
	StartDate time.Time        `json:"startDate"`
	EndDate   time.Time        `json:"endDate"`
	Spent     decimal.Decimal  `json:"spent"`
	Alerts    []AlertThreshold `json:"alerts"`
	AutoRenew bool             `json:"autoRenew"`
	IsActive  bool             `json:"isActive"`
	RenewedAt *time.Time       `json:"renewedAt,omitempty"`
	Version   int32            `json:"version"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// Window returns the budget's date window
func (b *Budget) Window() Window {
	return Window{Start: b.StartDate, End: b.EndDate}
}

// Clone returns a deep copy, so callers can mutate alerts without aliasing
func (b *Budget) Clone() *Budget {
	c := *b
	c.Alerts = make([]AlertThreshold, len(b.Alerts))
	copy(c.Alerts, b.Alerts)
	return &c
}

var hundred = decimal.NewFromInt(100)

// PercentageUsed is spent/amount*100; zero-amount budgets report 0.
func (b *Budget) PercentageUsed() decimal.Decimal {
	if !b.Amount.IsPositive() {
		return decimal.Zero
	}
	return b.Spent.Div(b.Amount).Mul(hundred)
}

// Remaining may be negative when the budget is exceeded
func (b *Budget) Remaining() decimal.Decimal {
	return b.Amount.Sub(b.Spent)
}

// ClassifyBudget maps a percentage used onto a status
func ClassifyBudget(percentageUsed decimal.Decimal) BudgetStatus {
	switch {
	case percentageUsed.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return BudgetStatusExceeded
	case percentageUsed.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return BudgetStatusCritical
	case percentageUsed.GreaterThanOrEqual(decimal.NewFromInt(75)):
		return BudgetStatusWarning
	case percentageUsed.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return BudgetStatusModerate
	default:
		return BudgetStatusGood
	}
}

// Status classifies the budget's current usage
func (b *Budget) Status() BudgetStatus {
	return ClassifyBudget(b.PercentageUsed())
}

// BudgetAlert is a triggered threshold surfaced to the owner
type BudgetAlert struct {
	BudgetID       int32           `json:"budgetId"`
	BudgetName     string          `json:"budgetName"`
	Category       BudgetScope     `json:"category"`
	Threshold      int             `json:"threshold"`
	TriggeredAt    *time.Time      `json:"triggeredAt,omitempty"`
	PercentageUsed decimal.Decimal `json:"percentageUsed"`
	Spent          decimal.Decimal `json:"spent"`
	Amount         decimal.Decimal `json:"amount"`
	Status         BudgetStatus    `json:"status"`
	Message        string          `json:"message"`
}

type BudgetRepository interface {
	// Create returns ErrBudgetOverlap when storage detects an overlapping
	// active budget for the same scope.
	Create(ctx context.Context, budget *Budget) (*Budget, error)
	GetByID(ctx context.Context, userID uuid.UUID, id int32) (*Budget, error)
	ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*Budget, error)
	// FindOverlapping returns active budgets with exactly this scope whose
	// window overlaps w.
	FindOverlapping(ctx context.Context, userID uuid.UUID, scope BudgetScope, w Window) ([]*Budget, error)
	// FindCovering returns active budgets whose scope matches category
	// (including AllCategories budgets) and whose window contains date.
	FindCovering(ctx context.Context, userID uuid.UUID, category ExpenseCategory, date time.Time) ([]*Budget, error)
	// Save persists every mutable field if the stored version still equals
	// expectedVersion, returning ErrVersionConflict otherwise.
	Save(ctx context.Context, budget *Budget, expectedVersion int32) (*Budget, error)
	Deactivate(ctx context.Context, userID uuid.UUID, id int32) error
	ListDueForRenewal(ctx context.Context, now time.Time) ([]*Budget, error)
	ListActive(ctx context.Context) ([]*Budget, error)
}
