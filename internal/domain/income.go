package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IncomeType string

const (
	IncomeTypeSalary     IncomeType = "salary"
	IncomeTypeFreelance  IncomeType = "freelance"
	IncomeTypeBusiness   IncomeType = "business"
	IncomeTypeInvestment IncomeType = "investment"
	IncomeTypeRental     IncomeType = "rental"
	IncomeTypePension    IncomeType = "pension"
	IncomeTypeOther      IncomeType = "other"
)

func (t IncomeType) IsValid() bool {
	switch t {
	case IncomeTypeSalary, IncomeTypeFreelance, IncomeTypeBusiness, IncomeTypeInvestment,
		IncomeTypeRental, IncomeTypePension, IncomeTypeOther:
		return true
	}
	return false
}

type IncomeSource struct {
	ID               int32           `json:"id"`
	UserID           uuid.UUID       `json:"userId"`
	Name             string          `json:"name"`
	Type             IncomeType      `json:"type"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Frequency        Frequency       `json:"frequency"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          *time.Time      `json:"endDate,omitempty"`
	IsActive         bool            `json:"isActive"`
	IsRecurring      bool            `json:"isRecurring"`
	LastReceivedDate *time.Time      `json:"lastReceivedDate,omitempty"`
	NextExpectedDate *time.Time      `json:"nextExpectedDate,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// CountsAt reports whether the source contributes to rollups at now
func (s *IncomeSource) CountsAt(now time.Time) bool {
	if !s.IsActive {
		return false
	}
	return s.EndDate == nil || !TruncateDay(*s.EndDate).Before(TruncateDay(now))
}

// ActiveDuringYear reports whether the source's window intersects the year
func (s *IncomeSource) ActiveDuringYear(year int) bool {
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	if TruncateDay(s.StartDate).After(yearEnd) {
		return false
	}
	return s.EndDate == nil || !TruncateDay(*s.EndDate).Before(yearStart)
}

type IncomeRepository interface {
	Create(ctx context.Context, source *IncomeSource) (*IncomeSource, error)
	GetByID(ctx context.Context, userID uuid.UUID, id int32) (*IncomeSource, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*IncomeSource, error)
	Update(ctx context.Context, source *IncomeSource) (*IncomeSource, error)
	Delete(ctx context.Context, userID uuid.UUID, id int32) error
	// ListOverdueExpectations returns active recurring sources whose
	// NextExpectedDate is before now.
	ListOverdueExpectations(ctx context.Context, now time.Time) ([]*IncomeSource, error)
}
