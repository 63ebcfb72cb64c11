package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ContributionSource string

const (
	ContributionSourceManual   ContributionSource = "manual"
	ContributionSourceAutoSave ContributionSource = "auto-save"
	ContributionSourceBonus    ContributionSource = "bonus"
)

func (s ContributionSource) IsValid() bool {
	switch s {
	case ContributionSourceManual, ContributionSourceAutoSave, ContributionSourceBonus:
		return true
	}
	return false
}

// Contribution is one entry of a goal's append-only log. Amount is what was
// actually applied after clamping, not what was requested.
type Contribution struct {
	ID              int32              `json:"id"`
	GoalID          int32              `json:"goalId"`
	Amount          decimal.Decimal    `json:"amount"`
	RequestedAmount decimal.Decimal    `json:"requestedAmount"`
	Source          ContributionSource `json:"source"`
	Description     *string            `json:"description,omitempty"`
	ContributedAt   time.Time          `json:"contributedAt"`
}

type AutoSavePolicy struct {
	Enabled              bool            `json:"enabled"`
	Amount               decimal.Decimal `json:"amount"`
	Frequency            Frequency       `json:"frequency"`
	NextContributionDate *time.Time      `json:"nextContributionDate,omitempty"`
}

type Goal struct {
	ID            int32           `json:"id"`
	UserID        uuid.UUID       `json:"userId"`
	Name          string          `json:"name"`
	Description   *string         `json:"description,omitempty"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	Currency      string          `json:"currency"`
	Deadline      time.Time       `json:"deadline"`
	IsCompleted   bool            `json:"isCompleted"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	AutoSave      AutoSavePolicy  `json:"autoSave"`
	Contributions []Contribution  `json:"contributions"`
	Version       int32           `json:"version"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of the goal and its contribution log
func (g *Goal) Clone() *Goal {
	c := *g
	c.Contributions = make([]Contribution, len(g.Contributions))
	copy(c.Contributions, g.Contributions)
	if g.AutoSave.NextContributionDate != nil {
		next := *g.AutoSave.NextContributionDate
		c.AutoSave.NextContributionDate = &next
	}
	return &c
}

// RemainingAmount is never negative
func (g *Goal) RemainingAmount() decimal.Decimal {
	r := g.TargetAmount.Sub(g.CurrentAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

type GoalRepository interface {
	Create(ctx context.Context, goal *Goal) (*Goal, error)
	// GetByID loads the goal with its full contribution log
	GetByID(ctx context.Context, userID uuid.UUID, id int32) (*Goal, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Goal, error)
	// Update persists goal metadata and the auto-save policy under an
	// optimistic version check.
	Update(ctx context.Context, goal *Goal, expectedVersion int32) (*Goal, error)
	// AppendContribution atomically appends c to the log and persists the
	// goal's derived fields, provided the version still matches.
	AppendContribution(ctx context.Context, goal *Goal, c *Contribution, expectedVersion int32) (*Goal, error)
	Delete(ctx context.Context, userID uuid.UUID, id int32) error
	ListAutoSaveDue(ctx context.Context, now time.Time) ([]*Goal, error)
}
