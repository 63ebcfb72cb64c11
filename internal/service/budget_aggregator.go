package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AggregatorConfig tunes the budget aggregator
type AggregatorConfig struct {
	RecomputeTimeout time.Duration
	MaxCASRetries    int
}

// BudgetAggregator keeps each budget's cached spent total in step with the
// expense ledger. ApplyDelta is the incremental path; RecomputeFromLedger is
// the authoritative one. Both write through an optimistic version check.
type BudgetAggregator struct {
	budgetRepo       domain.BudgetRepository
	expenseRepo      domain.ExpenseRepository
	publisher        websocket.EventPublisher
	logger           zerolog.Logger
	recomputeTimeout time.Duration
	maxRetries       int
	now              func() time.Time
}

// NewBudgetAggregator creates a new BudgetAggregator
func NewBudgetAggregator(
	budgetRepo domain.BudgetRepository,
	expenseRepo domain.ExpenseRepository,
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
	config AggregatorConfig,
) *BudgetAggregator {
	if config.RecomputeTimeout <= 0 {
		config.RecomputeTimeout = 10 * time.Second
	}
	if config.MaxCASRetries <= 0 {
		config.MaxCASRetries = 5
	}
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &BudgetAggregator{
		budgetRepo:       budgetRepo,
		expenseRepo:      expenseRepo,
		publisher:        publisher,
		logger:           logger.With().Str("component", "budget_aggregator").Logger(),
		recomputeTimeout: config.RecomputeTimeout,
		maxRetries:       config.MaxCASRetries,
		now:              time.Now,
	}
}

// ThresholdEvent is the payload of a budget.threshold_triggered event
type ThresholdEvent struct {
	Budget    *domain.Budget `json:"budget"`
	Threshold int            `json:"threshold"`
}

// RecalculatedEvent is the payload of a budget.recalculated event
type RecalculatedEvent struct {
	Budget   *domain.Budget  `json:"budget"`
	Previous decimal.Decimal `json:"previousSpent"`
	Cleared  []int           `json:"clearedThresholds"`
}

// ErrConcurrentModification is surfaced when the CAS retry budget is spent
var ErrConcurrentModification = &domain.ConflictError{Reason: "record was modified concurrently, please retry"}

// ApplyDelta adds delta to the budget's spent total and trips any threshold
// that is now reached. It never clears a threshold. A result below zero means
// the cache drifted from the ledger; spent is clamped to zero and the budget
// is reconciled from the ledger.
func (a *BudgetAggregator) ApplyDelta(ctx context.Context, userID uuid.UUID, budgetID int32, delta decimal.Decimal) (*domain.Budget, error) {
	var triggered []int
	var drifted bool

	saved, err := a.mutate(ctx, userID, budgetID, func(b *domain.Budget) error {
		triggered = nil
		drifted = false

		b.Spent = b.Spent.Add(delta)
		if b.Spent.IsNegative() {
			a.logger.Warn().
				Err(&domain.ConsistencyError{Aggregate: "budget", ID: strconv.Itoa(int(b.ID)), Detail: "spent went negative"}).
				Int32("budget_id", b.ID).
				Str("spent", b.Spent.String()).
				Str("delta", delta.String()).
				Msg("Clamping negative budget spend")
			b.Spent = decimal.Zero
			drifted = true
		}
		triggered = tripThresholds(b, a.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.publishTriggered(saved, triggered)

	if drifted {
		return a.RecomputeFromLedger(ctx, userID, budgetID)
	}
	return saved, nil
}

// RecomputeFromLedger replaces the cached spent total with the sum of matching
// completed expenses, then re-evaluates every threshold in both directions.
// The ledger scan is bounded by the configured recompute timeout.
// A delta still in flight for an already committed expense is counted again
// on top of the recomputed sum; the next recompute corrects it.
func (a *BudgetAggregator) RecomputeFromLedger(ctx context.Context, userID uuid.UUID, budgetID int32) (*domain.Budget, error) {
	ctx, cancel := context.WithTimeout(ctx, a.recomputeTimeout)
	defer cancel()

	var previous decimal.Decimal
	var triggered, cleared []int

	saved, err := a.mutate(ctx, userID, budgetID, func(b *domain.Budget) error {
		sum, err := a.expenseRepo.SumCompleted(ctx, b.UserID, b.Scope, b.Window())
		if err != nil {
			return err
		}

		previous = b.Spent
		b.Spent = sum
		now := a.now()
		cleared = clearThresholds(b)
		triggered = tripThresholds(b, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !previous.Equal(saved.Spent) {
		a.logger.Warn().
			Err(&domain.ConsistencyError{Aggregate: "budget", ID: strconv.Itoa(int(saved.ID)), Detail: "cached spend differed from ledger"}).
			Int32("budget_id", saved.ID).
			Str("cached", previous.String()).
			Str("recomputed", saved.Spent.String()).
			Msg("Budget spend reconciled")
	}

	a.publisher.Publish(saved.UserID, websocket.BudgetRecalculated(RecalculatedEvent{
		Budget:   saved,
		Previous: previous,
		Cleared:  cleared,
	}))
	a.publishTriggered(saved, triggered)

	return saved, nil
}

// ApplyExpenseChange routes an expense mutation to every affected budget.
// before is nil on create and after is nil on delete. Contributions are netted
// per budget, so an update that leaves a budget's total unchanged is skipped.
func (a *BudgetAggregator) ApplyExpenseChange(ctx context.Context, userID uuid.UUID, before, after *domain.Expense) error {
	deltas := make(map[int32]decimal.Decimal)
	var order []int32

	collect := func(e *domain.Expense, sign int64) error {
		if e == nil || !e.Counts() {
			return nil
		}
		budgets, err := a.budgetRepo.FindCovering(ctx, userID, e.Category, e.ExpenseDate)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			if _, seen := deltas[b.ID]; !seen {
				order = append(order, b.ID)
			}
			deltas[b.ID] = deltas[b.ID].Add(e.Amount.Mul(decimal.NewFromInt(sign)))
		}
		return nil
	}

	if err := collect(before, -1); err != nil {
		return err
	}
	if err := collect(after, 1); err != nil {
		return err
	}

	var errs []error
	for _, id := range order {
		delta := deltas[id]
		if delta.IsZero() {
			continue
		}
		if _, err := a.ApplyDelta(ctx, userID, id, delta); err != nil {
			a.logger.Error().Err(err).Int32("budget_id", id).Str("delta", delta.String()).Msg("Failed to apply expense delta")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProjectedEndOfPeriod extrapolates the current daily spend rate over the
// whole window. Once the window has ended the projection is the actual spend.
func ProjectedEndOfPeriod(b *domain.Budget, now time.Time) decimal.Decimal {
	w := b.Window()
	elapsed := decimal.NewFromInt(int64(w.DaysElapsed(now)))
	total := decimal.NewFromInt(int64(w.TotalDays()))
	return b.Spent.Mul(total).Div(elapsed)
}

// mutate loads the budget, applies fn to a copy and saves it under the loaded
// version, retrying on lost races.
func (a *BudgetAggregator) mutate(ctx context.Context, userID uuid.UUID, budgetID int32, fn func(b *domain.Budget) error) (*domain.Budget, error) {
	for attempt := 1; attempt <= a.maxRetries; attempt++ {
		current, err := a.budgetRepo.GetByID(ctx, userID, budgetID)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}

		saved, err := a.budgetRepo.Save(ctx, next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			a.logger.Debug().Int32("budget_id", budgetID).Int("attempt", attempt).Msg("Budget version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}
		return saved, nil
	}

	a.logger.Warn().Int32("budget_id", budgetID).Int("attempts", a.maxRetries).Msg("Gave up updating budget after repeated conflicts")
	return nil, ErrConcurrentModification
}

func (a *BudgetAggregator) publishTriggered(b *domain.Budget, thresholds []int) {
	for _, pct := range thresholds {
		a.logger.Info().Int32("budget_id", b.ID).Int("threshold", pct).Msg("Budget threshold triggered")
		a.publisher.Publish(b.UserID, websocket.BudgetThresholdTriggered(ThresholdEvent{Budget: b, Threshold: pct}))
	}
}

// tripThresholds marks every untriggered threshold at or below the current
// usage as triggered and returns their percentages.
func tripThresholds(b *domain.Budget, now time.Time) []int {
	used := b.PercentageUsed()
	var tripped []int
	for i := range b.Alerts {
		alert := &b.Alerts[i]
		if alert.Triggered || used.LessThan(decimal.NewFromInt(int64(alert.Percentage))) {
			continue
		}
		at := now
		alert.Triggered = true
		alert.TriggeredAt = &at
		tripped = append(tripped, alert.Percentage)
	}
	return tripped
}

// clearThresholds resets every triggered threshold above the current usage
func clearThresholds(b *domain.Budget) []int {
	used := b.PercentageUsed()
	var cleared []int
	for i := range b.Alerts {
		alert := &b.Alerts[i]
		if alert.Triggered && used.LessThan(decimal.NewFromInt(int64(alert.Percentage))) {
			alert.Triggered = false
			alert.TriggeredAt = nil
			cleared = append(cleared, alert.Percentage)
		}
	}
	return cleared
}
