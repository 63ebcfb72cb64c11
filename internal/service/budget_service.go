package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// DefaultAlertThresholds are materialized on a budget when none are given
var DefaultAlertThresholds = []int{50, 75, 90, 100}

// BudgetService handles budget lifecycle: creation, renewal and reconciliation
type BudgetService struct {
	budgetRepo        domain.BudgetRepository
	userRepo          domain.UserRepository
	aggregator        *BudgetAggregator
	publisher         websocket.EventPublisher
	defaultThresholds []int
	logger            zerolog.Logger
	now               func() time.Time
}

// NewBudgetService creates a new BudgetService
func NewBudgetService(
	budgetRepo domain.BudgetRepository,
	userRepo domain.UserRepository,
	aggregator *BudgetAggregator,
	publisher websocket.EventPublisher,
	defaultThresholds []int,
	logger zerolog.Logger,
) *BudgetService {
	if len(defaultThresholds) == 0 {
		defaultThresholds = DefaultAlertThresholds
	}
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &BudgetService{
		budgetRepo:        budgetRepo,
		userRepo:          userRepo,
		aggregator:        aggregator,
		publisher:         publisher,
		defaultThresholds: defaultThresholds,
		logger:            logger.With().Str("component", "budget_service").Logger(),
		now:               time.Now,
	}
}

// BudgetView is a budget with its read-time derived fields
type BudgetView struct {
	*domain.Budget
	PercentageUsed decimal.Decimal     `json:"percentageUsed"`
	Remaining      decimal.Decimal     `json:"remaining"`
	Status         domain.BudgetStatus `json:"status"`
	DaysRemaining  int                 `json:"daysRemaining"`
	ProjectedSpend decimal.Decimal     `json:"projectedSpend"`
	IsOverBudget   bool                `json:"isOverBudget"`
}

// NewBudgetView derives the read model of b at now
func NewBudgetView(b *domain.Budget, now time.Time) *BudgetView {
	return &BudgetView{
		Budget:         b,
		PercentageUsed: b.PercentageUsed().Round(2),
		Remaining:      b.Remaining(),
		Status:         b.Status(),
		DaysRemaining:  b.Window().DaysRemaining(now),
		ProjectedSpend: ProjectedEndOfPeriod(b, now).Round(2),
		IsOverBudget:   b.Spent.GreaterThan(b.Amount),
	}
}

// CreateBudgetInput holds the input for creating a budget
type CreateBudgetInput struct {
	Name      string
	Scope     domain.BudgetScope
	Amount    decimal.Decimal
	Currency  string
	StartDate time.Time
	EndDate   time.Time
	Alerts    []int // nil uses the configured defaults
	AutoRenew bool
}

// UpdateBudgetInput holds the editable fields of a budget
type UpdateBudgetInput struct {
	Name      *string
	Amount    *decimal.Decimal
	Alerts    []int // nil leaves thresholds untouched
	AutoRenew *bool
}

// CreateBudget validates the input, enforces the one-active-budget-per-scope
// rule and seeds spent from the ledger.
func (s *BudgetService) CreateBudget(ctx context.Context, userID uuid.UUID, input CreateBudgetInput) (*BudgetView, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}
	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !input.Scope.IsValid() {
		return nil, domain.ErrInvalidCategory
	}
	window, err := domain.NewWindow(input.StartDate, input.EndDate)
	if err != nil {
		return nil, err
	}
	percentages := input.Alerts
	if percentages == nil {
		percentages = s.defaultThresholds
	}
	alerts, err := buildAlerts(percentages)
	if err != nil {
		return nil, err
	}
	currency, err := resolveCurrency(ctx, s.userRepo, userID, input.Currency)
	if err != nil {
		return nil, err
	}

	overlapping, err := s.budgetRepo.FindOverlapping(ctx, userID, input.Scope, window)
	if err != nil {
		return nil, err
	}
	if len(overlapping) > 0 {
		return nil, domain.ErrBudgetOverlap
	}

	created, err := s.budgetRepo.Create(ctx, &domain.Budget{
		UserID:    userID,
		Name:      name,
		Scope:     input.Scope,
		Amount:    input.Amount,
		Currency:  currency,
		StartDate: window.Start,
		EndDate:   window.End,
		Spent:     decimal.Zero,
		Alerts:    alerts,
		AutoRenew: input.AutoRenew,
		IsActive:  true,
	})
	if err != nil {
		return nil, err
	}

	seeded, err := s.aggregator.RecomputeFromLedger(ctx, userID, created.ID)
	if err != nil {
		// The budget exists; the reconcile sweep will seed it later.
		s.logger.Error().Err(err).Int32("budget_id", created.ID).Msg("Failed to seed budget spend from ledger")
		return NewBudgetView(created, s.now()), nil
	}
	return NewBudgetView(seeded, s.now()), nil
}

// GetBudget retrieves a budget with derived fields
func (s *BudgetService) GetBudget(ctx context.Context, userID uuid.UUID, id int32) (*BudgetView, error) {
	b, err := s.budgetRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return NewBudgetView(b, s.now()), nil
}

// ListBudgets retrieves the user's budgets with derived fields
func (s *BudgetService) ListBudgets(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*BudgetView, error) {
	budgets, err := s.budgetRepo.ListByUser(ctx, userID, activeOnly)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*BudgetView, len(budgets))
	for i, b := range budgets {
		views[i] = NewBudgetView(b, now)
	}
	return views, nil
}

// UpdateBudget edits name, limit, thresholds or auto-renewal. A changed limit
// or threshold set is re-evaluated against the ledger.
func (s *BudgetService) UpdateBudget(ctx context.Context, userID uuid.UUID, id int32, input UpdateBudgetInput) (*BudgetView, error) {
	var name string
	if input.Name != nil {
		n, err := validateName(*input.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	if input.Amount != nil && !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	var alerts []domain.AlertThreshold
	if input.Alerts != nil {
		built, err := buildAlerts(input.Alerts)
		if err != nil {
			return nil, err
		}
		alerts = built
	}

	saved, err := s.aggregator.mutate(ctx, userID, id, func(b *domain.Budget) error {
		if !b.IsActive {
			return domain.ErrBudgetNotFound
		}
		if input.Name != nil {
			b.Name = name
		}
		if input.Amount != nil {
			b.Amount = *input.Amount
		}
		if alerts != nil {
			b.Alerts = append([]domain.AlertThreshold(nil), alerts...)
		}
		if input.AutoRenew != nil {
			b.AutoRenew = *input.AutoRenew
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if input.Amount != nil || input.Alerts != nil {
		if recomputed, err := s.aggregator.RecomputeFromLedger(ctx, userID, id); err == nil {
			saved = recomputed
		} else {
			s.logger.Error().Err(err).Int32("budget_id", id).Msg("Failed to re-evaluate budget after update")
		}
	}
	return NewBudgetView(saved, s.now()), nil
}

// DeleteBudget soft-deletes a budget so its window frees up
func (s *BudgetService) DeleteBudget(ctx context.Context, userID uuid.UUID, id int32) error {
	return s.budgetRepo.Deactivate(ctx, userID, id)
}

// RecalculateBudget runs an explicit reconciliation against the ledger
func (s *BudgetService) RecalculateBudget(ctx context.Context, userID uuid.UUID, id int32) (*BudgetView, error) {
	b, err := s.aggregator.RecomputeFromLedger(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return NewBudgetView(b, s.now()), nil
}

// DuplicateBudget copies a budget into the window that immediately follows it
func (s *BudgetService) DuplicateBudget(ctx context.Context, userID uuid.UUID, id int32) (*BudgetView, error) {
	source, err := s.budgetRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	next := source.Window().Next()
	return s.CreateBudget(ctx, userID, CreateBudgetInput{
		Name:      source.Name,
		Scope:     source.Scope,
		Amount:    source.Amount,
		Currency:  source.Currency,
		StartDate: next.Start,
		EndDate:   next.End,
		Alerts:    alertPercentages(source.Alerts),
		AutoRenew: source.AutoRenew,
	})
}

// GetBudgetAlerts returns one alert per active budget: its highest triggered
// threshold. Alerts are ordered by usage, most used first.
func (s *BudgetService) GetBudgetAlerts(ctx context.Context, userID uuid.UUID) ([]domain.BudgetAlert, error) {
	budgets, err := s.budgetRepo.ListByUser(ctx, userID, true)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.BudgetAlert, 0)
	for _, b := range budgets {
		var highest *domain.AlertThreshold
		for i := range b.Alerts {
			if b.Alerts[i].Triggered && (highest == nil || b.Alerts[i].Percentage > highest.Percentage) {
				highest = &b.Alerts[i]
			}
		}
		if highest == nil {
			continue
		}
		used := b.PercentageUsed().Round(2)
		alerts = append(alerts, domain.BudgetAlert{
			BudgetID:       b.ID,
			BudgetName:     b.Name,
			Category:       b.Scope,
			Threshold:      highest.Percentage,
			TriggeredAt:    highest.TriggeredAt,
			PercentageUsed: used,
			Spent:          b.Spent,
			Amount:         b.Amount,
			Status:         b.Status(),
			Message:        alertMessage(b, used),
		})
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].PercentageUsed.GreaterThan(alerts[j].PercentageUsed)
	})
	return alerts, nil
}

// Sweep result statuses
const (
	SweepStatusRenewed    = "renewed"
	SweepStatusSkipped    = "skipped"
	SweepStatusFailed     = "failed"
	SweepStatusReconciled = "reconciled"
	SweepStatusUnchanged  = "unchanged"
)

// RenewalResult reports the outcome of renewing one budget
type RenewalResult struct {
	BudgetID    int32  `json:"budgetId"`
	SuccessorID *int32 `json:"successorId,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// RunBudgetRenewalSweep creates the next-period successor of every ended
// auto-renew budget. Each budget advances one period per run, so a budget
// that lapsed several periods ago catches up over consecutive runs.
func (s *BudgetService) RunBudgetRenewalSweep(ctx context.Context) ([]RenewalResult, error) {
	due, err := s.budgetRepo.ListDueForRenewal(ctx, s.now())
	if err != nil {
		return nil, err
	}

	results := make([]RenewalResult, 0, len(due))
	for _, b := range due {
		if err := ctx.Err(); err != nil {
			results = append(results, RenewalResult{BudgetID: b.ID, Status: SweepStatusFailed, Error: err.Error()})
			continue
		}
		result := s.renew(ctx, b)
		if result.Status == SweepStatusFailed {
			s.logger.Error().Int32("budget_id", b.ID).Str("error", result.Error).Msg("Budget renewal failed")
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *BudgetService) renew(ctx context.Context, b *domain.Budget) RenewalResult {
	result := RenewalResult{BudgetID: b.ID}
	next := b.Window().Next()

	existing, err := s.budgetRepo.FindOverlapping(ctx, b.UserID, b.Scope, next)
	if err != nil {
		result.Status = SweepStatusFailed
		result.Error = err.Error()
		return result
	}

	result.Status = SweepStatusSkipped
	if len(existing) == 0 {
		successor, err := s.budgetRepo.Create(ctx, &domain.Budget{
			UserID:    b.UserID,
			Name:      b.Name,
			Scope:     b.Scope,
			Amount:    b.Amount,
			Currency:  b.Currency,
			StartDate: next.Start,
			EndDate:   next.End,
			Spent:     decimal.Zero,
			Alerts:    resetAlerts(b.Alerts),
			AutoRenew: true,
			IsActive:  true,
		})
		switch {
		case errors.Is(err, domain.ErrBudgetOverlap):
			// Lost a race against another renewal or a user-created budget.
		case err != nil:
			result.Status = SweepStatusFailed
			result.Error = err.Error()
			return result
		default:
			result.Status = SweepStatusRenewed
			result.SuccessorID = &successor.ID
			if seeded, err := s.aggregator.RecomputeFromLedger(ctx, successor.UserID, successor.ID); err == nil {
				successor = seeded
			}
			s.publisher.Publish(successor.UserID, websocket.BudgetRenewed(map[string]interface{}{
				"previousId": b.ID,
				"budget":     successor,
			}))
		}
	}

	renewedAt := s.now()
	if _, err := s.aggregator.mutate(ctx, b.UserID, b.ID, func(p *domain.Budget) error {
		p.RenewedAt = &renewedAt
		return nil
	}); err != nil {
		result.Status = SweepStatusFailed
		result.Error = fmt.Sprintf("mark renewed: %v", err)
	}
	return result
}

// ReconcileResult reports the outcome of reconciling one budget
type ReconcileResult struct {
	BudgetID   int32           `json:"budgetId"`
	Previous   decimal.Decimal `json:"previousSpent"`
	Recomputed decimal.Decimal `json:"recomputedSpent"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// reconcileConcurrency bounds parallel ledger scans during a sweep
const reconcileConcurrency = 4

// RunReconcileSweep recomputes every active budget from the ledger. A failing
// budget is reported in its own entry and does not stop the sweep.
func (s *BudgetService) RunReconcileSweep(ctx context.Context) ([]ReconcileResult, error) {
	budgets, err := s.budgetRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]ReconcileResult, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)

	for i, b := range budgets {
		g.Go(func() error {
			result := ReconcileResult{BudgetID: b.ID, Previous: b.Spent}
			recomputed, err := s.aggregator.RecomputeFromLedger(gctx, b.UserID, b.ID)
			switch {
			case err != nil:
				result.Status = SweepStatusFailed
				result.Error = err.Error()
				s.logger.Error().Err(err).Int32("budget_id", b.ID).Msg("Budget reconciliation failed")
			case recomputed.Spent.Equal(b.Spent):
				result.Recomputed = recomputed.Spent
				result.Status = SweepStatusUnchanged
			default:
				result.Recomputed = recomputed.Spent
				result.Status = SweepStatusReconciled
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", domain.ErrNameRequired
	}
	if len(name) > domain.MaxNameLength {
		return "", domain.ErrNameTooLong
	}
	return name, nil
}

// buildAlerts turns percentages into untriggered thresholds, sorted and
// without duplicates.
func buildAlerts(percentages []int) ([]domain.AlertThreshold, error) {
	seen := make(map[int]bool, len(percentages))
	alerts := make([]domain.AlertThreshold, 0, len(percentages))
	for _, pct := range percentages {
		if pct < 1 || pct > 1000 {
			return nil, domain.ErrInvalidThreshold
		}
		if seen[pct] {
			continue
		}
		seen[pct] = true
		alerts = append(alerts, domain.AlertThreshold{Percentage: pct})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Percentage < alerts[j].Percentage })
	return alerts, nil
}

func alertPercentages(alerts []domain.AlertThreshold) []int {
	out := make([]int, len(alerts))
	for i, a := range alerts {
		out[i] = a.Percentage
	}
	return out
}

func resetAlerts(alerts []domain.AlertThreshold) []domain.AlertThreshold {
	out := make([]domain.AlertThreshold, len(alerts))
	for i, a := range alerts {
		out[i] = domain.AlertThreshold{Percentage: a.Percentage}
	}
	return out
}

func alertMessage(b *domain.Budget, used decimal.Decimal) string {
	if b.Status() == domain.BudgetStatusExceeded {
		return fmt.Sprintf("%s budget exceeded: %s%% used (%s of %s)", b.Name, used.StringFixed(0), b.Spent.StringFixed(2), b.Amount.StringFixed(2))
	}
	return fmt.Sprintf("%s budget at %s%% (%s of %s)", b.Name, used.StringFixed(0), b.Spent.StringFixed(2), b.Amount.StringFixed(2))
}

// resolveCurrency returns the requested currency code, falling back to the
// user's preference and then the system default.
func resolveCurrency(ctx context.Context, users domain.UserRepository, userID uuid.UUID, requested string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(requested))
	if code != "" {
		if len(code) > domain.MaxCurrencyLength {
			return "", domain.NewValidationError("currency", "must be a 3-letter code")
		}
		return code, nil
	}
	if users != nil {
		if user, err := users.GetByID(ctx, userID); err == nil && user.Currency != "" {
			return user.Currency, nil
		}
	}
	return domain.DefaultCurrency, nil
}
