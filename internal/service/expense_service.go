package service

import (
	"context"
	"strings"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// StatsRefresher pushes fresh roll-up totals into a user's cached stats
type StatsRefresher interface {
	RefreshUserStats(ctx context.Context, userID uuid.UUID) error
}

// ExpenseService records expenses in the ledger and keeps the covering
// budgets' spent totals in step.
type ExpenseService struct {
	expenseRepo domain.ExpenseRepository
	userRepo    domain.UserRepository
	aggregator  *BudgetAggregator
	stats       StatsRefresher
	logger      zerolog.Logger
}

// NewExpenseService creates a new ExpenseService. stats may be nil.
func NewExpenseService(
	expenseRepo domain.ExpenseRepository,
	userRepo domain.UserRepository,
	aggregator *BudgetAggregator,
	stats StatsRefresher,
	logger zerolog.Logger,
) *ExpenseService {
	return &ExpenseService{
		expenseRepo: expenseRepo,
		userRepo:    userRepo,
		aggregator:  aggregator,
		stats:       stats,
		logger:      logger.With().Str("component", "expense_service").Logger(),
	}
}

// CreateExpenseInput holds the input for recording an expense
type CreateExpenseInput struct {
	Amount              decimal.Decimal
	Currency            string
	Category            domain.ExpenseCategory
	Description         *string
	ExpenseDate         time.Time
	Status              domain.ExpenseStatus // empty means completed
	RecurringTemplateID *int32
}

// UpdateExpenseInput holds the editable fields of an expense
type UpdateExpenseInput struct {
	Amount      *decimal.Decimal
	Currency    *string
	Category    *domain.ExpenseCategory
	Description *string
	ExpenseDate *time.Time
	Status      *domain.ExpenseStatus
}

// CreateExpense validates and records an expense, then applies it to every
// budget covering its date and category.
func (s *ExpenseService) CreateExpense(ctx context.Context, userID uuid.UUID, input CreateExpenseInput) (*domain.Expense, error) {
	status := input.Status
	if status == "" {
		status = domain.ExpenseStatusCompleted
	}
	expense := &domain.Expense{
		UserID:              userID,
		Amount:              input.Amount,
		Category:            input.Category,
		Description:         trimDescription(input.Description),
		ExpenseDate:         domain.TruncateDay(input.ExpenseDate),
		Status:              status,
		RecurringTemplateID: input.RecurringTemplateID,
	}
	if err := validateExpense(expense, input.Description); err != nil {
		return nil, err
	}
	currency, err := resolveCurrency(ctx, s.userRepo, userID, input.Currency)
	if err != nil {
		return nil, err
	}
	expense.Currency = currency

	created, err := s.expenseRepo.Create(ctx, expense)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, userID, nil, created)
	return created, nil
}

// GetExpense retrieves an expense owned by the user
func (s *ExpenseService) GetExpense(ctx context.Context, userID uuid.UUID, id int32) (*domain.Expense, error) {
	return s.expenseRepo.GetByID(ctx, userID, id)
}

// ListExpenses retrieves a filtered page of the user's expenses
func (s *ExpenseService) ListExpenses(ctx context.Context, userID uuid.UUID, filters *domain.ExpenseFilters) (*domain.PaginatedExpenses, error) {
	if filters == nil {
		filters = &domain.ExpenseFilters{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = domain.DefaultPageSize
	}
	if filters.PageSize > domain.MaxPageSize {
		filters.PageSize = domain.MaxPageSize
	}
	if filters.Category != nil && !filters.Category.IsValid() {
		return nil, domain.ErrInvalidCategory
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.expenseRepo.List(ctx, userID, filters)
}

// UpdateExpense applies a partial update. Budgets see the net of removing
// the old version and adding the new one.
func (s *ExpenseService) UpdateExpense(ctx context.Context, userID uuid.UUID, id int32, input UpdateExpenseInput) (*domain.Expense, error) {
	existing, err := s.expenseRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	if input.Amount != nil {
		updated.Amount = *input.Amount
	}
	if input.Category != nil {
		updated.Category = *input.Category
	}
	if input.Description != nil {
		updated.Description = trimDescription(input.Description)
	}
	if input.ExpenseDate != nil {
		updated.ExpenseDate = domain.TruncateDay(*input.ExpenseDate)
	}
	if input.Status != nil {
		updated.Status = *input.Status
	}
	if err := validateExpense(&updated, input.Description); err != nil {
		return nil, err
	}
	if input.Currency != nil {
		currency, err := resolveCurrency(ctx, s.userRepo, userID, *input.Currency)
		if err != nil {
			return nil, err
		}
		updated.Currency = currency
	}

	saved, err := s.expenseRepo.Update(ctx, &updated)
	if err != nil {
		return nil, err
	}

	s.afterMutation(ctx, userID, existing, saved)
	return saved, nil
}

// DeleteExpense removes an expense and subtracts it from covering budgets
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID uuid.UUID, id int32) error {
	existing, err := s.expenseRepo.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.expenseRepo.Delete(ctx, userID, id); err != nil {
		return err
	}

	s.afterMutation(ctx, userID, existing, nil)
	return nil
}

// afterMutation runs the follow-on aggregate updates. The ledger write has
// already succeeded, so failures here are logged and left to reconciliation.
func (s *ExpenseService) afterMutation(ctx context.Context, userID uuid.UUID, before, after *domain.Expense) {
	if err := s.aggregator.ApplyExpenseChange(ctx, userID, before, after); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID.String()).Msg("Budget update after expense mutation failed; awaiting reconciliation")
	}
	if s.stats != nil && countsChanged(before, after) {
		if err := s.stats.RefreshUserStats(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to refresh user stats")
		}
	}
}

func countsChanged(before, after *domain.Expense) bool {
	contribution := func(e *domain.Expense) decimal.Decimal {
		if e == nil || !e.Counts() {
			return decimal.Zero
		}
		return e.Amount
	}
	return !contribution(before).Equal(contribution(after))
}

func validateExpense(e *domain.Expense, rawDescription *string) error {
	if !e.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !e.Category.IsValid() {
		return domain.ErrInvalidCategory
	}
	if !e.Status.IsValid() {
		return domain.ErrInvalidStatus
	}
	if e.ExpenseDate.IsZero() {
		return domain.NewValidationError("expenseDate", "is required")
	}
	if rawDescription != nil && len(*rawDescription) > domain.MaxDescriptionLength {
		return domain.NewValidationError("description", "exceeds maximum length")
	}
	return nil
}

func trimDescription(raw *string) *string {
	if raw == nil {
		return nil
	}
	d := strings.TrimSpace(*raw)
	if d == "" {
		return nil
	}
	return &d
}
