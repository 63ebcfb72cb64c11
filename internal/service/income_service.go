package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/cache"
	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/util"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultAnalysisMonths = 6
	MaxAnalysisMonths     = 24
)

// IncomeService owns income sources and the income roll-up derived from them
type IncomeService struct {
	incomeRepo  domain.IncomeRepository
	expenseRepo domain.ExpenseRepository
	userRepo    domain.UserRepository
	summaries   cache.Cache[uuid.UUID, *IncomeSummary]
	publisher   websocket.EventPublisher

	// generations counts income writes per user. A summary is only cached
	// when no write happened while it was being computed.
	genMu       sync.Mutex
	generations map[uuid.UUID]uint64

	logger      zerolog.Logger
	now         func() time.Time
}

// NewIncomeService creates a new IncomeService. summaries caches roll-ups per
// user and is invalidated on every income mutation.
func NewIncomeService(
	incomeRepo domain.IncomeRepository,
	expenseRepo domain.ExpenseRepository,
	userRepo domain.UserRepository,
	summaries cache.Cache[uuid.UUID, *IncomeSummary],
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
) *IncomeService {
	if summaries == nil {
		summaries = cache.NewLRU[uuid.UUID, *IncomeSummary](1000, 5*time.Minute)
	}
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &IncomeService{
		incomeRepo:  incomeRepo,
		expenseRepo: expenseRepo,
		userRepo:    userRepo,
		summaries:   summaries,
		publisher:   publisher,
		generations: make(map[uuid.UUID]uint64),
		logger:      logger.With().Str("component", "income_rollup").Logger(),
		now:         time.Now,
	}
}

// SourceBreakdown is one income source's contribution to the roll-up
type SourceBreakdown struct {
	ID            int32             `json:"id"`
	Name          string            `json:"name"`
	Type          domain.IncomeType `json:"type"`
	Amount        decimal.Decimal   `json:"amount"`
	Frequency     domain.Frequency  `json:"frequency"`
	AnnualAmount  decimal.Decimal   `json:"annualAmount"`
	MonthlyAmount decimal.Decimal   `json:"monthlyAmount"`
}

// IncomeSummary is a user's annualized income across active sources
type IncomeSummary struct {
	AnnualIncome  decimal.Decimal   `json:"annualIncome"`
	MonthlyIncome decimal.Decimal   `json:"monthlyIncome"`
	SourceCount   int               `json:"sourceCount"`
	Sources       []SourceBreakdown `json:"sources"`
}

// IncomeTypeTotal is the annualized income of one income type
type IncomeTypeTotal struct {
	Type          domain.IncomeType `json:"type"`
	AnnualAmount  decimal.Decimal   `json:"annualAmount"`
	MonthlyAmount decimal.Decimal   `json:"monthlyAmount"`
	SourceCount   int               `json:"sourceCount"`
}

// SavingsAnalysis compares income with realized spending
type SavingsAnalysis struct {
	MonthlyIncome        decimal.Decimal `json:"monthlyIncome"`
	AvgMonthlyExpenses   decimal.Decimal `json:"avgMonthlyExpenses"`
	MonthlySavings       decimal.Decimal `json:"monthlySavings"`
	SavingsRate          decimal.Decimal `json:"savingsRate"`
	ExpenseToIncomeRatio decimal.Decimal `json:"expenseToIncomeRatio"`
	NoIncome             bool            `json:"noIncome"`
}

// IncomeVsExpenseAnalysis is the savings analysis over a trailing period
type IncomeVsExpenseAnalysis struct {
	Months          int                           `json:"months"`
	From            time.Time                     `json:"from"`
	To              time.Time                     `json:"to"`
	Income          *IncomeSummary                `json:"income"`
	MonthlyExpenses []*domain.MonthlyExpenseTotal `json:"monthlyExpenses"`
	Savings         SavingsAnalysis               `json:"savings"`
}

// TotalAnnualIncome sums the annualized amounts of every source that counts
// today. Results are served from the per-user cache when fresh.
func (s *IncomeService) TotalAnnualIncome(ctx context.Context, userID uuid.UUID) (*IncomeSummary, error) {
	if summary, ok := s.summaries.Get(userID); ok {
		return summary, nil
	}

	gen := s.generation(userID)
	sources, err := s.incomeRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &IncomeSummary{
		AnnualIncome: decimal.Zero,
		Sources:      make([]SourceBreakdown, 0),
	}
	for _, src := range sources {
		if !src.CountsAt(now) {
			continue
		}
		annual := Annualize(src.Amount, src.Frequency)
		summary.AnnualIncome = summary.AnnualIncome.Add(annual)
		summary.Sources = append(summary.Sources, SourceBreakdown{
			ID:            src.ID,
			Name:          src.Name,
			Type:          src.Type,
			Amount:        src.Amount,
			Frequency:     src.Frequency,
			AnnualAmount:  annual,
			MonthlyAmount: annual.Div(monthsPerYear).Round(2),
		})
	}
	summary.SourceCount = len(summary.Sources)
	summary.MonthlyIncome = summary.AnnualIncome.Div(monthsPerYear).Round(2)

	s.storeSummary(userID, gen, summary)
	return summary, nil
}

func (s *IncomeService) generation(userID uuid.UUID) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// storeSummary caches summary unless an income write for the user landed
// after gen was read.
func (s *IncomeService) storeSummary(userID uuid.UUID, gen uint64, summary *IncomeSummary) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.summaries.Set(userID, summary)
}

// invalidate drops the cached summary and fences off any roll-up that is
// still computing from the previous state.
func (s *IncomeService) invalidate(userID uuid.UUID) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[userID]++
	s.summaries.Delete(userID)
}

// IncomeByType groups annualized income by type for sources active at any
// point of year, largest first.
func (s *IncomeService) IncomeByType(ctx context.Context, userID uuid.UUID, year int) ([]IncomeTypeTotal, error) {
	sources, err := s.incomeRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	byType := make(map[domain.IncomeType]*IncomeTypeTotal)
	var order []domain.IncomeType
	for _, src := range sources {
		if !src.IsActive || !src.ActiveDuringYear(year) {
			continue
		}
		total, ok := byType[src.Type]
		if !ok {
			total = &IncomeTypeTotal{Type: src.Type, AnnualAmount: decimal.Zero}
			byType[src.Type] = total
			order = append(order, src.Type)
		}
		total.AnnualAmount = total.AnnualAmount.Add(Annualize(src.Amount, src.Frequency))
		total.SourceCount++
	}

	result := make([]IncomeTypeTotal, 0, len(order))
	for _, t := range order {
		total := byType[t]
		total.MonthlyAmount = total.AnnualAmount.Div(monthsPerYear).Round(2)
		result = append(result, *total)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].AnnualAmount.GreaterThan(result[j].AnnualAmount)
	})
	return result, nil
}

// ComputeSavings derives the savings rate and expense ratio. Zero income is
// reported through NoIncome with both percentages left at zero.
func ComputeSavings(monthlyIncome, avgMonthlyExpenses decimal.Decimal) SavingsAnalysis {
	analysis := SavingsAnalysis{
		MonthlyIncome:        monthlyIncome,
		AvgMonthlyExpenses:   avgMonthlyExpenses,
		MonthlySavings:       monthlyIncome.Sub(avgMonthlyExpenses),
		SavingsRate:          decimal.Zero,
		ExpenseToIncomeRatio: decimal.Zero,
	}
	if !monthlyIncome.IsPositive() {
		analysis.NoIncome = true
		return analysis
	}
	analysis.SavingsRate = analysis.MonthlySavings.Div(monthlyIncome).Mul(hundred).Round(2)
	analysis.ExpenseToIncomeRatio = avgMonthlyExpenses.Div(monthlyIncome).Mul(hundred).Round(2)
	return analysis
}

var hundred = decimal.NewFromInt(100)

// GetIncomeVsExpenseAnalysis compares current monthly income with the
// average realized spend of the trailing months, the current month included.
func (s *IncomeService) GetIncomeVsExpenseAnalysis(ctx context.Context, userID uuid.UUID, months int) (*IncomeVsExpenseAnalysis, error) {
	if months < 1 || months > MaxAnalysisMonths {
		return nil, domain.NewValidationError("months", "must be between 1 and 24")
	}

	income, err := s.TotalAnnualIncome(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	from := util.MonthsBack(now, months-1)
	to := domain.TruncateDay(now)

	rows, err := s.expenseRepo.SumCompletedByMonth(ctx, userID, from, to)
	if err != nil {
		return nil, err
	}

	filled := fillMonths(from, months, rows)
	total := decimal.Zero
	for _, m := range filled {
		total = total.Add(m.Total)
	}
	avg := total.Div(decimal.NewFromInt(int64(months))).Round(2)

	return &IncomeVsExpenseAnalysis{
		Months:          months,
		From:            from,
		To:              to,
		Income:          income,
		MonthlyExpenses: filled,
		Savings:         ComputeSavings(income.MonthlyIncome, avg),
	}, nil
}

// fillMonths returns one row per month starting at from, zero where the
// ledger had no completed expenses.
func fillMonths(from time.Time, months int, rows []*domain.MonthlyExpenseTotal) []*domain.MonthlyExpenseTotal {
	byKey := make(map[[2]int]decimal.Decimal, len(rows))
	for _, r := range rows {
		byKey[[2]int{r.Year, r.Month}] = r.Total
	}
	out := make([]*domain.MonthlyExpenseTotal, months)
	for i := 0; i < months; i++ {
		m := from.AddDate(0, i, 0)
		total, ok := byKey[[2]int{m.Year(), int(m.Month())}]
		if !ok {
			total = decimal.Zero
		}
		out[i] = &domain.MonthlyExpenseTotal{Year: m.Year(), Month: int(m.Month()), Total: total}
	}
	return out
}

// CreateIncomeInput holds the input for creating an income source
type CreateIncomeInput struct {
	Name             string
	Type             domain.IncomeType
	Amount           decimal.Decimal
	Currency         string
	Frequency        domain.Frequency
	StartDate        time.Time
	EndDate          *time.Time
	IsRecurring      *bool // defaults to true unless the frequency is one-time
	NextExpectedDate *time.Time
}

// UpdateIncomeInput holds the editable fields of an income source
type UpdateIncomeInput struct {
	Name             *string
	Type             *domain.IncomeType
	Amount           *decimal.Decimal
	Frequency        *domain.Frequency
	StartDate        *time.Time
	EndDate          *time.Time
	ClearEndDate     bool
	IsActive         *bool
	IsRecurring      *bool
	NextExpectedDate *time.Time
}

// CreateIncome validates and stores an income source
func (s *IncomeService) CreateIncome(ctx context.Context, userID uuid.UUID, input CreateIncomeInput) (*domain.IncomeSource, error) {
	recurring := input.Frequency != domain.FrequencyOneTime
	if input.IsRecurring != nil {
		recurring = *input.IsRecurring
	}
	src := &domain.IncomeSource{
		UserID:      userID,
		Name:        strings.TrimSpace(input.Name),
		Type:        input.Type,
		Amount:      input.Amount,
		Frequency:   input.Frequency,
		StartDate:   domain.TruncateDay(input.StartDate),
		EndDate:     truncateOptional(input.EndDate),
		IsActive:    true,
		IsRecurring: recurring,
	}
	if err := validateIncome(src); err != nil {
		return nil, err
	}
	currency, err := resolveCurrency(ctx, s.userRepo, userID, input.Currency)
	if err != nil {
		return nil, err
	}
	src.Currency = currency
	if input.NextExpectedDate != nil {
		src.NextExpectedDate = truncateOptional(input.NextExpectedDate)
	} else if src.IsRecurring {
		src.NextExpectedDate = firstExpectedOnOrAfter(src.StartDate, src.Frequency, s.now())
	}

	created, err := s.incomeRepo.Create(ctx, src)
	if err != nil {
		return nil, err
	}
	s.incomeChanged(ctx, userID)
	return created, nil
}

// GetIncome retrieves an income source owned by the user
func (s *IncomeService) GetIncome(ctx context.Context, userID uuid.UUID, id int32) (*domain.IncomeSource, error) {
	return s.incomeRepo.GetByID(ctx, userID, id)
}

// ListIncome retrieves all of the user's income sources
func (s *IncomeService) ListIncome(ctx context.Context, userID uuid.UUID) ([]*domain.IncomeSource, error) {
	return s.incomeRepo.ListByUser(ctx, userID)
}

// UpdateIncome applies a partial update to an income source
func (s *IncomeService) UpdateIncome(ctx context.Context, userID uuid.UUID, id int32, input UpdateIncomeInput) (*domain.IncomeSource, error) {
	existing, err := s.incomeRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	src := *existing
	if input.Name != nil {
		src.Name = strings.TrimSpace(*input.Name)
	}
	if input.Type != nil {
		src.Type = *input.Type
	}
	if input.Amount != nil {
		src.Amount = *input.Amount
	}
	if input.Frequency != nil {
		src.Frequency = *input.Frequency
	}
	if input.StartDate != nil {
		src.StartDate = domain.TruncateDay(*input.StartDate)
	}
	if input.ClearEndDate {
		src.EndDate = nil
	} else if input.EndDate != nil {
		src.EndDate = truncateOptional(input.EndDate)
	}
	if input.IsActive != nil {
		src.IsActive = *input.IsActive
	}
	if input.IsRecurring != nil {
		src.IsRecurring = *input.IsRecurring
	}
	if input.NextExpectedDate != nil {
		src.NextExpectedDate = truncateOptional(input.NextExpectedDate)
	}
	if err := validateIncome(&src); err != nil {
		return nil, err
	}

	saved, err := s.incomeRepo.Update(ctx, &src)
	if err != nil {
		return nil, err
	}
	s.incomeChanged(ctx, userID)
	return saved, nil
}

// DeleteIncome removes an income source
func (s *IncomeService) DeleteIncome(ctx context.Context, userID uuid.UUID, id int32) error {
	if err := s.incomeRepo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.incomeChanged(ctx, userID)
	return nil
}

// MarkReceived records a payment of a source and schedules the next one
func (s *IncomeService) MarkReceived(ctx context.Context, userID uuid.UUID, id int32, receivedOn *time.Time) (*domain.IncomeSource, error) {
	existing, err := s.incomeRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	received := domain.TruncateDay(s.now())
	if receivedOn != nil {
		received = domain.TruncateDay(*receivedOn)
	}

	src := *existing
	src.LastReceivedDate = &received
	if src.IsRecurring {
		if next, ok := AdvanceByFrequency(received, src.Frequency); ok {
			src.NextExpectedDate = &next
		}
	} else {
		src.NextExpectedDate = nil
	}

	saved, err := s.incomeRepo.Update(ctx, &src)
	if err != nil {
		return nil, err
	}
	s.incomeChanged(ctx, userID)
	return saved, nil
}

// ExpectationResult reports one source rolled forward by the expectation sweep
type ExpectationResult struct {
	SourceID         int32      `json:"sourceId"`
	UserID           uuid.UUID  `json:"userId"`
	NextExpectedDate *time.Time `json:"nextExpectedDate,omitempty"`
	Status           string     `json:"status"`
	Error            string     `json:"error,omitempty"`
}

// RollForwardExpectations moves every overdue next-expected date of a
// recurring source to its next occurrence on or after today.
func (s *IncomeService) RollForwardExpectations(ctx context.Context) ([]ExpectationResult, error) {
	now := s.now()
	overdue, err := s.incomeRepo.ListOverdueExpectations(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]ExpectationResult, 0, len(overdue))
	touched := make(map[uuid.UUID]bool)
	for _, src := range overdue {
		result := ExpectationResult{SourceID: src.ID, UserID: src.UserID}
		next := firstExpectedOnOrAfter(*src.NextExpectedDate, src.Frequency, now)
		if next == nil {
			result.Status = SweepStatusSkipped
			results = append(results, result)
			continue
		}
		updated := *src
		updated.NextExpectedDate = next
		if _, err := s.incomeRepo.Update(ctx, &updated); err != nil {
			result.Status = SweepStatusFailed
			result.Error = err.Error()
			s.logger.Error().Err(err).Int32("income_id", src.ID).Msg("Failed to roll income expectation forward")
		} else {
			result.Status = "rolled"
			result.NextExpectedDate = next
			touched[src.UserID] = true
		}
		results = append(results, result)
	}

	for userID := range touched {
		s.invalidate(userID)
	}
	return results, nil
}

// RefreshUserStats writes a fresh income and spend snapshot into the user's
// cached stats.
func (s *IncomeService) RefreshUserStats(ctx context.Context, userID uuid.UUID) error {
	summary, err := s.TotalAnnualIncome(ctx, userID)
	if err != nil {
		return err
	}
	spent, err := s.expenseRepo.SumAllCompleted(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now()
	stats := domain.UserStats{
		CurrentIncome: summary.MonthlyIncome,
		AnnualIncome:  summary.AnnualIncome,
		TotalExpenses: spent,
		UpdatedAt:     &now,
	}
	if err := s.userRepo.UpdateStats(ctx, userID, stats); err != nil {
		return err
	}
	s.publisher.Publish(userID, websocket.IncomeStatsUpdated(stats))
	return nil
}

func (s *IncomeService) incomeChanged(ctx context.Context, userID uuid.UUID) {
	s.invalidate(userID)
	if err := s.RefreshUserStats(ctx, userID); err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("Failed to refresh user stats")
	}
}

func validateIncome(src *domain.IncomeSource) error {
	if src.Name == "" {
		return domain.ErrNameRequired
	}
	if len(src.Name) > domain.MaxNameLength {
		return domain.ErrNameTooLong
	}
	if !src.Type.IsValid() {
		return domain.NewValidationError("type", "unknown income type")
	}
	if !src.Amount.IsPositive() {
		return domain.ErrInvalidAmount
	}
	if !src.Frequency.IsValid() {
		return domain.ErrInvalidFrequency
	}
	if src.StartDate.IsZero() {
		return domain.NewValidationError("startDate", "is required")
	}
	if src.EndDate != nil && src.EndDate.Before(src.StartDate) {
		return domain.ErrInvalidWindow
	}
	return nil
}

// firstExpectedOnOrAfter advances from start by f until it reaches today.
// It returns nil for frequencies that do not recur.
func firstExpectedOnOrAfter(start time.Time, f domain.Frequency, now time.Time) *time.Time {
	today := domain.TruncateDay(now)
	anchor := domain.TruncateDay(start)
	t := anchor
	for n := 1; t.Before(today); n++ {
		next, ok := Occurrence(anchor, f, n)
		if !ok {
			return nil
		}
		t = next
	}
	return &t
}

func truncateOptional(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := domain.TruncateDay(*t)
	return &d
}
