package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GoalService tracks savings goals: the contribution log, completion and
// scheduled auto-save contributions.
type GoalService struct {
	goalRepo   domain.GoalRepository
	userRepo   domain.UserRepository
	publisher  websocket.EventPublisher
	logger     zerolog.Logger
	maxRetries int
	now        func() time.Time
}

// NewGoalService creates a new GoalService
func NewGoalService(
	goalRepo domain.GoalRepository,
	userRepo domain.UserRepository,
	publisher websocket.EventPublisher,
	logger zerolog.Logger,
	maxRetries int,
) *GoalService {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	if publisher == nil {
		publisher = &websocket.NoOpPublisher{}
	}
	return &GoalService{
		goalRepo:   goalRepo,
		userRepo:   userRepo,
		publisher:  publisher,
		logger:     logger.With().Str("component", "goal_tracker").Logger(),
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// GoalView is a goal with its read-time derived fields
type GoalView struct {
	*domain.Goal
	ProgressPercentage   decimal.Decimal `json:"progressPercentage"`
	RemainingAmount      decimal.Decimal `json:"remainingAmount"`
	DaysRemaining        int             `json:"daysRemaining"`
	MonthlySavingsNeeded decimal.Decimal `json:"monthlySavingsNeeded"`
}

// NewGoalView derives the read model of g at now
func NewGoalView(g *domain.Goal, now time.Time) *GoalView {
	progress := decimal.NewFromInt(100)
	if g.TargetAmount.IsPositive() {
		progress = decimal.Min(progress, g.CurrentAmount.Div(g.TargetAmount).Mul(decimal.NewFromInt(100)))
	}

	daysRemaining := int(domain.TruncateDay(g.Deadline).Sub(domain.TruncateDay(now)).Hours() / 24)
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	remaining := g.RemainingAmount()
	months := math.Max(1, float64(daysRemaining)/DaysPerMonth)

	return &GoalView{
		Goal:                 g,
		ProgressPercentage:   progress.Round(2),
		RemainingAmount:      remaining,
		DaysRemaining:        daysRemaining,
		MonthlySavingsNeeded: remaining.Div(decimal.NewFromFloat(months)).Round(2),
	}
}

// AutoSaveInput configures a goal's auto-save policy
type AutoSaveInput struct {
	Enabled   bool
	Amount    decimal.Decimal
	Frequency domain.Frequency
	StartDate *time.Time // first contribution; defaults to one period from now
}

// CreateGoalInput holds the input for creating a goal
type CreateGoalInput struct {
	Name         string
	Description  *string
	TargetAmount decimal.Decimal
	Currency     string
	Deadline     time.Time
	AutoSave     *AutoSaveInput
}

// UpdateGoalInput holds the editable fields of a goal
type UpdateGoalInput struct {
	Name         *string
	Description  *string
	TargetAmount *decimal.Decimal
	Deadline     *time.Time
	AutoSave     *AutoSaveInput
}

// CreateGoal validates and stores a new goal
func (s *GoalService) CreateGoal(ctx context.Context, userID uuid.UUID, input CreateGoalInput) (*GoalView, error) {
	now := s.now()
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}
	if !input.TargetAmount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.TruncateDay(input.Deadline).After(domain.TruncateDay(now)) {
		return nil, domain.ErrDeadlinePast
	}
	policy, err := buildAutoSave(input.AutoSave, now)
	if err != nil {
		return nil, err
	}
	currency, err := resolveCurrency(ctx, s.userRepo, userID, input.Currency)
	if err != nil {
		return nil, err
	}

	created, err := s.goalRepo.Create(ctx, &domain.Goal{
		UserID:        userID,
		Name:          name,
		Description:   trimDescription(input.Description),
		TargetAmount:  input.TargetAmount,
		CurrentAmount: decimal.Zero,
		Currency:      currency,
		Deadline:      domain.TruncateDay(input.Deadline),
		AutoSave:      policy,
	})
	if err != nil {
		return nil, err
	}
	return NewGoalView(created, now), nil
}

// GetGoal retrieves a goal with derived fields and its contribution log
func (s *GoalService) GetGoal(ctx context.Context, userID uuid.UUID, id int32) (*GoalView, error) {
	g, err := s.goalRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return NewGoalView(g, s.now()), nil
}

// ListGoals retrieves the user's goals with derived fields
func (s *GoalService) ListGoals(ctx context.Context, userID uuid.UUID) ([]*GoalView, error) {
	goals, err := s.goalRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*GoalView, len(goals))
	for i, g := range goals {
		views[i] = NewGoalView(g, now)
	}
	return views, nil
}

// UpdateGoal edits goal metadata. The target may not drop below what has
// already been saved; a target equal to it completes the goal.
func (s *GoalService) UpdateGoal(ctx context.Context, userID uuid.UUID, id int32, input UpdateGoalInput) (*GoalView, error) {
	now := s.now()
	var name string
	if input.Name != nil {
		n, err := validateName(*input.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	if input.TargetAmount != nil && !input.TargetAmount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if input.Deadline != nil && !domain.TruncateDay(*input.Deadline).After(domain.TruncateDay(now)) {
		return nil, domain.ErrDeadlinePast
	}
	var policy domain.AutoSavePolicy
	if input.AutoSave != nil {
		p, err := buildAutoSave(input.AutoSave, now)
		if err != nil {
			return nil, err
		}
		policy = p
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.goalRepo.GetByID(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		next := current.Clone()
		if input.Name != nil {
			next.Name = name
		}
		if input.Description != nil {
			next.Description = trimDescription(input.Description)
		}
		if input.Deadline != nil {
			next.Deadline = domain.TruncateDay(*input.Deadline)
		}
		if input.AutoSave != nil {
			next.AutoSave = policy
		}
		if input.TargetAmount != nil {
			if input.TargetAmount.LessThan(next.CurrentAmount) {
				return nil, domain.NewValidationError("targetAmount", "must not be below the amount already saved")
			}
			next.TargetAmount = *input.TargetAmount
			if !next.IsCompleted && next.CurrentAmount.GreaterThanOrEqual(next.TargetAmount) {
				next.IsCompleted = true
				next.CompletedAt = &now
			}
		}

		saved, err := s.goalRepo.Update(ctx, next, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !current.IsCompleted && saved.IsCompleted {
			s.publisher.Publish(userID, websocket.GoalCompleted(saved))
		}
		return NewGoalView(saved, now), nil
	}
	return nil, ErrConcurrentModification
}

// DeleteGoal removes a goal and its contribution log
func (s *GoalService) DeleteGoal(ctx context.Context, userID uuid.UUID, id int32) error {
	return s.goalRepo.Delete(ctx, userID, id)
}

// ContributionResult reports what a contribution actually did
type ContributionResult struct {
	Goal          *GoalView            `json:"goal"`
	Contribution  *domain.Contribution `json:"contribution"`
	Clamped       bool                 `json:"clamped"`
	JustCompleted bool                 `json:"justCompleted"`
}

// Contribute adds money to a goal. Amounts beyond the remaining target are
// truncated, and the truncated amount is what the log records.
func (s *GoalService) Contribute(ctx context.Context, userID uuid.UUID, goalID int32, amount decimal.Decimal, source domain.ContributionSource, description *string) (*ContributionResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if source == "" {
		source = domain.ContributionSourceManual
	}
	if !source.IsValid() {
		return nil, domain.NewValidationError("source", "must be one of manual, auto-save, bonus")
	}
	if description != nil && len(*description) > domain.MaxDescriptionLength {
		return nil, domain.NewValidationError("description", "exceeds maximum length")
	}

	return s.contribute(ctx, userID, goalID, amount, source, trimDescription(description), nil)
}

// contribute runs the compare-and-swap loop. prepare, when set, may adjust
// the goal in the same write and veto the contribution by returning an error.
func (s *GoalService) contribute(
	ctx context.Context,
	userID uuid.UUID,
	goalID int32,
	amount decimal.Decimal,
	source domain.ContributionSource,
	description *string,
	prepare func(g *domain.Goal) error,
) (*ContributionResult, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		current, err := s.goalRepo.GetByID(ctx, userID, goalID)
		if err != nil {
			return nil, err
		}
		if current.IsCompleted {
			return nil, domain.ErrGoalCompleted
		}

		next := current.Clone()
		if prepare != nil {
			if err := prepare(next); err != nil {
				return nil, err
			}
		}
		now := s.now()
		entry, justCompleted := applyContribution(next, amount, source, description, now)

		saved, err := s.goalRepo.AppendContribution(ctx, next, entry, current.Version)
		if errors.Is(err, domain.ErrVersionConflict) {
			s.logger.Debug().Int32("goal_id", goalID).Int("attempt", attempt).Msg("Goal version conflict, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		clamped := entry.Amount.LessThan(amount)
		if clamped {
			s.logger.Info().
				Int32("goal_id", goalID).
				Str("requested", amount.String()).
				Str("applied", entry.Amount.String()).
				Msg("Contribution truncated to remaining target")
		}

		if n := len(saved.Contributions); n > 0 {
			entry = &saved.Contributions[n-1]
		}
		s.publisher.Publish(userID, websocket.GoalContributed(map[string]interface{}{
			"goal":         saved,
			"contribution": entry,
		}))
		if justCompleted {
			s.logger.Info().Int32("goal_id", goalID).Msg("Goal completed")
			s.publisher.Publish(userID, websocket.GoalCompleted(saved))
		}

		return &ContributionResult{
			Goal:          NewGoalView(saved, now),
			Contribution:  entry,
			Clamped:       clamped,
			JustCompleted: justCompleted,
		}, nil
	}
	return nil, ErrConcurrentModification
}

// applyContribution mutates g in place and returns the log entry to append.
// The applied amount never pushes the running total past the target, and
// completion is stamped only the first time the target is reached.
func applyContribution(g *domain.Goal, requested decimal.Decimal, source domain.ContributionSource, description *string, now time.Time) (*domain.Contribution, bool) {
	applied := decimal.Min(requested, g.RemainingAmount())
	g.CurrentAmount = g.CurrentAmount.Add(applied)

	justCompleted := false
	if !g.IsCompleted && g.CurrentAmount.GreaterThanOrEqual(g.TargetAmount) {
		g.IsCompleted = true
		justCompleted = true
		if g.CompletedAt == nil {
			completedAt := now
			g.CompletedAt = &completedAt
		}
	}

	return &domain.Contribution{
		GoalID:          g.ID,
		Amount:          applied,
		RequestedAmount: requested,
		Source:          source,
		Description:     description,
		ContributedAt:   now,
	}, justCompleted
}

// Auto-save result statuses
const (
	AutoSaveContributed = "contributed"
	AutoSaveCompleted   = "completed"
	AutoSaveSkipped     = "skipped"
	AutoSaveFailed      = "failed"
)

// AutoSaveResult reports the outcome for one goal in an auto-save sweep
type AutoSaveResult struct {
	GoalID               int32           `json:"goalId"`
	UserID               uuid.UUID       `json:"userId"`
	Status               string          `json:"status"`
	Amount               decimal.Decimal `json:"amount"`
	NextContributionDate *time.Time      `json:"nextContributionDate,omitempty"`
	Error                string          `json:"error,omitempty"`
}

// errNotDue vetoes an auto-save that another run already handled
var errNotDue = errors.New("auto-save not due")

// ProcessAutoSaveDue contributes the auto-save amount to every goal whose
// next contribution date has arrived and schedules the following one. Each
// goal's failure is captured in its own result.
func (s *GoalService) ProcessAutoSaveDue(ctx context.Context) ([]AutoSaveResult, error) {
	now := s.now()
	due, err := s.goalRepo.ListAutoSaveDue(ctx, now)
	if err != nil {
		return nil, err
	}

	results := make([]AutoSaveResult, 0, len(due))
	for _, g := range due {
		result := AutoSaveResult{GoalID: g.ID, UserID: g.UserID, Amount: g.AutoSave.Amount}
		if err := ctx.Err(); err != nil {
			result.Status = AutoSaveFailed
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		var next *time.Time
		res, err := s.contribute(ctx, g.UserID, g.ID, g.AutoSave.Amount, domain.ContributionSourceAutoSave, nil, func(goal *domain.Goal) error {
			scheduled := goal.AutoSave.NextContributionDate
			if !goal.AutoSave.Enabled || scheduled == nil || scheduled.After(now) {
				return errNotDue
			}
			advanced := advancePast(*scheduled, goal.AutoSave.Frequency, now)
			goal.AutoSave.NextContributionDate = &advanced
			next = &advanced
			return nil
		})

		switch {
		case errors.Is(err, errNotDue), errors.Is(err, domain.ErrGoalCompleted):
			result.Status = AutoSaveSkipped
		case err != nil:
			result.Status = AutoSaveFailed
			result.Error = err.Error()
			s.logger.Error().Err(err).Int32("goal_id", g.ID).Msg("Auto-save contribution failed")
		case res.JustCompleted:
			result.Status = AutoSaveCompleted
			result.Amount = res.Contribution.Amount
			result.NextContributionDate = next
		default:
			result.Status = AutoSaveContributed
			result.Amount = res.Contribution.Amount
			result.NextContributionDate = next
		}
		results = append(results, result)
	}

	s.logger.Info().Int("goals", len(due)).Msg("Auto-save sweep finished")
	return results, nil
}

// advancePast moves t forward by f until it lies after now, so a sweep that
// was down for several periods makes one contribution and resumes the schedule.
func advancePast(t time.Time, f domain.Frequency, now time.Time) time.Time {
	anchor := t
	for n := 1; !t.After(now); n++ {
		next, ok := Occurrence(anchor, f, n)
		if !ok {
			return now.AddDate(0, 0, 1)
		}
		t = next
	}
	return t
}

func buildAutoSave(input *AutoSaveInput, now time.Time) (domain.AutoSavePolicy, error) {
	if input == nil || !input.Enabled {
		return domain.AutoSavePolicy{Enabled: false, Amount: decimal.Zero}, nil
	}
	if !input.Amount.IsPositive() {
		return domain.AutoSavePolicy{}, domain.NewValidationError("autoSave.amount", "must be greater than zero")
	}
	if !input.Frequency.IsAutoSaveFrequency() {
		return domain.AutoSavePolicy{}, domain.NewValidationError("autoSave.frequency", "must be one of weekly, monthly, quarterly")
	}
	var first time.Time
	if input.StartDate != nil {
		first = domain.TruncateDay(*input.StartDate)
	} else {
		first, _ = AdvanceByFrequency(domain.TruncateDay(now), input.Frequency)
	}
	return domain.AutoSavePolicy{
		Enabled:              true,
		Amount:               input.Amount,
		Frequency:            input.Frequency,
		NextContributionDate: &first,
	}, nil
}
