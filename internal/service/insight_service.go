package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var (
	overspendingRate   = decimal.Zero
	lowSavingsRate     = decimal.NewFromInt(10)
	healthySavingsRate = decimal.NewFromInt(20)
	highExpenseRatio   = decimal.NewFromInt(80)

	urgentGoalProgress    = decimal.NewFromInt(80)
	lowGoalProgress       = decimal.NewFromInt(25)
	nearlyDoneProgress    = decimal.NewFromInt(90)
	autoSaveHintThreshold = decimal.NewFromInt(50)
)

const (
	urgentGoalDays  = 30
	lowProgressDays = 90
)

// InsightInput is the set of already computed aggregates insights are drawn from
type InsightInput struct {
	Savings *SavingsAnalysis
	Goals   []*GoalView
	Budgets []*BudgetView
}

// GenerateInsights evaluates every rule against in and returns the resulting
// insights ordered by priority, highest first. Equal priorities keep rule order.
func GenerateInsights(in InsightInput) []domain.Insight {
	insights := make([]domain.Insight, 0)

	if in.Savings != nil {
		insights = append(insights, savingsInsights(*in.Savings)...)
	}
	for _, g := range in.Goals {
		insights = append(insights, goalInsights(g)...)
	}
	for _, b := range in.Budgets {
		insights = append(insights, budgetInsights(b)...)
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Priority > insights[j].Priority
	})
	return insights
}

func savingsInsights(s SavingsAnalysis) []domain.Insight {
	if s.NoIncome {
		return []domain.Insight{{
			Type:     domain.InsightTypeWarning,
			Subject:  domain.InsightSubjectIncome,
			Message:  "No active income recorded. Add your income sources to track your savings rate.",
			Priority: domain.PriorityMedium,
		}}
	}

	var out []domain.Insight
	rate := s.SavingsRate
	switch {
	case rate.LessThan(overspendingRate):
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeCritical,
			Subject:  domain.InsightSubjectSavings,
			Message:  fmt.Sprintf("You are spending %s more than you earn each month.", s.MonthlySavings.Neg().StringFixed(2)),
			Priority: domain.PriorityHigh,
		})
	case rate.LessThan(lowSavingsRate):
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeWarning,
			Subject:  domain.InsightSubjectSavings,
			Message:  fmt.Sprintf("Your savings rate is %s%%. Aim for at least 10%%.", rate.StringFixed(1)),
			Priority: domain.PriorityMedium,
		})
	case rate.GreaterThanOrEqual(healthySavingsRate):
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeSuccess,
			Subject:  domain.InsightSubjectSavings,
			Message:  fmt.Sprintf("Great job! You are saving %s%% of your income.", rate.StringFixed(1)),
			Priority: domain.PriorityLow,
		})
	}

	if s.ExpenseToIncomeRatio.GreaterThan(highExpenseRatio) {
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeWarning,
			Subject:  domain.InsightSubjectSavings,
			Message:  fmt.Sprintf("Expenses take up %s%% of your income.", s.ExpenseToIncomeRatio.StringFixed(1)),
			Priority: domain.PriorityMedium,
		})
	}
	return out
}

func goalInsights(g *GoalView) []domain.Insight {
	id := g.ID
	var out []domain.Insight
	progress := g.ProgressPercentage

	if !g.IsCompleted && g.DaysRemaining <= urgentGoalDays && progress.LessThan(urgentGoalProgress) {
		out = append(out, domain.Insight{
			Type:    domain.InsightTypeWarning,
			Subject: domain.InsightSubjectGoal,
			Message: fmt.Sprintf("%q is due in %d days. You need to save %s per month to reach it.",
				g.Name, g.DaysRemaining, g.MonthlySavingsNeeded.StringFixed(2)),
			Priority: domain.PriorityHigh,
			GoalID:   &id,
		})
	}
	if !g.IsCompleted && progress.LessThan(lowGoalProgress) && g.DaysRemaining <= lowProgressDays {
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeWarning,
			Subject:  domain.InsightSubjectGoal,
			Message:  fmt.Sprintf("%q is only %s%% funded with %d days left.", g.Name, progress.StringFixed(0), g.DaysRemaining),
			Priority: domain.PriorityMedium,
			GoalID:   &id,
		})
	}
	if progress.GreaterThanOrEqual(nearlyDoneProgress) {
		msg := fmt.Sprintf("You're almost there! %q is %s%% funded.", g.Name, progress.StringFixed(0))
		if g.IsCompleted {
			msg = fmt.Sprintf("Congratulations! You reached %q.", g.Name)
		}
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeSuccess,
			Subject:  domain.InsightSubjectGoal,
			Message:  msg,
			Priority: domain.PriorityLow,
			GoalID:   &id,
		})
	}
	if !g.AutoSave.Enabled && progress.LessThan(autoSaveHintThreshold) {
		out = append(out, domain.Insight{
			Type:     domain.InsightTypeSuggestion,
			Subject:  domain.InsightSubjectGoal,
			Message:  fmt.Sprintf("Turn on auto-save for %q to make steady progress.", g.Name),
			Priority: domain.PriorityLow,
			GoalID:   &id,
		})
	}
	return out
}

func budgetInsights(b *BudgetView) []domain.Insight {
	if !b.IsActive {
		return nil
	}
	id := b.ID
	switch b.Status {
	case domain.BudgetStatusExceeded:
		return []domain.Insight{{
			Type:    domain.InsightTypeWarning,
			Subject: domain.InsightSubjectBudget,
			Message: fmt.Sprintf("%q is over budget by %s.",
				b.Name, b.Remaining.Neg().StringFixed(2)),
			Priority: domain.PriorityHigh,
			BudgetID: &id,
		}}
	case domain.BudgetStatusCritical:
		return []domain.Insight{{
			Type:    domain.InsightTypeWarning,
			Subject: domain.InsightSubjectBudget,
			Message: fmt.Sprintf("%q has used %s%% with %d days remaining.",
				b.Name, b.PercentageUsed.StringFixed(0), b.DaysRemaining),
			Priority: domain.PriorityMedium,
			BudgetID: &id,
		}}
	}
	return nil
}

// InsightService gathers a user's aggregates and runs the insight rules
type InsightService struct {
	incomeService *IncomeService
	goalService   *GoalService
	budgetService *BudgetService
}

// NewInsightService creates a new InsightService
func NewInsightService(incomeService *IncomeService, goalService *GoalService, budgetService *BudgetService) *InsightService {
	return &InsightService{
		incomeService: incomeService,
		goalService:   goalService,
		budgetService: budgetService,
	}
}

// GetInsights loads the savings analysis, goals and active budgets
// concurrently and evaluates them.
func (s *InsightService) GetInsights(ctx context.Context, userID uuid.UUID) ([]domain.Insight, error) {
	var in InsightInput
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		analysis, err := s.incomeService.GetIncomeVsExpenseAnalysis(ctx, userID, DefaultAnalysisMonths)
		if err != nil {
			return err
		}
		in.Savings = &analysis.Savings
		return nil
	})
	g.Go(func() error {
		goals, err := s.goalService.ListGoals(ctx, userID)
		in.Goals = goals
		return err
	})
	g.Go(func() error {
		budgets, err := s.budgetService.ListBudgets(ctx, userID, true)
		in.Budgets = budgets
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return GenerateInsights(in), nil
}
