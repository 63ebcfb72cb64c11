package service

import (
	"context"
	"testing"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepFixture struct {
	runner  *SweepRunner
	budgets *testutil.MockBudgetRepository
	goals   *testutil.MockGoalRepository
	incomes *testutil.MockIncomeRepository
	userID  uuid.UUID
}

func newSweepFixture(interval time.Duration) *sweepFixture {
	now := time.Date(2026, 2, 10, 6, 0, 0, 0, time.UTC)
	f := &sweepFixture{
		budgets: testutil.NewMockBudgetRepository(),
		goals:   testutil.NewMockGoalRepository(),
		incomes: testutil.NewMockIncomeRepository(),
		userID:  uuid.New(),
	}
	users := testutil.NewMockUserRepository()
	users.AddUser(&domain.User{ID: f.userID, Auth0ID: "auth0|sweeps", Currency: "USD"})
	expenses := testutil.NewMockExpenseRepository()
	publisher := &recordingPublisher{}

	agg := NewBudgetAggregator(f.budgets, expenses, publisher, zerolog.Nop(), AggregatorConfig{RecomputeTimeout: time.Second, MaxCASRetries: 3})
	agg.now = fixedClock(now)
	budgetSvc := NewBudgetService(f.budgets, users, agg, publisher, nil, zerolog.Nop())
	budgetSvc.now = fixedClock(now)
	goalSvc := NewGoalService(f.goals, users, publisher, zerolog.Nop(), 3)
	goalSvc.now = fixedClock(now)
	incomeSvc := NewIncomeService(f.incomes, expenses, users, nil, publisher, zerolog.Nop())
	incomeSvc.now = fixedClock(now)

	f.runner = NewSweepRunner(budgetSvc, goalSvc, incomeSvc, zerolog.Nop(), SweepRunnerConfig{Interval: interval})
	return f
}

func (f *sweepFixture) seed() {
	alerts, _ := buildAlerts([]int{50, 100})
	f.budgets.AddBudget(&domain.Budget{
		UserID: f.userID, Name: "Food", Scope: domain.PerCategory(domain.CategoryFood),
		Amount: dec("300"), StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31),
		Alerts: alerts, AutoRenew: true, IsActive: true,
	})

	next := date(2026, 2, 1)
	f.goals.AddGoal(&domain.Goal{
		UserID: f.userID, Name: "Bike", TargetAmount: dec("1000"), CurrentAmount: dec("0"),
		Deadline: date(2026, 12, 1),
		AutoSave: domain.AutoSavePolicy{Enabled: true, Amount: dec("50"), Frequency: domain.FrequencyMonthly, NextContributionDate: &next},
	})

	expected := date(2026, 1, 25)
	f.incomes.AddSource(&domain.IncomeSource{
		UserID: f.userID, Name: "Salary", Type: domain.IncomeTypeSalary, Amount: dec("3000"),
		Frequency: domain.FrequencyMonthly, StartDate: date(2025, 1, 25), IsActive: true, IsRecurring: true,
		NextExpectedDate: &expected,
	})
}

func TestSweepRunner_DefaultConfig(t *testing.T) {
	assert.Equal(t, time.Hour, DefaultSweepRunnerConfig().Interval)

	f := newSweepFixture(0)
	assert.Equal(t, time.Hour, f.runner.interval)
	assert.False(t, f.runner.IsRunning())
}

func TestSweepRunner_RunOnce(t *testing.T) {
	f := newSweepFixture(time.Hour)
	f.seed()

	reports := f.runner.RunOnce(context.Background())
	require.Len(t, reports, len(AllSweeps))

	byKind := make(map[SweepKind]*SweepReport)
	for i, r := range reports {
		assert.Equal(t, AllSweeps[i], r.Kind)
		assert.Zero(t, r.Failed)
		assert.Empty(t, r.Error)
		byKind[r.Kind] = r
	}

	assert.Equal(t, 1, byKind[SweepRenewal].Processed)
	assert.Equal(t, 2, byKind[SweepReconcile].Processed, "the renewed successor is reconciled in the same pass")
	assert.Equal(t, 1, byKind[SweepAutoSave].Processed)
	assert.Equal(t, 1, byKind[SweepIncomeExpectations].Processed)

	goal := f.goals.Get(1)
	require.NotNil(t, goal)
	assert.True(t, goal.CurrentAmount.Equal(dec("50")))

	renewal := byKind[SweepRenewal].Results.([]RenewalResult)
	assert.Equal(t, SweepStatusRenewed, renewal[0].Status)

	// A second pass has nothing left to do.
	reports = f.runner.RunOnce(context.Background())
	assert.Zero(t, reports[0].Processed)
	assert.Zero(t, reports[2].Processed)
	assert.Zero(t, reports[3].Processed)
}

func TestSweepRunner_RunSweepUnknownKind(t *testing.T) {
	f := newSweepFixture(time.Hour)
	_, err := f.runner.RunSweep(context.Background(), SweepKind("nightly"))
	assert.Error(t, err)
}

func TestSweepRunner_CancelledContextStopsEarly(t *testing.T) {
	f := newSweepFixture(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Empty(t, f.runner.RunOnce(ctx))
}

func TestParseSweepKind(t *testing.T) {
	kind, err := ParseSweepKind("autosave")
	require.NoError(t, err)
	assert.Equal(t, SweepAutoSave, kind)

	_, err = ParseSweepKind("everything")
	assert.Error(t, err)
}

func TestSweepRunner_StartStop(t *testing.T) {
	f := newSweepFixture(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.runner.Start(ctx)
	f.runner.Start(ctx)
	assert.True(t, f.runner.IsRunning())

	f.runner.Stop()
	assert.False(t, f.runner.IsRunning())

	// Stopping twice is a no-op.
	f.runner.Stop()
}

func TestSweepRunner_StopsOnContextCancel(t *testing.T) {
	f := newSweepFixture(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	f.runner.Start(ctx)
	cancel()

	select {
	case <-f.runner.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after context cancellation")
	}
	assert.False(t, f.runner.IsRunning())
}
