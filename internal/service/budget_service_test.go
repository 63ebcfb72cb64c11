package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/dafibh/tally/tally-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type budgetFixture struct {
	*aggregatorFixture
	svc   *BudgetService
	users *testutil.MockUserRepository
}

func newBudgetFixture() *budgetFixture {
	agg := newAggregatorFixture()
	users := testutil.NewMockUserRepository()
	users.AddUser(&domain.User{ID: agg.userID, Auth0ID: "auth0|budget", Currency: "EUR"})

	svc := NewBudgetService(agg.budgets, users, agg.agg, agg.publisher, nil, zerolog.Nop())
	svc.now = fixedClock(agg.now)
	return &budgetFixture{aggregatorFixture: agg, svc: svc, users: users}
}

func januaryInput(scope domain.BudgetScope, amount string) CreateBudgetInput {
	return CreateBudgetInput{
		Name:      "Groceries",
		Scope:     scope,
		Amount:    dec(amount),
		StartDate: date(2026, 1, 1),
		EndDate:   date(2026, 1, 31),
	}
}

func TestCreateBudget_DefaultsAndSeeding(t *testing.T) {
	f := newBudgetFixture()
	f.addExpense(domain.CategoryFood, "420", 3, domain.ExpenseStatusCompleted)

	view, err := f.svc.CreateBudget(context.Background(), f.userID, januaryInput(domain.PerCategory(domain.CategoryFood), "800"))
	require.NoError(t, err)

	assert.Equal(t, "EUR", view.Currency, "falls back to the user's currency")
	assert.Equal(t, []int{50, 75, 90, 100}, alertPercentages(view.Alerts))
	assert.True(t, view.Spent.Equal(dec("420")), "spent seeded from ledger")
	assert.Equal(t, []int{50}, triggeredPercentages(view.Budget))
	assert.Equal(t, domain.BudgetStatusModerate, view.Status)
	assert.True(t, view.PercentageUsed.Equal(dec("52.5")))
	assert.True(t, view.Remaining.Equal(dec("380")))
	assert.Equal(t, 15, view.DaysRemaining)
	assert.False(t, view.IsOverBudget)
}

func TestCreateBudget_CustomThresholdsSortedAndDeduplicated(t *testing.T) {
	f := newBudgetFixture()
	in := januaryInput(domain.AllCategories(), "100")
	in.Alerts = []int{90, 40, 90}

	view, err := f.svc.CreateBudget(context.Background(), f.userID, in)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 90}, alertPercentages(view.Alerts))
}

func TestCreateBudget_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateBudgetInput)
		want   error
	}{
		{"empty name", func(in *CreateBudgetInput) { in.Name = "  " }, domain.ErrNameRequired},
		{"zero amount", func(in *CreateBudgetInput) { in.Amount = dec("0") }, domain.ErrInvalidAmount},
		{"negative amount", func(in *CreateBudgetInput) { in.Amount = dec("-5") }, domain.ErrInvalidAmount},
		{"invalid scope", func(in *CreateBudgetInput) { in.Scope = domain.BudgetScope{} }, domain.ErrInvalidCategory},
		{"inverted window", func(in *CreateBudgetInput) { in.EndDate = date(2025, 12, 1) }, domain.ErrInvalidWindow},
		{"bad threshold", func(in *CreateBudgetInput) { in.Alerts = []int{0} }, domain.ErrInvalidThreshold},
		{"bad currency", func(in *CreateBudgetInput) { in.Currency = "EURO" }, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBudgetFixture()
			in := januaryInput(domain.PerCategory(domain.CategoryFood), "100")
			tt.mutate(&in)

			_, err := f.svc.CreateBudget(context.Background(), f.userID, in)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, f.budgets.Budgets)
		})
	}
}

func TestCreateBudget_OverlapConflict(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	_, err := f.svc.CreateBudget(ctx, f.userID, januaryInput(domain.PerCategory(domain.CategoryFood), "100"))
	require.NoError(t, err)

	in := januaryInput(domain.PerCategory(domain.CategoryFood), "200")
	in.StartDate = date(2026, 1, 31)
	in.EndDate = date(2026, 2, 27)
	_, err = f.svc.CreateBudget(ctx, f.userID, in)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// A different scope or another user's budget does not conflict.
	_, err = f.svc.CreateBudget(ctx, f.userID, januaryInput(domain.AllCategories(), "100"))
	assert.NoError(t, err)
	_, err = f.svc.CreateBudget(ctx, uuid.New(), januaryInput(domain.PerCategory(domain.CategoryFood), "100"))
	assert.NoError(t, err)
}

func TestDeleteBudget_FreesWindow(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	view, err := f.svc.CreateBudget(ctx, f.userID, januaryInput(domain.PerCategory(domain.CategoryFood), "100"))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteBudget(ctx, f.userID, view.ID))
	assert.ErrorIs(t, f.svc.DeleteBudget(ctx, f.userID, view.ID), domain.ErrNotFound)

	_, err = f.svc.CreateBudget(ctx, f.userID, januaryInput(domain.PerCategory(domain.CategoryFood), "100"))
	assert.NoError(t, err)
}

func TestGetBudget_OtherUserIsNotFound(t *testing.T) {
	f := newBudgetFixture()
	view, err := f.svc.CreateBudget(context.Background(), f.userID, januaryInput(domain.AllCategories(), "100"))
	require.NoError(t, err)

	_, err = f.svc.GetBudget(context.Background(), uuid.New(), view.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateBudget_LoweringLimitTriggersThresholds(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	f.addExpense(domain.CategoryFood, "300", 2, domain.ExpenseStatusCompleted)
	view, err := f.svc.CreateBudget(ctx, f.userID, januaryInput(domain.PerCategory(domain.CategoryFood), "1000"))
	require.NoError(t, err)
	assert.Empty(t, triggeredPercentages(view.Budget))

	amount := dec("400")
	name := "Food"
	updated, err := f.svc.UpdateBudget(ctx, f.userID, view.ID, UpdateBudgetInput{Name: &name, Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, "Food", updated.Name)
	assert.Equal(t, []int{50, 75}, triggeredPercentages(updated.Budget))

	amount = dec("1000")
	updated, err = f.svc.UpdateBudget(ctx, f.userID, view.ID, UpdateBudgetInput{Amount: &amount})
	require.NoError(t, err)
	assert.Empty(t, triggeredPercentages(updated.Budget), "raising the limit re-evaluates from the ledger")
}

func TestUpdateBudget_RejectsInvalidInputWithoutWriting(t *testing.T) {
	f := newBudgetFixture()
	view, err := f.svc.CreateBudget(context.Background(), f.userID, januaryInput(domain.AllCategories(), "100"))
	require.NoError(t, err)
	before := f.budgets.Get(view.ID)

	amount := dec("0")
	_, err = f.svc.UpdateBudget(context.Background(), f.userID, view.ID, UpdateBudgetInput{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Equal(t, before.Version, f.budgets.Get(view.ID).Version)
}

func TestDuplicateBudget_NextWindow(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	in := januaryInput(domain.PerCategory(domain.CategoryFood), "250")
	in.Alerts = []int{80}
	view, err := f.svc.CreateBudget(ctx, f.userID, in)
	require.NoError(t, err)

	dup, err := f.svc.DuplicateBudget(ctx, f.userID, view.ID)
	require.NoError(t, err)
	assert.Equal(t, date(2026, 2, 1), dup.StartDate)
	assert.Equal(t, date(2026, 3, 3), dup.EndDate)
	assert.Equal(t, []int{80}, alertPercentages(dup.Alerts))
	assert.NotEqual(t, view.ID, dup.ID)

	_, err = f.svc.DuplicateBudget(ctx, f.userID, view.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestGetBudgetAlerts(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	f.addExpense(domain.CategoryFood, "95", 2, domain.ExpenseStatusCompleted)
	f.addExpense(domain.CategoryTravel, "60", 2, domain.ExpenseStatusCompleted)

	food := januaryInput(domain.PerCategory(domain.CategoryFood), "100")
	food.Name = "Food"
	_, err := f.svc.CreateBudget(ctx, f.userID, food)
	require.NoError(t, err)
	travel := januaryInput(domain.PerCategory(domain.CategoryTravel), "100")
	travel.Name = "Travel"
	_, err = f.svc.CreateBudget(ctx, f.userID, travel)
	require.NoError(t, err)
	quiet := januaryInput(domain.PerCategory(domain.CategoryHousing), "100")
	_, err = f.svc.CreateBudget(ctx, f.userID, quiet)
	require.NoError(t, err)

	alerts, err := f.svc.GetBudgetAlerts(ctx, f.userID)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "Food", alerts[0].BudgetName)
	assert.Equal(t, 90, alerts[0].Threshold)
	assert.Equal(t, domain.BudgetStatusCritical, alerts[0].Status)
	assert.Equal(t, "Travel", alerts[1].BudgetName)
	assert.Equal(t, 50, alerts[1].Threshold)
}

// failingBudgetRepo fails Create for budgets with a given name
type failingBudgetRepo struct {
	*testutil.MockBudgetRepository
	failName string
}

func (r *failingBudgetRepo) Create(ctx context.Context, b *domain.Budget) (*domain.Budget, error) {
	if b.Name == r.failName {
		return nil, errors.New("disk full")
	}
	return r.MockBudgetRepository.Create(ctx, b)
}

func TestRunBudgetRenewalSweep(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	repo := &failingBudgetRepo{MockBudgetRepository: f.budgets, failName: "Broken"}
	f.agg.budgetRepo = repo
	f.svc.budgetRepo = repo

	sweepNow := date(2026, 2, 3)
	f.svc.now = fixedClock(sweepNow)
	f.agg.now = fixedClock(sweepNow)

	december := func(name string, scope domain.BudgetScope, autoRenew bool) *domain.Budget {
		return f.budgets.AddBudget(&domain.Budget{
			UserID: f.userID, Name: name, Scope: scope, Amount: dec("500"), Currency: "USD",
			StartDate: date(2025, 12, 1), EndDate: date(2025, 12, 31),
			Alerts:    []domain.AlertThreshold{{Percentage: 50, Triggered: true, TriggeredAt: &sweepNow}},
			AutoRenew: autoRenew, IsActive: true,
		})
	}
	renewable := december("Food", domain.PerCategory(domain.CategoryFood), true)
	blocked := december("Travel", domain.PerCategory(domain.CategoryTravel), true)
	broken := december("Broken", domain.PerCategory(domain.CategoryHousing), true)
	manual := december("Manual", domain.PerCategory(domain.CategoryShopping), false)

	// The user already created January's travel budget.
	f.budgets.AddBudget(&domain.Budget{
		UserID: f.userID, Name: "Trip", Scope: domain.PerCategory(domain.CategoryTravel), Amount: dec("900"),
		StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31), IsActive: true,
	})
	f.expenses.AddExpense(&domain.Expense{
		UserID: f.userID, Amount: dec("40"), Category: domain.CategoryFood,
		ExpenseDate: date(2026, 1, 8), Status: domain.ExpenseStatusCompleted,
	})

	results, err := f.svc.RunBudgetRenewalSweep(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[int32]RenewalResult{}
	for _, r := range results {
		byID[r.BudgetID] = r
	}

	assert.Equal(t, SweepStatusRenewed, byID[renewable.ID].Status)
	require.NotNil(t, byID[renewable.ID].SuccessorID)
	successor := f.budgets.Get(*byID[renewable.ID].SuccessorID)
	assert.Equal(t, date(2026, 1, 1), successor.StartDate)
	assert.Equal(t, date(2026, 1, 31), successor.EndDate)
	assert.True(t, successor.Amount.Equal(dec("500")))
	assert.True(t, successor.Spent.Equal(dec("40")))
	assert.Empty(t, triggeredPercentages(successor), "successor thresholds start untriggered")
	assert.True(t, successor.AutoRenew)
	assert.NotNil(t, f.budgets.Get(renewable.ID).RenewedAt)

	assert.Equal(t, SweepStatusSkipped, byID[blocked.ID].Status)
	assert.NotNil(t, f.budgets.Get(blocked.ID).RenewedAt)

	assert.Equal(t, SweepStatusFailed, byID[broken.ID].Status)
	assert.Equal(t, "disk full", byID[broken.ID].Error)
	assert.Nil(t, f.budgets.Get(broken.ID).RenewedAt, "failed renewals are retried next run")

	assert.Nil(t, f.budgets.Get(manual.ID).RenewedAt)
	assert.Equal(t, 1, f.publisher.count("budget.renewed"))

	// The January successor has itself ended; the next run catches up one period.
	results, err = f.svc.RunBudgetRenewalSweep(ctx)
	require.NoError(t, err)
	statuses := map[int32]string{}
	for _, r := range results {
		statuses[r.BudgetID] = r.Status
	}
	assert.Equal(t, SweepStatusRenewed, statuses[successor.ID])
	assert.Equal(t, SweepStatusFailed, statuses[broken.ID])
	_, rerun := statuses[renewable.ID]
	assert.False(t, rerun, "a renewed budget is not renewed twice")
}

func TestRunReconcileSweep(t *testing.T) {
	f := newBudgetFixture()
	ctx := context.Background()
	drifted := f.addBudget(domain.PerCategory(domain.CategoryFood), "100", 50)
	steady := f.addBudget(domain.PerCategory(domain.CategoryTravel), "100", 50)
	f.addExpense(domain.CategoryFood, "70", 4, domain.ExpenseStatusCompleted)

	results, err := f.svc.RunReconcileSweep(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byID := map[int32]ReconcileResult{}
	for _, r := range results {
		byID[r.BudgetID] = r
	}
	assert.Equal(t, SweepStatusReconciled, byID[drifted.ID].Status)
	assert.True(t, byID[drifted.ID].Recomputed.Equal(dec("70")))
	assert.Equal(t, SweepStatusUnchanged, byID[steady.ID].Status)
	assert.Equal(t, []int{50}, triggeredPercentages(f.budgets.Get(drifted.ID)))
}

func TestRunReconcileSweep_IsolatesFailures(t *testing.T) {
	f := newBudgetFixture()
	f.addBudget(domain.PerCategory(domain.CategoryFood), "100", 50)
	f.addBudget(domain.PerCategory(domain.CategoryTravel), "100", 50)
	f.expenses.SumErr = errors.New("timeout")

	results, err := f.svc.RunReconcileSweep(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, SweepStatusFailed, r.Status)
		assert.Equal(t, "timeout", r.Error)
	}
}

func TestNewBudgetView_OverBudget(t *testing.T) {
	b := &domain.Budget{
		Amount: dec("200"), Spent: dec("260"),
		StartDate: date(2026, 1, 1), EndDate: date(2026, 1, 31),
	}
	view := NewBudgetView(b, time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC))

	assert.True(t, view.IsOverBudget)
	assert.Equal(t, domain.BudgetStatusExceeded, view.Status)
	assert.True(t, view.Remaining.Equal(dec("-60")))
	assert.Equal(t, 11, view.DaysRemaining)
}
