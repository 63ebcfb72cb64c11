package service

import (
	"context"
	"math/rand"
	"testing"

	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct {
	calls int
}

func (c *countingRefresher) RefreshUserStats(ctx context.Context, userID uuid.UUID) error {
	c.calls++
	return nil
}

type expenseFixture struct {
	*aggregatorFixture
	svc   *ExpenseService
	stats *countingRefresher
}

func newExpenseFixture() *expenseFixture {
	agg := newAggregatorFixture()
	stats := &countingRefresher{}
	svc := NewExpenseService(agg.expenses, nil, agg.agg, stats, zerolog.Nop())
	return &expenseFixture{aggregatorFixture: agg, svc: svc, stats: stats}
}

func (f *expenseFixture) record(t *testing.T, category domain.ExpenseCategory, amount string, day int) *domain.Expense {
	t.Helper()
	e, err := f.svc.CreateExpense(context.Background(), f.userID, CreateExpenseInput{
		Amount:      dec(amount),
		Category:    category,
		ExpenseDate: date(2026, 1, day),
	})
	require.NoError(t, err)
	return e
}

func TestCreateExpense_UpdatesCoveringBudgets(t *testing.T) {
	f := newExpenseFixture()
	food := f.addBudget(domain.PerCategory(domain.CategoryFood), "1000", 50)
	total := f.addBudget(domain.AllCategories(), "3000", 50)
	housing := f.addBudget(domain.PerCategory(domain.CategoryHousing), "1000", 50)

	e := f.record(t, domain.CategoryFood, "120.50", 10)

	assert.Equal(t, domain.ExpenseStatusCompleted, e.Status, "status defaults to completed")
	assert.Equal(t, domain.DefaultCurrency, e.Currency)
	assert.True(t, f.budgets.Get(food.ID).Spent.Equal(dec("120.50")))
	assert.True(t, f.budgets.Get(total.ID).Spent.Equal(dec("120.50")))
	assert.True(t, f.budgets.Get(housing.ID).Spent.IsZero())
	assert.Equal(t, 1, f.stats.calls)
}

func TestCreateExpense_PendingDoesNotCount(t *testing.T) {
	f := newExpenseFixture()
	food := f.addBudget(domain.PerCategory(domain.CategoryFood), "1000", 50)

	_, err := f.svc.CreateExpense(context.Background(), f.userID, CreateExpenseInput{
		Amount:      dec("80"),
		Category:    domain.CategoryFood,
		ExpenseDate: date(2026, 1, 10),
		Status:      domain.ExpenseStatusPending,
	})
	require.NoError(t, err)
	assert.True(t, f.budgets.Get(food.ID).Spent.IsZero())
	assert.Equal(t, 0, f.stats.calls)
}

func TestCreateExpense_ValidationLeavesAggregatesUntouched(t *testing.T) {
	tests := []struct {
		name  string
		input CreateExpenseInput
		want  error
	}{
		{"zero amount", CreateExpenseInput{Amount: dec("0"), Category: domain.CategoryFood, ExpenseDate: date(2026, 1, 2)}, domain.ErrInvalidAmount},
		{"unknown category", CreateExpenseInput{Amount: dec("5"), Category: "gadgets", ExpenseDate: date(2026, 1, 2)}, domain.ErrInvalidCategory},
		{"unknown status", CreateExpenseInput{Amount: dec("5"), Category: domain.CategoryFood, ExpenseDate: date(2026, 1, 2), Status: "refunded"}, domain.ErrInvalidStatus},
		{"missing date", CreateExpenseInput{Amount: dec("5"), Category: domain.CategoryFood}, domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExpenseFixture()
			b := f.addBudget(domain.AllCategories(), "100", 50)

			_, err := f.svc.CreateExpense(context.Background(), f.userID, tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.expenses.Expenses)
			assert.Equal(t, b.Version, f.budgets.Get(b.ID).Version)
		})
	}
}

func TestUpdateExpense_MovesSpendBetweenBudgets(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()
	food := f.addBudget(domain.PerCategory(domain.CategoryFood), "1000", 50)
	travel := f.addBudget(domain.PerCategory(domain.CategoryTravel), "1000", 50)

	e := f.record(t, domain.CategoryFood, "200", 10)

	category := domain.CategoryTravel
	amount := dec("250")
	_, err := f.svc.UpdateExpense(ctx, f.userID, e.ID, UpdateExpenseInput{Category: &category, Amount: &amount})
	require.NoError(t, err)

	assert.True(t, f.budgets.Get(food.ID).Spent.IsZero())
	assert.True(t, f.budgets.Get(travel.ID).Spent.Equal(dec("250")))
}

func TestUpdateExpense_InvalidUpdateLeavesLedgerAndBudgets(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()
	food := f.addBudget(domain.PerCategory(domain.CategoryFood), "1000", 50)
	e := f.record(t, domain.CategoryFood, "200", 10)
	version := f.budgets.Get(food.ID).Version

	amount := dec("-1")
	_, err := f.svc.UpdateExpense(ctx, f.userID, e.ID, UpdateExpenseInput{Amount: &amount})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	stored, err := f.svc.GetExpense(ctx, f.userID, e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Amount.Equal(dec("200")))
	assert.Equal(t, version, f.budgets.Get(food.ID).Version)
}

func TestDeleteExpense(t *testing.T) {
	f := newExpenseFixture()
	ctx := context.Background()
	food := f.addBudget(domain.PerCategory(domain.CategoryFood), "1000", 50)
	e := f.record(t, domain.CategoryFood, "200", 10)

	require.NoError(t, f.svc.DeleteExpense(ctx, f.userID, e.ID))
	assert.True(t, f.budgets.Get(food.ID).Spent.IsZero())

	err := f.svc.DeleteExpense(ctx, f.userID, e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteExpense_OtherUserIsNotFound(t *testing.T) {
	f := newExpenseFixture()
	e := f.record(t, domain.CategoryFood, "200", 10)

	err := f.svc.DeleteExpense(context.Background(), uuid.New(), e.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListExpenses_ClampsPaging(t *testing.T) {
	f := newExpenseFixture()
	for day := 1; day <= 3; day++ {
		f.record(t, domain.CategoryFood, "10", day)
	}

	filters := &domain.ExpenseFilters{PageSize: 500}
	page, err := f.svc.ListExpenses(context.Background(), f.userID, filters)
	require.NoError(t, err)
	assert.Equal(t, int32(1), page.Page)
	assert.Equal(t, int32(domain.MaxPageSize), page.PageSize)
	assert.Len(t, page.Data, 3)
	assert.Equal(t, date(2026, 1, 3), page.Data[0].ExpenseDate)

	bad := domain.ExpenseCategory("nope")
	_, err = f.svc.ListExpenses(context.Background(), f.userID, &domain.ExpenseFilters{Category: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)
}

// Incremental maintenance and a full ledger recompute agree after any
// sequence of creates, updates and deletes.
func TestConvergence_IncrementalMatchesRecompute(t *testing.T) {
	categories := []domain.ExpenseCategory{domain.CategoryFood, domain.CategoryTravel, domain.CategoryHousing}
	statuses := []domain.ExpenseStatus{domain.ExpenseStatusCompleted, domain.ExpenseStatusCompleted, domain.ExpenseStatusPending, domain.ExpenseStatusCancelled}

	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		f := newExpenseFixture()
		ctx := context.Background()
		budgets := []*domain.Budget{
			f.addBudget(domain.PerCategory(domain.CategoryFood), "500", 50, 90),
			f.addBudget(domain.PerCategory(domain.CategoryTravel), "800", 75),
			f.addBudget(domain.AllCategories(), "2000", 50, 100),
		}

		var live []int32
		for step := 0; step < 40; step++ {
			switch op := rng.Intn(3); {
			case op == 0 || len(live) == 0:
				e, err := f.svc.CreateExpense(ctx, f.userID, CreateExpenseInput{
					Amount:      dec("1").Add(dec("0.25").Mul(decimal.NewFromInt(int64(rng.Intn(400))))),
					Category:    categories[rng.Intn(len(categories))],
					ExpenseDate: date(2026, 1, 1).AddDate(0, 0, rng.Intn(45)),
					Status:      statuses[rng.Intn(len(statuses))],
				})
				require.NoError(t, err)
				live = append(live, e.ID)
			case op == 1:
				id := live[rng.Intn(len(live))]
				amount := decimal.NewFromInt(int64(1 + rng.Intn(300)))
				category := categories[rng.Intn(len(categories))]
				status := statuses[rng.Intn(len(statuses))]
				when := date(2026, 1, 1).AddDate(0, 0, rng.Intn(45))
				_, err := f.svc.UpdateExpense(ctx, f.userID, id, UpdateExpenseInput{
					Amount: &amount, Category: &category, Status: &status, ExpenseDate: &when,
				})
				require.NoError(t, err)
			default:
				idx := rng.Intn(len(live))
				require.NoError(t, f.svc.DeleteExpense(ctx, f.userID, live[idx]))
				live = append(live[:idx], live[idx+1:]...)
			}
		}

		for _, b := range budgets {
			incremental := f.budgets.Get(b.ID).Spent
			recomputed, err := f.agg.RecomputeFromLedger(ctx, f.userID, b.ID)
			require.NoError(t, err)
			assert.True(t, incremental.Equal(recomputed.Spent), "seed %d budget %d: incremental %s, recomputed %s", seed, b.ID, incremental, recomputed.Spent)
		}
	}
}
