package postgres

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "12.34", "-5.5", "1000000.01"} {
		d := decimal.RequireFromString(s)
		num, err := decimalToPgNumeric(d)
		require.NoError(t, err)
		assert.True(t, d.Equal(pgNumericToDecimal(num)), s)
	}
	assert.True(t, pgNumericToDecimal(pgtype.Numeric{}).IsZero())
}

func TestOptionalConversions(t *testing.T) {
	assert.False(t, timePtrToPgDate(nil).Valid)
	assert.Nil(t, pgDateToTimePtr(pgtype.Date{}))
	assert.False(t, stringPtrToPgText(nil).Valid)
	assert.Nil(t, pgTextToStringPtr(pgtype.Text{}))
	assert.Nil(t, pgTimestamptzToTimePtr(pgtype.Timestamptz{}))

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, day, *pgDateToTimePtr(timePtrToPgDate(&day)))

	s := "groceries"
	assert.Equal(t, "groceries", *pgTextToStringPtr(stringPtrToPgText(&s)))
}

func TestMapBudgetError(t *testing.T) {
	assert.ErrorIs(t, mapBudgetError(pgx.ErrNoRows), domain.ErrNotFound)

	overlap := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23P01", ConstraintName: "budgets_no_active_overlap"})
	assert.ErrorIs(t, mapBudgetError(overlap), domain.ErrConflict)
	assert.Same(t, domain.ErrBudgetOverlap, mapBudgetError(overlap))

	other := &pgconn.PgError{Code: "23505"}
	assert.Same(t, other, mapBudgetError(other))
}

func TestBudgetValues(t *testing.T) {
	b := &domain.Budget{
		UserID:    uuid.New(),
		Name:      "Food",
		Scope:     domain.PerCategory(domain.CategoryFood),
		Amount:    decimal.NewFromInt(500),
		Currency:  "USD",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		IsActive:  true,
	}

	values, err := budgetValues(b)
	require.NoError(t, err)
	assert.Equal(t, "food", values["scope"])
	assert.JSONEq(t, "[]", string(values["alerts"].([]byte)))
	assert.False(t, values["renewed_at"].(pgtype.Timestamptz).Valid)

	b.Scope = domain.AllCategories()
	b.Alerts = []domain.AlertThreshold{{Percentage: 50}}
	values, err = budgetValues(b)
	require.NoError(t, err)
	assert.Equal(t, domain.AllCategories().String(), values["scope"])

	var alerts []domain.AlertThreshold
	require.NoError(t, json.Unmarshal(values["alerts"].([]byte), &alerts))
	assert.Equal(t, 50, alerts[0].Percentage)
}

func TestGoalValues_FrequencyIsNullWhenUnset(t *testing.T) {
	g := &domain.Goal{
		Name:         "Trip",
		TargetAmount: decimal.NewFromInt(1000),
		Deadline:     time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
	}
	values, err := goalValues(g)
	require.NoError(t, err)
	assert.False(t, values["auto_save_frequency"].(pgtype.Text).Valid)

	g.AutoSave = domain.AutoSavePolicy{Enabled: true, Amount: decimal.NewFromInt(50), Frequency: domain.FrequencyMonthly}
	values, err = goalValues(g)
	require.NoError(t, err)
	assert.Equal(t, "monthly", values["auto_save_frequency"].(pgtype.Text).String)
}

func TestCoveringQueryMatchesCategoryAndAllScope(t *testing.T) {
	sql, args, err := psql.Select("id").
		From("budgets").
		Where(squirrel.Eq{"scope": []string{string(domain.CategoryFood), domain.AllCategories().String()}}).
		ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT id FROM budgets WHERE scope IN ($1,$2)", sql)
	assert.Equal(t, []interface{}{"food", domain.AllCategories().String()}, args)
}
