package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var budgetColumns = []string{
	"id", "user_id", "name", "scope", "amount", "currency", "start_date", "end_date", "spent",
	"alerts", "auto_renew", "is_active", "renewed_at", "version", "created_at", "updated_at",
}

// BudgetRepository implements domain.BudgetRepository using PostgreSQL.
// Overlap between active budgets of one scope is enforced by an exclusion
// constraint, so concurrent creates cannot both succeed.
type BudgetRepository struct {
	pool *pgxpool.Pool
}

// NewBudgetRepository creates a new BudgetRepository
func NewBudgetRepository(pool *pgxpool.Pool) *BudgetRepository {
	return &BudgetRepository{pool: pool}
}

// Create inserts a budget at version 1
func (r *BudgetRepository) Create(ctx context.Context, budget *domain.Budget) (*domain.Budget, error) {
	values, err := budgetValues(budget)
	if err != nil {
		return nil, err
	}

	row, err := queryRow(ctx, r.pool, psql.Insert("budgets").
		SetMap(values).
		Suffix("RETURNING "+strings.Join(budgetColumns, ", ")))
	if err != nil {
		return nil, err
	}
	created, err := scanBudget(row)
	if err != nil {
		return nil, mapBudgetError(err)
	}
	return created, nil
}

// GetByID retrieves a budget owned by userID
func (r *BudgetRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Budget, error) {
	row, err := queryRow(ctx, r.pool, psql.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, err
	}
	b, err := scanBudget(row)
	if err != nil {
		return nil, mapBudgetError(err)
	}
	return b, nil
}

// ListByUser returns a user's budgets, most recent window first
func (r *BudgetRepository) ListByUser(ctx context.Context, userID uuid.UUID, activeOnly bool) ([]*domain.Budget, error) {
	where := squirrel.Eq{"user_id": userID}
	if activeOnly {
		where["is_active"] = true
	}
	return r.list(ctx, psql.Select(budgetColumns...).
		From("budgets").
		Where(where).
		OrderBy("start_date DESC", "id"))
}

// FindOverlapping returns active budgets of exactly scope whose window overlaps w
func (r *BudgetRepository) FindOverlapping(ctx context.Context, userID uuid.UUID, scope domain.BudgetScope, w domain.Window) ([]*domain.Budget, error) {
	return r.list(ctx, psql.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{"user_id": userID, "scope": scope.String(), "is_active": true}).
		Where(squirrel.LtOrEq{"start_date": timeToPgDate(w.End)}).
		Where(squirrel.GtOrEq{"end_date": timeToPgDate(w.Start)}).
		OrderBy("id"))
}

// FindCovering returns active budgets an expense in category on date counts toward
func (r *BudgetRepository) FindCovering(ctx context.Context, userID uuid.UUID, category domain.ExpenseCategory, date time.Time) ([]*domain.Budget, error) {
	day := timeToPgDate(domain.TruncateDay(date))
	return r.list(ctx, psql.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{
			"user_id":   userID,
			"is_active": true,
			"scope":     []string{string(category), domain.AllCategories().String()},
		}).
		Where(squirrel.LtOrEq{"start_date": day}).
		Where(squirrel.GtOrEq{"end_date": day}).
		OrderBy("id"))
}

// Save writes every mutable field when the stored version equals expectedVersion
func (r *BudgetRepository) Save(ctx context.Context, budget *domain.Budget, expectedVersion int32) (*domain.Budget, error) {
	values, err := budgetValues(budget)
	if err != nil {
		return nil, err
	}
	delete(values, "user_id")
	values["version"] = squirrel.Expr("version + 1")
	values["updated_at"] = squirrel.Expr("NOW()")

	row, err := queryRow(ctx, r.pool, psql.Update("budgets").
		SetMap(values).
		Where(squirrel.Eq{"id": budget.ID, "user_id": budget.UserID, "version": expectedVersion}).
		Suffix("RETURNING "+strings.Join(budgetColumns, ", ")))
	if err != nil {
		return nil, err
	}
	saved, err := scanBudget(row)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapBudgetError(err)
	}

	// No row matched: either the budget is gone or a concurrent writer won
	if _, getErr := r.GetByID(ctx, budget.UserID, budget.ID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrVersionConflict
}

// Deactivate soft-deletes an active budget
func (r *BudgetRepository) Deactivate(ctx context.Context, userID uuid.UUID, id int32) error {
	tag, err := exec(ctx, r.pool, psql.Update("budgets").
		Set("is_active", false).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "user_id": userID, "is_active": true}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBudgetNotFound
	}
	return nil
}

// ListDueForRenewal returns active auto-renewing budgets that ended before now
// and have not been renewed yet
func (r *BudgetRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*domain.Budget, error) {
	return r.list(ctx, psql.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{"is_active": true, "auto_renew": true, "renewed_at": nil}).
		Where(squirrel.Lt{"end_date": timeToPgDate(domain.TruncateDay(now))}).
		OrderBy("id"))
}

// ListActive returns every active budget across users
func (r *BudgetRepository) ListActive(ctx context.Context) ([]*domain.Budget, error) {
	return r.list(ctx, psql.Select(budgetColumns...).
		From("budgets").
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("id"))
}

func (r *BudgetRepository) list(ctx context.Context, b squirrel.SelectBuilder) ([]*domain.Budget, error) {
	rows, err := query(ctx, r.pool, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []*domain.Budget
	for rows.Next() {
		budget, err := scanBudget(rows)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, budget)
	}
	return budgets, rows.Err()
}

func budgetValues(b *domain.Budget) (map[string]interface{}, error) {
	amount, err := decimalToPgNumeric(b.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	spent, err := decimalToPgNumeric(b.Spent)
	if err != nil {
		return nil, fmt.Errorf("invalid spent: %w", err)
	}
	alerts := b.Alerts
	if alerts == nil {
		alerts = []domain.AlertThreshold{}
	}
	alertsJSON, err := json.Marshal(alerts)
	if err != nil {
		return nil, fmt.Errorf("encode alerts: %w", err)
	}

	return map[string]interface{}{
		"user_id":    b.UserID,
		"name":       b.Name,
		"scope":      b.Scope.String(),
		"amount":     amount,
		"currency":   b.Currency,
		"start_date": timeToPgDate(b.StartDate),
		"end_date":   timeToPgDate(b.EndDate),
		"spent":      spent,
		"alerts":     alertsJSON,
		"auto_renew": b.AutoRenew,
		"is_active":  b.IsActive,
		"renewed_at": timePtrToPgTimestamptz(b.RenewedAt),
	}, nil
}

func mapBudgetError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrBudgetNotFound
	}
	if pgErrorCode(err) == pgExclusionViolation {
		return domain.ErrBudgetOverlap
	}
	return err
}

func scanBudget(row rowScanner) (*domain.Budget, error) {
	var (
		b                  domain.Budget
		userID             pgtype.UUID
		scope              string
		amount, spent      pgtype.Numeric
		startDate, endDate pgtype.Date
		alerts             []byte
		renewedAt          pgtype.Timestamptz
	)
	if err := row.Scan(
		&b.ID, &userID, &b.Name, &scope, &amount, &b.Currency, &startDate, &endDate, &spent,
		&alerts, &b.AutoRenew, &b.IsActive, &renewedAt, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseBudgetScope(scope)
	if err != nil {
		return nil, fmt.Errorf("budget %d: stored scope %q: %w", b.ID, scope, err)
	}
	if err := json.Unmarshal(alerts, &b.Alerts); err != nil {
		return nil, fmt.Errorf("budget %d: decode alerts: %w", b.ID, err)
	}

	b.UserID = uuid.UUID(userID.Bytes)
	b.Scope = parsed
	b.Amount = pgNumericToDecimal(amount)
	b.Spent = pgNumericToDecimal(spent)
	b.StartDate = pgDateToTime(startDate)
	b.EndDate = pgDateToTime(endDate)
	b.RenewedAt = pgTimestamptzToTimePtr(renewedAt)
	return &b, nil
}
