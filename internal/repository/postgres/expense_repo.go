package postgres

import (
	"context"
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
	"github.com/shopspring/decimal"
)

var expenseColumns = []string{
	"id", "user_id", "amount", "currency", "category", "description", "expense_date", "status",
	"recurring_template_id", "receipt_object_key", "receipt_thumbnail_key", "receipt_uploaded_at",
	"created_at", "updated_at",
}

// ExpenseRepository implements domain.ExpenseRepository using PostgreSQL
type ExpenseRepository struct {
	pool *pgxpool.Pool
}

// NewExpenseRepository creates a new ExpenseRepository
func NewExpenseRepository(pool *pgxpool.Pool) *ExpenseRepository {
	return &ExpenseRepository{pool: pool}
}

// Create inserts a new expense
func (r *ExpenseRepository) Create(ctx context.Context, expense *domain.Expense) (*domain.Expense, error) {
	amount, err := decimalToPgNumeric(expense.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	row, err := queryRow(ctx, r.pool, psql.Insert("expenses").
		Columns("user_id", "amount", "currency", "category", "description", "expense_date", "status", "recurring_template_id").
		Values(expense.UserID, amount, expense.Currency, string(expense.Category), stringPtrToPgText(expense.Description),
			timeToPgDate(expense.ExpenseDate), string(expense.Status), expense.RecurringTemplateID).
		Suffix("RETURNING "+strings.Join(expenseColumns, ", ")))
	if err != nil {
		return nil, err
	}
	return scanExpense(row)
}

// GetByID retrieves an expense owned by userID
func (r *ExpenseRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Expense, error) {
	row, err := queryRow(ctx, r.pool, psql.Select(expenseColumns...).
		From("expenses").
		Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, err
	}
	return expenseOrNotFound(scanExpense(row))
}

// List returns one page of a user's expenses, newest first
func (r *ExpenseRepository) List(ctx context.Context, userID uuid.UUID, filters *domain.ExpenseFilters) (*domain.PaginatedExpenses, error) {
	where := squirrel.And{squirrel.Eq{"user_id": userID}}
	if filters.Category != nil {
		where = append(where, squirrel.Eq{"category": string(*filters.Category)})
	}
	if filters.Status != nil {
		where = append(where, squirrel.Eq{"status": string(*filters.Status)})
	}
	if filters.StartDate != nil {
		where = append(where, squirrel.GtOrEq{"expense_date": timeToPgDate(*filters.StartDate)})
	}
	if filters.EndDate != nil {
		where = append(where, squirrel.LtOrEq{"expense_date": timeToPgDate(*filters.EndDate)})
	}

	countRow, err := queryRow(ctx, r.pool, psql.Select("COUNT(*)").From("expenses").Where(where))
	if err != nil {
		return nil, err
	}
	var total int64
	if err := countRow.Scan(&total); err != nil {
		return nil, err
	}

	rows, err := query(ctx, r.pool, psql.Select(expenseColumns...).
		From("expenses").
		Where(where).
		OrderBy("expense_date DESC", "id DESC").
		Limit(uint64(filters.PageSize)).
		Offset(uint64((filters.Page-1)*filters.PageSize)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := make([]*domain.Expense, 0, filters.PageSize)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := int32(0)
	if total > 0 {
		totalPages = int32((total + int64(filters.PageSize) - 1) / int64(filters.PageSize))
	}

	return &domain.PaginatedExpenses{
		Data:       expenses,
		Page:       filters.Page,
		PageSize:   filters.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// Update replaces the mutable fields of an expense
func (r *ExpenseRepository) Update(ctx context.Context, expense *domain.Expense) (*domain.Expense, error) {
	amount, err := decimalToPgNumeric(expense.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}

	row, err := queryRow(ctx, r.pool, psql.Update("expenses").
		Set("amount", amount).
		Set("currency", expense.Currency).
		Set("category", string(expense.Category)).
		Set("description", stringPtrToPgText(expense.Description)).
		Set("expense_date", timeToPgDate(expense.ExpenseDate)).
		Set("status", string(expense.Status)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": expense.ID, "user_id": expense.UserID}).
		Suffix("RETURNING "+strings.Join(expenseColumns, ", ")))
	if err != nil {
		return nil, err
	}
	return expenseOrNotFound(scanExpense(row))
}

// Delete removes an expense
func (r *ExpenseRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	tag, err := exec(ctx, r.pool, psql.Delete("expenses").Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrExpenseNotFound
	}
	return nil
}

// SetReceipt attaches receipt object keys to an expense, or clears them when receipt is nil
func (r *ExpenseRepository) SetReceipt(ctx context.Context, userID uuid.UUID, id int32, receipt *domain.Receipt) (*domain.Expense, error) {
	var objectKey, thumbKey *string
	var uploadedAt *time.Time
	if receipt != nil {
		objectKey, thumbKey, uploadedAt = &receipt.ObjectKey, &receipt.ThumbnailKey, &receipt.UploadedAt
	}

	row, err := queryRow(ctx, r.pool, psql.Update("expenses").
		Set("receipt_object_key", stringPtrToPgText(objectKey)).
		Set("receipt_thumbnail_key", stringPtrToPgText(thumbKey)).
		Set("receipt_uploaded_at", timePtrToPgTimestamptz(uploadedAt)).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		Suffix("RETURNING "+strings.Join(expenseColumns, ", ")))
	if err != nil {
		return nil, err
	}
	return expenseOrNotFound(scanExpense(row))
}

// SumCompleted runs as a single statement, so it reads one snapshot
func (r *ExpenseRepository) SumCompleted(ctx context.Context, userID uuid.UUID, scope domain.BudgetScope, window domain.Window) (decimal.Decimal, error) {
	where := squirrel.And{
		squirrel.Eq{"user_id": userID, "status": string(domain.ExpenseStatusCompleted)},
		squirrel.GtOrEq{"expense_date": timeToPgDate(window.Start)},
		squirrel.LtOrEq{"expense_date": timeToPgDate(window.End)},
	}
	if c, ok := scope.Category(); ok {
		where = append(where, squirrel.Eq{"category": string(c)})
	}
	return r.sum(ctx, where)
}

// SumAllCompleted sums every completed expense of a user
func (r *ExpenseRepository) SumAllCompleted(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return r.sum(ctx, squirrel.Eq{"user_id": userID, "status": string(domain.ExpenseStatusCompleted)})
}

func (r *ExpenseRepository) sum(ctx context.Context, where squirrel.Sqlizer) (decimal.Decimal, error) {
	row, err := queryRow(ctx, r.pool, psql.Select("COALESCE(SUM(amount), 0)").From("expenses").Where(where))
	if err != nil {
		return decimal.Zero, err
	}
	var total pgtype.Numeric
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return pgNumericToDecimal(total), nil
}

// SumCompletedByMonth groups completed expenses in [from, to] by calendar month
func (r *ExpenseRepository) SumCompletedByMonth(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*domain.MonthlyExpenseTotal, error) {
	rows, err := query(ctx, r.pool, psql.Select(
		"EXTRACT(YEAR FROM expense_date)::int AS year",
		"EXTRACT(MONTH FROM expense_date)::int AS month",
		"SUM(amount)",
	).
		From("expenses").
		Where(squirrel.Eq{"user_id": userID, "status": string(domain.ExpenseStatusCompleted)}).
		Where(squirrel.GtOrEq{"expense_date": timeToPgDate(domain.TruncateDay(from))}).
		Where(squirrel.LtOrEq{"expense_date": timeToPgDate(domain.TruncateDay(to))}).
		GroupBy("year", "month").
		OrderBy("year", "month"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.MonthlyExpenseTotal
	for rows.Next() {
		var (
			year, month int32
			total       pgtype.Numeric
		)
		if err := rows.Scan(&year, &month, &total); err != nil {
			return nil, err
		}
		result = append(result, &domain.MonthlyExpenseTotal{
			Year:  int(year),
			Month: int(month),
			Total: pgNumericToDecimal(total),
		})
	}
	return result, rows.Err()
}

func expenseOrNotFound(e *domain.Expense, err error) (*domain.Expense, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExpenseNotFound
		}
		return nil, err
	}
	return e, nil
}

func scanExpense(row rowScanner) (*domain.Expense, error) {
	var (
		e                   domain.Expense
		userID              pgtype.UUID
		amount              pgtype.Numeric
		category, status    string
		description         pgtype.Text
		expenseDate         pgtype.Date
		templateID          pgtype.Int4
		objectKey, thumbKey pgtype.Text
		uploadedAt          pgtype.Timestamptz
	)
	if err := row.Scan(
		&e.ID, &userID, &amount, &e.Currency, &category, &description, &expenseDate, &status,
		&templateID, &objectKey, &thumbKey, &uploadedAt,
		&e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}

	e.UserID = uuid.UUID(userID.Bytes)
	e.Amount = pgNumericToDecimal(amount)
	e.Category = domain.ExpenseCategory(category)
	e.Status = domain.ExpenseStatus(status)
	e.Description = pgTextToStringPtr(description)
	e.ExpenseDate = pgDateToTime(expenseDate)
	if templateID.Valid {
		id := templateID.Int32
		e.RecurringTemplateID = &id
	}
	if objectKey.Valid {
		e.Receipt = &domain.Receipt{
			ObjectKey:    objectKey.String,
			ThumbnailKey: thumbKey.String,
			UploadedAt:   uploadedAt.Time.UTC(),
		}
	}
	return &e, nil
}
