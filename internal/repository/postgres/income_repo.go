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
)

var incomeColumns = []string{
	"id", "user_id", "name", "type", "amount", "currency", "frequency", "start_date", "end_date",
	"is_active", "is_recurring", "last_received_date", "next_expected_date", "created_at", "updated_at",
}

// IncomeRepository implements domain.IncomeRepository using PostgreSQL
type IncomeRepository struct {
	pool *pgxpool.Pool
}

// NewIncomeRepository creates a new IncomeRepository
func NewIncomeRepository(pool *pgxpool.Pool) *IncomeRepository {
	return &IncomeRepository{pool: pool}
}

// Create inserts a new income source
func (r *IncomeRepository) Create(ctx context.Context, source *domain.IncomeSource) (*domain.IncomeSource, error) {
	values, err := incomeValues(source)
	if err != nil {
		return nil, err
	}
	row, err := queryRow(ctx, r.pool, psql.Insert("income_sources").
		SetMap(values).
		Suffix("RETURNING "+strings.Join(incomeColumns, ", ")))
	if err != nil {
		return nil, err
	}
	return scanIncome(row)
}

// GetByID retrieves an income source owned by userID
func (r *IncomeRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.IncomeSource, error) {
	row, err := queryRow(ctx, r.pool, psql.Select(incomeColumns...).
		From("income_sources").
		Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, err
	}
	return incomeOrNotFound(scanIncome(row))
}

// ListByUser returns every income source of a user
func (r *IncomeRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.IncomeSource, error) {
	return r.list(ctx, psql.Select(incomeColumns...).
		From("income_sources").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("start_date", "id"))
}

// Update replaces the mutable fields of an income source
func (r *IncomeRepository) Update(ctx context.Context, source *domain.IncomeSource) (*domain.IncomeSource, error) {
	values, err := incomeValues(source)
	if err != nil {
		return nil, err
	}
	delete(values, "user_id")
	values["updated_at"] = squirrel.Expr("NOW()")

	row, err := queryRow(ctx, r.pool, psql.Update("income_sources").
		SetMap(values).
		Where(squirrel.Eq{"id": source.ID, "user_id": source.UserID}).
		Suffix("RETURNING "+strings.Join(incomeColumns, ", ")))
	if err != nil {
		return nil, err
	}
	return incomeOrNotFound(scanIncome(row))
}

// Delete removes an income source
func (r *IncomeRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	tag, err := exec(ctx, r.pool, psql.Delete("income_sources").Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrIncomeNotFound
	}
	return nil
}

// ListOverdueExpectations returns active recurring sources expected before now
func (r *IncomeRepository) ListOverdueExpectations(ctx context.Context, now time.Time) ([]*domain.IncomeSource, error) {
	return r.list(ctx, psql.Select(incomeColumns...).
		From("income_sources").
		Where(squirrel.Eq{"is_active": true, "is_recurring": true}).
		Where(squirrel.Lt{"next_expected_date": timeToPgDate(domain.TruncateDay(now))}).
		OrderBy("id"))
}

func (r *IncomeRepository) list(ctx context.Context, b squirrel.SelectBuilder) ([]*domain.IncomeSource, error) {
	rows, err := query(ctx, r.pool, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*domain.IncomeSource
	for rows.Next() {
		s, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func incomeValues(s *domain.IncomeSource) (map[string]interface{}, error) {
	amount, err := decimalToPgNumeric(s.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount: %w", err)
	}
	return map[string]interface{}{
		"user_id":            s.UserID,
		"name":               s.Name,
		"type":               string(s.Type),
		"amount":             amount,
		"currency":           s.Currency,
		"frequency":          string(s.Frequency),
		"start_date":         timeToPgDate(s.StartDate),
		"end_date":           timePtrToPgDate(s.EndDate),
		"is_active":          s.IsActive,
		"is_recurring":       s.IsRecurring,
		"last_received_date": timePtrToPgDate(s.LastReceivedDate),
		"next_expected_date": timePtrToPgDate(s.NextExpectedDate),
	}, nil
}

func incomeOrNotFound(s *domain.IncomeSource, err error) (*domain.IncomeSource, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIncomeNotFound
		}
		return nil, err
	}
	return s, nil
}

func scanIncome(row rowScanner) (*domain.IncomeSource, error) {
	var (
		s                      domain.IncomeSource
		userID                 pgtype.UUID
		incomeType, frequency  string
		amount                 pgtype.Numeric
		startDate, endDate     pgtype.Date
		lastReceived, nextDate pgtype.Date
	)
	if err := row.Scan(
		&s.ID, &userID, &s.Name, &incomeType, &amount, &s.Currency, &frequency, &startDate, &endDate,
		&s.IsActive, &s.IsRecurring, &lastReceived, &nextDate, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.UserID = uuid.UUID(userID.Bytes)
	s.Type = domain.IncomeType(incomeType)
	s.Frequency = domain.Frequency(frequency)
	s.Amount = pgNumericToDecimal(amount)
	s.StartDate = pgDateToTime(startDate)
	s.EndDate = pgDateToTimePtr(endDate)
	s.LastReceivedDate = pgDateToTimePtr(lastReceived)
	s.NextExpectedDate = pgDateToTimePtr(nextDate)
	return &s, nil
}
