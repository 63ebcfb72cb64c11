package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/dafibh/tally/tally-backend/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

var userColumns = []string{
	"id", "auth0_id", "email", "name", "picture_url", "currency",
	"stats_current_income", "stats_annual_income", "stats_total_expenses", "stats_updated_at",
	"created_at", "updated_at",
}

// UserRepository implements domain.UserRepository using PostgreSQL
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID retrieves a user by their UUID
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByAuth0ID retrieves a user by their Auth0 ID
func (r *UserRepository) GetByAuth0ID(ctx context.Context, auth0ID string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"auth0_id": auth0ID})
}

func (r *UserRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	row, err := queryRow(ctx, r.pool, psql.Select(userColumns...).From("users").Where(where))
	if err != nil {
		return nil, err
	}
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// CreateOrGetByAuth0ID creates a new user or returns existing one (upsert on login)
func (r *UserRepository) CreateOrGetByAuth0ID(ctx context.Context, auth0ID, email string, name, pictureURL *string) (*domain.User, error) {
	// The no-op update makes RETURNING yield the existing row on conflict
	b := psql.Insert("users").
		Columns("auth0_id", "email", "name", "picture_url").
		Values(auth0ID, email, stringPtrToPgText(name), stringPtrToPgText(pictureURL)).
		Suffix("ON CONFLICT (auth0_id) DO UPDATE SET auth0_id = EXCLUDED.auth0_id RETURNING " + strings.Join(userColumns, ", "))

	row, err := queryRow(ctx, r.pool, b)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

// UpdateProfile sets whichever of name and currency are non-nil
func (r *UserRepository) UpdateProfile(ctx context.Context, id uuid.UUID, name *string, currency *string) (*domain.User, error) {
	b := psql.Update("users").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(userColumns, ", "))
	if name != nil {
		b = b.Set("name", *name)
	}
	if currency != nil {
		b = b.Set("currency", *currency)
	}

	row, err := queryRow(ctx, r.pool, b)
	if err != nil {
		return nil, err
	}
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateStats overwrites the cached income and expense roll-up
func (r *UserRepository) UpdateStats(ctx context.Context, id uuid.UUID, stats domain.UserStats) error {
	current, err := decimalToPgNumeric(stats.CurrentIncome)
	if err != nil {
		return fmt.Errorf("invalid current income: %w", err)
	}
	annual, err := decimalToPgNumeric(stats.AnnualIncome)
	if err != nil {
		return fmt.Errorf("invalid annual income: %w", err)
	}
	expenses, err := decimalToPgNumeric(stats.TotalExpenses)
	if err != nil {
		return fmt.Errorf("invalid total expenses: %w", err)
	}

	tag, err := exec(ctx, r.pool, psql.Update("users").
		Set("stats_current_income", current).
		Set("stats_annual_income", annual).
		Set("stats_total_expenses", expenses).
		Set("stats_updated_at", timePtrToPgTimestamptz(stats.UpdatedAt)).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u                              pgtype.UUID
		user                           domain.User
		name, picture                  pgtype.Text
		current, annual, totalExpenses pgtype.Numeric
		statsUpdatedAt                 pgtype.Timestamptz
	)
	if err := row.Scan(
		&u, &user.Auth0ID, &user.Email, &name, &picture, &user.Currency,
		&current, &annual, &totalExpenses, &statsUpdatedAt,
		&user.CreatedAt, &user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	user.ID = uuid.UUID(u.Bytes)
	user.Name = pgTextToStringPtr(name)
	user.PictureURL = pgTextToStringPtr(picture)
	user.Stats = domain.UserStats{
		CurrentIncome: pgNumericToDecimal(current),
		AnnualIncome:  pgNumericToDecimal(annual),
		TotalExpenses: pgNumericToDecimal(totalExpenses),
		UpdatedAt:     pgTimestamptzToTimePtr(statsUpdatedAt),
	}
	return &user, nil
}
