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

var goalColumns = []string{
	"id", "user_id", "name", "description", "target_amount", "current_amount", "currency", "deadline",
	"is_completed", "completed_at", "auto_save_enabled", "auto_save_amount", "auto_save_frequency",
	"next_contribution_date", "version", "created_at", "updated_at",
}

var contributionColumns = []string{
	"id", "goal_id", "amount", "requested_amount", "source", "description", "contributed_at",
}

// GoalRepository implements domain.GoalRepository using PostgreSQL
type GoalRepository struct {
	pool *pgxpool.Pool
}

// NewGoalRepository creates a new GoalRepository
func NewGoalRepository(pool *pgxpool.Pool) *GoalRepository {
	return &GoalRepository{pool: pool}
}

// Create inserts a goal at version 1 with an empty contribution log
func (r *GoalRepository) Create(ctx context.Context, goal *domain.Goal) (*domain.Goal, error) {
	values, err := goalValues(goal)
	if err != nil {
		return nil, err
	}
	row, err := queryRow(ctx, r.pool, psql.Insert("goals").
		SetMap(values).
		Suffix("RETURNING "+strings.Join(goalColumns, ", ")))
	if err != nil {
		return nil, err
	}
	created, err := scanGoal(row)
	if err != nil {
		return nil, err
	}
	created.Contributions = []domain.Contribution{}
	return created, nil
}

// GetByID loads the goal with its full contribution log
func (r *GoalRepository) GetByID(ctx context.Context, userID uuid.UUID, id int32) (*domain.Goal, error) {
	return r.getWithLog(ctx, r.pool, userID, id)
}

func (r *GoalRepository) getWithLog(ctx context.Context, q querier, userID uuid.UUID, id int32) (*domain.Goal, error) {
	row, err := queryRow(ctx, q, psql.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return nil, err
	}
	goal, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrGoalNotFound
		}
		return nil, err
	}
	if err := r.loadContributions(ctx, q, []*domain.Goal{goal}); err != nil {
		return nil, err
	}
	return goal, nil
}

// ListByUser returns a user's goals ordered by deadline
func (r *GoalRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Goal, error) {
	return r.list(ctx, psql.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("deadline", "id"))
}

// Update persists goal metadata and the auto-save policy under a version check
func (r *GoalRepository) Update(ctx context.Context, goal *domain.Goal, expectedVersion int32) (*domain.Goal, error) {
	values, err := goalValues(goal)
	if err != nil {
		return nil, err
	}
	delete(values, "user_id")
	delete(values, "current_amount")
	values["version"] = squirrel.Expr("version + 1")
	values["updated_at"] = squirrel.Expr("NOW()")

	row, err := queryRow(ctx, r.pool, psql.Update("goals").
		SetMap(values).
		Where(squirrel.Eq{"id": goal.ID, "user_id": goal.UserID, "version": expectedVersion}).
		Suffix("RETURNING "+strings.Join(goalColumns, ", ")))
	if err != nil {
		return nil, err
	}
	updated, err := scanGoal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.casFailure(ctx, r.pool, goal)
		}
		return nil, err
	}
	if err := r.loadContributions(ctx, r.pool, []*domain.Goal{updated}); err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendContribution writes the goal's derived fields and the new log entry
// in one transaction, provided the stored version still matches.
func (r *GoalRepository) AppendContribution(ctx context.Context, goal *domain.Goal, c *domain.Contribution, expectedVersion int32) (*domain.Goal, error) {
	current, err := decimalToPgNumeric(goal.CurrentAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid current amount: %w", err)
	}
	amount, err := decimalToPgNumeric(c.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid contribution amount: %w", err)
	}
	requested, err := decimalToPgNumeric(c.RequestedAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid requested amount: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := exec(ctx, tx, psql.Update("goals").
		Set("current_amount", current).
		Set("is_completed", goal.IsCompleted).
		Set("completed_at", timePtrToPgTimestamptz(goal.CompletedAt)).
		Set("next_contribution_date", timePtrToPgTimestamptz(goal.AutoSave.NextContributionDate)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": goal.ID, "user_id": goal.UserID, "version": expectedVersion}))
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, r.casFailure(ctx, tx, goal)
	}

	if _, err := exec(ctx, tx, psql.Insert("goal_contributions").
		Columns("goal_id", "amount", "requested_amount", "source", "description", "contributed_at").
		Values(goal.ID, amount, requested, string(c.Source), stringPtrToPgText(c.Description), c.ContributedAt)); err != nil {
		return nil, err
	}

	saved, err := r.getWithLog(ctx, tx, goal.UserID, goal.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return saved, nil
}

// casFailure tells a missing goal apart from a lost version race
func (r *GoalRepository) casFailure(ctx context.Context, q querier, goal *domain.Goal) error {
	row, err := queryRow(ctx, q, psql.Select("1").
		From("goals").
		Where(squirrel.Eq{"id": goal.ID, "user_id": goal.UserID}))
	if err != nil {
		return err
	}
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrGoalNotFound
		}
		return err
	}
	return domain.ErrVersionConflict
}

// Delete removes a goal; its contribution log cascades
func (r *GoalRepository) Delete(ctx context.Context, userID uuid.UUID, id int32) error {
	tag, err := exec(ctx, r.pool, psql.Delete("goals").Where(squirrel.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGoalNotFound
	}
	return nil
}

// ListAutoSaveDue returns incomplete goals whose next auto-save is at or before now
func (r *GoalRepository) ListAutoSaveDue(ctx context.Context, now time.Time) ([]*domain.Goal, error) {
	return r.list(ctx, psql.Select(goalColumns...).
		From("goals").
		Where(squirrel.Eq{"auto_save_enabled": true, "is_completed": false}).
		Where(squirrel.LtOrEq{"next_contribution_date": now}).
		OrderBy("id"))
}

func (r *GoalRepository) list(ctx context.Context, b squirrel.SelectBuilder) ([]*domain.Goal, error) {
	rows, err := query(ctx, r.pool, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []*domain.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadContributions(ctx, r.pool, goals); err != nil {
		return nil, err
	}
	return goals, nil
}

// loadContributions fills each goal's log, oldest entry first
func (r *GoalRepository) loadContributions(ctx context.Context, q querier, goals []*domain.Goal) error {
	if len(goals) == 0 {
		return nil
	}
	byID := make(map[int32]*domain.Goal, len(goals))
	ids := make([]int32, 0, len(goals))
	for _, g := range goals {
		g.Contributions = []domain.Contribution{}
		byID[g.ID] = g
		ids = append(ids, g.ID)
	}

	rows, err := query(ctx, q, psql.Select(contributionColumns...).
		From("goal_contributions").
		Where(squirrel.Eq{"goal_id": ids}).
		OrderBy("contributed_at", "id"))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                 domain.Contribution
			amount, requested pgtype.Numeric
			source            string
			description       pgtype.Text
		)
		if err := rows.Scan(&c.ID, &c.GoalID, &amount, &requested, &source, &description, &c.ContributedAt); err != nil {
			return err
		}
		c.Amount = pgNumericToDecimal(amount)
		c.RequestedAmount = pgNumericToDecimal(requested)
		c.Source = domain.ContributionSource(source)
		c.Description = pgTextToStringPtr(description)
		c.ContributedAt = c.ContributedAt.UTC()
		if g, ok := byID[c.GoalID]; ok {
			g.Contributions = append(g.Contributions, c)
		}
	}
	return rows.Err()
}

func goalValues(g *domain.Goal) (map[string]interface{}, error) {
	target, err := decimalToPgNumeric(g.TargetAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid target amount: %w", err)
	}
	current, err := decimalToPgNumeric(g.CurrentAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid current amount: %w", err)
	}
	autoSaveAmount, err := decimalToPgNumeric(g.AutoSave.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid auto-save amount: %w", err)
	}
	var frequency *string
	if g.AutoSave.Frequency != "" {
		f := string(g.AutoSave.Frequency)
		frequency = &f
	}

	return map[string]interface{}{
		"user_id":                g.UserID,
		"name":                   g.Name,
		"description":            stringPtrToPgText(g.Description),
		"target_amount":          target,
		"current_amount":         current,
		"currency":               g.Currency,
		"deadline":               timeToPgDate(g.Deadline),
		"is_completed":           g.IsCompleted,
		"completed_at":           timePtrToPgTimestamptz(g.CompletedAt),
		"auto_save_enabled":      g.AutoSave.Enabled,
		"auto_save_amount":       autoSaveAmount,
		"auto_save_frequency":    stringPtrToPgText(frequency),
		"next_contribution_date": timePtrToPgTimestamptz(g.AutoSave.NextContributionDate),
	}, nil
}

func scanGoal(row rowScanner) (*domain.Goal, error) {
	var (
		g                       domain.Goal
		userID                  pgtype.UUID
		description, frequency  pgtype.Text
		target, current, amount pgtype.Numeric
		deadline                pgtype.Date
		completedAt, nextDate   pgtype.Timestamptz
	)
	if err := row.Scan(
		&g.ID, &userID, &g.Name, &description, &target, &current, &g.Currency, &deadline,
		&g.IsCompleted, &completedAt, &g.AutoSave.Enabled, &amount, &frequency,
		&nextDate, &g.Version, &g.CreatedAt, &g.UpdatedAt,
	); err != nil {
		return nil, err
	}
	g.UserID = uuid.UUID(userID.Bytes)
	g.Description = pgTextToStringPtr(description)
	g.TargetAmount = pgNumericToDecimal(target)
	g.CurrentAmount = pgNumericToDecimal(current)
	g.Deadline = pgDateToTime(deadline)
	g.CompletedAt = pgTimestamptzToTimePtr(completedAt)
	g.AutoSave.Amount = pgNumericToDecimal(amount)
	if frequency.Valid {
		g.AutoSave.Frequency = domain.Frequency(frequency.String)
	}
	g.AutoSave.NextContributionDate = pgTimestamptzToTimePtr(nextDate)
	return &g, nil
}
