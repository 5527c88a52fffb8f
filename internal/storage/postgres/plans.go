package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/types"
)

const planColumns = `id, owner, token_in, token_out, amount_per_trade::text, frequency_seconds, status, fail_count, next_run_time, created_at`

func scanPlan(row pgx.Row) (types.Plan, error) {
	var (
		plan   types.Plan
		amount string
	)
	err := row.Scan(
		&plan.ID,
		&plan.Owner,
		&plan.TokenIn,
		&plan.TokenOut,
		&amount,
		&plan.FrequencySeconds,
		&plan.Status,
		&plan.FailCount,
		&plan.NextRunTime,
		&plan.CreatedAt,
	)
	if err != nil {
		return types.Plan{}, err
	}

	plan.AmountPerTrade, err = decimal.NewFromString(amount)
	if err != nil {
		return types.Plan{}, fmt.Errorf("parse amount_per_trade: %w", err)
	}
	return plan, nil
}

func (b *Backend) CreatePlan(ctx context.Context, plan types.Plan) error {
	_, err := b.tx.Try(ctx).Exec(ctx, `
		INSERT INTO plans (id, owner, token_in, token_out, amount_per_trade, frequency_seconds, status, next_run_time, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		plan.ID,
		plan.Owner,
		plan.TokenIn,
		plan.TokenOut,
		plan.AmountPerTrade.String(),
		plan.FrequencySeconds,
		plan.Status,
		plan.NextRunTime,
		plan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (b *Backend) GetPlan(ctx context.Context, id uuid.UUID) (types.Plan, error) {
	plan, err := scanPlan(b.tx.Try(ctx).QueryRow(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Plan{}, storage.ErrNotFound
	}
	if err != nil {
		return types.Plan{}, fmt.Errorf("failed to query plan: %w", err)
	}
	return plan, nil
}

func (b *Backend) ListPlansByOwner(ctx context.Context, owner string) ([]types.Plan, error) {
	rows, err := b.tx.Try(ctx).Query(ctx, `
		SELECT `+planColumns+`
		FROM plans
		WHERE owner = $1
		ORDER BY created_at DESC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans by owner: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

func (b *Backend) CancelPlan(ctx context.Context, id uuid.UUID) error {
	tag, err := b.tx.Try(ctx).Exec(ctx, `
		UPDATE plans
		SET status = $2
		WHERE id = $1
	`, id, types.PlanStatusCancelled)
	if err != nil {
		return fmt.Errorf("failed to cancel plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ClaimDue selects and claims due ACTIVE plans in one statement. SKIP LOCKED
// plus the claimed_until check keeps concurrent cycles (or a second scheduler
// instance) from double-executing the same plan in one due window.
func (b *Backend) ClaimDue(ctx context.Context, now time.Time, until time.Time) ([]types.Plan, error) {
	rows, err := b.tx.Try(ctx).Query(ctx, `
		UPDATE plans
		SET claimed_until = $2
		WHERE id IN (
			SELECT id
			FROM plans
			WHERE status = $3
			  AND next_run_time <= $1
			  AND (claimed_until IS NULL OR claimed_until <= $1)
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+planColumns+`
	`, now, until, types.PlanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due plans: %w", err)
	}
	defer rows.Close()

	return collectPlans(rows)
}

func (b *Backend) FinishRun(ctx context.Context, id uuid.UUID, next time.Time, success bool) error {
	tag, err := b.tx.Try(ctx).Exec(ctx, `
		UPDATE plans
		SET next_run_time = $2,
		    claimed_until = NULL,
		    fail_count = CASE WHEN $3 THEN 0 ELSE fail_count + 1 END
		WHERE id = $1
	`, id, next, success)
	if err != nil {
		return fmt.Errorf("failed to finish plan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (b *Backend) Stats(ctx context.Context, now time.Time) (storage.PlanStats, error) {
	var stats storage.PlanStats
	err := b.tx.Try(ctx).QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = $2),
			count(*) FILTER (WHERE status = $2 AND next_run_time <= $1 AND (claimed_until IS NULL OR claimed_until <= $1))
		FROM plans
	`, now, types.PlanStatusActive).Scan(&stats.Active, &stats.Overdue)
	if err != nil {
		return storage.PlanStats{}, fmt.Errorf("failed to query plan stats: %w", err)
	}
	return stats, nil
}

func collectPlans(rows pgx.Rows) ([]types.Plan, error) {
	var plans []types.Plan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over plans: %w", err)
	}
	return plans, nil
}
