package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/types"
)

// RecordSuccess is a single atomic increment statement keyed by owner, so two
// plans of the same owner completing in concurrent cycles cannot lose an
// update.
func (b *Backend) RecordSuccess(ctx context.Context, owner string, amount decimal.Decimal, at time.Time) error {
	_, err := b.tx.Try(ctx).Exec(ctx, `
		INSERT INTO leaderboard (owner, total_invested, total_trades, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (owner) DO UPDATE
		SET total_invested = leaderboard.total_invested + EXCLUDED.total_invested,
		    total_trades = leaderboard.total_trades + 1,
		    updated_at = EXCLUDED.updated_at
	`, owner, amount.String(), at)
	if err != nil {
		return fmt.Errorf("failed to record leaderboard success: %w", err)
	}
	return nil
}

func (b *Backend) Top(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	rows, err := b.tx.Try(ctx).Query(ctx, `
		SELECT owner, total_invested::text, total_trades, updated_at
		FROM leaderboard
		ORDER BY total_invested DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []types.LeaderboardEntry
	for rows.Next() {
		entry, err := scanLeaderboardEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over leaderboard: %w", err)
	}
	return entries, nil
}

func (b *Backend) Get(ctx context.Context, owner string) (types.LeaderboardEntry, error) {
	entry, err := scanLeaderboardEntry(b.tx.Try(ctx).QueryRow(ctx, `
		SELECT owner, total_invested::text, total_trades, updated_at
		FROM leaderboard
		WHERE owner = $1
	`, owner))
	if errors.Is(err, pgx.ErrNoRows) {
		return types.LeaderboardEntry{}, storage.ErrNotFound
	}
	if err != nil {
		return types.LeaderboardEntry{}, fmt.Errorf("failed to query leaderboard entry: %w", err)
	}
	return entry, nil
}

func scanLeaderboardEntry(row pgx.Row) (types.LeaderboardEntry, error) {
	var (
		entry    types.LeaderboardEntry
		invested string
	)
	err := row.Scan(&entry.Owner, &invested, &entry.TotalTrades, &entry.UpdatedAt)
	if err != nil {
		return types.LeaderboardEntry{}, err
	}
	entry.TotalInvested, err = decimal.NewFromString(invested)
	if err != nil {
		return types.LeaderboardEntry{}, fmt.Errorf("parse total_invested: %w", err)
	}
	return entry, nil
}
