package postgres

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dripbase/executor/types"
)

func (b *Backend) InsertExecution(ctx context.Context, exec types.Execution) error {
	_, err := b.tx.Try(ctx).Exec(ctx, `
		INSERT INTO executions (id, job_id, owner, amount, tx_reference, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		exec.ID,
		exec.JobID,
		exec.Owner,
		exec.Amount.String(),
		exec.TxReference,
		exec.Status,
		exec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

func (b *Backend) ListExecutionsByOwner(ctx context.Context, owner string, limit int) ([]types.Execution, error) {
	rows, err := b.tx.Try(ctx).Query(ctx, `
		SELECT id, job_id, owner, amount::text, tx_reference, status, created_at
		FROM executions
		WHERE owner = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions by owner: %w", err)
	}
	defer rows.Close()

	var execs []types.Execution
	for rows.Next() {
		var (
			exec   types.Execution
			amount string
		)
		err := rows.Scan(
			&exec.ID,
			&exec.JobID,
			&exec.Owner,
			&amount,
			&exec.TxReference,
			&exec.Status,
			&exec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		exec.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse execution amount: %w", err)
		}
		execs = append(execs, exec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over executions: %w", err)
	}
	return execs, nil
}
