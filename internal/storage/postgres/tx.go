package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Caller is the subset of pgx shared by a pool and an open transaction, so
// repo methods run the same whether or not a transaction is in flight.
type Caller interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// TxHandler carries an open pgx transaction through a context so that
// multiple repo calls commit or roll back together.
type TxHandler struct {
	pool *pgxpool.Pool
}

func NewTxHandler(pool *pgxpool.Pool) *TxHandler {
	return &TxHandler{
		pool: pool,
	}
}

func (t *TxHandler) Begin(ctx context.Context) (context.Context, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}

	return context.WithValue(ctx, txKey{}, tx), nil
}

func (t *TxHandler) Commit(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("tx not found in context")
	}

	err := tx.Commit(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

func (t *TxHandler) Rollback(ctx context.Context) error {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	if !ok {
		return fmt.Errorf("tx not found in context")
	}

	err := tx.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("failed to rollback tx: %w", err)
	}
	return nil
}

// Try returns the transaction carried by ctx, or the pool when there is none.
func (t *TxHandler) Try(ctx context.Context) Caller {
	v, ok := ctx.Value(txKey{}).(pgx.Tx)
	if ok {
		return v
	}
	return t.pool
}
