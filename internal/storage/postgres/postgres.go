// Package postgres is the pgx-backed implementation of the storage
// contracts. Schema changes ship as embedded goose migrations and run at
// startup.
package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Backend struct {
	logger *logrus.Logger
	pool   *pgxpool.Pool
	tx     *TxHandler
}

func NewBackend(ctx context.Context, logger *logrus.Logger, dsn string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	b := &Backend{
		logger: logger.WithField("pkg", "storage.postgres").Logger,
		pool:   pool,
		tx:     NewTxHandler(pool),
	}

	if err := b.migrate(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("b.migrate: %w", err)
	}
	return b, nil
}

func (b *Backend) migrate() error {
	b.logger.Info("starting database migration...")
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose.SetDialect: %w", err)
	}

	db := stdlib.OpenDBFromPool(b.pool)
	defer func() {
		_ = db.Close()
	}()
	if err := goose.Up(db, "migrations", goose.WithAllowMissing()); err != nil {
		return fmt.Errorf("goose.Up: %w", err)
	}
	b.logger.Info("database migration completed")
	return nil
}

// Tx exposes the transaction handler so callers can group repo calls into one
// database transaction.
func (b *Backend) Tx() *TxHandler {
	return b.tx
}

func (b *Backend) Close() {
	b.pool.Close()
}
