// Package storage defines the persistence contracts the engine and the API
// depend on. Implementations live in subpackages; tests substitute in-memory
// fakes.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dripbase/executor/types"
)

var ErrNotFound = errors.New("not found")

// Tx handles transactions for any db storage implementation. Begin returns a
// derived context carrying the transaction; repo calls made with that context
// join it.
type Tx interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PlanStats is a point-in-time count of plan rows, used for gauges.
type PlanStats struct {
	Active int64
	// Overdue counts ACTIVE unclaimed plans whose next_run_time is already in
	// the past; a persistently high value means cycles are not keeping up.
	Overdue int64
}

type PlanStore interface {
	CreatePlan(ctx context.Context, plan types.Plan) error
	GetPlan(ctx context.Context, id uuid.UUID) (types.Plan, error)
	ListPlansByOwner(ctx context.Context, owner string) ([]types.Plan, error)
	CancelPlan(ctx context.Context, id uuid.UUID) error

	// ClaimDue atomically selects ACTIVE plans with next_run_time <= now that
	// are not claimed by another running cycle, and marks them claimed until
	// the given deadline. Two concurrent cycles never receive the same plan.
	ClaimDue(ctx context.Context, now time.Time, until time.Time) ([]types.Plan, error)

	// FinishRun releases a claim, advances next_run_time and maintains the
	// consecutive-failure counter. Called exactly once per claimed plan per
	// cycle, success or failure.
	FinishRun(ctx context.Context, id uuid.UUID, next time.Time, success bool) error

	Stats(ctx context.Context, now time.Time) (PlanStats, error)
}

type ExecutionLedger interface {
	// InsertExecution appends one attempt row. There is no update path.
	InsertExecution(ctx context.Context, exec types.Execution) error
	ListExecutionsByOwner(ctx context.Context, owner string, limit int) ([]types.Execution, error)
}

type Leaderboard interface {
	// RecordSuccess upserts the owner's aggregate in a single atomic
	// statement; concurrent increments for the same owner must not lose
	// updates.
	RecordSuccess(ctx context.Context, owner string, amount decimal.Decimal, at time.Time) error
	Top(ctx context.Context, limit int) ([]types.LeaderboardEntry, error)
	Get(ctx context.Context, owner string) (types.LeaderboardEntry, error)
}

// NonceStore is the replay guard for signed cancellation requests.
type NonceStore interface {
	// Consume marks nonce as used and reports whether this call was the first
	// use. A nonce can never be consumed twice before it expires.
	Consume(ctx context.Context, nonce, owner string, expiresAt time.Time) (bool, error)
}
