// Package engine converts wall-clock due-ness into execution attempts:
// exactly one ledger row and one reschedule per claimed plan per cycle,
// whatever happens on-chain.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dripbase/executor/address"
	"github.com/dripbase/executor/internal/chain"
	"github.com/dripbase/executor/internal/feepolicy"
	"github.com/dripbase/executor/internal/metrics"
	"github.com/dripbase/executor/internal/storage"
	"github.com/dripbase/executor/types"
)

// ChainClient is the slice of the chain package the engine drives.
type ChainClient interface {
	Submit(
		ctx context.Context,
		beneficiary common.Address,
		amountIn *big.Int,
		minAmountOut *big.Int,
		referrer common.Address,
		routes []chain.Route,
		fees feepolicy.Params,
	) (common.Hash, error)
	AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (chain.Receipt, error)
}

type FeePolicy interface {
	Params() feepolicy.Params
}

type Config struct {
	// AmmFactory goes into the single-hop route descriptor verbatim.
	AmmFactory string
	// TokenInDecimals converts amount_per_trade to the swap call's
	// fixed-point representation. Policy constant, never queried on-chain.
	TokenInDecimals int32
	ReceiptTimeout  time.Duration
	// ClaimTTL bounds how long a claimed plan stays invisible to other
	// cycles; a crashed cycle's claims expire and are picked up later.
	ClaimTTL    time.Duration
	Concurrency int
}

// PlanResult is the per-plan outcome of one cycle, returned to the trigger
// caller for observability.
type PlanResult struct {
	JobID       uuid.UUID             `json:"job_id"`
	Status      types.ExecutionStatus `json:"status"`
	TxReference string                `json:"tx_reference"`
	Error       string                `json:"error,omitempty"`
}

type Engine struct {
	logger  *logrus.Logger
	cfg     Config
	tx      storage.Tx
	plans   storage.PlanStore
	ledger  storage.ExecutionLedger
	board   storage.Leaderboard
	chain   ChainClient
	fees    FeePolicy
	metrics metrics.EngineMetrics
}

func New(
	logger *logrus.Logger,
	cfg Config,
	tx storage.Tx,
	plans storage.PlanStore,
	ledger storage.ExecutionLedger,
	board storage.Leaderboard,
	chainClient ChainClient,
	fees FeePolicy,
	engineMetrics metrics.EngineMetrics,
) *Engine {
	if engineMetrics == nil {
		engineMetrics = metrics.NewNilEngineMetrics()
	}
	return &Engine{
		logger:  logger.WithField("pkg", "engine.Engine").Logger,
		cfg:     cfg,
		tx:      tx,
		plans:   plans,
		ledger:  ledger,
		board:   board,
		chain:   chainClient,
		fees:    fees,
		metrics: engineMetrics,
	}
}

// RunCycle claims every due ACTIVE plan once and processes each
// independently. "now" is read a single time so all plans of the cycle
// reschedule from the same reference instant. A per-plan failure never
// aborts the cycle; only a failure to reach the plan store does.
func (e *Engine) RunCycle(ctx context.Context) ([]PlanResult, error) {
	now := time.Now().UTC()
	start := time.Now()

	plans, err := e.plans.ClaimDue(ctx, now, now.Add(e.cfg.ClaimTTL))
	if err != nil {
		return nil, fmt.Errorf("failed to claim due plans: %w", err)
	}

	e.publishStats(ctx, now)

	if len(plans) == 0 {
		e.metrics.RecordCycle(time.Since(start).Seconds(), 0)
		return nil, nil
	}
	e.logger.WithField("count", len(plans)).Info("due plans claimed")

	results := make([]PlanResult, len(plans))
	eg := &errgroup.Group{}
	eg.SetLimit(e.cfg.Concurrency)
	for i, plan := range plans {
		eg.Go(func() error {
			results[i] = e.processPlan(ctx, now, plan)
			return nil
		})
	}
	_ = eg.Wait()

	for _, res := range results {
		e.metrics.RecordPlanResult(string(res.Status))
	}
	e.metrics.RecordCycle(time.Since(start).Seconds(), len(plans))
	return results, nil
}

// processPlan runs one attempt for one claimed plan and persists the
// outcome. Whatever the execution result, the plan is rescheduled to
// now + frequency and its claim is released.
func (e *Engine) processPlan(ctx context.Context, now time.Time, plan types.Plan) PlanResult {
	status, txRef, execErr := e.execute(ctx, plan)

	fields := logrus.Fields{
		"job_id":       plan.ID,
		"owner":        plan.Owner,
		"status":       status,
		"tx_reference": txRef,
	}
	if execErr != nil {
		fields["error"] = execErr.Error()
		e.logger.WithFields(fields).Warn("plan execution failed")
	} else {
		e.logger.WithFields(fields).Info("plan executed")
	}

	exec := types.Execution{
		ID:          uuid.New(),
		JobID:       plan.ID,
		Owner:       plan.Owner,
		Amount:      plan.AmountPerTrade,
		TxReference: txRef,
		Status:      status,
		CreatedAt:   now,
	}

	result := PlanResult{
		JobID:       plan.ID,
		Status:      status,
		TxReference: txRef,
	}
	if execErr != nil {
		result.Error = execErr.Error()
	}

	if err := e.record(ctx, plan, exec, now.Add(plan.Frequency())); err != nil {
		e.logger.WithField("job_id", plan.ID).Errorf("failed to record attempt: %v", err)
		if result.Error == "" {
			result.Error = err.Error()
		}
	}
	return result
}

// execute builds, submits and classifies one swap attempt. It returns the
// attempt status, the transaction reference for the ledger (a real hash once
// the transaction was broadcast, a random placeholder otherwise) and the
// error that caused a FAILED classification.
func (e *Engine) execute(ctx context.Context, plan types.Plan) (types.ExecutionStatus, string, error) {
	owner, err := address.Normalize(plan.Owner)
	if err != nil {
		return types.ExecutionStatusFailed, placeholderRef(), fmt.Errorf("invalid owner: %w", err)
	}
	tokenIn, err := address.Normalize(plan.TokenIn)
	if err != nil {
		return types.ExecutionStatusFailed, placeholderRef(), fmt.Errorf("invalid token_in: %w", err)
	}
	tokenOut, err := address.Normalize(plan.TokenOut)
	if err != nil {
		return types.ExecutionStatusFailed, placeholderRef(), fmt.Errorf("invalid token_out: %w", err)
	}

	amountIn, err := toBaseUnits(plan.AmountPerTrade, e.cfg.TokenInDecimals)
	if err != nil {
		return types.ExecutionStatusFailed, placeholderRef(), fmt.Errorf("invalid amount: %w", err)
	}

	routes := []chain.Route{{
		From:    common.HexToAddress(tokenIn),
		To:      common.HexToAddress(tokenOut),
		Stable:  false,
		Factory: common.HexToAddress(e.cfg.AmmFactory),
	}}

	// minAmountOut stays zero: there is no slippage protection in this
	// design, the executor contract is trusted with pricing
	hash, err := e.chain.Submit(
		ctx,
		common.HexToAddress(owner),
		amountIn,
		big.NewInt(0),
		common.HexToAddress(address.Zero),
		routes,
		e.fees.Params(),
	)
	if err != nil {
		return types.ExecutionStatusFailed, placeholderRef(), err
	}

	receipt, err := e.chain.AwaitReceipt(ctx, hash, e.cfg.ReceiptTimeout)
	if err != nil {
		return types.ExecutionStatusFailed, hash.Hex(), fmt.Errorf("await receipt: %w", err)
	}
	if !receipt.Confirmed {
		// the transaction may still land later; it is recorded FAILED anyway
		return types.ExecutionStatusFailed, hash.Hex(), errors.New("timed out waiting for receipt")
	}
	if !receipt.OnChainSuccess {
		return types.ExecutionStatusFailed, hash.Hex(), errors.New("transaction reverted on-chain")
	}
	return types.ExecutionStatusSuccess, hash.Hex(), nil
}

// record persists the attempt in one database transaction: ledger insert,
// leaderboard increment on success, then the unconditional reschedule. The
// ledger row can therefore never lag behind the next_run_time advance.
func (e *Engine) record(ctx context.Context, plan types.Plan, exec types.Execution, next time.Time) error {
	txCtx, err := e.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	err = func() error {
		if er := e.ledger.InsertExecution(txCtx, exec); er != nil {
			return fmt.Errorf("insert execution: %w", er)
		}
		if exec.Status == types.ExecutionStatusSuccess {
			if er := e.board.RecordSuccess(txCtx, exec.Owner, exec.Amount, exec.CreatedAt); er != nil {
				return fmt.Errorf("record leaderboard success: %w", er)
			}
		}
		if er := e.plans.FinishRun(txCtx, plan.ID, next, exec.Status == types.ExecutionStatusSuccess); er != nil {
			return fmt.Errorf("finish run: %w", er)
		}
		return nil
	}()
	if err != nil {
		if rbErr := e.tx.Rollback(txCtx); rbErr != nil {
			e.logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}

	if err := e.tx.Commit(txCtx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (e *Engine) publishStats(ctx context.Context, now time.Time) {
	stats, err := e.plans.Stats(ctx, now)
	if err != nil {
		e.logger.Warnf("failed to read plan stats: %v", err)
		return
	}
	e.metrics.SetActivePlans(float64(stats.Active))
	e.metrics.SetOverduePlans(float64(stats.Overdue))
}

// toBaseUnits converts a human-unit amount to the token's fixed-point
// integer representation. Amounts with more precision than the token carries
// are rejected rather than silently truncated.
func toBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %s", amount)
	}
	shifted := amount.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, decimals)
	}
	return shifted.BigInt(), nil
}

// placeholderRef synthesizes a ledger reference for attempts that never
// produced a transaction hash. Random so two failed attempts can never
// collide.
func placeholderRef() string {
	return "error:" + uuid.NewString()
}
