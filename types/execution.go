package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ExecutionStatus string

const (
	ExecutionStatusSuccess ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed  ExecutionStatus = "FAILED"
)

// Execution is one recorded attempt to run a due plan. Rows are append-only:
// once written they are never updated or deleted.
type Execution struct {
	ID     uuid.UUID `json:"id"`
	JobID  uuid.UUID `json:"job_id"`
	Owner  string    `json:"owner"`
	Amount decimal.Decimal `json:"amount"`
	// TxReference holds the on-chain transaction hash, or a synthesized
	// "error:<uuid>" placeholder when no transaction was broadcast.
	TxReference string          `json:"tx_reference"`
	Status      ExecutionStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
