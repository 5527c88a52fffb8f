package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// LeaderboardEntry is the denormalized per-owner aggregate over successful
// executions. Invariant: TotalInvested and TotalTrades equal the sum and
// count of that owner's SUCCESS execution rows.
type LeaderboardEntry struct {
	Owner         string          `json:"owner"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalTrades   int64           `json:"total_trades"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
