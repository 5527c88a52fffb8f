package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "ACTIVE"
	PlanStatusCancelled PlanStatus = "CANCELLED"
)

// Plan is a recurring purchase authorization. Address fields are stored
// lowercase; every write boundary normalizes them before persisting.
type Plan struct {
	ID               uuid.UUID       `json:"id"`
	Owner            string          `json:"owner"`
	TokenIn          string          `json:"token_in"`
	TokenOut         string          `json:"token_out"`
	AmountPerTrade   decimal.Decimal `json:"amount_per_trade"`
	FrequencySeconds int64           `json:"frequency_seconds"`
	Status           PlanStatus      `json:"status"`
	FailCount        int             `json:"fail_count"`
	NextRunTime      time.Time       `json:"next_run_time"`
	CreatedAt        time.Time       `json:"created_at"`
}

func (p Plan) Frequency() time.Duration {
	return time.Duration(p.FrequencySeconds) * time.Second
}
