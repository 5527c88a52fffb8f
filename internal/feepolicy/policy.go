// Package feepolicy decides fee caps and the gas-limit ceiling for every
// submission. The policy is static: it never calls gas-estimation RPCs, so a
// low operator balance cannot make estimation itself fail. The trade-off is
// that a transaction may occasionally run out of gas on-chain; that failure
// is cheap to detect and the plan is retried on its next natural cycle.
package feepolicy

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/params"
)

// Params is the fee tuple attached to every submission.
// Invariant: GasTipCap <= GasFeeCap, both positive.
type Params struct {
	GasTipCap *big.Int // priority fee cap, wei
	GasFeeCap *big.Int // max fee cap, wei
	GasLimit  uint64
}

type Static struct {
	tipGwei int64
	feeGwei int64
	gas     uint64
}

func NewStatic(maxFeeGwei, priorityFeeGwei int64, gasLimit uint64) (*Static, error) {
	if maxFeeGwei <= 0 || priorityFeeGwei <= 0 {
		return nil, fmt.Errorf("fee caps must be positive, got max=%d priority=%d", maxFeeGwei, priorityFeeGwei)
	}
	if priorityFeeGwei > maxFeeGwei {
		return nil, fmt.Errorf("priority fee cap %d gwei exceeds max fee cap %d gwei", priorityFeeGwei, maxFeeGwei)
	}
	if gasLimit == 0 {
		return nil, fmt.Errorf("gas limit must be positive")
	}
	return &Static{
		tipGwei: priorityFeeGwei,
		feeGwei: maxFeeGwei,
		gas:     gasLimit,
	}, nil
}

// Params returns a fresh tuple each call so callers cannot mutate shared state.
func (s *Static) Params() Params {
	return Params{
		GasTipCap: gweiToWei(s.tipGwei),
		GasFeeCap: gweiToWei(s.feeGwei),
		GasLimit:  s.gas,
	}
}

// MaxCostWei is the worst-case spend of one submission in wei.
func (s *Static) MaxCostWei() *big.Int {
	return new(big.Int).Mul(gweiToWei(s.feeGwei), new(big.Int).SetUint64(s.gas))
}

func gweiToWei(gwei int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(gwei), big.NewInt(params.GWei))
}
