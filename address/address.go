// Package address normalizes EVM addresses to their single canonical form.
// The canonical form is lowercase hex with a 0x prefix; it is enforced at
// every write boundary (plan creation, execution rows, leaderboard keys) so
// reads never have to worry about casing.
package address

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Zero is the canonical form of the zero address, used as the null referrer.
const Zero = "0x0000000000000000000000000000000000000000"

// Normalize validates addr and returns its canonical lowercase form.
func Normalize(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("not a valid hex address: %q", addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// Equal reports whether two addresses refer to the same account regardless
// of casing. Invalid input on either side compares false.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
