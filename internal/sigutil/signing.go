// Package sigutil verifies EIP-191 personal-sign signatures from plan
// owners. Only externally-owned accounts are supported; contract-wallet
// (EIP-1271) verification would need an on-chain call and is not part of
// this service.
package sigutil

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyEthAddressSignature reports whether message was personal-signed by
// the owner of address.
func VerifyEthAddressSignature(address common.Address, message []byte, signature []byte) (bool, error) {
	if len(signature) != 65 {
		return false, fmt.Errorf("invalid signature length: expected 65 bytes, got %d", len(signature))
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	hash := crypto.Keccak256Hash([]byte(prefixed))

	// wallets emit v as 27/28, go-ethereum expects 0/1
	sig := bytes.Clone(signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pub) == address, nil
}
