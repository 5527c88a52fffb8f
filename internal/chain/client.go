// Package chain owns the single operator signing key and the single RPC
// connection. Everything that touches the raw key or the nonce sequence
// lives here; the engine only ever sees Submit and AwaitReceipt.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	etypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/dripbase/executor/internal/feepolicy"
)

const (
	dialTimeout         = 30 * time.Second
	receiptPollInterval = 2 * time.Second
)

const executorABI = `[{"inputs":[{"name":"user","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"minAmountOut","type":"uint256"},{"name":"referrer","type":"address"},{"components":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"stable","type":"bool"},{"name":"factory","type":"address"}],"name":"routes","type":"tuple[]"}],"name":"executeDCA","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Route is a single swap hop in the executeDCA call.
type Route struct {
	From    common.Address `abi:"from"`
	To      common.Address `abi:"to"`
	Stable  bool           `abi:"stable"`
	Factory common.Address `abi:"factory"`
}

// Receipt is the outcome of waiting for a transaction's inclusion.
// Confirmed=false means the wait timed out; the transaction may still land
// later, which the caller records as FAILED regardless.
type Receipt struct {
	Confirmed      bool
	OnChainSuccess bool
}

// ethBackend is the slice of ethclient.Client the chain client needs.
type ethBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *etypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*etypes.Receipt, error)
}

type Client struct {
	logger   *logrus.Logger
	eth      ethBackend
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	contract common.Address
	dcaABI   abi.ABI

	// nonceMu serializes nonce assignment and broadcast for the one operator
	// key; two concurrent submissions must never race on the same nonce.
	nonceMu    sync.Mutex
	nonceReady bool
	nextNonce  uint64
}

func NewClient(c context.Context, logger *logrus.Logger, rpcURL, operatorKeyHex, contractAddr string) (*Client, error) {
	ctx, cancel := context.WithTimeout(c, dialTimeout)
	defer cancel()

	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.Logger = nil

	rpcClient, err := rpc.DialOptions(ctx, rpcURL, rpc.WithHTTPClient(retry.StandardClient()))
	if err != nil {
		return nil, fmt.Errorf("rpc.DialOptions: %w", err)
	}
	eth := ethclient.NewClient(rpcClient)

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("eth.ChainID: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto.HexToECDSA: %w", err)
	}

	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid executor contract address: %q", contractAddr)
	}

	return newClient(logger, eth, key, chainID, common.HexToAddress(contractAddr))
}

func newClient(logger *logrus.Logger, eth ethBackend, key *ecdsa.PrivateKey, chainID *big.Int, contract common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(executorABI))
	if err != nil {
		return nil, fmt.Errorf("abi.JSON: %w", err)
	}

	return &Client{
		logger:   logger.WithField("pkg", "chain.Client").Logger,
		eth:      eth,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		contract: contract,
		dcaABI:   parsed,
	}, nil
}

// OperatorAddress is the account that signs and pays gas for all submissions.
func (c *Client) OperatorAddress() common.Address {
	return c.from
}

// Submit packs the executeDCA call, signs it with the operator key and
// broadcasts it. The nonce mutex is held across the broadcast so overlapping
// cycles cannot reuse a nonce; a failed broadcast invalidates the cached
// nonce and the next submission re-syncs from the node.
func (c *Client) Submit(
	ctx context.Context,
	beneficiary common.Address,
	amountIn *big.Int,
	minAmountOut *big.Int,
	referrer common.Address,
	routes []Route,
	fees feepolicy.Params,
) (common.Hash, error) {
	data, err := c.dcaABI.Pack("executeDCA", beneficiary, amountIn, minAmountOut, referrer, routes)
	if err != nil {
		return common.Hash{}, &SubmissionError{fmt.Errorf("abi pack executeDCA: %w", err)}
	}

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	if !c.nonceReady {
		nonce, er := c.eth.PendingNonceAt(ctx, c.from)
		if er != nil {
			return common.Hash{}, &SubmissionError{fmt.Errorf("eth.PendingNonceAt: %w", er)}
		}
		c.nextNonce = nonce
		c.nonceReady = true
	}

	tx := etypes.NewTx(&etypes.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     c.nextNonce,
		GasTipCap: fees.GasTipCap,
		GasFeeCap: fees.GasFeeCap,
		Gas:       fees.GasLimit,
		To:        &c.contract,
		Value:     big.NewInt(0),
		Data:      data,
	})

	signed, err := etypes.SignTx(tx, etypes.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, &SubmissionError{fmt.Errorf("sign tx: %w", err)}
	}

	err = c.eth.SendTransaction(ctx, signed)
	if err != nil {
		// nonce state on the node is now unknown (rejected, gapped or raced);
		// force a re-sync before the next submission
		c.nonceReady = false
		return common.Hash{}, &SubmissionError{fmt.Errorf("eth.SendTransaction: %w", err)}
	}
	c.nextNonce++

	c.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"nonce":   signed.Nonce(),
	}).Info("transaction broadcast")
	return signed.Hash(), nil
}

// AwaitReceipt polls for inclusion of hash until timeout. A timeout returns
// Confirmed=false and no error: the caller classifies it, the transaction is
// not cancelled.
func (c *Client) AwaitReceipt(ctx context.Context, hash common.Hash, timeout time.Duration) (Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		rec, err := c.eth.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil:
			return Receipt{
				Confirmed:      true,
				OnChainSuccess: rec.Status == etypes.ReceiptStatusSuccessful,
			}, nil
		case errors.Is(err, ethereum.NotFound):
			// not mined yet, keep polling
		case waitCtx.Err() != nil:
			return Receipt{}, nil
		default:
			return Receipt{}, fmt.Errorf("eth.TransactionReceipt: %w", err)
		}

		select {
		case <-waitCtx.Done():
			return Receipt{}, nil
		case <-ticker.C:
		}
	}
}
