// Package chain is the ledger client capability: read-only contract calls,
// signed state-changing calls and confirmation waits over an EVM node.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Reader is the subset of the RPC used for view calls. It is safe to share
// between concurrent readers.
type Reader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Backend adds the primitives needed to build, submit and confirm signed
// transactions.
type Backend interface {
	Reader
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// Dial initialises an RPC client for the provided endpoint.
func Dial(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	client, err := ethclient.DialContext(ctx, trimmed)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return client, nil
}
