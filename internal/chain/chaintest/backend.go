// Package chaintest provides an in-memory ledger that satisfies
// chain.Backend. Contract methods are answered by registered handlers and
// encoded with the real ABI, so callers exercise the same packing and
// unpacking paths they use against a node.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// CallFunc answers a contract method given its decoded inputs.
type CallFunc func(args []any) ([]any, error)

// SentTx is a transaction observed by SendTransaction.
type SentTx struct {
	From   common.Address
	To     common.Address
	Method string
	Args   []any
	Hash   common.Hash
}

type contract struct {
	abi      abi.ABI
	handlers map[string]CallFunc
}

// Backend is a fake EVM node. The zero value is not usable; call New.
type Backend struct {
	mu        sync.Mutex
	chainID   *big.Int
	baseFee   *big.Int
	contracts map[common.Address]*contract
	reverts   map[string]bool
	sendErrs  map[string]error
	receipts  map[common.Hash]*types.Receipt
	sent      []SentTx
	calls     int
	onSend    func(SentTx)
}

func New() *Backend {
	return &Backend{
		chainID:   big.NewInt(1),
		baseFee:   big.NewInt(1_000_000_000),
		contracts: make(map[common.Address]*contract),
		reverts:   make(map[string]bool),
		sendErrs:  make(map[string]error),
		receipts:  make(map[common.Hash]*types.Receipt),
	}
}

// Handle registers fn as the answer for method on the contract at addr.
func (b *Backend) Handle(addr common.Address, parsed abi.ABI, method string, fn CallFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[addr]
	if !ok {
		c = &contract{abi: parsed, handlers: make(map[string]CallFunc)}
		b.contracts[addr] = c
	}
	c.handlers[method] = fn
}

// Return registers constant outputs for method.
func (b *Backend) Return(addr common.Address, parsed abi.ABI, method string, values ...any) {
	b.Handle(addr, parsed, method, func([]any) ([]any, error) { return values, nil })
}

// Fail makes method fail with err.
func (b *Backend) Fail(addr common.Address, parsed abi.ABI, method string, err error) {
	b.Handle(addr, parsed, method, func([]any) ([]any, error) { return nil, err })
}

// Revert makes transactions calling method mine with a failed status.
func (b *Backend) Revert(method string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reverts[method] = true
}

// RejectSend makes SendTransaction fail for method.
func (b *Backend) RejectSend(method string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs[method] = err
}

// OnSend registers a hook run for every accepted transaction, used to
// mutate fake state (e.g. allowances after approve).
func (b *Backend) OnSend(fn func(SentTx)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onSend = fn
}

// Legacy removes the base fee from headers so legacy pricing is used.
func (b *Backend) Legacy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.baseFee = nil
}

// Calls returns the number of RPC requests served.
func (b *Backend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// Sent returns the accepted transactions in submission order.
func (b *Backend) Sent() []SentTx {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]SentTx, len(b.sent))
	copy(out, b.sent)
	return out
}

func (b *Backend) decode(to *common.Address, data []byte) (*contract, *abi.Method, []any, error) {
	if to == nil {
		return nil, nil, nil, errors.New("missing destination")
	}
	c, ok := b.contracts[*to]
	if !ok {
		return nil, nil, nil, fmt.Errorf("no contract at %s", to.Hex())
	}
	if len(data) < 4 {
		return nil, nil, nil, errors.New("calldata too short")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, nil, err
	}
	return c, method, args, nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	b.calls++
	c, method, args, err := b.decode(call.To, call.Data)
	var fn CallFunc
	if err == nil {
		fn = c.handlers[method.Name]
	}
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("execution reverted: %s not handled", method.Name)
	}
	outs, err := fn(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(outs...)
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	var n uint64
	for _, tx := range b.sent {
		if tx.From == account {
			n++
		}
	}
	return n, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return big.NewInt(2_000_000_000), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	h := &types.Header{Number: big.NewInt(int64(len(b.sent)) + 1)}
	if b.baseFee != nil {
		h.BaseFee = new(big.Int).Set(b.baseFee)
	}
	return h, nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return 100_000, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	b.calls++
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("recover sender: %w", err)
	}
	_, method, args, err := b.decode(tx.To(), tx.Data())
	if err != nil {
		b.mu.Unlock()
		return err
	}
	if sendErr := b.sendErrs[method.Name]; sendErr != nil {
		b.mu.Unlock()
		return sendErr
	}

	sent := SentTx{From: from, To: *tx.To(), Method: method.Name, Args: args, Hash: tx.Hash()}
	b.sent = append(b.sent, sent)
	status := types.ReceiptStatusSuccessful
	if b.reverts[method.Name] {
		status = types.ReceiptStatusFailed
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() / 2,
		BlockNumber: big.NewInt(int64(len(b.sent))),
	}
	hook := b.onSend
	b.mu.Unlock()

	if hook != nil {
		hook(sent)
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
