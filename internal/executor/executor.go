// Package executor submits supply and withdraw transactions to a V3
// market and blocks until they are confirmed.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/config"
	"github.com/web3-frozen/compound-monitor/internal/metrics"
)

var (
	// ErrTransaction wraps failures while approving, submitting or
	// confirming a transaction.
	ErrTransaction = errors.New("transaction failed")

	ErrReadOnlyVersion = fmt.Errorf("%w: supply/withdraw is only supported for compound v3; set \"compound_version\": \"v3\"", config.ErrConfig)
)

// Receipt summarizes a confirmed operation.
type Receipt struct {
	Operation   string
	TxHash      common.Hash
	GasUsed     uint64
	BlockNumber *big.Int
	// ApprovalTx is set when an approve transaction preceded a supply.
	ApprovalTx  *common.Hash
}

// Locker serializes operations for one signer across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

type Executor struct {
	backend chain.Backend
	version compound.Version
	market  common.Address
	logger  *slog.Logger
	locker  Locker
	approve ApprovalStep
	timeout time.Duration
	txOpts  []chain.TransactorOption
}

type Option func(*Executor)

func WithLocker(l Locker) Option { return func(e *Executor) { e.locker = l } }

// WithApproval swaps the allowance strategy used before supply.
func WithApproval(step ApprovalStep) Option { return func(e *Executor) { e.approve = step } }

// WithTimeout bounds a whole operation, confirmations included.
func WithTimeout(d time.Duration) Option { return func(e *Executor) { e.timeout = d } }

func WithTransactorOptions(opts ...chain.TransactorOption) Option {
	return func(e *Executor) { e.txOpts = append(e.txOpts, opts...) }
}

func New(backend chain.Backend, version compound.Version, market common.Address, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		backend: backend,
		version: version,
		market:  market,
		logger:  logger,
		approve: UnlimitedApproval,
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supply deposits amount of the market's base token, approving the market
// first when the current allowance is insufficient.
func (e *Executor) Supply(ctx context.Context, amount *uint256.Int, key string) (*Receipt, error) {
	return e.run(ctx, "supply", amount, key, e.supply)
}

// Withdraw redeems amount of the base token. No allowance is involved.
func (e *Executor) Withdraw(ctx context.Context, amount *uint256.Int, key string) (*Receipt, error) {
	return e.run(ctx, "withdraw", amount, key, e.withdraw)
}

type operation func(ctx context.Context, tr *chain.Transactor, comet *chain.Contract, amount *uint256.Int) (*Receipt, error)

func (e *Executor) run(ctx context.Context, op string, amount *uint256.Int, key string, fn operation) (*Receipt, error) {
	if !e.version.Writable() {
		return nil, ErrReadOnlyVersion
	}
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", config.ErrInput)
	}
	if _, err := chain.ParseKey(key); err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %w", config.ErrInput, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	tr, err := chain.NewTransactor(ctx, e.backend, key, e.txOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransaction, err)
	}

	if e.locker != nil {
		release, err := e.locker.Acquire(ctx, tr.From().Hex(), e.timeout+time.Minute)
		if err != nil {
			return nil, fmt.Errorf("%w: lock signer %s: %w", ErrTransaction, tr.From().Hex(), err)
		}
		defer release()
	}

	e.logger.Info("submitting "+op, "amount", amount.Dec(), "market", e.market.Hex(), "from", tr.From().Hex())
	comet := chain.NewContract(e.market, compound.CometABI, e.backend)
	receipt, err := fn(ctx, tr, comet, amount)
	if err != nil {
		metrics.TransactionsTotal.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%w: %s: %w", ErrTransaction, op, err)
	}
	metrics.TransactionsTotal.WithLabelValues(op, "success").Inc()

	e.logger.Info(op+" successful",
		"tx_hash", receipt.TxHash.Hex(),
		"gas_used", receipt.GasUsed,
		"block", receipt.BlockNumber,
	)
	return receipt, nil
}

func (e *Executor) supply(ctx context.Context, tr *chain.Transactor, comet *chain.Contract, amount *uint256.Int) (*Receipt, error) {
	base, err := comet.CallAddress(ctx, "baseToken")
	if err != nil {
		return nil, fmt.Errorf("resolve base token: %w", err)
	}
	token := chain.NewContract(base, compound.ERC20ABI, e.backend)

	approval, err := e.approve(ctx, tr, token, e.market, amount, e.logger)
	if err != nil {
		return nil, err
	}

	receipt, err := e.submit(ctx, tr, comet, "supply", base, amount)
	if err != nil {
		return nil, err
	}
	if approval != nil {
		h := approval.TxHash
		receipt.ApprovalTx = &h
	}
	return receipt, nil
}

func (e *Executor) withdraw(ctx context.Context, tr *chain.Transactor, comet *chain.Contract, amount *uint256.Int) (*Receipt, error) {
	base, err := comet.CallAddress(ctx, "baseToken")
	if err != nil {
		return nil, fmt.Errorf("resolve base token: %w", err)
	}
	return e.submit(ctx, tr, comet, "withdraw", base, amount)
}

func (e *Executor) submit(ctx context.Context, tr *chain.Transactor, comet *chain.Contract, method string, base common.Address, amount *uint256.Int) (*Receipt, error) {
	e.logger.Info("sending " + method + " transaction")
	tx, err := tr.Transact(ctx, comet, method, base, amount.ToBig())
	if err != nil {
		return nil, err
	}
	r, err := tr.WaitMined(ctx, tx)
	if err != nil {
		return nil, err
	}
	return newReceipt(method, r), nil
}

func newReceipt(op string, r *types.Receipt) *Receipt {
	return &Receipt{
		Operation:   op,
		TxHash:      r.TxHash,
		GasUsed:     r.GasUsed,
		BlockNumber: r.BlockNumber,
	}
}
