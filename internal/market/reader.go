package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/units"
)

// DefaultV3Symbol names V3 markets when no display name is configured.
const DefaultV3Symbol = "cUSDCv3"

// ErrSnapshotRead wraps every failure of Read.
var ErrSnapshotRead = errors.New("snapshot read failed")

// Reader produces snapshots from on-chain state. It holds no mutable state
// and is safe for concurrent use.
type Reader struct {
	client     chain.Reader
	marketName string
	logger     *slog.Logger
	now        func() time.Time
}

// NewReader builds a Reader. marketName is used as the V3 symbol when set.
func NewReader(client chain.Reader, marketName string, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{
		client:     client,
		marketName: marketName,
		logger:     logger,
		now:        time.Now,
	}
}

// Read returns a snapshot of the market at address using the read sequence
// for version. Reads are all-or-nothing: any failed call fails the snapshot.
func (r *Reader) Read(ctx context.Context, version compound.Version, address string) (*Snapshot, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: invalid market address %q", ErrSnapshotRead, address)
	}
	addr := common.HexToAddress(address)

	var (
		snap *Snapshot
		err  error
	)
	switch version {
	case compound.V2:
		snap, err = r.readV2(ctx, addr)
	case compound.V3:
		snap, err = r.readV3(ctx, addr)
	default:
		err = fmt.Errorf("unsupported version %v", version)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotRead, err)
	}
	return snap, nil
}

func (r *Reader) readV2(ctx context.Context, addr common.Address) (*Snapshot, error) {
	ctoken := chain.NewContract(addr, compound.CTokenABI, r.client)

	var (
		cash, borrows, reserves *uint256.Int
		symbol                  string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cash, err = ctoken.CallUint256(gctx, "getCash")
		return wrap(err, "get cash (v2)")
	})
	g.Go(func() (err error) {
		borrows, err = ctoken.CallUint256(gctx, "totalBorrows")
		return wrap(err, "get total borrows (v2)")
	})
	g.Go(func() (err error) {
		reserves, err = ctoken.CallUint256(gctx, "totalReserves")
		return wrap(err, "get total reserves (v2)")
	})
	g.Go(func() (err error) {
		symbol, err = ctoken.CallString(gctx, "symbol")
		return wrap(err, "get symbol (v2)")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:            compound.V2,
		Market:             addr,
		Symbol:             symbol,
		AvailableLiquidity: *cash,
		TotalBorrows:       *borrows,
		TotalReserves:      *reserves,
		ReservesRaw:        reserves.ToBig(),
		FetchedAt:          r.now(),
	}
	r.logger.Info("market snapshot",
		"market", symbol,
		"available_liquidity", cash.Dec(),
		"total_borrows", borrows.Dec(),
		"total_reserves", reserves.Dec(),
	)
	return snap, nil
}

func (r *Reader) readV3(ctx context.Context, addr common.Address) (*Snapshot, error) {
	comet := chain.NewContract(addr, compound.CometABI, r.client)

	baseToken, err := comet.CallAddress(ctx, "baseToken")
	if err != nil {
		return nil, fmt.Errorf("get base token address (v3): %w", err)
	}
	token := chain.NewContract(baseToken, compound.ERC20ABI, r.client)

	var (
		balance, totalSupply, totalBorrow, utilization *uint256.Int
		reservesRaw                                    *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		// Spendable liquidity is what the market actually holds, not
		// totalSupply - totalBorrow from its bookkeeping.
		balance, err = token.CallUint256(gctx, "balanceOf", addr)
		return wrap(err, "get contract balance (v3)")
	})
	g.Go(func() (err error) {
		totalSupply, err = comet.CallUint256(gctx, "totalSupply")
		return wrap(err, "get total supply (v3)")
	})
	g.Go(func() (err error) {
		totalBorrow, err = comet.CallUint256(gctx, "totalBorrow")
		return wrap(err, "get total borrow (v3)")
	})
	g.Go(func() (err error) {
		reservesRaw, err = comet.CallBig(gctx, "getReserves")
		return wrap(err, "get reserves (v3)")
	})
	g.Go(func() (err error) {
		utilization, err = comet.CallUint256(gctx, "getUtilization")
		return wrap(err, "get utilization (v3)")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var supplyRate, borrowRate uint64
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		supplyRate, err = comet.CallUint64(gctx, "getSupplyRate", utilization.ToBig())
		return wrap(err, "get supply rate (v3)")
	})
	g.Go(func() (err error) {
		borrowRate, err = comet.CallUint64(gctx, "getBorrowRate", utilization.ToBig())
		return wrap(err, "get borrow rate (v3)")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	symbol := r.marketName
	if symbol == "" {
		symbol = DefaultV3Symbol
	}

	snap := &Snapshot{
		Version:            compound.V3,
		Market:             addr,
		Symbol:             symbol,
		AvailableLiquidity: *balance,
		TotalBorrows:       *totalBorrow,
		TotalReserves:      clampReserves(reservesRaw),
		ReservesRaw:        reservesRaw,
		TotalSupply:        *totalSupply,
		Utilization:        *utilization,
		SupplyAPY:          units.APY(supplyRate),
		BorrowAPY:          units.APY(borrowRate),
		FetchedAt:          r.now(),
	}

	if reservesRaw.Sign() < 0 {
		r.logger.Warn("negative reserves clamped to zero", "market", symbol, "reserves_raw", reservesRaw.String())
	}
	r.logger.Info("market snapshot",
		"market", symbol,
		"available_liquidity", snap.AvailableLiquidity.Dec(),
		"total_supply", snap.TotalSupply.Dec(),
		"total_borrow", snap.TotalBorrows.Dec(),
		"reserves", snap.TotalReserves.Dec(),
	)
	r.logger.Info("market rates",
		"market", symbol,
		"supply_apy", fmt.Sprintf("%.2f%%", snap.SupplyAPY),
		"borrow_apy", fmt.Sprintf("%.2f%%", snap.BorrowAPY),
		"utilization", fmt.Sprintf("%.2f%%", snap.UtilizationPercent()),
	)
	return snap, nil
}

func wrap(err error, what string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}
