package market

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/chain/chaintest"
	"github.com/web3-frozen/compound-monitor/internal/compound"
)

var (
	marketAddr = common.HexToAddress("0xc3d688B66703497DAA19211EEdff47f25384cdc3")
	baseAddr   = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func v2Backend() *chaintest.Backend {
	b := chaintest.New()
	b.Return(marketAddr, compound.CTokenABI, "getCash", big.NewInt(5_000_000))
	b.Return(marketAddr, compound.CTokenABI, "totalBorrows", big.NewInt(3_000_000))
	b.Return(marketAddr, compound.CTokenABI, "totalReserves", big.NewInt(250_000))
	b.Return(marketAddr, compound.CTokenABI, "symbol", "cUSDC")
	return b
}

func v3Backend(reserves int64) *chaintest.Backend {
	b := chaintest.New()
	b.Return(marketAddr, compound.CometABI, "baseToken", baseAddr)
	b.Return(marketAddr, compound.CometABI, "totalSupply", big.NewInt(10_000_000))
	b.Return(marketAddr, compound.CometABI, "totalBorrow", big.NewInt(4_000_000))
	b.Return(marketAddr, compound.CometABI, "getReserves", big.NewInt(reserves))
	b.Return(marketAddr, compound.CometABI, "getUtilization", new(big.Int).Mul(big.NewInt(4), big.NewInt(1e17)))
	b.Return(marketAddr, compound.CometABI, "getSupplyRate", uint64(1_000_000_000))
	b.Return(marketAddr, compound.CometABI, "getBorrowRate", uint64(2_000_000_000))
	b.Handle(baseAddr, compound.ERC20ABI, "balanceOf", func(args []any) ([]any, error) {
		if args[0].(common.Address) == marketAddr {
			return []any{big.NewInt(1_234_567)}, nil
		}
		return []any{big.NewInt(0)}, nil
	})
	return b
}

func TestReadV2(t *testing.T) {
	r := NewReader(v2Backend(), "ignored", slog.Default())

	snap, err := r.Read(context.Background(), compound.V2, marketAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, compound.V2, snap.Version)
	require.Equal(t, "cUSDC", snap.Symbol)
	require.Equal(t, uint64(5_000_000), snap.AvailableLiquidity.Uint64())
	require.Equal(t, uint64(3_000_000), snap.TotalBorrows.Uint64())
	require.Equal(t, uint64(250_000), snap.TotalReserves.Uint64())
	require.False(t, snap.FetchedAt.IsZero())
}

func TestReadV2FailsWhole(t *testing.T) {
	b := v2Backend()
	b.Fail(marketAddr, compound.CTokenABI, "totalReserves", errors.New("timeout"))
	r := NewReader(b, "", slog.Default())

	snap, err := r.Read(context.Background(), compound.V2, marketAddr.Hex())
	require.Nil(t, snap)
	require.ErrorIs(t, err, ErrSnapshotRead)
	require.ErrorIs(t, err, chain.ErrCall)
	require.Contains(t, err.Error(), "total reserves")
}

// Liquidity must come from the base token balance even when the
// bookkeeping figure (supply - borrow = 6,000,000) disagrees.
func TestReadV3UsesTokenBalance(t *testing.T) {
	r := NewReader(v3Backend(500), "", slog.Default())

	snap, err := r.Read(context.Background(), compound.V3, marketAddr.Hex())
	require.NoError(t, err)
	require.Equal(t, uint64(1_234_567), snap.AvailableLiquidity.Uint64())
	require.Equal(t, uint64(10_000_000), snap.TotalSupply.Uint64())
	require.Equal(t, uint64(4_000_000), snap.TotalBorrows.Uint64())
	require.Equal(t, uint64(500), snap.TotalReserves.Uint64())
	require.Equal(t, DefaultV3Symbol, snap.Symbol)
	require.InDelta(t, 40.0, snap.UtilizationPercent(), 1e-9)
	require.Greater(t, snap.BorrowAPY, snap.SupplyAPY)
	require.Greater(t, snap.SupplyAPY, 0.0)
}

func TestReadV3NegativeReservesClamped(t *testing.T) {
	r := NewReader(v3Backend(-100), "USDC Comet", slog.Default())

	snap, err := r.Read(context.Background(), compound.V3, marketAddr.Hex())
	require.NoError(t, err)
	require.True(t, snap.TotalReserves.IsZero(), "reserves = %s, want 0", snap.TotalReserves.Dec())
	require.Equal(t, int64(-100), snap.ReservesRaw.Int64())
	require.Equal(t, "USDC Comet", snap.Symbol)
}

func TestReadV3BaseTokenFailure(t *testing.T) {
	b := v3Backend(0)
	b.Fail(marketAddr, compound.CometABI, "baseToken", errors.New("execution reverted"))
	r := NewReader(b, "", slog.Default())

	_, err := r.Read(context.Background(), compound.V3, marketAddr.Hex())
	require.ErrorIs(t, err, ErrSnapshotRead)
	require.Contains(t, err.Error(), "base token")
}

func TestReadV3RateFailure(t *testing.T) {
	b := v3Backend(0)
	b.Fail(marketAddr, compound.CometABI, "getBorrowRate", errors.New("boom"))
	r := NewReader(b, "", slog.Default())

	_, err := r.Read(context.Background(), compound.V3, marketAddr.Hex())
	require.ErrorIs(t, err, ErrSnapshotRead)
}

func TestReadInvalidAddress(t *testing.T) {
	b := v2Backend()
	r := NewReader(b, "", slog.Default())

	_, err := r.Read(context.Background(), compound.V2, "0xnothex")
	require.ErrorIs(t, err, ErrSnapshotRead)
	require.Zero(t, b.Calls())
}

func TestSnapshotBelow(t *testing.T) {
	snap := &Snapshot{AvailableLiquidity: *uint256.NewInt(999)}
	require.True(t, snap.Below(uint256.NewInt(1000)))
	require.False(t, snap.Below(uint256.NewInt(999)))
	require.False(t, snap.Below(uint256.NewInt(1)))
}

func TestClampReserves(t *testing.T) {
	got := clampReserves(big.NewInt(-1))
	require.True(t, got.IsZero())
	got = clampReserves(nil)
	require.True(t, got.IsZero())
	got = clampReserves(big.NewInt(42))
	require.Equal(t, uint64(42), got.Uint64())
}
