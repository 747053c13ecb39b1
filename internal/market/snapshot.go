// Package market reads a lending market's liquidity state into a
// normalized Snapshot, dispatching on the configured protocol version.
package market

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/compound"
)

// Snapshot is a point-in-time read of a market. It is built once per read
// and never mutated afterwards.
type Snapshot struct {
	Version compound.Version
	Market  common.Address
	Symbol  string

	AvailableLiquidity uint256.Int
	TotalBorrows       uint256.Int
	// TotalReserves is never negative; see ReservesRaw for the signed value.
	TotalReserves      uint256.Int

	// ReservesRaw is the reserve figure as reported by the contract.
	ReservesRaw *big.Int

	// V3 only.
	TotalSupply uint256.Int
	Utilization uint256.Int
	SupplyAPY   float64
	BorrowAPY   float64

	FetchedAt time.Time
}

// Below reports whether available liquidity is strictly below threshold.
// Both sides are unscaled base units.
func (s *Snapshot) Below(threshold *uint256.Int) bool {
	return s.AvailableLiquidity.Lt(threshold)
}

// UtilizationPercent converts the 1e18-scaled utilization to a percentage.
func (s *Snapshot) UtilizationPercent() float64 {
	f, _ := new(big.Float).SetInt(s.Utilization.ToBig()).Float64()
	return f / 1e16
}

// clampReserves floors signed reserves at zero.
func clampReserves(raw *big.Int) uint256.Int {
	var out uint256.Int
	if raw == nil || raw.Sign() <= 0 {
		return out
	}
	out.SetFromBig(raw)
	return out
}
