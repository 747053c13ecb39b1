// Package alert builds liquidity alerts and delivers them to a webhook.
package alert

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/market"
)

// LiquidityAlert is the outbound webhook payload. Field names are part of
// the downstream contract and must not change.
type LiquidityAlert struct {
	MarketAddress      string `json:"market_address"`
	MarketSymbol       string `json:"market_symbol"`
	AvailableLiquidity string `json:"available_liquidity"`
	TotalBorrows       string `json:"total_borrows"`
	TotalReserves      string `json:"total_reserves"`
	Threshold          string `json:"threshold"`
	Timestamp          int64  `json:"timestamp"`
	Message            string `json:"message"`
}

// New flattens a snapshot that breached threshold into an alert.
// marketAddress is reported as configured.
func New(marketAddress string, snap *market.Snapshot, threshold *uint256.Int, now time.Time) LiquidityAlert {
	liquidity := snap.AvailableLiquidity.Dec()
	return LiquidityAlert{
		MarketAddress:      marketAddress,
		MarketSymbol:       snap.Symbol,
		AvailableLiquidity: liquidity,
		TotalBorrows:       snap.TotalBorrows.Dec(),
		TotalReserves:      snap.TotalReserves.Dec(),
		Threshold:          threshold.Dec(),
		Timestamp:          now.Unix(),
		Message:            fmt.Sprintf("Available liquidity (%s) is below threshold (%s)", liquidity, threshold.Dec()),
	}
}
