package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/market"
)

// SnapshotSource exposes the latest market snapshot.
type SnapshotSource interface {
	Latest() *market.Snapshot
}

type snapshotResponse struct {
	Version            string   `json:"version"`
	Market             string   `json:"market"`
	Symbol             string   `json:"symbol"`
	AvailableLiquidity string   `json:"available_liquidity"`
	TotalBorrows       string   `json:"total_borrows"`
	TotalReserves      string   `json:"total_reserves"`
	Threshold          string   `json:"threshold"`
	BelowThreshold     bool     `json:"below_threshold"`
	TotalSupply        string   `json:"total_supply,omitempty"`
	UtilizationPercent *float64 `json:"utilization_percent,omitempty"`
	SupplyAPY          *float64 `json:"supply_apy,omitempty"`
	BorrowAPY          *float64 `json:"borrow_apy,omitempty"`
	FetchedAt          string   `json:"fetched_at"`
}

// Snapshot serves the latest snapshot with 256-bit values as decimal
// strings.
func Snapshot(src SnapshotSource, threshold *uint256.Int) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := src.Latest()
		if snap == nil {
			http.Error(w, `{"error":"no data available yet"}`, http.StatusServiceUnavailable)
			return
		}

		resp := snapshotResponse{
			Version:            snap.Version.String(),
			Market:             snap.Market.Hex(),
			Symbol:             snap.Symbol,
			AvailableLiquidity: snap.AvailableLiquidity.Dec(),
			TotalBorrows:       snap.TotalBorrows.Dec(),
			TotalReserves:      snap.TotalReserves.Dec(),
			Threshold:          threshold.Dec(),
			BelowThreshold:     snap.Below(threshold),
			FetchedAt:          snap.FetchedAt.UTC().Format(time.RFC3339),
		}
		if snap.Version == compound.V3 {
			util := snap.UtilizationPercent()
			supply, borrow := snap.SupplyAPY, snap.BorrowAPY
			resp.TotalSupply = snap.TotalSupply.Dec()
			resp.UtilizationPercent = &util
			resp.SupplyAPY = &supply
			resp.BorrowAPY = &borrow
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
