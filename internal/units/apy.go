package units

import "math"

const (
	// SecondsPerYear uses 365.25 days to account for leap years.
	SecondsPerYear = 365.25 * 24 * 60 * 60

	// RateScale is the fixed-point factor of per-second rates (1e18 = 100%/s).
	RateScale = 1e18
)

// APY annualizes a per-second rate scaled by RateScale and returns it as a
// percentage: ((1 + r)^SecondsPerYear - 1) * 100.
func APY(ratePerSecond uint64) float64 {
	if ratePerSecond == 0 {
		return 0
	}
	r := float64(ratePerSecond) / RateScale
	// log1p/expm1 keep precision for the tiny per-second rates seen on-chain.
	return math.Expm1(SecondsPerYear*math.Log1p(r)) * 100
}
