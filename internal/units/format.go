// Package units converts raw on-chain integers into display values.
package units

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// maxDecimals is the largest exponent for which 10^n fits in 256 bits.
const maxDecimals = 77

// FormatBalance renders raw / divisor as a decimal string without losing
// precision. Trailing zeros of the fraction are dropped. A zero divisor
// returns the raw integer unchanged.
func FormatBalance(raw, divisor *uint256.Int) string {
	if divisor.IsZero() {
		return raw.Dec()
	}

	whole := new(uint256.Int).Div(raw, divisor)
	rem := new(uint256.Int).Mod(raw, divisor)
	if rem.IsZero() {
		return whole.Dec()
	}

	width := len(divisor.Dec()) - 1
	frac := rem.Dec()
	if pad := width - len(frac); pad > 0 {
		frac = strings.Repeat("0", pad) + frac
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return whole.Dec()
	}
	return whole.Dec() + "." + frac
}

// Pow10 returns 10^decimals as a 256-bit integer.
func Pow10(decimals uint8) (*uint256.Int, error) {
	if decimals > maxDecimals {
		return nil, fmt.Errorf("decimals %d overflow 256 bits", decimals)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals))), nil
}
