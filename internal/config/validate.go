package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/compound"
)

// Settings are the values parsed once at startup.
type Settings struct {
	Version   compound.Version
	Market    common.Address
	Threshold *uint256.Int
}

// Validate parses the version, market address and threshold and checks the
// fields every command depends on.
func (c *Config) Validate() (*Settings, error) {
	version, err := compound.ParseVersion(c.CompoundVersion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if strings.TrimSpace(c.RPCURL) == "" {
		return nil, fmt.Errorf("%w: rpc_url is required", ErrConfig)
	}
	market, err := ParseAddress(c.MarketAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: market_address: %w", ErrConfig, err)
	}
	threshold, err := uint256.FromDecimal(strings.TrimSpace(c.LiquidityThreshold))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid liquidity_threshold %q: %w", ErrConfig, c.LiquidityThreshold, err)
	}
	return &Settings{Version: version, Market: market, Threshold: threshold}, nil
}

// ValidateMonitor checks the extra fields the polling loop needs.
func (c *Config) ValidateMonitor() error {
	if c.PollIntervalSecs == 0 {
		return fmt.Errorf("%w: poll_interval_secs must be positive", ErrConfig)
	}
	if c.NotificationsEnabled() && strings.TrimSpace(c.WebhookURL) == "" {
		return fmt.Errorf("%w: webhook_url is required when notifications are enabled", ErrConfig)
	}
	return nil
}

// ParseAmount parses a positive base-unit amount.
func ParseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %w", ErrInput, s, err)
	}
	if v.IsZero() {
		return nil, fmt.Errorf("%w: amount must be greater than zero", ErrInput)
	}
	return v, nil
}

// ParseAddress parses a 0x-prefixed hex account address.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: address %q", ErrInput, s)
	}
	return common.HexToAddress(s), nil
}
