// Package balance reports wallet and deposited base-token balances for
// addresses against a V3 market.
package balance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/config"
	"github.com/web3-frozen/compound-monitor/internal/units"
)

// ErrBalanceRead wraps any failed lookup for a single address.
var ErrBalanceRead = errors.New("balance read failed")

const (
	heavyRule = "═══════════════════════════════════════════════════"
	lightRule = "───────────────────────────────────────────────────"
)

// Report is the result of one address lookup.
type Report struct {
	Name      string
	Address   common.Address
	Token     common.Address
	Symbol    string
	Decimals  uint8
	Wallet    *uint256.Int
	Deposited *uint256.Int
}

// WalletFormatted is the wallet balance in whole tokens.
func (r *Report) WalletFormatted() string { return r.format(r.Wallet) }

// DepositedFormatted is the market balance in whole tokens.
func (r *Report) DepositedFormatted() string { return r.format(r.Deposited) }

func (r *Report) format(v *uint256.Int) string {
	divisor, err := units.Pow10(r.Decimals)
	if err != nil {
		return v.Dec()
	}
	return units.FormatBalance(v, divisor)
}

// Log writes the report as a boxed block of log lines.
func (r *Report) Log(logger *slog.Logger) {
	logger.Info(heavyRule)
	if r.Name != "" {
		logger.Info("Name: " + r.Name)
	}
	logger.Info("Address: " + r.Address.Hex())
	logger.Info(fmt.Sprintf("Token: %s (base token: %s)", r.Symbol, r.Token.Hex()))
	logger.Info(fmt.Sprintf("Decimals: %d", r.Decimals))
	logger.Info(lightRule)
	logger.Info(fmt.Sprintf("Wallet balance:   %s %s (%s)", r.WalletFormatted(), r.Symbol, r.Wallet.Dec()))
	logger.Info(fmt.Sprintf("Compound balance: %s %s (%s)", r.DepositedFormatted(), r.Symbol, r.Deposited.Dec()))
	logger.Info(heavyRule)
}

// Failure records a batch entry that could not be inspected.
type Failure struct {
	Entry config.MonitorAddress
	Err   error
}

type BatchReport struct {
	Reports  []*Report
	Failures []Failure
}

// Inspector looks up balances against one market.
type Inspector struct {
	client chain.Reader
	market common.Address
	logger *slog.Logger
}

func NewInspector(client chain.Reader, market common.Address, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{client: client, market: market, logger: logger}
}

// Check reads the base token held by address in its wallet and deposited in
// the market. name is optional and only used for display.
func (i *Inspector) Check(ctx context.Context, address, name string) (*Report, error) {
	addr, err := config.ParseAddress(address)
	if err != nil {
		return nil, err
	}

	comet := chain.NewContract(i.market, compound.CometABI, i.client)
	base, err := comet.CallAddress(ctx, "baseToken")
	if err != nil {
		return nil, fmt.Errorf("%w: resolve base token: %w", ErrBalanceRead, err)
	}
	token := chain.NewContract(base, compound.ERC20ABI, i.client)

	r := &Report{Name: name, Address: addr, Token: base}
	if r.Symbol, err = token.CallString(ctx, "symbol"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBalanceRead, err)
	}
	if r.Decimals, err = token.CallUint8(ctx, "decimals"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBalanceRead, err)
	}
	if r.Wallet, err = token.CallUint256(ctx, "balanceOf", addr); err != nil {
		return nil, fmt.Errorf("%w: wallet balance: %w", ErrBalanceRead, err)
	}
	if r.Deposited, err = comet.CallUint256(ctx, "balanceOf", addr); err != nil {
		return nil, fmt.Errorf("%w: compound balance: %w", ErrBalanceRead, err)
	}
	return r, nil
}

// CheckBatch inspects entries in order. A failing entry is logged and
// recorded; the rest of the batch still runs.
func (i *Inspector) CheckBatch(ctx context.Context, entries []config.MonitorAddress) BatchReport {
	var out BatchReport
	if len(entries) == 0 {
		i.logger.Info("no addresses configured")
		return out
	}

	i.logger.Info(fmt.Sprintf("Checking balances for %d addresses...", len(entries)))
	for _, e := range entries {
		r, err := i.Check(ctx, e.Address, e.Name)
		if err != nil {
			i.logger.Error("failed to check balance", "name", e.Name, "address", e.Address, "error", err)
			out.Failures = append(out.Failures, Failure{Entry: e, Err: err})
			continue
		}
		r.Log(i.logger)
		out.Reports = append(out.Reports, r)
	}
	return out
}
