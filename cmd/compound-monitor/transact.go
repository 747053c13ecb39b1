package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/config"
	"github.com/web3-frozen/compound-monitor/internal/executor"
	"github.com/web3-frozen/compound-monitor/internal/lock"
)

func (a *app) transact(ctx context.Context, op string, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet(op, flag.ContinueOnError)
	fs.SetOutput(stderr)
	var amountStr, keyFlag string
	fs.StringVar(&amountStr, "amount", "", "amount in base units (e.g. 1000000 for 1 USDC)")
	fs.StringVar(&amountStr, "a", "", "shorthand for -amount")
	fs.StringVar(&keyFlag, "private-key", "", "signing key; falls back to private_key in the config")
	fs.StringVar(&keyFlag, "k", "", "shorthand for -private-key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Read-only markets are rejected before any credential or network use.
	if !a.settings.Version.Writable() {
		return executor.ErrReadOnlyVersion
	}
	amount, err := config.ParseAmount(amountStr)
	if err != nil {
		return err
	}
	key, err := a.cfg.ResolveKey(keyFlag)
	if err != nil {
		return err
	}

	client, err := chain.Dial(ctx, a.cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []executor.Option{executor.WithTimeout(a.cfg.TxTimeout())}
	if a.cfg.RedisURL != "" {
		lk, err := connectLocker(ctx, a)
		if err != nil {
			return err
		}
		defer lk.Close()
		opts = append(opts, executor.WithLocker(lk))
	}
	ex := executor.New(client, a.settings.Version, a.settings.Market, a.logger, opts...)

	var receipt *executor.Receipt
	switch op {
	case "supply":
		receipt, err = ex.Supply(ctx, amount, key)
	default:
		receipt, err = ex.Withdraw(ctx, amount, key)
	}
	if err != nil {
		return err
	}

	attrs := []any{"tx_hash", receipt.TxHash.Hex(), "gas_used", receipt.GasUsed, "block", receipt.BlockNumber}
	if receipt.ApprovalTx != nil {
		attrs = append(attrs, "approval_tx", receipt.ApprovalTx.Hex())
	}
	a.logger.Info(op+" confirmed", attrs...)
	return nil
}

// connectLocker retries briefly in case Redis is still coming up.
func connectLocker(ctx context.Context, a *app) (*lock.Locker, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		lk, err := lock.New(a.cfg.RedisURL, a.cfg.RedisPassword, a.logger)
		if err == nil {
			a.logger.Info("redis connected for signer lock")
			return lk, nil
		}
		lastErr = err
		a.logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connect to redis: %w", lastErr)
}
