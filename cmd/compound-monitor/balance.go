package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/web3-frozen/compound-monitor/internal/balance"
	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/config"
)

func (a *app) balance(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("balance", flag.ContinueOnError)
	fs.SetOutput(stderr)
	address := fs.String("address", "", "address to check; omit to check every entry in the address list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Deposited balances are a V3 (Comet) concept.
	if !a.settings.Version.Writable() {
		return fmt.Errorf("%w: balance checks are only supported for compound v3", config.ErrConfig)
	}

	var entries []config.MonitorAddress
	if *address == "" {
		var err error
		if entries, err = config.LoadAddresses(a.addresses); err != nil {
			return err
		}
	}

	client, err := chain.Dial(ctx, a.cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	inspector := balance.NewInspector(client, a.settings.Market, a.logger)
	if *address != "" {
		report, err := inspector.Check(ctx, *address, "")
		if err != nil {
			return err
		}
		report.Log(a.logger)
		return nil
	}

	batch := inspector.CheckBatch(ctx, entries)
	if len(batch.Failures) > 0 {
		a.logger.Warn(fmt.Sprintf("%d of %d addresses could not be checked", len(batch.Failures), len(entries)))
	}
	return nil
}
