package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/web3-frozen/compound-monitor/internal/config"
	"github.com/web3-frozen/compound-monitor/internal/logging"
)

const usage = `Usage: compound-monitor [-config path] [-addresses path] <command> [flags]

Commands:
  monitor                       poll the market and alert on low liquidity (default)
  supply   -amount N [-private-key K]   supply base units to a v3 market
  withdraw -amount N [-private-key K]   withdraw base units from a v3 market
  balance  [-address A]         show wallet and deposited balances
`

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FILE"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], logger, os.Stderr)
	stop()

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			logger.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}

// app carries what every command needs after configuration is loaded.
type app struct {
	cfg       *config.Config
	settings  *config.Settings
	addresses string
	logger    *slog.Logger
}

func run(ctx context.Context, args []string, logger *slog.Logger, stderr io.Writer) error {
	fs := flag.NewFlagSet("compound-monitor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "config file (JSON or TOML); defaults to $CONFIG_FILE or "+config.DefaultPath)
	addresses := fs.String("addresses", config.DefaultAddressPath, "address list for batch balance checks (JSON or YAML)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, rest := "monitor", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	settings, err := cfg.Validate()
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, settings: settings, addresses: *addresses, logger: logger}

	switch cmd {
	case "monitor":
		return a.monitor(ctx)
	case "supply", "withdraw":
		return a.transact(ctx, cmd, rest, stderr)
	case "balance":
		return a.balance(ctx, rest, stderr)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("%w: unknown command %q", config.ErrInput, cmd)
	}
}
