// Package monitor runs the periodic liquidity check for one market.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/alert"
	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/market"
	"github.com/web3-frozen/compound-monitor/internal/metrics"
)

// ErrNoNotifier is reported when notifications are enabled but the engine
// was built without a notifier.
var ErrNoNotifier = errors.New("notifications enabled but no notifier configured")

// SnapshotReader reads one market snapshot.
type SnapshotReader interface {
	Read(ctx context.Context, version compound.Version, address string) (*market.Snapshot, error)
}

// Notifier delivers a liquidity alert.
type Notifier interface {
	Send(ctx context.Context, a alert.LiquidityAlert) error
}

// Settings are the validated inputs of the loop.
type Settings struct {
	Version       compound.Version
	MarketAddress string
	MarketName    string
	Threshold     *uint256.Int
	Interval      time.Duration
	Notify        bool

	// ReadTimeout bounds a single tick's reads. Zero means unbounded.
	ReadTimeout time.Duration
}

// TickResult is the outcome of one poll.
type TickResult struct {
	Snapshot  *market.Snapshot
	Alert     *alert.LiquidityAlert
	Notified  bool
	NotifyErr error // alert was due but not delivered
	Err       error // snapshot read failed
}

// Engine polls a market at a fixed cadence and alerts when available
// liquidity drops below the threshold.
type Engine struct {
	reader   SnapshotReader
	notifier Notifier
	settings Settings
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.RWMutex
	last *market.Snapshot
}

func NewEngine(reader SnapshotReader, notifier Notifier, s Settings, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		reader:   reader,
		notifier: notifier,
		settings: s,
		logger:   logger,
		now:      time.Now,
	}
}

// Latest returns the most recent successful snapshot, or nil before the
// first one.
func (e *Engine) Latest() *market.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Ready reports whether at least one snapshot has been read.
func (e *Engine) Ready() bool { return e.Latest() != nil }

// Run polls immediately and then once per interval until ctx is done.
// A tick that overruns the interval delays the next one; missed ticks are
// not replayed.
func (e *Engine) Run(ctx context.Context) error {
	if e.settings.Interval <= 0 {
		return errors.New("monitor: interval must be positive")
	}
	e.banner()
	metrics.LiquidityThreshold.WithLabelValues(e.settings.MarketAddress).Set(toFloat(e.settings.Threshold))

	next := e.now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("monitor stopped")
			return nil
		case <-timer.C:
		}

		e.report(e.Tick(ctx))

		next = next.Add(e.settings.Interval)
		wait := next.Sub(e.now())
		if wait < 0 {
			next = e.now()
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Tick performs one poll: read, compare, and alert if needed. Failures are
// returned in the result, never acted on; Run logs them and moves on.
func (e *Engine) Tick(ctx context.Context) TickResult {
	snap, err := e.poll(ctx)
	if err != nil {
		return TickResult{Err: err}
	}
	return e.handle(ctx, snap)
}

// report logs the outcome of a tick.
func (e *Engine) report(res TickResult) {
	switch {
	case res.Err != nil:
		e.logger.Error("failed to fetch market data", "market", e.settings.MarketAddress, "error", res.Err)
	case res.NotifyErr != nil:
		e.logger.Error("failed to send alert", "market", e.settings.MarketAddress, "error", res.NotifyErr)
	case res.Notified:
		e.logger.Info("alert dispatched", "market", e.settings.MarketAddress)
	}
}

func (e *Engine) poll(ctx context.Context) (*market.Snapshot, error) {
	if e.settings.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.settings.ReadTimeout)
		defer cancel()
	}

	label := e.settings.MarketAddress
	start := e.now()
	snap, err := e.reader.Read(ctx, e.settings.Version, e.settings.MarketAddress)
	metrics.PollDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues(label, "error").Inc()
		return nil, err
	}
	metrics.PollTotal.WithLabelValues(label, "success").Inc()
	metrics.PollLastSuccess.WithLabelValues(label).Set(float64(e.now().Unix()))
	metrics.AvailableLiquidity.WithLabelValues(label).Set(toFloat(&snap.AvailableLiquidity))
	metrics.TotalBorrows.WithLabelValues(label).Set(toFloat(&snap.TotalBorrows))
	if snap.Version == compound.V3 {
		metrics.RateAPY.WithLabelValues(label, "supply").Set(snap.SupplyAPY)
		metrics.RateAPY.WithLabelValues(label, "borrow").Set(snap.BorrowAPY)
	}

	e.mu.Lock()
	e.last = snap
	e.mu.Unlock()
	return snap, nil
}

func (e *Engine) handle(ctx context.Context, snap *market.Snapshot) TickResult {
	res := TickResult{Snapshot: snap}
	if !snap.Below(e.settings.Threshold) {
		e.logger.Debug("liquidity above threshold",
			"available_liquidity", snap.AvailableLiquidity.Dec(),
			"threshold", e.settings.Threshold.Dec(),
		)
		return res
	}

	label := e.settings.MarketAddress
	metrics.AlertsTriggeredTotal.WithLabelValues(label).Inc()
	a := alert.New(e.settings.MarketAddress, snap, e.settings.Threshold, e.now())
	res.Alert = &a
	e.logger.Warn("liquidity below threshold",
		"market", e.settings.MarketAddress,
		"available_liquidity", a.AvailableLiquidity,
		"threshold", a.Threshold,
	)

	if !e.settings.Notify {
		metrics.AlertsSuppressedTotal.WithLabelValues(label).Inc()
		e.logger.Info("notifications disabled, alert not sent")
		return res
	}
	if e.notifier == nil {
		metrics.AlertsFailedTotal.WithLabelValues(label).Inc()
		res.NotifyErr = ErrNoNotifier
		return res
	}
	if err := e.notifier.Send(ctx, a); err != nil {
		res.NotifyErr = err
		return res
	}
	res.Notified = true
	return res
}

func (e *Engine) banner() {
	s := e.settings
	name := s.MarketName
	if name == "" {
		name = "-"
	}
	e.logger.Info("starting compound liquidity monitor",
		"version", s.Version.Label(),
		"market", s.MarketAddress,
		"market_name", name,
		"threshold", s.Threshold.Dec(),
		"interval", s.Interval.String(),
		"notifications", s.Notify,
	)
}

// toFloat is a lossy conversion used only for gauges.
func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.ToBig()).Float64()
	return f
}
