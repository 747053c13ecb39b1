package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/web3-frozen/compound-monitor/internal/alert"
	"github.com/web3-frozen/compound-monitor/internal/compound"
	"github.com/web3-frozen/compound-monitor/internal/market"
)

const testMarket = "0xc3d688B66703497DAA19211EEdff47f25384cdc3"

// scriptedReader returns liquidity values (or errors) in order, repeating
// the last entry once the script is exhausted.
type scriptedReader struct {
	mu     sync.Mutex
	script []any
	reads  int
}

func (r *scriptedReader) Read(_ context.Context, v compound.Version, _ string) (*market.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	step := r.script[min(r.reads, len(r.script)-1)]
	r.reads++
	if err, ok := step.(error); ok {
		return nil, err
	}
	snap := &market.Snapshot{Version: v, Symbol: "cUSDCv3"}
	snap.AvailableLiquidity.SetUint64(step.(uint64))
	return snap, nil
}

func (r *scriptedReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alert.LiquidityAlert
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, a alert.LiquidityAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func settings(notify bool) Settings {
	return Settings{
		Version:       compound.V3,
		MarketAddress: testMarket,
		Threshold:     uint256.NewInt(1000),
		Interval:      time.Minute,
		Notify:        notify,
	}
}

func TestTickAlertsBelowThreshold(t *testing.T) {
	n := &recordingNotifier{}
	e := NewEngine(&scriptedReader{script: []any{uint64(999)}}, n, settings(true), slog.Default())

	res := e.Tick(context.Background())
	if res.Err != nil {
		t.Fatalf("Tick error: %v", res.Err)
	}
	if res.Alert == nil || !res.Notified {
		t.Fatalf("expected a dispatched alert, got %+v", res)
	}
	if n.count() != 1 {
		t.Fatalf("notifications = %d, want 1", n.count())
	}
	got := n.alerts[0]
	if got.AvailableLiquidity != "999" || got.Threshold != "1000" || got.MarketAddress != testMarket {
		t.Errorf("alert = %+v", got)
	}
}

func TestTickNoAlertAtOrAboveThreshold(t *testing.T) {
	for _, liquidity := range []uint64{1000, 5000} {
		n := &recordingNotifier{}
		e := NewEngine(&scriptedReader{script: []any{liquidity}}, n, settings(true), slog.Default())

		res := e.Tick(context.Background())
		if res.Alert != nil {
			t.Errorf("liquidity %d: unexpected alert %+v", liquidity, res.Alert)
		}
		if n.count() != 0 {
			t.Errorf("liquidity %d: notifications = %d, want 0", liquidity, n.count())
		}
	}
}

func TestTickNotificationsDisabled(t *testing.T) {
	n := &recordingNotifier{}
	e := NewEngine(&scriptedReader{script: []any{uint64(1)}}, n, settings(false), slog.Default())

	res := e.Tick(context.Background())
	if res.Alert == nil {
		t.Fatal("alert should still be built when notifications are disabled")
	}
	if res.Notified || n.count() != 0 {
		t.Errorf("notifier called %d times with notifications disabled", n.count())
	}
}

func TestTickNotifierFailureIsContained(t *testing.T) {
	n := &recordingNotifier{err: alert.ErrTransport}
	e := NewEngine(&scriptedReader{script: []any{uint64(1)}}, n, settings(true), slog.Default())

	res := e.Tick(context.Background())
	if res.Err != nil {
		t.Errorf("delivery failure leaked into tick error: %v", res.Err)
	}
	if res.Notified {
		t.Error("Notified = true after a transport failure")
	}
	if !errors.Is(res.NotifyErr, alert.ErrTransport) {
		t.Errorf("NotifyErr = %v, want ErrTransport", res.NotifyErr)
	}
}

func TestTickMissingNotifierIsReported(t *testing.T) {
	e := NewEngine(&scriptedReader{script: []any{uint64(1)}}, nil, settings(true), slog.Default())

	res := e.Tick(context.Background())
	if res.Alert == nil {
		t.Fatal("expected an alert below threshold")
	}
	if res.Notified {
		t.Error("Notified = true without a notifier")
	}
	if !errors.Is(res.NotifyErr, ErrNoNotifier) {
		t.Errorf("NotifyErr = %v, want ErrNoNotifier", res.NotifyErr)
	}
}

func TestTickDisabledNotificationsIsNotAnError(t *testing.T) {
	e := NewEngine(&scriptedReader{script: []any{uint64(1)}}, nil, settings(false), slog.Default())

	if res := e.Tick(context.Background()); res.NotifyErr != nil {
		t.Errorf("NotifyErr = %v with notifications disabled", res.NotifyErr)
	}
}

func TestTickReadErrorKeepsLastSnapshot(t *testing.T) {
	readErr := errors.New("rpc unavailable")
	r := &scriptedReader{script: []any{uint64(5000), readErr}}
	e := NewEngine(r, &recordingNotifier{}, settings(true), slog.Default())

	if e.Ready() {
		t.Fatal("Ready before first snapshot")
	}
	e.Tick(context.Background())
	first := e.Latest()
	if first == nil {
		t.Fatal("Latest is nil after a successful tick")
	}

	res := e.Tick(context.Background())
	if !errors.Is(res.Err, readErr) {
		t.Fatalf("Tick error = %v, want %v", res.Err, readErr)
	}
	if e.Latest() != first {
		t.Error("failed tick replaced the last good snapshot")
	}
}

func TestRunContinuesAfterReadErrors(t *testing.T) {
	r := &scriptedReader{script: []any{errors.New("boom"), errors.New("boom"), uint64(10)}}
	n := &recordingNotifier{}
	s := settings(true)
	s.Interval = 5 * time.Millisecond
	var logs bytes.Buffer
	e := NewEngine(r, n, s, slog.New(slog.NewJSONHandler(&logs, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for n.count() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("no alert after %d reads", r.count())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if r.count() < 3 {
		t.Errorf("reads = %d, want at least 3", r.count())
	}
	if got := strings.Count(logs.String(), "failed to fetch market data"); got != 2 {
		t.Errorf("logged %d read failures, want 2", got)
	}
	if !strings.Contains(logs.String(), "alert dispatched") {
		t.Error("dispatched alert not logged")
	}
}

func TestRunPollsImmediately(t *testing.T) {
	r := &scriptedReader{script: []any{uint64(5000)}}
	e := NewEngine(r, nil, settings(true), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for !e.Ready() {
		select {
		case <-deadline:
			cancel()
			t.Fatal("first poll did not happen before the interval elapsed")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	<-done

	if r.count() != 1 {
		t.Errorf("reads = %d, want 1 within a one-minute interval", r.count())
	}
}

func TestRunRejectsZeroInterval(t *testing.T) {
	s := settings(true)
	s.Interval = 0
	if err := NewEngine(&scriptedReader{script: []any{uint64(1)}}, nil, s, slog.Default()).Run(context.Background()); err == nil {
		t.Error("Run with zero interval should fail")
	}
}
