package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "compound_monitor",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Polling metrics ────────────────────────────────────────────────────

var (
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "poll",
		Name:      "total",
		Help:      "Total number of snapshot reads per market.",
	}, []string{"market", "status"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "compound_monitor",
		Subsystem: "poll",
		Name:      "duration_seconds",
		Help:      "Duration of snapshot reads in seconds.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"market"})

	PollLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "poll",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful snapshot read.",
	}, []string{"market"})
)

// ── Market state (lossy float view of 256-bit values) ──────────────────

var (
	AvailableLiquidity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "market",
		Name:      "available_liquidity",
		Help:      "Available liquidity in base units.",
	}, []string{"market"})

	TotalBorrows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "market",
		Name:      "total_borrows",
		Help:      "Total borrows in base units.",
	}, []string{"market"})

	LiquidityThreshold = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "market",
		Name:      "liquidity_threshold",
		Help:      "Configured alert threshold in base units.",
	}, []string{"market"})

	RateAPY = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "compound_monitor",
		Subsystem: "market",
		Name:      "apy_percent",
		Help:      "Annualized supply/borrow rate in percent (V3 markets).",
	}, []string{"market", "side"})
)

// ── Alert delivery metrics ─────────────────────────────────────────────

var (
	AlertsTriggeredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "alerts",
		Name:      "triggered_total",
		Help:      "Polls where liquidity was below threshold.",
	}, []string{"market"})

	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Alerts acknowledged with a 2xx status.",
	}, []string{"market"})

	AlertsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "alerts",
		Name:      "rejected_total",
		Help:      "Alerts delivered but answered with a non-2xx status.",
	}, []string{"market", "status_code"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Alert delivery transport failures.",
	}, []string{"market"})

	AlertsSuppressedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "compound_monitor",
		Subsystem: "alerts",
		Name:      "suppressed_total",
		Help:      "Alerts not sent because notifications are disabled.",
	}, []string{"market"})
)

// ── Transactions ───────────────────────────────────────────────────────

var TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "compound_monitor",
	Subsystem: "tx",
	Name:      "total",
	Help:      "Submitted transactions by operation and outcome.",
}, []string{"operation", "status"})
