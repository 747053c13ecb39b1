package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/web3-frozen/compound-monitor/internal/metrics"
)

// ErrTransport marks network-level delivery failures. Non-2xx responses are
// not transport failures.
var ErrTransport = errors.New("alert transport failed")

// Webhook posts alerts as JSON to a single endpoint, at most once per call.
type Webhook struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) *Webhook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Send delivers the alert. Only a failed request (connection error,
// timeout) returns an error; a non-success status is logged and dropped.
func (w *Webhook) Send(ctx context.Context, a LiquidityAlert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-Id", uuid.NewString())

	w.logger.Info("sending alert to webhook", "url", w.url, "market", a.MarketSymbol)
	resp, err := w.client.Do(req)
	if err != nil {
		metrics.AlertsFailedTotal.WithLabelValues(a.MarketAddress).Inc()
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.AlertsRejectedTotal.WithLabelValues(a.MarketAddress, fmt.Sprint(resp.StatusCode)).Inc()
		w.logger.Warn("alert sent but received non-success status", "status", resp.StatusCode)
		return nil
	}
	metrics.AlertsSentTotal.WithLabelValues(a.MarketAddress).Inc()
	w.logger.Info("alert sent successfully")
	return nil
}
