package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/web3-frozen/compound-monitor/internal/alert"
	"github.com/web3-frozen/compound-monitor/internal/chain"
	"github.com/web3-frozen/compound-monitor/internal/handler"
	"github.com/web3-frozen/compound-monitor/internal/market"
	"github.com/web3-frozen/compound-monitor/internal/middleware"
	"github.com/web3-frozen/compound-monitor/internal/monitor"
)

func (a *app) monitor(ctx context.Context) error {
	if err := a.cfg.ValidateMonitor(); err != nil {
		return err
	}

	client, err := chain.Dial(ctx, a.cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	var notifier monitor.Notifier
	if a.cfg.NotificationsEnabled() {
		notifier = alert.NewWebhook(a.cfg.WebhookURL, a.cfg.WebhookTimeout(), a.logger)
	}

	engine := monitor.NewEngine(
		market.NewReader(client, a.cfg.MarketName, a.logger),
		notifier,
		monitor.Settings{
			Version:       a.settings.Version,
			MarketAddress: a.cfg.MarketAddress,
			MarketName:    a.cfg.MarketName,
			Threshold:     a.settings.Threshold,
			Interval:      a.cfg.PollInterval(),
			ReadTimeout:   a.cfg.RPCTimeout(),
			Notify:        a.cfg.NotificationsEnabled(),
		},
		a.logger,
	)

	r := chi.NewRouter()
	r.Use(middleware.Recover(a.logger))
	r.Use(middleware.Logger(a.logger))
	r.Use(middleware.Metrics())

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(engine))
	r.Get("/api/snapshot", handler.Snapshot(engine, a.settings.Threshold))

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", a.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- engine.Run(loopCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case err := <-srvErr:
		a.logger.Error("server failed", "error", err)
		runErr = err
	}
	cancel()
	if err := <-loopDone; err != nil && runErr == nil {
		runErr = err
	}

	shutdown(srv, 30*time.Second, a.logger)
	return runErr
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown drains the ops server, logging when connections are cut short.
func shutdown(srv shutdowner, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}
}
