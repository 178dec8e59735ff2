package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goliatone/go-accounts/adapters/gocommand"
	"github.com/goliatone/go-accounts/adapters/gologger"
	logrusadapter "github.com/goliatone/go-accounts/adapters/logrus"
	accountscommand "github.com/goliatone/go-accounts/command"
	"github.com/goliatone/go-accounts/core"
	gocmd "github.com/goliatone/go-command"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", os.Getenv("ACCOUNTS_CONFIG"), "path to the accountsd TOML config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "accountsd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := LoadDaemonConfig(configPath)
	if err != nil {
		return err
	}

	root := logrusadapter.New(logrusadapter.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	provider, logger := gologger.Resolve(gologger.ServiceLoggerName, logrusadapter.NewProvider(root), nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := buildRuntime(ctx, cfg, configPath, provider, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error("shutdown failed", "error", closeErr.Error())
		}
	}()

	bus := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	subscriptions, err := gocommand.RegisterAccountHandlers(bus, rt.service, rt.factory.ActivityStore())
	if err != nil {
		return fmt.Errorf("register handlers: %w", err)
	}
	defer func() {
		for _, subscription := range subscriptions {
			subscription.Unsubscribe()
		}
	}()
	if err := bus.Initialize(); err != nil {
		return fmt.Errorf("initialize command registry: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err.Error())
			stop()
		}
	}()

	logger.Info("accountsd started", "metrics_addr", cfg.Metrics.Addr, "dispatch_interval", cfg.Dispatch.Interval.String())
	dispatchLoop(ctx, logger, cfg.Dispatch)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// dispatchLoop drains the lifecycle outbox through the command bus until ctx
// is cancelled.
func dispatchLoop(ctx context.Context, logger glog.Logger, cfg DispatchConfig) {
	interval := cfg.Interval.Duration
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := gocommand.DispatchWithResult[accountscommand.DispatchOutboxMessage, core.DispatchStats](
				ctx,
				accountscommand.DispatchOutboxMessage{BatchSize: cfg.BatchSize},
			)
			if err != nil {
				logger.Error("outbox dispatch failed", "error", err.Error(), "error_kind", string(core.ErrorKindOf(err)))
				continue
			}
			if stats.Claimed > 0 {
				logger.Debug("outbox dispatched",
					"claimed", stats.Claimed,
					"delivered", stats.Delivered,
					"retried", stats.Retried,
					"failed", stats.Failed,
				)
			}
		}
	}
}
