package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/budget"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/notify"
	"fintrack/internal/worker"
)

const (
	dedupSize     = 4096
	dedupTTL      = time.Hour
	sweepInterval = time.Minute
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting alert-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("alert-worker needs AMQP_URL; without it budgets are evaluated inline by the writers")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	client := cli.InitAMQP(logger, cfg)
	defer client.Close()

	hub := notify.NewHub()
	evaluator := budget.NewEvaluator(repo, hub, cfg.BudgetCacheSize, cfg.BudgetCacheTTL)
	alertWorker := worker.NewAlertWorker(evaluator, dedupSize, dedupTTL)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.AlertRateLimit})

	caches := cache.NewManager()
	caches.Register(evaluator.Cache())
	caches.Register(alertWorker.Seen())
	caches.Register(limiter.Clients())

	mux := http.NewServeMux()
	mux.Handle("/alerts", limiter.Middleware(hub))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := &http.Server{
		Addr:              cfg.AlertListenAddr,
		Handler:           applog.AccessLog(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		hub.Close()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.ConsumeLedgerMutated(gctx, alertWorker.HandleLedgerMutated)
	})

	g.Go(func() error {
		logger.Info("Alert endpoint listening", "addr", cfg.AlertListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return caches.Run(gctx, sweepInterval)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("alert-worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Alert-worker shutdown complete")
}
