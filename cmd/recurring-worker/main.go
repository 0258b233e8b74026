package main

import (
	"context"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentRecurring)
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	alerts, closeAlerts := cli.InitAlertTrigger(logger, cfg, repo)
	defer closeAlerts()

	ledger := services.NewLedgerService(repo, alerts)
	processor := services.NewRecurringProcessor(repo, ledger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	run := func(ctx context.Context, now time.Time) {
		asOf := core.DateOf(now)
		count, err := processor.MaterializeDue(ctx, asOf)
		if err != nil {
			logger.Error("Recurring materialization failed", applog.FieldError, err, applog.FieldDate, asOf.String())
			return
		}
		logger.Info("Recurring materialization complete",
			"entries_created", count,
			applog.FieldDate, asOf.String(),
			"next_check", now.Add(cfg.RecurringInterval).Format("15:04:05"))
	}

	// The sweep is idempotent per day, so running on every tick is safe.
	run(ctx, time.Now())

	ticker := time.NewTicker(cfg.RecurringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Recurring-worker shutdown complete")
			return
		case now := <-ticker.C:
			run(ctx, now)
		}
	}
}
