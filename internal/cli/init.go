// Package cli holds the start-up steps shared by the binaries under cmd/.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/budget"
	"fintrack/internal/config"
	applog "fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger installs the default logger from LOG_LEVEL and LOG_FORMAT.
func SetupLogger(component string) *applog.Logger {
	level, err := applog.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := applog.New(applog.Config{
		Level:     level,
		Format:    os.Getenv("LOG_FORMAT"),
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	if err != nil {
		logger.Warn("Falling back to info level", applog.FieldError, err)
	}
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens and migrates the ledger database or exits.
func InitSQLite(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// InitAMQP connects to the broker or exits.
func InitAMQP(logger *applog.Logger, cfg *config.Config) *amqp.Client {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", applog.FieldError, err)
		os.Exit(1)
	}
	return client
}

// NewAlertTrigger picks where committed expense writes are reported: the
// broker when AMQP is configured, otherwise an inline budget evaluator that
// logs alerts. The returned cleanup releases whatever was opened.
func NewAlertTrigger(cfg *config.Config, repo *storage.SQLiteRepository) (services.AlertTrigger, func(), error) {
	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to AMQP: %w", err)
		}
		return client, func() { client.Close() }, nil
	}
	ev := budget.NewEvaluator(repo, notify.LogEmitter{}, cfg.BudgetCacheSize, cfg.BudgetCacheTTL)
	return ev, func() {}, nil
}

// InitAlertTrigger is NewAlertTrigger for long-running workers: it logs the
// choice and exits on failure.
func InitAlertTrigger(logger *applog.Logger, cfg *config.Config, repo *storage.SQLiteRepository) (services.AlertTrigger, func()) {
	alerts, cleanup, err := NewAlertTrigger(cfg, repo)
	if err != nil {
		logger.Error("Failed to initialize alert trigger", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPEnabled() {
		logger.Info("Budget alerts published to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, evaluating budgets inline")
	}
	return alerts, cleanup
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs after cancellation and must finish within timeout.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
