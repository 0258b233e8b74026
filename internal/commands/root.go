// Package commands implements the ledgerctl command tree.
package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"fintrack/internal/cli"
	"fintrack/internal/config"
	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

// app carries what subcommands share once the database is open.
type app struct {
	cfg       *config.Config
	repo      *storage.SQLiteRepository
	ledger    *services.LedgerService
	recurring *services.RecurringProcessor
	closers   []func()
}

func (a *app) open(dbPath string) error {
	if dbPath != "" {
		a.cfg.SQLiteDBPath = dbPath
	}
	repo, err := storage.NewSQLiteRepository(a.cfg.SQLiteDBPath)
	if err != nil {
		return err
	}
	a.repo = repo
	a.closers = append(a.closers, func() { repo.Close() })

	alerts, closeAlerts, err := cli.NewAlertTrigger(a.cfg, repo)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closeAlerts)

	a.ledger = services.NewLedgerService(repo, alerts)
	a.recurring = services.NewRecurringProcessor(repo, a.ledger)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewRootCommand creates the root CLI command with all subcommands
// registered. The returned cleanup closes what the command opened and must run
// after Execute whether or not it failed.
func NewRootCommand() (*cobra.Command, func()) {
	a := &app{cfg: config.Load()}
	return newRootCommand(a), a.close
}

func newRootCommand(a *app) *cobra.Command {
	var dbPath string

	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Administer the fintrack ledger",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(dbPath)
		},
	}
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default $SQLITE_DB_PATH)")

	rootCmd.AddCommand(
		newMigrateCommand(a),
		newUserCommand(a),
		newAccountCommand(a),
		newCategoryCommand(a),
		newBudgetCommand(a),
		newTxCommand(a),
		newTransferCommand(a),
		newTemplateCommand(a),
		newRecomputeCommand(a),
		newMaterializeCommand(a),
	)
	return rootCmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.BadRequest("invalid id %q", s)
	}
	return id, nil
}

// optionalID turns a zero flag value into nil.
func optionalID(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func parseAmount(s string) (int64, error) {
	cents, err := core.ParseDecimalToCents(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return cents, nil
}

// parseDateOr parses s, falling back to today when s is empty.
func parseDateOr(s string, today core.Date) (core.Date, error) {
	if s == "" {
		return today, nil
	}
	return core.ParseDate(s)
}
