package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
)

// ExpenseEvaluator is the budget check the worker feeds.
type ExpenseEvaluator interface {
	ExpenseRecorded(ctx context.Context, userID, categoryID int64, date core.Date) error
}

// AlertWorker turns consumed ledger mutations into budget evaluations.
// Deliveries are at-least-once, so recently handled event ids are skipped.
type AlertWorker struct {
	evaluator ExpenseEvaluator
	seen      *cache.LRUCache[string, struct{}]
}

func NewAlertWorker(evaluator ExpenseEvaluator, dedupSize int, dedupTTL time.Duration) *AlertWorker {
	return &AlertWorker{
		evaluator: evaluator,
		seen:      cache.NewLRUCache[string, struct{}](dedupSize, dedupTTL),
	}
}

// Seen exposes the dedup cache for periodic cleanup.
func (w *AlertWorker) Seen() cache.Cleaner {
	return w.seen
}

// HandleLedgerMutated processes one message. A returned error asks the
// consumer to redeliver.
func (w *AlertWorker) HandleLedgerMutated(ctx context.Context, msg *amqp.LedgerMutatedMessage) error {
	if _, dup := w.seen.Get(msg.EventID); dup {
		slog.DebugContext(ctx, "Skipping duplicate event", applog.FieldEventID, msg.EventID)
		return nil
	}

	if msg.Kind != amqp.KindExpenseRecorded {
		slog.WarnContext(ctx, "Ignoring unknown ledger event",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldEventID, msg.EventID,
			"kind", msg.Kind)
		return nil
	}

	date, err := msg.EntryDate()
	if err != nil {
		return fmt.Errorf("event %s: %w", msg.EventID, err)
	}

	slog.InfoContext(ctx, "Evaluating budget",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpConsume,
		applog.FieldEventID, msg.EventID,
		applog.FieldUserID, msg.UserID,
		applog.FieldCategoryID, msg.CategoryID,
		applog.FieldDate, msg.Date)

	if err := w.evaluator.ExpenseRecorded(ctx, msg.UserID, msg.CategoryID, date); err != nil {
		return fmt.Errorf("evaluate budget for event %s: %w", msg.EventID, err)
	}
	w.seen.Set(msg.EventID, struct{}{})
	return nil
}
