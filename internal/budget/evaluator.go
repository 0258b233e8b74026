// Package budget checks category spending against budget envelopes and
// raises alerts when an envelope is exceeded.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/notify"
)

const AlertBudgetExceeded = "budget_exceeded"

// Store is the read side the evaluator needs.
type Store interface {
	FindBudget(ctx context.Context, userID, categoryID int64, date core.Date) (core.Budget, error)
	SumExpenses(ctx context.Context, userID, categoryID int64, from, to core.Date) (int64, error)
}

// Emitter delivers an alert to a user.
type Emitter interface {
	Emit(ctx context.Context, userID int64, alert notify.Alert) error
}

type envelopeKey struct {
	userID, categoryID int64
	date               string
}

type Evaluator struct {
	store     Store
	emitter   Emitter
	envelopes *cache.LRUCache[envelopeKey, core.Budget] // found envelopes only
	now       func() time.Time
}

func NewEvaluator(store Store, emitter Emitter, cacheSize int, ttl time.Duration) *Evaluator {
	return &Evaluator{
		store:     store,
		emitter:   emitter,
		envelopes: cache.NewLRUCache[envelopeKey, core.Budget](cacheSize, ttl),
		now:       time.Now,
	}
}

// Cache exposes the envelope cache for periodic cleanup.
func (e *Evaluator) Cache() cache.Cleaner {
	return e.envelopes
}

// lookup finds the envelope covering date. Misses are not cached, so an
// envelope created later is seen on the next expense.
func (e *Evaluator) lookup(ctx context.Context, userID, categoryID int64, date core.Date) (core.Budget, bool, error) {
	key := envelopeKey{userID: userID, categoryID: categoryID, date: date.String()}
	if b, ok := e.envelopes.Get(key); ok {
		return b, true, nil
	}

	b, err := e.store.FindBudget(ctx, userID, categoryID, date)
	switch core.KindOf(err) {
	case "":
		e.envelopes.Set(key, b)
		return b, true, nil
	case core.KindNotFound:
		return core.Budget{}, false, nil
	default:
		return core.Budget{}, false, err
	}
}

// Check returns the alert for the envelope covering date, if it is exceeded.
func (e *Evaluator) Check(ctx context.Context, userID, categoryID int64, date core.Date) (*notify.Alert, error) {
	b, found, err := e.lookup(ctx, userID, categoryID, date)
	if err != nil {
		return nil, fmt.Errorf("find budget envelope: %w", err)
	}
	if !found {
		return nil, nil
	}

	spent, err := e.store.SumExpenses(ctx, userID, categoryID, b.Start, b.End)
	if err != nil {
		return nil, err
	}
	if spent <= b.Amount {
		return nil, nil
	}

	spentStr := core.Money{Cents: spent}.String()
	limitStr := core.Money{Cents: b.Amount}.String()
	return &notify.Alert{
		Type:      AlertBudgetExceeded,
		Category:  b.CategoryName,
		Message:   fmt.Sprintf("You have exceeded your %s budget: spent %s of %s", b.CategoryName, spentStr, limitStr),
		Spent:     spentStr,
		Limit:     limitStr,
		Timestamp: e.now(),
	}, nil
}

// ExpenseRecorded evaluates the envelope and emits an alert when exceeded.
func (e *Evaluator) ExpenseRecorded(ctx context.Context, userID, categoryID int64, date core.Date) error {
	alert, err := e.Check(ctx, userID, categoryID, date)
	if err != nil {
		return err
	}
	if alert == nil {
		return nil
	}

	slog.InfoContext(ctx, "Budget envelope exceeded",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldOperation, applog.OpEvaluate,
		applog.FieldUserID, userID,
		applog.FieldCategoryID, categoryID,
		"spent", alert.Spent,
		"limit", alert.Limit)

	if err := e.emitter.Emit(ctx, userID, *alert); err != nil {
		return fmt.Errorf("emit budget alert: %w", err)
	}
	return nil
}
