package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// RecurringProcessor owns recurring templates and turns due templates into
// ledger entries.
type RecurringProcessor struct {
	storage *storage.SQLiteRepository
	ledger  *LedgerService

	// serializes sweeps; each template still commits on its own
	mu sync.Mutex
}

func NewRecurringProcessor(storage *storage.SQLiteRepository, ledger *LedgerService) *RecurringProcessor {
	return &RecurringProcessor{
		storage: storage,
		ledger:  ledger,
	}
}

// TemplateParams describes a standalone recurring template.
type TemplateParams struct {
	AccountID   int64
	ToAccountID *int64
	CategoryID  *int64
	Type        core.EntryType
	Amount      int64
	StartDate   core.Date
	EndDate     core.Date
	Frequency   core.Frequency
	Interval    int
	AnchorDay   int
	Note        string
	Description string
}

// CreateTemplate validates and stores a template. Balances are not touched.
func (p *RecurringProcessor) CreateTemplate(ctx context.Context, userID int64, tp TemplateParams) (core.RecurringTemplate, error) {
	interval := tp.Interval
	if interval == 0 {
		interval = 1
	}
	rt := core.RecurringTemplate{
		UserID:      userID,
		AccountID:   tp.AccountID,
		ToAccountID: tp.ToAccountID,
		CategoryID:  tp.CategoryID,
		Type:        tp.Type,
		Amount:      tp.Amount,
		StartDate:   tp.StartDate,
		EndDate:     tp.EndDate,
		Frequency:   tp.Frequency,
		Interval:    interval,
		AnchorDay:   tp.AnchorDay,
		Note:        tp.Note,
		Description: tp.Description,
	}
	if err := rt.Validate(); err != nil {
		return core.RecurringTemplate{}, err
	}

	err := p.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, userID, rt.AccountID); err != nil {
			return err
		}
		if rt.ToAccountID != nil {
			if _, err := ownedAccount(ctx, tx, userID, *rt.ToAccountID); err != nil {
				return err
			}
		}
		if err := ownedCategory(ctx, tx, userID, rt.CategoryID); err != nil {
			return err
		}
		var err error
		rt, err = tx.InsertTemplate(ctx, rt)
		return err
	})
	if err != nil {
		return core.RecurringTemplate{}, core.Normalize("create recurring template", err)
	}

	slog.InfoContext(ctx, "Recurring template created",
		applog.FieldComponent, applog.ComponentRecurring,
		applog.FieldOperation, applog.OpCreate,
		applog.FieldTemplateID, rt.ID,
		applog.FieldUserID, userID,
		"frequency", rt.Frequency,
		"anchor_day", rt.EffectiveAnchorDay())
	return rt, nil
}

// DeleteTemplate removes a template. Entries it already generated stay.
func (p *RecurringProcessor) DeleteTemplate(ctx context.Context, userID, id int64) error {
	err := p.storage.WithTx(ctx, func(tx *storage.Tx) error {
		rt, err := tx.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if rt.UserID != userID {
			return core.Forbidden("recurring template %d does not belong to user %d", id, userID)
		}
		return tx.DeleteTemplate(ctx, id)
	})
	if err != nil {
		return core.Normalize("delete recurring template", err)
	}

	slog.InfoContext(ctx, "Recurring template deleted",
		applog.FieldComponent, applog.ComponentRecurring,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldTemplateID, id,
		applog.FieldUserID, userID)
	return nil
}

// MaterializeDue generates the entries of every template due on asOf and
// returns how many were created. A failing template is logged and skipped.
func (p *RecurringProcessor) MaterializeDue(ctx context.Context, asOf core.Date) (int, error) {
	if p.storage == nil || p.ledger == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	templates, err := p.storage.ListActiveTemplates(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to list active templates: %w", err)
	}

	slog.InfoContext(ctx, "Materializing recurring templates",
		applog.FieldComponent, applog.ComponentRecurring,
		"total_active", len(templates),
		applog.FieldDate, asOf.String())

	created := 0
	for _, rt := range templates {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		checker, err := GetDuenessChecker(rt.Frequency)
		if err != nil {
			slog.ErrorContext(ctx, "Unsupported template frequency",
				applog.FieldTemplateID, rt.ID,
				applog.FieldError, err)
			continue
		}
		if !checker.IsDue(rt, asOf) {
			continue
		}

		entry, ok, err := p.materialize(ctx, rt, asOf)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring template",
				applog.FieldComponent, applog.ComponentRecurring,
				applog.FieldTemplateID, rt.ID,
				applog.FieldUserID, rt.UserID,
				applog.FieldErrorKind, core.KindOf(err),
				applog.FieldError, err)
			continue
		}
		if !ok {
			slog.DebugContext(ctx, "Template already materialized",
				applog.FieldTemplateID, rt.ID,
				applog.FieldDate, asOf.String())
			continue
		}

		created++
		slog.InfoContext(ctx, "Created entry from recurring template",
			applog.FieldTemplateID, rt.ID,
			applog.FieldTransactionID, entry.ID,
			applog.FieldAmountCents, entry.Amount,
			"type", entry.Type)
		p.ledger.raiseAlerts(ctx, alertFor(entry))
	}

	slog.InfoContext(ctx, "Recurring materialization complete",
		applog.FieldComponent, applog.ComponentRecurring,
		"created", created,
		"total_checked", len(templates))
	return created, nil
}

// materialize writes one template's entry for asOf in its own scope. ok is
// false when the entry already exists.
func (p *RecurringProcessor) materialize(ctx context.Context, rt core.RecurringTemplate, asOf core.Date) (entry core.Transaction, ok bool, err error) {
	err = p.storage.WithTx(ctx, func(tx *storage.Tx) error {
		done, err := tx.HasGeneratedFor(ctx, rt.ID, asOf)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if rt.Type == core.Transfer {
			if rt.ToAccountID == nil {
				return core.BadRequest("transfer template %d has no destination account", rt.ID)
			}
			res, err := createTransfer(ctx, tx, TransferParams{
				UserID:        rt.UserID,
				Amount:        rt.Amount,
				FromAccountID: rt.AccountID,
				ToAccountID:   *rt.ToAccountID,
				Date:          asOf,
				Note:          rt.Note,
				Description:   rt.Description,
			}, &rt.ID)
			if err != nil {
				return err
			}
			entry, ok = res.Outgoing, true
			return nil
		}

		entry, err = p.ledger.createEntry(ctx, tx, CreateTransactionParams{
			UserID:      rt.UserID,
			AccountID:   rt.AccountID,
			Type:        rt.Type,
			Amount:      rt.Amount,
			Date:        asOf,
			CategoryID:  rt.CategoryID,
			Note:        rt.Note,
			Description: rt.Description,
		}, &rt.ID)
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return core.Transaction{}, false, core.Normalize("materialize template", err)
	}
	return entry, ok, nil
}
