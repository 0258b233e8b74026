// Package services holds the ledger core: balance recomputation, single-entry
// and transfer writes, and recurring materialization.
//
// Every write runs in one storage scope that ends by recomputing the touched
// accounts. Budget alerts are raised only after that scope commits.
package services

import (
	"context"
	"log/slog"
	"time"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// AlertTrigger is told about expense writes after they commit. Its failures
// never undo the write.
type AlertTrigger interface {
	ExpenseRecorded(ctx context.Context, userID, categoryID int64, date core.Date) error
}

// LedgerService owns every write to the ledger entry log.
type LedgerService struct {
	storage *storage.SQLiteRepository
	alerts  AlertTrigger
	now     func() time.Time
}

func NewLedgerService(storage *storage.SQLiteRepository, alerts AlertTrigger) *LedgerService {
	return &LedgerService{
		storage: storage,
		alerts:  alerts,
		now:     time.Now,
	}
}

// RecurringParams turns a write into the source of a recurring template.
type RecurringParams struct {
	Frequency core.Frequency
	Interval  int
	AnchorDay int
	EndDate   core.Date
}

type CreateTransactionParams struct {
	UserID      int64
	AccountID   int64
	Type        core.EntryType
	Amount      int64
	Date        core.Date
	CategoryID  *int64
	Note        string
	Description string
	Recurring   *RecurringParams
}

// UpdateTransactionParams is a patch; nil fields keep their current value.
type UpdateTransactionParams struct {
	UserID        int64
	ID            int64
	Type          *core.EntryType
	Amount        *int64
	Date          *core.Date
	AccountID     *int64
	CategoryID    *int64
	ClearCategory bool
	Note          *string
	Description   *string
}

type expenseAlert struct {
	userID     int64
	categoryID int64
	date       core.Date
}

func alertFor(t core.Transaction) []expenseAlert {
	if t.Type != core.Expense || t.CategoryID == nil {
		return nil
	}
	return []expenseAlert{{userID: t.UserID, categoryID: *t.CategoryID, date: t.Date}}
}

// raiseAlerts runs after commit; errors are logged and swallowed.
func (s *LedgerService) raiseAlerts(ctx context.Context, alerts []expenseAlert) {
	if s.alerts == nil {
		return
	}
	for _, a := range alerts {
		if err := s.alerts.ExpenseRecorded(ctx, a.userID, a.categoryID, a.date); err != nil {
			slog.WarnContext(ctx, "Budget alert trigger failed",
				applog.FieldComponent, applog.ComponentLedger,
				applog.FieldUserID, a.userID,
				applog.FieldCategoryID, a.categoryID,
				applog.FieldDate, a.date.String(),
				applog.FieldError, err)
		}
	}
}

func requireUser(ctx context.Context, tx *storage.Tx, userID int64) error {
	ok, err := tx.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return core.NotFound("user %d not found", userID)
	}
	return nil
}

func ownedAccount(ctx context.Context, tx *storage.Tx, userID, accountID int64) (core.Account, error) {
	acct, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	if acct.UserID != userID {
		return core.Account{}, core.Forbidden("account %d does not belong to user %d", accountID, userID)
	}
	return acct, nil
}

func ownedCategory(ctx context.Context, tx *storage.Tx, userID int64, categoryID *int64) error {
	if categoryID == nil {
		return nil
	}
	cat, err := tx.GetCategory(ctx, *categoryID)
	if err != nil {
		return err
	}
	if cat.UserID != userID {
		return core.Forbidden("category %d does not belong to user %d", *categoryID, userID)
	}
	return nil
}

// ownedEntry loads a live entry belonging to userID.
func ownedEntry(ctx context.Context, tx *storage.Tx, userID, id int64) (core.Transaction, error) {
	t, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return core.Transaction{}, err
	}
	if t.UserID != userID {
		return core.Transaction{}, core.Forbidden("transaction %d does not belong to user %d", id, userID)
	}
	if !t.Live() {
		return core.Transaction{}, core.NotFound("transaction %d not found", id)
	}
	return t, nil
}

func templateFrom(t core.Transaction, rp RecurringParams) core.RecurringTemplate {
	interval := rp.Interval
	if interval == 0 {
		interval = 1
	}
	return core.RecurringTemplate{
		UserID:              t.UserID,
		AccountID:           t.AccountID,
		ToAccountID:         t.ToAccountID,
		CategoryID:          t.CategoryID,
		SourceTransactionID: &t.ID,
		Type:                t.Type,
		Amount:              t.Amount,
		StartDate:           t.Date,
		EndDate:             rp.EndDate,
		Frequency:           rp.Frequency,
		Interval:            interval,
		AnchorDay:           rp.AnchorDay,
		Note:                t.Note,
		Description:         t.Description,
	}
}

// attachTemplate creates or refreshes the template sourced by t and links t to it.
func attachTemplate(ctx context.Context, tx *storage.Tx, t *core.Transaction, rp RecurringParams) error {
	rt := templateFrom(*t, rp)
	if err := rt.Validate(); err != nil {
		return err
	}

	existing, err := tx.FindTemplateBySource(ctx, t.ID)
	switch {
	case err == nil:
		rt.ID = existing.ID
		if err := tx.UpdateTemplate(ctx, rt); err != nil {
			return err
		}
	case core.KindOf(err) == core.KindNotFound:
		if rt, err = tx.InsertTemplate(ctx, rt); err != nil {
			return err
		}
	default:
		return err
	}

	t.RecurringTemplateID = &rt.ID
	return tx.SetTransactionTemplate(ctx, t.ID, &rt.ID)
}

// detachTemplate removes the template sourced by t, if any.
func detachTemplate(ctx context.Context, tx *storage.Tx, t *core.Transaction) error {
	existing, err := tx.FindTemplateBySource(ctx, t.ID)
	if core.KindOf(err) == core.KindNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if err := tx.DeleteTemplate(ctx, existing.ID); err != nil {
		return err
	}
	if core.SameID(t.RecurringTemplateID, &existing.ID) {
		t.RecurringTemplateID = nil
		return tx.SetTransactionTemplate(ctx, t.ID, nil)
	}
	return nil
}

// createEntry inserts a single-account entry inside tx.
func (s *LedgerService) createEntry(ctx context.Context, tx *storage.Tx, p CreateTransactionParams, templateID *int64) (core.Transaction, error) {
	if p.Type != core.Income && p.Type != core.Expense {
		return core.Transaction{}, core.BadRequest("entry type must be income or expense, got %q", p.Type)
	}
	entry := core.Transaction{
		UserID:              p.UserID,
		Type:                p.Type,
		Amount:              p.Amount,
		Date:                p.Date,
		AccountID:           p.AccountID,
		CategoryID:          p.CategoryID,
		RecurringTemplateID: templateID,
		Note:                p.Note,
		Description:         p.Description,
	}
	if err := entry.Validate(); err != nil {
		return core.Transaction{}, err
	}

	if err := requireUser(ctx, tx, p.UserID); err != nil {
		return core.Transaction{}, err
	}
	if _, err := ownedAccount(ctx, tx, p.UserID, p.AccountID); err != nil {
		return core.Transaction{}, err
	}
	if err := ownedCategory(ctx, tx, p.UserID, p.CategoryID); err != nil {
		return core.Transaction{}, err
	}

	entry, err := tx.InsertTransaction(ctx, entry)
	if err != nil {
		return core.Transaction{}, err
	}
	if err := recompute(ctx, tx, entry.AccountID); err != nil {
		return core.Transaction{}, err
	}
	return entry, nil
}

// CreateTransaction records an income or expense entry.
func (s *LedgerService) CreateTransaction(ctx context.Context, p CreateTransactionParams) (core.Transaction, error) {
	var entry core.Transaction
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if entry, err = s.createEntry(ctx, tx, p, nil); err != nil {
			return err
		}
		if p.Recurring != nil {
			return attachTemplate(ctx, tx, &entry, *p.Recurring)
		}
		return nil
	})
	if err != nil {
		return core.Transaction{}, core.Normalize("create transaction", err)
	}

	slog.InfoContext(ctx, "Transaction created", applog.NewFields().
		WithComponent(applog.ComponentLedger).
		WithOperation(applog.OpCreate).
		WithEntry(entry.ID, entry.UserID, entry.AccountID, entry.Amount).ToSlice()...)

	s.raiseAlerts(ctx, alertFor(entry))
	return entry, nil
}

// CreateOpeningBalance records the seed entry of an account. Opening entries
// are kept for reporting and never enter balance recomputation.
func (s *LedgerService) CreateOpeningBalance(ctx context.Context, userID, accountID, amount int64, date core.Date) (core.Transaction, error) {
	var entry core.Transaction
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if err := requireUser(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := ownedAccount(ctx, tx, userID, accountID); err != nil {
			return err
		}
		entry = core.Transaction{
			UserID:      userID,
			Type:        core.Income,
			Amount:      amount,
			Date:        date,
			AccountID:   accountID,
			IsOpening:   true,
			Description: "Opening balance",
		}
		if err := entry.Validate(); err != nil {
			return err
		}
		var err error
		entry, err = tx.InsertTransaction(ctx, entry)
		return err
	})
	if err != nil {
		return core.Transaction{}, core.Normalize("create opening balance", err)
	}
	return entry, nil
}

// UpdateTransaction patches a single-account entry and recomputes both the
// previous and the new owning account.
func (s *LedgerService) UpdateTransaction(ctx context.Context, p UpdateTransactionParams) (core.Transaction, error) {
	var before, after core.Transaction
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if before, err = ownedEntry(ctx, tx, p.UserID, p.ID); err != nil {
			return err
		}
		if before.IsOpening {
			return core.ErrOpeningEntry
		}
		if before.Type == core.Transfer {
			return core.BadRequest("transaction %d is a transfer leg; update the transfer instead", p.ID)
		}

		after = before
		if p.Type != nil {
			after.Type = *p.Type
		}
		if after.Type != core.Income && after.Type != core.Expense {
			return core.BadRequest("entry type must be income or expense, got %q", after.Type)
		}
		if p.Amount != nil {
			after.Amount = *p.Amount
		}
		if p.Date != nil {
			after.Date = *p.Date
		}
		if p.AccountID != nil {
			after.AccountID = *p.AccountID
		}
		if p.ClearCategory {
			after.CategoryID = nil
		} else if p.CategoryID != nil {
			after.CategoryID = p.CategoryID
		}
		if p.Note != nil {
			after.Note = *p.Note
		}
		if p.Description != nil {
			after.Description = *p.Description
		}
		if err := after.Validate(); err != nil {
			return err
		}

		if after.AccountID != before.AccountID {
			if _, err := ownedAccount(ctx, tx, p.UserID, after.AccountID); err != nil {
				return err
			}
		}
		if !core.SameID(after.CategoryID, before.CategoryID) {
			if err := ownedCategory(ctx, tx, p.UserID, after.CategoryID); err != nil {
				return err
			}
		}

		if err := tx.UpdateTransaction(ctx, after); err != nil {
			return err
		}

		if rt, err := tx.FindTemplateBySource(ctx, after.ID); err == nil {
			rt.AccountID = after.AccountID
			rt.CategoryID = after.CategoryID
			rt.Type = after.Type
			rt.Amount = after.Amount
			rt.Note = after.Note
			rt.Description = after.Description
			if err := tx.UpdateTemplate(ctx, rt); err != nil {
				return err
			}
		} else if core.KindOf(err) != core.KindNotFound {
			return err
		}

		return recompute(ctx, tx, before.AccountID, after.AccountID)
	})
	if err != nil {
		return core.Transaction{}, core.Normalize("update transaction", err)
	}

	slog.InfoContext(ctx, "Transaction updated", applog.NewFields().
		WithComponent(applog.ComponentLedger).
		WithOperation(applog.OpUpdate).
		WithEntry(after.ID, after.UserID, after.AccountID, after.Amount).ToSlice()...)

	if raisesExpense(before, after) {
		s.raiseAlerts(ctx, alertFor(after))
	}
	return after, nil
}

// raisesExpense reports whether the update created or grew an expense in a category.
func raisesExpense(before, after core.Transaction) bool {
	if after.Type != core.Expense || after.CategoryID == nil {
		return false
	}
	return before.Type != core.Expense ||
		!core.SameID(before.CategoryID, after.CategoryID) ||
		after.Amount > before.Amount ||
		!before.Date.Equal(after.Date)
}

// DeleteTransaction soft-deletes a single-account entry and the template it
// is the source of.
func (s *LedgerService) DeleteTransaction(ctx context.Context, userID, id int64) error {
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		entry, err := ownedEntry(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if entry.IsOpening {
			return core.ErrOpeningEntry
		}
		if entry.Type == core.Transfer {
			return core.BadRequest("transaction %d is a transfer leg; delete the transfer instead", id)
		}
		if err := tx.SoftDeleteTransactions(ctx, s.now(), entry.ID); err != nil {
			return err
		}
		if err := detachTemplate(ctx, tx, &entry); err != nil {
			return err
		}
		return recompute(ctx, tx, entry.AccountID)
	})
	if err != nil {
		return core.Normalize("delete transaction", err)
	}

	slog.InfoContext(ctx, "Transaction deleted",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldTransactionID, id,
		applog.FieldUserID, userID)
	return nil
}
