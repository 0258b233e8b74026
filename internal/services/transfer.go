package services

import (
	"context"
	"log/slog"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

type TransferParams struct {
	UserID        int64
	Amount        int64
	FromAccountID int64
	ToAccountID   int64
	Date          core.Date
	Note          string
	Description   string
	Recurring     *RecurringParams
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Outgoing core.Transaction
	Incoming core.Transaction
}

// TransferPatch changes an existing transfer. Nil fields keep their value.
// A nil Recurring removes any template tied to the transfer.
type TransferPatch struct {
	Amount        *int64
	FromAccountID *int64
	ToAccountID   *int64
	Date          *core.Date
	Note          *string
	Description   *string
	Recurring     *RecurringParams
}

// checkPair validates a transfer's account pair and returns the source account.
func checkPair(ctx context.Context, tx *storage.Tx, userID, from, to int64) (core.Account, error) {
	if from == to {
		return core.Account{}, core.ErrSameAccount
	}
	src, err := ownedAccount(ctx, tx, userID, from)
	if err != nil {
		return core.Account{}, err
	}
	if _, err := ownedAccount(ctx, tx, userID, to); err != nil {
		return core.Account{}, err
	}
	return src, nil
}

// checkFunds rejects a debit that would take a funded account below zero.
// credit is added back to the source's current balance before comparing.
func checkFunds(ctx context.Context, tx *storage.Tx, src core.Account, credit, amount int64) error {
	if !src.Type.RequiresFunds() {
		return nil
	}
	balance, err := liveBalance(ctx, tx, src.ID)
	if err != nil {
		return err
	}
	if balance+credit < amount {
		return core.BadRequest("insufficient funds in account %d: available %d, requested %d",
			src.ID, balance+credit, amount).Wrap(core.ErrInsufficientFund)
	}
	return nil
}

// insertIncoming creates the incoming leg for out and links both legs.
func insertIncoming(ctx context.Context, tx *storage.Tx, out *core.Transaction) (core.Transaction, error) {
	in, err := tx.InsertTransaction(ctx, core.Transaction{
		UserID:           out.UserID,
		Type:             core.Transfer,
		Amount:           out.Amount,
		Date:             out.Date,
		AccountID:        *out.ToAccountID,
		LinkedTransferID: &out.ID,
		Note:             out.Note,
		Description:      out.Description,
	})
	if err != nil {
		return core.Transaction{}, err
	}
	if err := tx.SetLinkedTransfer(ctx, out.ID, in.ID); err != nil {
		return core.Transaction{}, err
	}
	out.LinkedTransferID = &in.ID
	return in, nil
}

// createTransfer writes both legs inside tx. Only the outgoing leg carries
// templateID.
func createTransfer(ctx context.Context, tx *storage.Tx, p TransferParams, templateID *int64) (TransferResult, error) {
	out := core.Transaction{
		UserID:              p.UserID,
		Type:                core.Transfer,
		Amount:              p.Amount,
		Date:                p.Date,
		AccountID:           p.FromAccountID,
		ToAccountID:         &p.ToAccountID,
		RecurringTemplateID: templateID,
		Note:                p.Note,
		Description:         p.Description,
	}
	if err := out.Validate(); err != nil {
		return TransferResult{}, err
	}
	if err := requireUser(ctx, tx, p.UserID); err != nil {
		return TransferResult{}, err
	}
	src, err := checkPair(ctx, tx, p.UserID, p.FromAccountID, p.ToAccountID)
	if err != nil {
		return TransferResult{}, err
	}
	if err := checkFunds(ctx, tx, src, 0, p.Amount); err != nil {
		return TransferResult{}, err
	}

	if out, err = tx.InsertTransaction(ctx, out); err != nil {
		return TransferResult{}, err
	}
	in, err := insertIncoming(ctx, tx, &out)
	if err != nil {
		return TransferResult{}, err
	}
	if err := recompute(ctx, tx, p.FromAccountID, p.ToAccountID); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{Outgoing: out, Incoming: in}, nil
}

// CreateTransfer moves amount between two accounts of the same user.
func (s *LedgerService) CreateTransfer(ctx context.Context, p TransferParams) (TransferResult, error) {
	var res TransferResult
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if res, err = createTransfer(ctx, tx, p, nil); err != nil {
			return err
		}
		if p.Recurring != nil {
			return attachTemplate(ctx, tx, &res.Outgoing, *p.Recurring)
		}
		return nil
	})
	if err != nil {
		return TransferResult{}, core.Normalize("create transfer", err)
	}

	slog.InfoContext(ctx, "Transfer created",
		applog.FieldComponent, applog.ComponentTransfer,
		applog.FieldOperation, applog.OpCreate,
		applog.FieldTransactionID, res.Outgoing.ID,
		applog.FieldUserID, p.UserID,
		applog.FieldAccountID, p.FromAccountID,
		applog.FieldToAccountID, p.ToAccountID,
		applog.FieldAmountCents, p.Amount)
	return res, nil
}

// loadTransfer returns the live legs of the transfer containing leg id.
// Either leg's id is accepted.
func loadTransfer(ctx context.Context, tx *storage.Tx, userID, id int64) (out, in core.Transaction, err error) {
	leg, err := ownedEntry(ctx, tx, userID, id)
	if err != nil {
		return out, in, err
	}
	view := leg.Leg()
	switch view.Kind {
	case core.SingleEntry:
		return out, in, core.BadRequest("transaction %d is not a transfer", id)
	case core.TransferIn:
		in = leg
		if view.PairID == 0 {
			return out, in, core.Conflict("incoming leg %d has no outgoing leg", id)
		}
		if out, err = tx.GetTransaction(ctx, view.PairID); err != nil {
			return out, in, err
		}
	default:
		out = leg
		if view.PairID == 0 {
			return out, in, core.Conflict("transfer %d has no incoming leg", id)
		}
		if in, err = tx.GetTransaction(ctx, view.PairID); err != nil {
			return out, in, err
		}
	}

	if !out.Live() || !in.Live() || out.Type != core.Transfer || in.Type != core.Transfer {
		return out, in, core.Conflict("transfer legs %d and %d are not both live", out.ID, in.ID)
	}
	if !core.SameID(in.LinkedTransferID, &out.ID) {
		return out, in, core.Conflict("transfer legs %d and %d are not linked", out.ID, in.ID)
	}
	return out, in, nil
}

// UpdateTransfer patches a transfer. The incoming leg is replaced and the
// outgoing leg is updated in place.
func (s *LedgerService) UpdateTransfer(ctx context.Context, userID, id int64, patch TransferPatch) (TransferResult, error) {
	var res TransferResult
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		before, oldIn, err := loadTransfer(ctx, tx, userID, id)
		if err != nil {
			return err
		}

		after := before
		if patch.Amount != nil {
			after.Amount = *patch.Amount
		}
		if patch.FromAccountID != nil {
			after.AccountID = *patch.FromAccountID
		}
		if patch.ToAccountID != nil {
			after.ToAccountID = patch.ToAccountID
		}
		if patch.Date != nil {
			after.Date = *patch.Date
		}
		if patch.Note != nil {
			after.Note = *patch.Note
		}
		if patch.Description != nil {
			after.Description = *patch.Description
		}
		if err := after.Validate(); err != nil {
			return err
		}

		src, err := checkPair(ctx, tx, userID, after.AccountID, *after.ToAccountID)
		if err != nil {
			return err
		}
		// Undo whatever the old legs did to the new source.
		credit := -(before.Effect(src.ID) + oldIn.Effect(src.ID))
		if err := checkFunds(ctx, tx, src, credit, after.Amount); err != nil {
			return err
		}

		if err := tx.SoftDeleteTransactions(ctx, s.now(), oldIn.ID); err != nil {
			return err
		}
		in, err := insertIncoming(ctx, tx, &after)
		if err != nil {
			return err
		}
		if err := tx.UpdateTransaction(ctx, after); err != nil {
			return err
		}

		if patch.Recurring != nil {
			err = attachTemplate(ctx, tx, &after, *patch.Recurring)
		} else {
			err = detachTemplate(ctx, tx, &after)
		}
		if err != nil {
			return err
		}

		res = TransferResult{Outgoing: after, Incoming: in}
		return recompute(ctx, tx, before.AccountID, *before.ToAccountID, after.AccountID, *after.ToAccountID)
	})
	if err != nil {
		return TransferResult{}, core.Normalize("update transfer", err)
	}

	slog.InfoContext(ctx, "Transfer updated",
		applog.FieldComponent, applog.ComponentTransfer,
		applog.FieldOperation, applog.OpUpdate,
		applog.FieldTransactionID, res.Outgoing.ID,
		applog.FieldUserID, userID,
		applog.FieldAmountCents, res.Outgoing.Amount)
	return res, nil
}

// DeleteTransfer soft-deletes both legs together with any template the
// transfer is the source of.
func (s *LedgerService) DeleteTransfer(ctx context.Context, userID, id int64) error {
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		out, in, err := loadTransfer(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if err := tx.SoftDeleteTransactions(ctx, s.now(), out.ID, in.ID); err != nil {
			return err
		}
		if err := detachTemplate(ctx, tx, &out); err != nil {
			return err
		}
		return recompute(ctx, tx, out.AccountID, in.AccountID)
	})
	if err != nil {
		return core.Normalize("delete transfer", err)
	}

	slog.InfoContext(ctx, "Transfer deleted",
		applog.FieldComponent, applog.ComponentTransfer,
		applog.FieldOperation, applog.OpDelete,
		applog.FieldTransactionID, id,
		applog.FieldUserID, userID)
	return nil
}
