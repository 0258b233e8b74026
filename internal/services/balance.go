package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/storage"
)

// FoldBalance derives accountID's balance from its entries. Deleted and
// opening entries contribute nothing.
func FoldBalance(accountID int64, entries []core.Transaction) int64 {
	var balance int64
	for _, e := range entries {
		balance += e.Effect(accountID)
	}
	return balance
}

// liveBalance folds the account's entries as seen by tx without writing.
func liveBalance(ctx context.Context, tx *storage.Tx, accountID int64) (int64, error) {
	entries, err := tx.ListBalanceEntries(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return FoldBalance(accountID, entries), nil
}

// recompute re-derives and stores the balance of every distinct account id.
// It is the last step of each write scope.
func recompute(ctx context.Context, tx *storage.Tx, accountIDs ...int64) error {
	seen := make(map[int64]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		balance, err := liveBalance(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("recompute account %d: %w", id, err)
		}
		if err := tx.SetAccountBalance(ctx, id, balance); err != nil {
			return err
		}
		slog.DebugContext(ctx, "Balance recomputed",
			applog.FieldComponent, applog.ComponentLedger,
			applog.FieldAccountID, id,
			applog.FieldBalanceCents, balance)
	}
	return nil
}

// RecomputeBalance replays accountID's log, stores the result and returns it.
func (s *LedgerService) RecomputeBalance(ctx context.Context, accountID int64) (int64, error) {
	var balance int64
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		if _, err := tx.GetAccount(ctx, accountID); err != nil {
			return err
		}
		if err := recompute(ctx, tx, accountID); err != nil {
			return err
		}
		acct, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		balance = acct.Balance
		return nil
	})
	if err != nil {
		return 0, core.Normalize("recompute balance", err)
	}
	return balance, nil
}

// RecomputeAll rebuilds the balance of every account, or only userID's when
// userID is non-zero, in one atomic scope. It returns the account ids touched.
func (s *LedgerService) RecomputeAll(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		var err error
		if ids, err = tx.ListAccountIDs(ctx, userID); err != nil {
			return err
		}
		return recompute(ctx, tx, ids...)
	})
	if err != nil {
		return nil, core.Normalize("recompute balances", err)
	}

	slog.InfoContext(ctx, "Balances recomputed",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldUserID, userID,
		"accounts", len(ids))
	return ids, nil
}
