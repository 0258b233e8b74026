package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/core"
)

const transactionColumns = `id, user_id, type, amount, date, account_id, to_account_id,
	linked_transfer_id, category_id, recurring_template_id, note, description,
	is_opening, deleted_at, created_at`

func scanTransaction(s rowScanner) (core.Transaction, error) {
	var (
		t                                core.Transaction
		typ, date, createdAt             string
		toAccount, linked, cat, template sql.NullInt64
		deletedAt                        sql.NullString
	)
	err := s.Scan(&t.ID, &t.UserID, &typ, &t.Amount, &date, &t.AccountID, &toAccount,
		&linked, &cat, &template, &t.Note, &t.Description, &t.IsOpening, &deletedAt, &createdAt)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.EntryType(typ)
	if t.Date, err = core.ParseDate(date); err != nil {
		return core.Transaction{}, err
	}
	t.ToAccountID = intPtr(toAccount)
	t.LinkedTransferID = intPtr(linked)
	t.CategoryID = intPtr(cat)
	t.RecurringTemplateID = intPtr(template)
	if deletedAt.Valid {
		ts := parseTimestamp(deletedAt.String)
		t.DeletedAt = &ts
	}
	t.CreatedAt = parseTimestamp(createdAt)
	return t, nil
}

func (q *Queries) listTransactions(ctx context.Context, query string, args ...any) ([]core.Transaction, error) {
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransaction stores t and returns it with its id assigned.
func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO transactions (user_id, type, amount, date, account_id, to_account_id,
			linked_transfer_id, category_id, recurring_template_id, note, description, is_opening)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, string(t.Type), t.Amount, t.Date.String(), t.AccountID, nullInt(t.ToAccountID),
		nullInt(t.LinkedTransferID), nullInt(t.CategoryID), nullInt(t.RecurringTemplateID),
		t.Note, t.Description, t.IsOpening)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Transaction{}, core.Conflict("entry for template on %s already exists", t.Date).Wrap(err)
		}
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if t.ID, err = insertID(res, "transaction"); err != nil {
		return core.Transaction{}, err
	}
	return t, nil
}

// GetTransaction returns the entry with id, deleted or not.
func (q *Queries) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction %d not found", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// UpdateTransaction rewrites the mutable fields of a live entry.
func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE transactions
		SET type = ?, amount = ?, date = ?, account_id = ?, to_account_id = ?,
			linked_transfer_id = ?, category_id = ?, recurring_template_id = ?,
			note = ?, description = ?
		WHERE id = ? AND deleted_at IS NULL`,
		string(t.Type), t.Amount, t.Date.String(), t.AccountID, nullInt(t.ToAccountID),
		nullInt(t.LinkedTransferID), nullInt(t.CategoryID), nullInt(t.RecurringTemplateID),
		t.Note, t.Description, t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Conflict("entry for template on %s already exists", t.Date).Wrap(err)
		}
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("transaction %d not found", t.ID)
	}
	return nil
}

func (q *Queries) SetLinkedTransfer(ctx context.Context, id, linkedID int64) error {
	_, err := q.q.ExecContext(ctx, `UPDATE transactions SET linked_transfer_id = ? WHERE id = ?`, linkedID, id)
	if err != nil {
		return fmt.Errorf("link transaction %d to %d: %w", id, linkedID, err)
	}
	return nil
}

func (q *Queries) SetTransactionTemplate(ctx context.Context, id int64, templateID *int64) error {
	_, err := q.q.ExecContext(ctx, `UPDATE transactions SET recurring_template_id = ? WHERE id = ?`, nullInt(templateID), id)
	if err != nil {
		return fmt.Errorf("set template on transaction %d: %w", id, err)
	}
	return nil
}

// SoftDeleteTransactions marks every id deleted at at. All ids must be live,
// otherwise nothing is considered deleted and core.Conflict is returned.
func (q *Queries) SoftDeleteTransactions(ctx context.Context, at time.Time, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC().Format(time.RFC3339Nano))
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.q.ExecContext(ctx,
		`UPDATE transactions SET deleted_at = ? WHERE deleted_at IS NULL AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("soft delete transactions: %w", err)
	}
	if n, _ := res.RowsAffected(); n != int64(len(ids)) {
		return core.Conflict("expected to delete %d entries, deleted %d", len(ids), n)
	}
	return nil
}

// ListBalanceEntries returns the live, non-opening entries that can move
// accountID's balance: the ones it owns plus unlinked transfer rows pointing
// at it.
func (q *Queries) ListBalanceEntries(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	out, err := q.listTransactions(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE deleted_at IS NULL AND is_opening = 0
		  AND (account_id = ? OR (to_account_id = ? AND linked_transfer_id IS NULL))
		ORDER BY date, id`, accountID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list entries for account %d: %w", accountID, err)
	}
	return out, nil
}

// ListAccountTransactions returns every entry owned by accountID, including
// deleted and opening ones.
func (q *Queries) ListAccountTransactions(ctx context.Context, accountID int64) ([]core.Transaction, error) {
	out, err := q.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? ORDER BY date, id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for account %d: %w", accountID, err)
	}
	return out, nil
}

// ListTemplateTransactions returns the live entries generated from templateID.
func (q *Queries) ListTemplateTransactions(ctx context.Context, templateID int64) ([]core.Transaction, error) {
	out, err := q.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE recurring_template_id = ? AND deleted_at IS NULL ORDER BY date, id`, templateID)
	if err != nil {
		return nil, fmt.Errorf("list transactions for template %d: %w", templateID, err)
	}
	return out, nil
}

// HasGeneratedFor reports whether an entry, live or deleted, already
// references templateID on date.
func (q *Queries) HasGeneratedFor(ctx context.Context, templateID int64, date core.Date) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM transactions
		WHERE recurring_template_id = ? AND date = ?`,
		templateID, date.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check generated entries for template %d: %w", templateID, err)
	}
	return n > 0, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
