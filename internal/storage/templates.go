package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fintrack/internal/core"
)

const templateColumns = `id, user_id, account_id, to_account_id, category_id, source_transaction_id,
	type, amount, start_date, end_date, frequency, interval_count, anchor_day, note, description`

func scanTemplate(s rowScanner) (core.RecurringTemplate, error) {
	var (
		rt                           core.RecurringTemplate
		typ, start, freq             string
		end                          sql.NullString
		toAccount, cat, source, anch sql.NullInt64
	)
	err := s.Scan(&rt.ID, &rt.UserID, &rt.AccountID, &toAccount, &cat, &source,
		&typ, &rt.Amount, &start, &end, &freq, &rt.Interval, &anch, &rt.Note, &rt.Description)
	if err != nil {
		return core.RecurringTemplate{}, err
	}
	rt.Type = core.EntryType(typ)
	rt.Frequency = core.Frequency(freq)
	rt.ToAccountID = intPtr(toAccount)
	rt.CategoryID = intPtr(cat)
	rt.SourceTransactionID = intPtr(source)
	if anch.Valid {
		rt.AnchorDay = int(anch.Int64)
	}
	if rt.StartDate, err = core.ParseDate(start); err != nil {
		return core.RecurringTemplate{}, err
	}
	if end.Valid {
		if rt.EndDate, err = core.ParseDate(end.String); err != nil {
			return core.RecurringTemplate{}, err
		}
	}
	return rt, nil
}

func anchorArg(day int) sql.NullInt64 {
	if day == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(day), Valid: true}
}

func (q *Queries) InsertTemplate(ctx context.Context, rt core.RecurringTemplate) (core.RecurringTemplate, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO recurring_templates (user_id, account_id, to_account_id, category_id,
			source_transaction_id, type, amount, start_date, end_date, frequency,
			interval_count, anchor_day, note, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.UserID, rt.AccountID, nullInt(rt.ToAccountID), nullInt(rt.CategoryID),
		nullInt(rt.SourceTransactionID), string(rt.Type), rt.Amount, rt.StartDate.String(),
		nullDate(rt.EndDate), string(rt.Frequency), rt.Interval, anchorArg(rt.AnchorDay),
		rt.Note, rt.Description)
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("insert recurring template: %w", err)
	}
	if rt.ID, err = insertID(res, "recurring template"); err != nil {
		return core.RecurringTemplate{}, err
	}
	return rt, nil
}

func (q *Queries) GetTemplate(ctx context.Context, id int64) (core.RecurringTemplate, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM recurring_templates WHERE id = ?`, id)
	rt, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, core.NotFound("recurring template %d not found", id)
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("get recurring template %d: %w", id, err)
	}
	return rt, nil
}

// FindTemplateBySource returns the template owned by transaction id.
func (q *Queries) FindTemplateBySource(ctx context.Context, transactionID int64) (core.RecurringTemplate, error) {
	row := q.q.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM recurring_templates WHERE source_transaction_id = ?`, transactionID)
	rt, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringTemplate{}, core.NotFound("no recurring template for transaction %d", transactionID)
	}
	if err != nil {
		return core.RecurringTemplate{}, fmt.Errorf("find template for transaction %d: %w", transactionID, err)
	}
	return rt, nil
}

func (q *Queries) UpdateTemplate(ctx context.Context, rt core.RecurringTemplate) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE recurring_templates
		SET account_id = ?, to_account_id = ?, category_id = ?, type = ?, amount = ?,
			start_date = ?, end_date = ?, frequency = ?, interval_count = ?, anchor_day = ?,
			note = ?, description = ?
		WHERE id = ?`,
		rt.AccountID, nullInt(rt.ToAccountID), nullInt(rt.CategoryID), string(rt.Type), rt.Amount,
		rt.StartDate.String(), nullDate(rt.EndDate), string(rt.Frequency), rt.Interval,
		anchorArg(rt.AnchorDay), rt.Note, rt.Description, rt.ID)
	if err != nil {
		return fmt.Errorf("update recurring template %d: %w", rt.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("recurring template %d not found", rt.ID)
	}
	return nil
}

func (q *Queries) DeleteTemplate(ctx context.Context, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM recurring_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring template %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("recurring template %d not found", id)
	}
	return nil
}

// ListActiveTemplates returns templates whose end date is unset or not before asOf.
func (q *Queries) ListActiveTemplates(ctx context.Context, asOf core.Date) ([]core.RecurringTemplate, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM recurring_templates
		WHERE end_date IS NULL OR end_date >= ?
		ORDER BY id`, asOf.String())
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringTemplate
	for rows.Next() {
		rt, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recurring template: %w", err)
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}
