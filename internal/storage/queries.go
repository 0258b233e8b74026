package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/core"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds every statement the ledger runs. It is bound either to the
// connection pool or to a single transaction.
type Queries struct {
	q querier
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullDate(d core.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func insertID(res sql.Result, what string) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read %s id: %w", what, err)
	}
	return id, nil
}

// CreateUser inserts a user and returns its id.
func (q *Queries) CreateUser(ctx context.Context, name string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return insertID(res, "user")
}

// UserExists reports whether a user with id exists.
func (q *Queries) UserExists(ctx context.Context, id int64) (bool, error) {
	var n int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	return n > 0, nil
}

func (q *Queries) CreateAccount(ctx context.Context, userID int64, name string, typ core.AccountType) (core.Account, error) {
	if !typ.Valid() {
		return core.Account{}, core.BadRequest("invalid account type %q", typ)
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, type) VALUES (?, ?, ?)`, userID, name, string(typ))
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	id, err := insertID(res, "account")
	if err != nil {
		return core.Account{}, err
	}
	return core.Account{ID: id, UserID: userID, Name: name, Type: typ}, nil
}

// GetAccount returns core.NotFound when the account does not exist.
func (q *Queries) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	var (
		a   core.Account
		typ string
	)
	err := q.q.QueryRowContext(ctx,
		`SELECT id, user_id, name, type, balance FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.UserID, &a.Name, &typ, &a.Balance)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, core.NotFound("account %d not found", id)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	a.Type = core.AccountType(typ)
	return a, nil
}

// ListAccountIDs returns every account id, optionally limited to one user.
func (q *Queries) ListAccountIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT id FROM accounts ORDER BY id`
	var args []any
	if userID != 0 {
		query = `SELECT id FROM accounts WHERE user_id = ? ORDER BY id`
		args = append(args, userID)
	}
	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetAccountBalance overwrites the derived balance.
func (q *Queries) SetAccountBalance(ctx context.Context, id, balance int64) error {
	res, err := q.q.ExecContext(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, balance, id)
	if err != nil {
		return fmt.Errorf("set balance for account %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("account %d not found", id)
	}
	return nil
}

func (q *Queries) CreateCategory(ctx context.Context, userID int64, name string) (core.Category, error) {
	res, err := q.q.ExecContext(ctx, `INSERT INTO categories (user_id, name) VALUES (?, ?)`, userID, name)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	id, err := insertID(res, "category")
	if err != nil {
		return core.Category{}, err
	}
	return core.Category{ID: id, UserID: userID, Name: name}, nil
}

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	var c core.Category
	err := q.q.QueryRowContext(ctx, `SELECT id, user_id, name FROM categories WHERE id = ?`, id).
		Scan(&c.ID, &c.UserID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category %d not found", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category %d: %w", id, err)
	}
	return c, nil
}

func (q *Queries) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := (core.Money{Cents: b.Amount}).Validate(); err != nil {
		return core.Budget{}, err
	}
	if b.End.Before(b.Start.Time) {
		return core.Budget{}, core.BadRequest("budget window ends before it starts")
	}
	res, err := q.q.ExecContext(ctx,
		`INSERT INTO budgets (user_id, category_id, amount, start_date, end_date) VALUES (?, ?, ?, ?, ?)`,
		b.UserID, b.CategoryID, b.Amount, b.Start.String(), b.End.String())
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	if b.ID, err = insertID(res, "budget"); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

// FindBudget returns the envelope covering date for the user's category, or
// core.NotFound when none exists. The most recently started envelope wins.
func (q *Queries) FindBudget(ctx context.Context, userID, categoryID int64, date core.Date) (core.Budget, error) {
	var (
		b          core.Budget
		start, end string
	)
	err := q.q.QueryRowContext(ctx, `
		SELECT b.id, b.user_id, b.category_id, c.name, b.amount, b.start_date, b.end_date
		FROM budgets b
		JOIN categories c ON c.id = b.category_id
		WHERE b.user_id = ? AND b.category_id = ? AND b.start_date <= ? AND b.end_date >= ?
		ORDER BY b.start_date DESC, b.id DESC
		LIMIT 1`,
		userID, categoryID, date.String(), date.String()).
		Scan(&b.ID, &b.UserID, &b.CategoryID, &b.CategoryName, &b.Amount, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.NotFound("no budget for category %d on %s", categoryID, date)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("find budget: %w", err)
	}
	if b.Start, err = core.ParseDate(start); err != nil {
		return core.Budget{}, err
	}
	if b.End, err = core.ParseDate(end); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

// SumExpenses totals live expense entries of a category within [from, to].
func (q *Queries) SumExpenses(ctx context.Context, userID, categoryID int64, from, to core.Date) (int64, error) {
	var total int64
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = ? AND category_id = ? AND type = 'expense'
		  AND deleted_at IS NULL AND is_opening = 0
		  AND date >= ? AND date <= ?`,
		userID, categoryID, from.String(), to.String()).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum expenses: %w", err)
	}
	return total, nil
}
