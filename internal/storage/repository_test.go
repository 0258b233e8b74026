package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	v, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	// Re-opening an already migrated database is a no-op.
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	repo.Close()
}

func TestInsertAndGetTransaction(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, err := repo.CreateUser(ctx, "ada")
	require.NoError(t, err)
	acct, err := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)
	require.NoError(t, err)
	cat, err := repo.CreateCategory(ctx, userID, "Groceries")
	require.NoError(t, err)

	in := core.Transaction{
		UserID:      userID,
		Type:        core.Expense,
		Amount:      1250,
		Date:        core.NewDate(2024, 3, 9),
		AccountID:   acct.ID,
		CategoryID:  &cat.ID,
		Description: "market",
	}
	created, err := repo.InsertTransaction(ctx, in)
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := repo.GetTransaction(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, core.Expense, got.Type)
	assert.Equal(t, int64(1250), got.Amount)
	assert.True(t, got.Date.Equal(core.NewDate(2024, 3, 9)))
	assert.Equal(t, cat.ID, *got.CategoryID)
	assert.Nil(t, got.ToAccountID)
	assert.True(t, got.Live())

	_, err = repo.GetTransaction(ctx, 9999)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestSoftDeleteRequiresLiveEntries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, _ := repo.CreateUser(ctx, "ada")
	acct, _ := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)
	tx, err := repo.InsertTransaction(ctx, core.Transaction{
		UserID: userID, Type: core.Income, Amount: 100, Date: core.NewDate(2024, 1, 1), AccountID: acct.ID,
	})
	require.NoError(t, err)

	require.NoError(t, repo.SoftDeleteTransactions(ctx, time.Now(), tx.ID))
	err = repo.SoftDeleteTransactions(ctx, time.Now(), tx.ID)
	assert.True(t, errors.Is(err, core.ErrConflict))

	entries, err := repo.ListBalanceEntries(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	all, err := repo.ListAccountTransactions(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].DeletedAt)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, _ := repo.CreateUser(ctx, "ada")
	acct, _ := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.InsertTransaction(ctx, core.Transaction{
			UserID: userID, Type: core.Income, Amount: 100, Date: core.NewDate(2024, 1, 1), AccountID: acct.ID,
		}); err != nil {
			return err
		}
		if err := tx.SetAccountBalance(ctx, acct.ID, 100); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	entries, err := repo.ListAccountTransactions(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	got, err := repo.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Balance)
}

func TestTemplateUniquePerDate(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, _ := repo.CreateUser(ctx, "ada")
	acct, _ := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)
	rt, err := repo.InsertTemplate(ctx, core.RecurringTemplate{
		UserID: userID, AccountID: acct.ID, Type: core.Expense, Amount: 900,
		StartDate: core.NewDate(2024, 1, 15), Frequency: core.Monthly, Interval: 1,
	})
	require.NoError(t, err)

	entry := core.Transaction{
		UserID: userID, Type: core.Expense, Amount: 900, Date: core.NewDate(2024, 2, 15),
		AccountID: acct.ID, RecurringTemplateID: &rt.ID,
	}
	first, err := repo.InsertTransaction(ctx, entry)
	require.NoError(t, err)

	ok, err := repo.HasGeneratedFor(ctx, rt.ID, core.NewDate(2024, 2, 15))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.InsertTransaction(ctx, entry)
	assert.True(t, errors.Is(err, core.ErrConflict))

	// A deleted entry keeps the slot taken.
	require.NoError(t, repo.SoftDeleteTransactions(ctx, time.Now(), first.ID))
	ok, err = repo.HasGeneratedFor(ctx, rt.ID, core.NewDate(2024, 2, 15))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = repo.InsertTransaction(ctx, entry)
	assert.True(t, errors.Is(err, core.ErrConflict))
}

func TestTemplateRoundTripAndActiveFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, _ := repo.CreateUser(ctx, "ada")
	acct, _ := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)

	open, err := repo.InsertTemplate(ctx, core.RecurringTemplate{
		UserID: userID, AccountID: acct.ID, Type: core.Income, Amount: 1000,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly, Interval: 1, AnchorDay: 27,
	})
	require.NoError(t, err)
	_, err = repo.InsertTemplate(ctx, core.RecurringTemplate{
		UserID: userID, AccountID: acct.ID, Type: core.Income, Amount: 1000,
		StartDate: core.NewDate(2024, 1, 1), EndDate: core.NewDate(2024, 1, 31),
		Frequency: core.Monthly, Interval: 1,
	})
	require.NoError(t, err)

	active, err := repo.ListActiveTemplates(ctx, core.NewDate(2024, 2, 1))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
	assert.Equal(t, 27, active[0].AnchorDay)
	assert.True(t, active[0].EndDate.IsZero())

	require.NoError(t, repo.DeleteTemplate(ctx, open.ID))
	_, err = repo.GetTemplate(ctx, open.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestFindBudgetAndSumExpenses(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	userID, _ := repo.CreateUser(ctx, "ada")
	acct, _ := repo.CreateAccount(ctx, userID, "Wallet", core.AccountCash)
	cat, _ := repo.CreateCategory(ctx, userID, "Dining")

	_, err := repo.CreateBudget(ctx, core.Budget{
		UserID: userID, CategoryID: cat.ID, Amount: 5000,
		Start: core.NewDate(2024, 3, 1), End: core.NewDate(2024, 3, 31),
	})
	require.NoError(t, err)

	for _, day := range []int{2, 10, 31} {
		_, err := repo.InsertTransaction(ctx, core.Transaction{
			UserID: userID, Type: core.Expense, Amount: 2000, Date: core.NewDate(2024, 3, day),
			AccountID: acct.ID, CategoryID: &cat.ID,
		})
		require.NoError(t, err)
	}
	// outside the window
	_, err = repo.InsertTransaction(ctx, core.Transaction{
		UserID: userID, Type: core.Expense, Amount: 2000, Date: core.NewDate(2024, 4, 1),
		AccountID: acct.ID, CategoryID: &cat.ID,
	})
	require.NoError(t, err)

	b, err := repo.FindBudget(ctx, userID, cat.ID, core.NewDate(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, "Dining", b.CategoryName)

	spent, err := repo.SumExpenses(ctx, userID, cat.ID, b.Start, b.End)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), spent)

	_, err = repo.FindBudget(ctx, userID, cat.ID, core.NewDate(2024, 5, 1))
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
