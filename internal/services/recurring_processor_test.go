package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
)

func TestMaterializeDueOnAnchorDay(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "Bank", core.AccountBank)
	cat := f.category(t, "Rent")
	proc := NewRecurringProcessor(f.repo, f.ledger)

	rt, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: acct.ID, CategoryID: &cat.ID, Type: core.Expense, Amount: 90000,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly, AnchorDay: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.balance(t, acct.ID), "creating a template does not touch balances")

	n, err := proc.MaterializeDue(f.ctx, core.NewDate(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(-90000), f.balance(t, acct.ID))
	assert.Equal(t, 1, f.alerts.count())

	n, err = proc.MaterializeDue(f.ctx, core.NewDate(2024, 2, 15))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run on the same day is a no-op")

	n, err = proc.MaterializeDue(f.ctx, core.NewDate(2024, 2, 16))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	generated, err := f.repo.ListTemplateTransactions(f.ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	assert.True(t, generated[0].Date.Equal(core.NewDate(2024, 2, 15)))
	assert.Equal(t, cat.ID, *generated[0].CategoryID)
}

func TestDeletedGeneratedEntryIsNotRecreated(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "Bank", core.AccountBank)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	rt, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: acct.ID, Type: core.Expense, Amount: 500,
		StartDate: core.NewDate(2024, 1, 15), Frequency: core.Monthly,
	})
	require.NoError(t, err)

	asOf := core.NewDate(2024, 2, 15)
	n, err := proc.MaterializeDue(f.ctx, asOf)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	generated, err := f.repo.ListTemplateTransactions(f.ctx, rt.ID)
	require.NoError(t, err)
	require.Len(t, generated, 1)
	require.NoError(t, f.ledger.DeleteTransaction(f.ctx, f.userID, generated[0].ID))
	assert.Equal(t, int64(0), f.balance(t, acct.ID))

	n, err = proc.MaterializeDue(f.ctx, asOf)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(0), f.balance(t, acct.ID))

	n, err = proc.MaterializeDue(f.ctx, core.NewDate(2024, 3, 15))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "later occurrences still fire")
}

func TestMaterializeDueRespectsDates(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "Bank", core.AccountBank)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	_, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: acct.ID, Type: core.Income, Amount: 100,
		StartDate: core.NewDate(2024, 2, 1), Frequency: core.Monthly, AnchorDay: 10,
	})
	require.NoError(t, err)
	_, err = proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: acct.ID, Type: core.Income, Amount: 100,
		StartDate: core.NewDate(2023, 1, 1), EndDate: core.NewDate(2023, 12, 31),
		Frequency: core.Monthly, AnchorDay: 10,
	})
	require.NoError(t, err)

	n, err := proc.MaterializeDue(f.ctx, core.NewDate(2024, 1, 10))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "neither started nor still active")

	n, err = proc.MaterializeDue(f.ctx, core.NewDate(2024, 3, 10))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMaterializeTransferTemplate(t *testing.T) {
	f := newFixture(t)
	checking := f.account(t, "Checking", core.AccountBank)
	savings := f.account(t, "Savings", core.AccountBank)
	f.record(t, checking.ID, core.Income, 1000)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	_, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: checking.ID, ToAccountID: &savings.ID, Type: core.Transfer, Amount: 250,
		StartDate: core.NewDate(2024, 1, 5), Frequency: core.Monthly,
	})
	require.NoError(t, err)

	n, err := proc.MaterializeDue(f.ctx, core.NewDate(2024, 2, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(750), f.balance(t, checking.ID))
	assert.Equal(t, int64(250), f.balance(t, savings.ID))
	assert.Equal(t, 0, f.alerts.count())
}

func TestMaterializeContinuesAfterFailure(t *testing.T) {
	f := newFixture(t)
	cash := f.account(t, "Cash", core.AccountCash)
	bank := f.account(t, "Bank", core.AccountBank)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	// Empty cash account cannot fund the transfer.
	_, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: cash.ID, ToAccountID: &bank.ID, Type: core.Transfer, Amount: 500,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly, AnchorDay: 20,
	})
	require.NoError(t, err)
	_, err = proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: bank.ID, Type: core.Income, Amount: 300,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly, AnchorDay: 20,
	})
	require.NoError(t, err)

	n, err := proc.MaterializeDue(f.ctx, core.NewDate(2024, 1, 20))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(0), f.balance(t, cash.ID))
	assert.Equal(t, int64(300), f.balance(t, bank.ID))
}

func TestCreateTemplateValidation(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "Bank", core.AccountBank)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	otherID, err := f.repo.CreateUser(f.ctx, "grace")
	require.NoError(t, err)
	foreign, err := f.repo.CreateAccount(f.ctx, otherID, "Theirs", core.AccountBank)
	require.NoError(t, err)

	base := TemplateParams{
		AccountID: acct.ID, Type: core.Expense, Amount: 100,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly,
	}

	tests := []struct {
		name   string
		mutate func(p *TemplateParams)
		want   error
	}{
		{"unknown frequency", func(p *TemplateParams) { p.Frequency = "hourly" }, core.ErrBadRequest},
		{"negative interval", func(p *TemplateParams) { p.Interval = -1 }, core.ErrBadRequest},
		{"anchor out of range", func(p *TemplateParams) { p.AnchorDay = 32 }, core.ErrBadRequest},
		{"end before start", func(p *TemplateParams) { p.EndDate = core.NewDate(2023, 12, 31) }, core.ErrBadRequest},
		{"transfer without destination", func(p *TemplateParams) { p.Type = core.Transfer }, core.ErrBadRequest},
		{"foreign account", func(p *TemplateParams) { p.AccountID = foreign.ID }, core.ErrForbidden},
		{"missing account", func(p *TemplateParams) { p.AccountID = 999 }, core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			_, err := proc.CreateTemplate(f.ctx, f.userID, p)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestDeleteTemplate(t *testing.T) {
	f := newFixture(t)
	acct := f.account(t, "Bank", core.AccountBank)
	proc := NewRecurringProcessor(f.repo, f.ledger)

	rt, err := proc.CreateTemplate(f.ctx, f.userID, TemplateParams{
		AccountID: acct.ID, Type: core.Income, Amount: 100,
		StartDate: core.NewDate(2024, 1, 1), Frequency: core.Monthly,
	})
	require.NoError(t, err)

	otherID, err := f.repo.CreateUser(f.ctx, "grace")
	require.NoError(t, err)
	err = proc.DeleteTemplate(f.ctx, otherID, rt.ID)
	assert.True(t, errors.Is(err, core.ErrForbidden))

	require.NoError(t, proc.DeleteTemplate(f.ctx, f.userID, rt.ID))
	err = proc.DeleteTemplate(f.ctx, f.userID, rt.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
