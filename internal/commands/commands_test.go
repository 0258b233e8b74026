package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/config"
	"fintrack/internal/core"
)

// run executes one ledgerctl invocation against dbPath and returns stdout.
func run(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("AMQP_URL", "")

	cmd, cleanup := NewRootCommand()
	defer cleanup()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", dbPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dbPath string, args ...string) string {
	t.Helper()
	out, err := run(t, dbPath, args...)
	require.NoError(t, err, "ledgerctl %v", args)
	return out
}

func TestLedgerctlWorkflow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")

	assert.Contains(t, mustRun(t, db, "migrate"), "schema version 2")
	assert.Equal(t, "user 1 created\n", mustRun(t, db, "user", "create", "--name", "alice"))
	assert.Equal(t, "account 1 created\n",
		mustRun(t, db, "account", "create", "--user", "1", "--name", "Wallet", "--type", "cash", "--opening", "10"))
	assert.Equal(t, "account 2 created\n",
		mustRun(t, db, "account", "create", "--user", "1", "--name", "Checking"))
	assert.Equal(t, "category 1 created\n", mustRun(t, db, "category", "create", "--user", "1", "--name", "Food"))

	mustRun(t, db, "tx", "add", "--user", "1", "--account", "1", "--type", "income", "--amount", "100", "--date", "2024-03-01")
	mustRun(t, db, "tx", "add", "--user", "1", "--account", "1", "--category", "1", "--amount", "12,50", "--date", "2024-03-02")

	out := mustRun(t, db, "transfer", "create", "--user", "1", "--from", "1", "--to", "2", "--amount", "30", "--date", "2024-03-03")
	assert.Contains(t, out, "incoming leg")

	assert.Equal(t, "1\tWallet\tcash\t57.50\n", mustRun(t, db, "account", "show", "1"))
	assert.Equal(t, "2\tChecking\tbank\t30.00\n", mustRun(t, db, "account", "show", "2"))
	assert.Equal(t, "account 1 balance 57.50\n", mustRun(t, db, "recompute", "1"))
	assert.Equal(t, "2 accounts recomputed\n", mustRun(t, db, "recompute", "--user", "1"))
	assert.Equal(t, "2 accounts recomputed\n", mustRun(t, db, "recompute", "--all"))
}

func TestLedgerctlTransferRejectsOverdraft(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	mustRun(t, db, "user", "create", "--name", "bob")
	mustRun(t, db, "account", "create", "--user", "1", "--name", "Cash", "--type", "cash")
	mustRun(t, db, "account", "create", "--user", "1", "--name", "Bank")

	_, err := run(t, db, "transfer", "create", "--user", "1", "--from", "1", "--to", "2", "--amount", "5")
	require.Error(t, err)
	assert.Equal(t, core.KindBadRequest, core.KindOf(err))
	assert.ErrorIs(t, err, core.ErrInsufficientFund)
}

func TestLedgerctlMaterialize(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	mustRun(t, db, "user", "create", "--name", "carol")
	mustRun(t, db, "account", "create", "--user", "1", "--name", "Bank")

	out := mustRun(t, db, "template", "create", "--user", "1", "--account", "1", "--type", "income",
		"--amount", "1000", "--start", "2024-01-15")
	assert.Equal(t, "template 1 created (anchor day 15)\n", out)

	assert.Equal(t, "1 entries created for 2024-02-15\n", mustRun(t, db, "materialize", "--date", "2024-02-15"))
	assert.Equal(t, "0 entries created for 2024-02-15\n", mustRun(t, db, "materialize", "--date", "2024-02-15"))
	assert.Equal(t, "1\tBank\tbank\t1000.00\n", mustRun(t, db, "account", "show", "1"))

	assert.Equal(t, "template 1 deleted\n", mustRun(t, db, "template", "delete", "1", "--user", "1"))
}

func TestLedgerctlRejectsBadInput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "ledger.db")
	mustRun(t, db, "user", "create", "--name", "dave")

	tests := []struct {
		name string
		args []string
	}{
		{"bad id", []string{"account", "show", "abc"}},
		{"missing account", []string{"account", "show", "9"}},
		{"bad account type", []string{"account", "create", "--user", "1", "--name", "X", "--type", "crypto"}},
		{"bad amount", []string{"tx", "add", "--user", "1", "--account", "1", "--amount", "-4"}},
		{"bad date", []string{"materialize", "--date", "2024-13-01"}},
		{"recompute without target", []string{"recompute"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, db, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestFailedCommandStillClosesStore(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	db := filepath.Join(t.TempDir(), "ledger.db")

	a := &app{cfg: config.Load()}
	cmd := newRootCommand(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", db, "tx", "delete", "42", "--user", "1"})
	require.Error(t, cmd.Execute())
	require.NotEmpty(t, a.closers, "the store was opened before the command failed")

	a.close()
	assert.Empty(t, a.closers)
	_, err := a.repo.UserExists(context.Background(), 1)
	assert.ErrorContains(t, err, "database is closed")
}
