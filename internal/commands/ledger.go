package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fintrack/internal/core"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func today() core.Date {
	return core.DateOf(time.Now())
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			version, dirty, err := storage.MigrationVersion(a.cfg.SQLiteDBPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func newUserCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.repo.CreateUser(cmd.Context(), name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %d created\n", id)
			return nil
		},
	}
	create.Flags().StringVar(&name, "name", "", "user name (required)")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func newAccountCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "account", Short: "Manage accounts"}

	var (
		userID  int64
		name    string
		typ     string
		amount  string
		dateStr string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an account, optionally with an opening balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := core.AccountType(typ)
			if !t.Valid() {
				return core.BadRequest("invalid account type %q", typ)
			}
			acct, err := a.repo.CreateAccount(cmd.Context(), userID, name, t)
			if err != nil {
				return err
			}
			if amount != "" {
				cents, err := parseAmount(amount)
				if err != nil {
					return err
				}
				date, err := parseDateOr(dateStr, today())
				if err != nil {
					return err
				}
				if _, err := a.ledger.CreateOpeningBalance(cmd.Context(), userID, acct.ID, cents, date); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "account %d created\n", acct.ID)
			return nil
		},
	}
	create.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	create.Flags().StringVar(&name, "name", "", "account name (required)")
	create.Flags().StringVar(&typ, "type", string(core.AccountBank), "cash, bank or card")
	create.Flags().StringVar(&amount, "opening", "", "opening balance, e.g. 120.50")
	create.Flags().StringVar(&dateStr, "date", "", "opening balance date (default today)")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print an account and its balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			acct, err := a.repo.GetAccount(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%s\n",
				acct.ID, acct.Name, acct.Type, core.Money{Cents: acct.Balance})
			return nil
		},
	}

	cmd.AddCommand(create, show)
	return cmd
}

func newCategoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "category", Short: "Manage categories"}

	var (
		userID int64
		name   string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := a.repo.CreateCategory(cmd.Context(), userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "category %d created\n", cat.ID)
			return nil
		},
	}
	create.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	create.Flags().StringVar(&name, "name", "", "category name (required)")
	_ = create.MarkFlagRequired("user")
	_ = create.MarkFlagRequired("name")

	cmd.AddCommand(create)
	return cmd
}

func newBudgetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "budget", Short: "Manage budget envelopes"}

	var (
		userID, categoryID int64
		amount, start, end string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a budget envelope for a category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseAmount(amount)
			if err != nil {
				return err
			}
			from, err := core.ParseDate(start)
			if err != nil {
				return err
			}
			to, err := core.ParseDate(end)
			if err != nil {
				return err
			}
			b, err := a.repo.CreateBudget(cmd.Context(), core.Budget{
				UserID: userID, CategoryID: categoryID, Amount: cents, Start: from, End: to,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "budget %d created\n", b.ID)
			return nil
		},
	}
	create.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	create.Flags().Int64Var(&categoryID, "category", 0, "category id (required)")
	create.Flags().StringVar(&amount, "amount", "", "envelope amount (required)")
	create.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (required)")
	create.Flags().StringVar(&end, "end", "", "last day, YYYY-MM-DD (required)")
	for _, f := range []string{"user", "category", "amount", "start", "end"} {
		_ = create.MarkFlagRequired(f)
	}

	cmd.AddCommand(create)
	return cmd
}

func newTxCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "tx", Short: "Record income and expense entries"}

	var (
		userID, accountID, categoryID int64
		typ, amount, dateStr          string
		note, description             string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Record an income or expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseAmount(amount)
			if err != nil {
				return err
			}
			date, err := parseDateOr(dateStr, today())
			if err != nil {
				return err
			}
			entry, err := a.ledger.CreateTransaction(cmd.Context(), services.CreateTransactionParams{
				UserID:      userID,
				AccountID:   accountID,
				Type:        core.EntryType(typ),
				Amount:      cents,
				Date:        date,
				CategoryID:  optionalID(categoryID),
				Note:        note,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transaction %d recorded\n", entry.ID)
			return nil
		},
	}
	add.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	add.Flags().Int64Var(&accountID, "account", 0, "account id (required)")
	add.Flags().Int64Var(&categoryID, "category", 0, "category id")
	add.Flags().StringVar(&typ, "type", string(core.Expense), "income or expense")
	add.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50 (required)")
	add.Flags().StringVar(&dateStr, "date", "", "entry date (default today)")
	add.Flags().StringVar(&note, "note", "", "note")
	add.Flags().StringVar(&description, "description", "", "description")
	for _, f := range []string{"user", "account", "amount"} {
		_ = add.MarkFlagRequired(f)
	}

	var delUser int64
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an income or expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.ledger.DeleteTransaction(cmd.Context(), delUser, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transaction %d deleted\n", id)
			return nil
		},
	}
	del.Flags().Int64Var(&delUser, "user", 0, "owner user id (required)")
	_ = del.MarkFlagRequired("user")

	cmd.AddCommand(add, del)
	return cmd
}

func newTransferCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "transfer", Short: "Move money between accounts"}

	var (
		userID, from, to  int64
		amount, dateStr   string
		note, description string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Transfer between two accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseAmount(amount)
			if err != nil {
				return err
			}
			date, err := parseDateOr(dateStr, today())
			if err != nil {
				return err
			}
			res, err := a.ledger.CreateTransfer(cmd.Context(), services.TransferParams{
				UserID:        userID,
				Amount:        cents,
				FromAccountID: from,
				ToAccountID:   to,
				Date:          date,
				Note:          note,
				Description:   description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transfer %d created (incoming leg %d)\n", res.Outgoing.ID, res.Incoming.ID)
			return nil
		},
	}
	create.Flags().Int64Var(&userID, "user", 0, "owner user id (required)")
	create.Flags().Int64Var(&from, "from", 0, "source account id (required)")
	create.Flags().Int64Var(&to, "to", 0, "destination account id (required)")
	create.Flags().StringVar(&amount, "amount", "", "amount (required)")
	create.Flags().StringVar(&dateStr, "date", "", "transfer date (default today)")
	create.Flags().StringVar(&note, "note", "", "note")
	create.Flags().StringVar(&description, "description", "", "description")
	for _, f := range []string{"user", "from", "to", "amount"} {
		_ = create.MarkFlagRequired(f)
	}

	var delUser int64
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transfer by either leg id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.ledger.DeleteTransfer(cmd.Context(), delUser, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "transfer %d deleted\n", id)
			return nil
		},
	}
	del.Flags().Int64Var(&delUser, "user", 0, "owner user id (required)")
	_ = del.MarkFlagRequired("user")

	cmd.AddCommand(create, del)
	return cmd
}

func newTemplateCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "template", Short: "Manage recurring templates"}

	var (
		userID, accountID, toID, categoryID int64
		typ, amount, start, end, frequency  string
		interval, anchorDay                 int
		description                         string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a recurring template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cents, err := parseAmount(amount)
			if err != nil {
				return err
			}
			from, err := parseDateOr(start, today())
			if err != nil {
				return err
			}
			var until core.Date
			if end != "" {
				if until, err = core.ParseDate(end); err != nil {
					return err
				}
			}
			rt, err := a.recurring.CreateTemplate(cmd.Context(), userID, services.TemplateParams{
				AccountID:   accountID,
				ToAccountID: optionalID(toID),
				CategoryID:  optionalID(categoryID),
				Type:        core.EntryType(typ),
				Amount:      cents,
				StartDate:   from,
				EndDate:     until,
				Frequency:   core.Frequency(frequency),
				Interval:    interval,
				AnchorDay:   anchorDay,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template %d created (anchor day %d)\n", rt.ID, rt.EffectiveAnchorDay())
			return nil
		},
	}
	f := create.Flags()
	f.Int64Var(&userID, "user", 0, "owner user id (required)")
	f.Int64Var(&accountID, "account", 0, "account id (required)")
	f.Int64Var(&toID, "to", 0, "destination account id for transfers")
	f.Int64Var(&categoryID, "category", 0, "category id")
	f.StringVar(&typ, "type", string(core.Expense), "income, expense or transfer")
	f.StringVar(&amount, "amount", "", "amount (required)")
	f.StringVar(&start, "start", "", "start date (default today)")
	f.StringVar(&end, "end", "", "end date (default open-ended)")
	f.StringVar(&frequency, "frequency", string(core.Monthly), "daily, weekly, monthly or yearly")
	f.IntVar(&interval, "interval", 1, "repeat every N periods")
	f.IntVar(&anchorDay, "anchor-day", 0, "day of month to fire on (default start day)")
	f.StringVar(&description, "description", "", "description")
	for _, name := range []string{"user", "account", "amount"} {
		_ = create.MarkFlagRequired(name)
	}

	var delUser int64
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recurring template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := a.recurring.DeleteTemplate(cmd.Context(), delUser, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "template %d deleted\n", id)
			return nil
		},
	}
	del.Flags().Int64Var(&delUser, "user", 0, "owner user id (required)")
	_ = del.MarkFlagRequired("user")

	cmd.AddCommand(create, del)
	return cmd
}

func newRecomputeCommand(a *app) *cobra.Command {
	var (
		userID int64
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "recompute [account-id]",
		Short: "Rebuild balances from the entry log",
		Long:  "Rebuild one account's balance, every account of --user, or every account with --all.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				balance, err := a.ledger.RecomputeBalance(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "account %d balance %s\n", id, core.Money{Cents: balance})
				return nil
			}
			if userID == 0 && !all {
				return core.BadRequest("pass an account id, --user or --all")
			}
			ids, err := a.ledger.RecomputeAll(cmd.Context(), userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d accounts recomputed\n", len(ids))
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "recompute every account of this user")
	cmd.Flags().BoolVar(&all, "all", false, "recompute every account")
	cmd.MarkFlagsMutuallyExclusive("user", "all")
	return cmd
}

func newMaterializeCommand(a *app) *cobra.Command {
	var dateStr string
	cmd := &cobra.Command{
		Use:   "materialize",
		Short: "Generate entries for recurring templates due on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			asOf, err := parseDateOr(dateStr, today())
			if err != nil {
				return err
			}
			n, err := a.recurring.MaterializeDue(cmd.Context(), asOf)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d entries created for %s\n", n, asOf)
			return nil
		},
	}
	cmd.Flags().StringVar(&dateStr, "date", "", "as-of date (default today)")
	return cmd
}
