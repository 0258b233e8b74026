package core

import (
	"strings"
	"time"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

const (
	AccountCash AccountType = "cash"
	AccountBank AccountType = "bank"
	AccountCard AccountType = "card"
)

const (
	Income   EntryType = "income"
	Expense  EntryType = "expense"
	Transfer EntryType = "transfer"
)

type (
	Frequency   string
	AccountType string
	EntryType   string

	Account struct {
		ID      int64
		UserID  int64
		Name    string
		Type    AccountType
		Balance int64 // derived, overwritten by balance recomputation only
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	// Transaction is one ledger entry. A transfer is stored as two entries:
	// the outgoing leg (ToAccountID set) and the incoming leg (ToAccountID nil),
	// each pointing at the other through LinkedTransferID.
	Transaction struct {
		ID                  int64
		UserID              int64
		Type                EntryType
		Amount              int64
		Date                Date
		AccountID           int64
		ToAccountID         *int64
		LinkedTransferID    *int64
		CategoryID          *int64
		RecurringTemplateID *int64
		Note                string
		Description         string
		IsOpening           bool
		DeletedAt           *time.Time
		CreatedAt           time.Time
	}

	RecurringTemplate struct {
		ID                  int64
		UserID              int64
		AccountID           int64
		ToAccountID         *int64
		CategoryID          *int64
		SourceTransactionID *int64 // entry whose deletion removes the template
		Type                EntryType
		Amount              int64
		StartDate           Date
		EndDate             Date // zero means open-ended
		Frequency           Frequency
		Interval            int
		AnchorDay           int // zero means StartDate's day
		Note                string
		Description         string
	}

	// Budget is a category-scoped spending envelope valid over [Start, End].
	Budget struct {
		ID           int64
		UserID       int64
		CategoryID   int64
		CategoryName string
		Amount       int64
		Start        Date
		End          Date
	}
)

var (
	ErrInvalidDay       = BadRequest("invalid day")
	ErrInvalidMonth     = BadRequest("invalid month")
	ErrInvalidAmount    = BadRequest("invalid amount")
	ErrInvalidEntryType = BadRequest("invalid entry type")
	ErrInvalidFrequency = BadRequest("invalid frequency")
	ErrSameAccount      = BadRequest("cannot transfer to the same account")
	ErrInsufficientFund = BadRequest("insufficient funds")
	ErrOpeningEntry     = BadRequest("opening balance entries cannot be modified")
)

// RequiresFunds reports whether outgoing transfers must be covered by the
// current balance. Card accounts may go negative.
func (t AccountType) RequiresFunds() bool {
	return t != AccountCard
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountCard:
		return true
	}
	return false
}

func (t EntryType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

// Live reports whether the entry has not been soft-deleted.
func (t Transaction) Live() bool {
	return t.DeletedAt == nil
}

// IsOutgoingLeg reports whether t is the source side of a transfer.
func (t Transaction) IsOutgoingLeg() bool {
	return t.Type == Transfer && t.ToAccountID != nil
}

// IsIncomingLeg reports whether t is the destination side of a transfer.
func (t Transaction) IsIncomingLeg() bool {
	return t.Type == Transfer && t.ToAccountID == nil
}

func validateText(field, s string) error {
	if len(s) > 200 {
		return BadRequest("%s too long (max 200 characters)", field)
	}
	return nil
}

// Validate checks the fields every persisted entry must satisfy.
func (t Transaction) Validate() error {
	if !t.Type.Valid() {
		return ErrInvalidEntryType
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := (Money{Cents: t.Amount}).Validate(); err != nil {
		return err
	}
	if err := validateText("note", t.Note); err != nil {
		return err
	}
	return validateText("description", strings.TrimSpace(t.Description))
}

func (rt RecurringTemplate) Validate() error {
	if err := rt.StartDate.Validate(); err != nil {
		return BadRequest("invalid start date: %v", err)
	}

	if !rt.EndDate.IsZero() {
		if err := rt.EndDate.Validate(); err != nil {
			return BadRequest("invalid end date: %v", err)
		}
		if rt.EndDate.Before(rt.StartDate.Time) {
			return BadRequest("end date must be after start date")
		}
	}

	if !rt.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if rt.Interval < 1 {
		return BadRequest("interval must be at least 1")
	}
	if rt.AnchorDay < 0 || rt.AnchorDay > 31 {
		return ErrInvalidDay
	}

	if !rt.Type.Valid() {
		return ErrInvalidEntryType
	}
	if rt.Type == Transfer {
		if rt.ToAccountID == nil {
			return BadRequest("recurring transfer needs a destination account")
		}
		if *rt.ToAccountID == rt.AccountID {
			return ErrSameAccount
		}
	}

	if err := (Money{Cents: rt.Amount}).Validate(); err != nil {
		return err
	}
	if err := validateText("note", rt.Note); err != nil {
		return err
	}
	return validateText("description", rt.Description)
}

// EffectiveAnchorDay is the day of month the template is matched against.
func (rt RecurringTemplate) EffectiveAnchorDay() int {
	if rt.AnchorDay > 0 {
		return rt.AnchorDay
	}
	return rt.StartDate.Day()
}

// ActiveOn reports whether the template has not yet expired on d.
func (rt RecurringTemplate) ActiveOn(d Date) bool {
	return rt.EndDate.IsZero() || !rt.EndDate.Before(d.Time)
}

// Covers reports whether d falls inside the budget window.
func (b Budget) Covers(d Date) bool {
	return !d.Before(b.Start.Time) && !d.After(b.End.Time)
}
