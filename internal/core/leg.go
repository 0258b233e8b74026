package core

// LegKind tells which side of a money movement an entry represents.
type LegKind int

const (
	SingleEntry LegKind = iota
	TransferOut
	TransferIn
)

func (k LegKind) String() string {
	switch k {
	case TransferOut:
		return "transfer_out"
	case TransferIn:
		return "transfer_in"
	default:
		return "single"
	}
}

// Leg is the variant view of a stored entry. PairID is the counterpart leg's
// id for transfers and zero otherwise.
type Leg struct {
	Kind   LegKind
	PairID int64
}

func (t Transaction) Leg() Leg {
	if t.Type != Transfer {
		return Leg{Kind: SingleEntry}
	}
	var pair int64
	if t.LinkedTransferID != nil {
		pair = *t.LinkedTransferID
	}
	if t.ToAccountID != nil {
		return Leg{Kind: TransferOut, PairID: pair}
	}
	return Leg{Kind: TransferIn, PairID: pair}
}

// Effect is the signed amount the entry contributes to accountID's balance.
// Deleted and opening entries contribute nothing.
func (t Transaction) Effect(accountID int64) int64 {
	if !t.Live() || t.IsOpening {
		return 0
	}
	switch t.Type {
	case Income:
		if t.AccountID == accountID {
			return t.Amount
		}
	case Expense:
		if t.AccountID == accountID {
			return -t.Amount
		}
	case Transfer:
		switch {
		case t.AccountID == accountID && t.ToAccountID != nil:
			return -t.Amount
		case t.AccountID == accountID:
			return t.Amount
		case t.ToAccountID != nil && *t.ToAccountID == accountID && t.LinkedTransferID == nil:
			// single-row transfer without an incoming leg
			return t.Amount
		}
	}
	return 0
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// SameID compares two optional ids.
func SameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
