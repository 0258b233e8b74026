package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldUserID        = "user_id"
	FieldAccountID     = "account_id"
	FieldToAccountID   = "to_account_id"
	FieldTransactionID = "transaction_id"
	FieldTemplateID    = "template_id"
	FieldCategoryID    = "category_id"
	FieldAmountCents   = "amount_cents"
	FieldBalanceCents  = "balance_cents"
	FieldDate          = "date"
	FieldEventID       = "event_id"
	FieldErrorKind     = "error_kind"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentLedger    = "ledger"
	ComponentTransfer  = "transfer"
	ComponentRecurring = "recurring"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentBudget    = "budget"
	ComponentNotify    = "notify"
	ComponentWorker    = "worker"
	ComponentCache     = "cache"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpUpdate      = "update"
	OpDelete      = "delete"
	OpRecompute   = "recompute"
	OpMaterialize = "materialize"
	OpPublish     = "publish"
	OpConsume     = "consume"
	OpEvaluate    = "evaluate"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithEntry adds the identifying fields of a ledger entry.
func (f LogFields) WithEntry(id, userID, accountID, amountCents int64) LogFields {
	f[FieldTransactionID] = id
	f[FieldUserID] = userID
	f[FieldAccountID] = accountID
	f[FieldAmountCents] = amountCents
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
