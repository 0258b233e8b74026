package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fintrack/internal/core"
)

// KindExpenseRecorded marks a committed write that created or grew an expense.
const KindExpenseRecorded = "expense_recorded"

// LedgerMutatedMessage announces a committed ledger write. It carries only
// what the budget evaluator needs to look up the envelope.
type LedgerMutatedMessage struct {
	EventID    string    `json:"event_id"`
	Kind       string    `json:"kind"`
	UserID     int64     `json:"user_id"`
	CategoryID int64     `json:"category_id"`
	Date       string    `json:"date"`
	Timestamp  time.Time `json:"timestamp"`
}

func NewExpenseRecordedMessage(userID, categoryID int64, date core.Date) *LedgerMutatedMessage {
	return &LedgerMutatedMessage{
		EventID:    uuid.NewString(),
		Kind:       KindExpenseRecorded,
		UserID:     userID,
		CategoryID: categoryID,
		Date:       date.String(),
		Timestamp:  time.Now(),
	}
}

// EntryDate parses the message's date.
func (m *LedgerMutatedMessage) EntryDate() (core.Date, error) {
	return core.ParseDate(m.Date)
}

// ToJSON converts the message to JSON bytes
func (m *LedgerMutatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerMutatedMessageFromJSON decodes and sanity-checks a message.
func LedgerMutatedMessageFromJSON(data []byte) (*LedgerMutatedMessage, error) {
	var msg LedgerMutatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(msg.EventID); err != nil {
		return nil, fmt.Errorf("invalid event id %q: %w", msg.EventID, err)
	}
	if msg.UserID <= 0 || msg.CategoryID <= 0 {
		return nil, fmt.Errorf("message %s is missing user or category", msg.EventID)
	}
	if _, err := msg.EntryDate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
