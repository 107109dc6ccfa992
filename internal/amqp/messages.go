package amqp

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by LedgerChangedMessage.
const (
	ReasonCategorized = "categorized"
	ReasonImported    = "imported"
	ReasonTaxonomy    = "taxonomy"
)

// LedgerChangedMessage announces that the reports of the listed years are
// stale. Consumers reload what they need from storage.
type LedgerChangedMessage struct {
	ID        uuid.UUID `json:"id"`
	Years     []int     `json:"years"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage returns a message with sorted, deduplicated years.
func NewLedgerChangedMessage(years []int, reason string) *LedgerChangedMessage {
	ys := slices.Clone(years)
	slices.Sort(ys)
	return &LedgerChangedMessage{
		ID:        uuid.New(),
		Years:     slices.Compact(ys),
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message and rejects ones without
// years.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if len(msg.Years) == 0 {
		return nil, fmt.Errorf("message %s has no years", msg.ID)
	}
	return &msg, nil
}
