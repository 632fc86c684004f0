package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kakeibo/internal/core"
)

const MessageTypePeriodsReplaced = "ledger.periods_replaced"

// PeriodsReplacedMessage announces a committed ingest batch. Consumers
// reload the listed periods from the store; the message carries no records.
type PeriodsReplacedMessage struct {
	Type      string    `json:"type"`
	BatchID   string    `json:"batch_id"`
	Periods   []string  `json:"periods"`
	Processed int       `json:"processed"`
	Timestamp time.Time `json:"timestamp"`
}

func NewPeriodsReplacedMessage(batchID string, periods []string, processed int) *PeriodsReplacedMessage {
	return &PeriodsReplacedMessage{
		Type:      MessageTypePeriodsReplaced,
		BatchID:   batchID,
		Periods:   append([]string(nil), periods...),
		Processed: processed,
		Timestamp: time.Now().UTC(),
	}
}

func (m *PeriodsReplacedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Validate checks the message is well formed.
func (m *PeriodsReplacedMessage) Validate() error {
	if m.Type != MessageTypePeriodsReplaced {
		return fmt.Errorf("unexpected message type %q", m.Type)
	}
	if m.BatchID == "" {
		return errors.New("missing batch_id")
	}
	if len(m.Periods) == 0 {
		return errors.New("no periods")
	}
	for _, p := range m.Periods {
		if _, err := core.ParsePeriod(p); err != nil {
			return err
		}
	}
	return nil
}

// LedgerPeriods returns Periods as core periods. Call Validate first.
func (m *PeriodsReplacedMessage) LedgerPeriods() []core.Period {
	out := make([]core.Period, len(m.Periods))
	for i, p := range m.Periods {
		out[i] = core.Period(p)
	}
	return out
}

// PeriodsReplacedMessageFromJSON decodes and validates a message body.
func PeriodsReplacedMessageFromJSON(data []byte) (*PeriodsReplacedMessage, error) {
	var msg PeriodsReplacedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
