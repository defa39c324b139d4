package events

import (
	"time"
)

// OrderEvent is the message published to Kafka for every order lifecycle change.
type OrderEvent struct {
	EventType      string    `json:"event_type"`
	Sequence       uint64    `json:"sequence"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	Confirmations  int       `json:"confirmations"`
	FromSymbol     string    `json:"from_symbol"`
	ToSymbol       string    `json:"to_symbol"`
	FromAmount     string    `json:"from_amount"`
	ToAmount       string    `json:"to_amount"`
	TxHash         string    `json:"tx_hash,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
	Timestamp      time.Time `json:"timestamp"`
}
