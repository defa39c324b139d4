package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventOrderConfirmation  = "order_confirmation"
	EventOrderOverridden    = "order_status_overridden"
)

// OutboxEvent is a pending order lifecycle notification waiting to be published.
type OutboxEvent struct {
	Sequence       uint64
	EventType      string
	OrderID        string
	Status         Status
	PreviousStatus Status
	Confirmations  int
	FromSymbol     string
	ToSymbol       string
	FromAmount     decimal.Decimal
	ToAmount       decimal.Decimal
	TxHash         string
	CreatedAt      time.Time
}

// NewOutboxEvent captures the current state of an order for publishing.
func NewOutboxEvent(eventType string, order Order, previous Status, at time.Time) OutboxEvent {
	txHash := order.TxHashOut
	if txHash == "" {
		txHash = order.TxHashIn
	}
	return OutboxEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		Status:         order.Status,
		PreviousStatus: previous,
		Confirmations:  order.Confirmations,
		FromSymbol:     order.FromSymbol,
		ToSymbol:       order.ToSymbol,
		FromAmount:     order.FromAmount,
		ToAmount:       order.ToAmount,
		TxHash:         txHash,
		CreatedAt:      at,
	}
}
