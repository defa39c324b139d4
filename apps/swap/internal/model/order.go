package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settlement state of a swap order.
type Status string

const (
	StatusAwaitingDeposit Status = "AWAITING_DEPOSIT"
	StatusConfirming      Status = "CONFIRMING"
	StatusExchanging      Status = "EXCHANGING"
	StatusSending         Status = "SENDING"
	StatusCompleted       Status = "COMPLETED"
	StatusExpired         Status = "EXPIRED"
)

// Statuses lists every valid status in lifecycle order.
var Statuses = []Status{
	StatusAwaitingDeposit,
	StatusConfirming,
	StatusExchanging,
	StatusSending,
	StatusCompleted,
	StatusExpired,
}

// ParseStatus converts a case-insensitive status name into a Status.
func ParseStatus(value string) (Status, error) {
	candidate := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, s := range Statuses {
		if s == candidate {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", value)
}

// IsTerminal reports whether the automatic lifecycle stops at this status.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusExpired
}

// Next returns the status that follows s in the automatic lifecycle.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusAwaitingDeposit:
		return StatusConfirming, true
	case StatusConfirming:
		return StatusExchanging, true
	case StatusExchanging:
		return StatusSending, true
	case StatusSending:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// LogType categorises an order log entry.
type LogType string

const (
	LogInfo    LogType = "INFO"
	LogSuccess LogType = "SUCCESS"
	LogNetwork LogType = "NETWORK"
	LogError   LogType = "ERROR"
)

// LogEntry is one line of an order's audit trail.
type LogEntry struct {
	Timestamp int64   `json:"timestamp"` // epoch millis
	Message   string  `json:"message"`
	Type      LogType `json:"type"`
}

type Order struct {
	ID                    string          `json:"id"`
	FromSymbol            string          `json:"fromSymbol"`
	ToSymbol              string          `json:"toSymbol"`
	FromAmount            decimal.Decimal `json:"fromAmount"`
	ToAmount              decimal.Decimal `json:"toAmount"`
	Rate                  decimal.Decimal `json:"rate"`
	DestinationAddress    string          `json:"destinationAddress"`
	DepositAddress        string          `json:"depositAddress"`
	Status                Status          `json:"status"`
	Confirmations         int             `json:"confirmations"`
	RequiredConfirmations int             `json:"requiredConfirmations"`
	Provider              string          `json:"provider"`
	ProviderID            string          `json:"providerId,omitempty"`
	CreatedAt             int64           `json:"createdAt"` // epoch millis
	Logs                  []LogEntry      `json:"logs"`
	TxHashIn              string          `json:"txHashIn,omitempty"`
	TxHashOut             string          `json:"txHashOut,omitempty"`
}

// AppendLog adds an entry to the audit trail. Entries are never edited or removed.
func (o *Order) AppendLog(at time.Time, logType LogType, message string) {
	o.Logs = append(o.Logs, LogEntry{
		Timestamp: at.UnixMilli(),
		Message:   message,
		Type:      logType,
	})
}

// Clone returns a deep copy so callers never alias stored state.
func (o Order) Clone() Order {
	out := o
	if o.Logs != nil {
		out.Logs = make([]LogEntry, len(o.Logs))
		copy(out.Logs, o.Logs)
	}
	return out
}

// CreatedTime returns CreatedAt as a time.Time.
func (o Order) CreatedTime() time.Time {
	return time.UnixMilli(o.CreatedAt)
}

// LastActivity returns the timestamp of the newest log entry, or the creation
// time when the log is empty.
func (o Order) LastActivity() time.Time {
	if len(o.Logs) == 0 {
		return o.CreatedTime()
	}
	return time.UnixMilli(o.Logs[len(o.Logs)-1].Timestamp)
}
