// Package audit keeps the append-only record of completed transfers.
// Entries are never mutated or deleted; fraud screening, velocity
// monitoring and user stats are all read off this trail.
package audit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one completed transfer. Immutable once written.
type Entry struct {
	ID              string          `json:"id"`
	TransactionID   string          `json:"transactionId"`
	SenderID        string          `json:"senderId"`
	SenderTxCode    string          `json:"senderTxCode"`
	RecipientID     string          `json:"recipientId"`
	RecipientTxCode string          `json:"recipientTxCode"`
	Amount          decimal.Decimal `json:"amount"`
	Status          string          `json:"status"` // always "completed"
	IP              string          `json:"ip,omitempty"`
	UserAgent       string          `json:"userAgent,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Totals aggregates a sender's completed transfers over a window.
type Totals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Store is the append-only audit trail with the window queries the
// read-side advisors need.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	// CountBySenderSince counts the sender's entries at or after since.
	CountBySenderSince(ctx context.Context, senderID string, since time.Time) (int, error)
	// CountBySenderToRecipientSince counts entries from senderID to
	// recipientID at or after since.
	CountBySenderToRecipientSince(ctx context.Context, senderID, recipientID string, since time.Time) (int, error)
	// SenderTotalsSince sums the sender's entries at or after since.
	SenderTotalsSince(ctx context.Context, senderID string, since time.Time) (Totals, error)
}
