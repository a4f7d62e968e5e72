package fraud

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrFlagNotFound = errors.New("flagged transaction not found")
)

// FlagStatus is the review lifecycle of a flagged transaction.
type FlagStatus string

const (
	FlagPendingReview FlagStatus = "pending_review"
	FlagApproved      FlagStatus = "approved"
	FlagRejected      FlagStatus = "rejected"
)

// FlaggedTransaction is one transfer held for human review.
// approved and rejected are terminal.
type FlaggedTransaction struct {
	ID           string          `json:"id"`
	SenderID     string          `json:"senderId"`
	RecipientID  string          `json:"recipientId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	Level        Level           `json:"level"`
	AutoApproved bool            `json:"autoApproved"`
	Status       FlagStatus      `json:"status"`
	ReviewedBy   string          `json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time      `json:"reviewedAt,omitempty"`
	ReviewReason string          `json:"reviewReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// FlagStore persists flagged transactions.
type FlagStore interface {
	Create(ctx context.Context, f *FlaggedTransaction) error
	Get(ctx context.Context, id string) (*FlaggedTransaction, error)
	// List returns flags newest first, filtered by status when status
	// is non-empty.
	List(ctx context.Context, status FlagStatus, limit int) ([]*FlaggedTransaction, error)
	// SetReview records a review outcome. The store does not enforce
	// terminality; the review service checks the prior status first.
	SetReview(ctx context.Context, id string, status FlagStatus, reviewerID, reason string, at time.Time) error
}
