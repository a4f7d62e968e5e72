// Package transfer implements the coin transfer engine: a two-phase
// validate/execute flow over the account ledger.
//
// Flow:
//  1. Validate screens a prospective transfer (input, rate limit,
//     recipient, balance, fraud) and mints a pending transaction
//  2. Execute commits the pending transaction atomically: balances
//     move, counters bump, and the audit entry lands in one store
//     transaction
//  3. The velocity monitor reacts to the fresh audit entry
//
// Validators and executors hold no state of their own; everything
// contested lives behind the store interfaces.
package transfer

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/audit"
)

var (
	ErrPendingNotFound = errors.New("pending transaction not found")
	// ErrNotPending is returned by Execute when the pending transaction
	// was already completed or failed. This is the idempotency guard:
	// the conditional status flip happens inside the store transaction,
	// so two racing executions can never both commit.
	ErrNotPending = errors.New("transaction is not pending")
)

// PendingStatus is the lifecycle of a pending transaction.
type PendingStatus string

const (
	StatusPending   PendingStatus = "pending"
	StatusCompleted PendingStatus = "completed"
	StatusFailed    PendingStatus = "failed"
)

// PendingTransaction is a validated transfer awaiting one execution.
type PendingTransaction struct {
	TransactionID        string          `json:"transactionId"`
	SenderID             string          `json:"senderId"`
	SenderTxCode         string          `json:"senderTxCode"`
	RecipientID          string          `json:"recipientId"`
	RecipientTxCode      string          `json:"recipientTxCode"`
	RecipientName        string          `json:"recipientName"`
	Amount               decimal.Decimal `json:"amount"`
	Status               PendingStatus   `json:"status"`
	RequiresManualReview bool            `json:"requiresManualReview"`
	FailureReason        string          `json:"failureReason,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	ExecutedAt           *time.Time      `json:"executedAt,omitempty"`
	FailedAt             *time.Time      `json:"failedAt,omitempty"`
}

// Meta carries request metadata into the audit trail.
type Meta struct {
	IP        string
	UserAgent string
}

// Outcome is what a committed execution produced.
type Outcome struct {
	NewSenderBalance decimal.Decimal
	Audit            *audit.Entry
}

// Store persists pending transactions and owns the atomic execution
// primitive.
type Store interface {
	CreatePending(ctx context.Context, p *PendingTransaction) error
	GetPending(ctx context.Context, transactionID string) (*PendingTransaction, error)
	// MarkFailed moves a pending transaction to failed. A no-op error
	// free call when the transaction is no longer pending.
	MarkFailed(ctx context.Context, transactionID, reason string, at time.Time) error
	// Execute atomically flips the pending transaction to completed,
	// re-reads and re-verifies the sender balance, moves the coins,
	// bumps the sender's daily counters, appends both history entries
	// and the audit entry. All effects commit together or none do.
	// Returns ErrNotPending when the status flip finds no pending row
	// and account.ErrInsufficientFunds when the re-verify fails.
	Execute(ctx context.Context, transactionID string, meta Meta, now time.Time) (*Outcome, error)
}
