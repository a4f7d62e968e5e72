// Package account tracks user coin balances on the platform.
//
// Flow:
//  1. User registers, account is seeded with a welcome credit
//  2. Transfers debit and credit balances (see internal/transfer)
//  3. Daily counters gate transfer quotas, reset at UTC midnight
//  4. The velocity monitor can place an account under review
package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/idgen"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrTxCodeConflict    = errors.New("transfer code matches multiple accounts")
	ErrTxCodeTaken       = errors.New("transfer code already in use")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive      Status = "active"
	StatusUnderReview Status = "under_review"
	StatusFrozen      Status = "frozen"
)

// Account is one user's balance record.
type Account struct {
	ID                  string          `json:"id"`
	Username            string          `json:"username"`
	TxCode              string          `json:"txCode"`
	Balance             decimal.Decimal `json:"balance"`
	DailyTransferCount  int             `json:"dailyTransferCount"`
	DailyTransferAmount decimal.Decimal `json:"dailyTransferAmount"`
	LastTransferTime    *time.Time      `json:"lastTransferTime,omitempty"`
	Status              Status          `json:"status"`
	StatusReason        string          `json:"statusReason,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// HistoryEntry is one append-only line in an account's history.
// Amounts are signed: transfers out are negative, receipts positive.
type HistoryEntry struct {
	ID                 string          `json:"id"`
	AccountID          string          `json:"accountId"`
	Type               string          `json:"type"` // transfer, receive, welcome
	Amount             decimal.Decimal `json:"amount"`
	CounterpartyTxCode string          `json:"counterpartyTxCode,omitempty"`
	TransactionID      string          `json:"transactionId,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
}

// Store persists account records.
type Store interface {
	Get(ctx context.Context, id string) (*Account, error)
	// GetByTxCode resolves a public transfer code. Returns ErrNotFound for
	// zero matches and ErrTxCodeConflict when the code matches more than
	// one account (a data-integrity fault, never "first match wins").
	GetByTxCode(ctx context.Context, txCode string) (*Account, error)
	// Create inserts an account and, when it carries a starting balance,
	// the welcome history entry, atomically.
	Create(ctx context.Context, a *Account) error
	SetStatus(ctx context.Context, id string, status Status, reason string) error
	CountHistory(ctx context.Context, id string) (int, error)
	History(ctx context.Context, id string, limit int) ([]*HistoryEntry, error)
	// ResetDailyCounters zeroes dailyTransferCount/dailyTransferAmount on
	// every account and reports how many rows changed.
	ResetDailyCounters(ctx context.Context) (int64, error)
}

// Service creates accounts and exposes read paths for handlers.
type Service struct {
	store         Store
	welcomeCredit decimal.Decimal
	logger        *slog.Logger
}

// NewService creates an account service.
func NewService(store Store, welcomeCredit decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{store: store, welcomeCredit: welcomeCredit, logger: logger}
}

// Register creates a new account with a fresh transfer code and the
// welcome credit.
func (s *Service) Register(ctx context.Context, username string) (*Account, error) {
	now := time.Now().UTC()
	a := &Account{
		ID:                  idgen.WithPrefix("usr_"),
		Username:            username,
		TxCode:              GenerateTxCode(),
		Balance:             s.welcomeCredit,
		DailyTransferAmount: decimal.Zero,
		Status:              StatusActive,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	// A fresh random code can collide with an existing one; retry a few
	// times before giving up.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.store.Create(ctx, a)
		if !errors.Is(err, ErrTxCodeTaken) {
			break
		}
		a.TxCode = GenerateTxCode()
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered",
		"account", a.ID,
		"txCode", a.TxCode,
		"welcomeCredit", s.welcomeCredit.String(),
	)
	return a, nil
}

// Get returns an account by internal ID.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	return s.store.Get(ctx, id)
}

// History returns the most recent history entries for an account.
func (s *Service) History(ctx context.Context, id string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.History(ctx, id, limit)
}

const (
	txCodeLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	txCodeDigits  = "0123456789"
)

// GenerateTxCode mints a public transfer code, e.g. "XBT-QJM-408133-PKV".
func GenerateTxCode() string {
	return fmt.Sprintf("XBT-%s-%s-%s",
		randomFrom(txCodeLetters, 3),
		randomFrom(txCodeDigits, 6),
		randomFrom(txCodeLetters, 3),
	)
}

func randomFrom(alphabet string, n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	out := make([]byte, n)
	for i := range b {
		out[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(out)
}
