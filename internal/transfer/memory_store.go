package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/idgen"
)

// MemoryStore implements Store in memory for demo mode and testing.
// Execution serializes on a single mutex; the account store's
// ApplyTransfer is the balance-movement primitive.
type MemoryStore struct {
	accounts *account.MemoryStore
	audits   audit.Store
	pendings map[string]*PendingTransaction
	mu       sync.Mutex
}

// NewMemoryStore creates an in-memory transfer store over the given
// account and audit stores.
func NewMemoryStore(accounts *account.MemoryStore, audits audit.Store) *MemoryStore {
	return &MemoryStore{
		accounts: accounts,
		audits:   audits,
		pendings: make(map[string]*PendingTransaction),
	}
}

func (m *MemoryStore) CreatePending(_ context.Context, p *PendingTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.pendings[p.TransactionID] = &cp
	return nil
}

func (m *MemoryStore) GetPending(_ context.Context, transactionID string) (*PendingTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pendings[transactionID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, transactionID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pendings[transactionID]
	if !ok {
		return ErrPendingNotFound
	}
	if p.Status != StatusPending {
		return nil
	}
	p.Status = StatusFailed
	p.FailureReason = reason
	t := at
	p.FailedAt = &t
	return nil
}

func (m *MemoryStore) Execute(ctx context.Context, transactionID string, meta Meta, now time.Time) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pendings[transactionID]
	if !ok {
		return nil, ErrPendingNotFound
	}
	if p.Status != StatusPending {
		return nil, ErrNotPending
	}

	newBalance, err := m.accounts.ApplyTransfer(p.SenderID, p.RecipientID, p.TransactionID, p.Amount, now)
	if err != nil {
		return nil, err
	}

	entry := &audit.Entry{
		ID:              idgen.New(),
		TransactionID:   p.TransactionID,
		SenderID:        p.SenderID,
		SenderTxCode:    p.SenderTxCode,
		RecipientID:     p.RecipientID,
		RecipientTxCode: p.RecipientTxCode,
		Amount:          p.Amount,
		Status:          "completed",
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		CreatedAt:       now,
	}
	if err := m.audits.Append(ctx, entry); err != nil {
		return nil, err
	}

	p.Status = StatusCompleted
	t := now
	p.ExecutedAt = &t

	return &Outcome{NewSenderBalance: newBalance, Audit: entry}, nil
}
