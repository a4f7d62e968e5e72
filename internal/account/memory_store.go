package account

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// MemoryStore implements Store in memory for demo mode and testing.
type MemoryStore struct {
	accounts map[string]*Account
	byTxCode map[string][]string // txCode -> account IDs; >1 entry is a data fault
	history  map[string][]*HistoryEntry
	mu       sync.RWMutex
}

// NewMemoryStore creates an in-memory account store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*Account),
		byTxCode: make(map[string][]string),
		history:  make(map[string][]*HistoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *MemoryStore) getLocked(id string) (*Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) GetByTxCode(_ context.Context, txCode string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byTxCode[txCode]
	switch len(ids) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return m.getLocked(ids[0])
	default:
		return nil, ErrTxCodeConflict
	}
}

func (m *MemoryStore) Create(_ context.Context, a *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.byTxCode[a.TxCode]) > 0 {
		return ErrTxCodeTaken
	}

	cp := *a
	m.accounts[a.ID] = &cp
	m.byTxCode[a.TxCode] = append(m.byTxCode[a.TxCode], a.ID)

	if a.Balance.Sign() > 0 {
		m.history[a.ID] = append(m.history[a.ID], &HistoryEntry{
			ID:        idgen.New(),
			AccountID: a.ID,
			Type:      "welcome",
			Amount:    a.Balance,
			CreatedAt: a.CreatedAt,
		})
	}
	return nil
}

func (m *MemoryStore) SetStatus(_ context.Context, id string, status Status, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	a.StatusReason = reason
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) CountHistory(_ context.Context, id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history[id]), nil
}

func (m *MemoryStore) History(_ context.Context, id string, limit int) ([]*HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.history[id]
	var result []*HistoryEntry
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *entries[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) ResetDailyCounters(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var changed int64
	now := time.Now().UTC()
	for _, a := range m.accounts {
		if a.DailyTransferCount == 0 && a.DailyTransferAmount.Sign() == 0 {
			continue
		}
		a.DailyTransferCount = 0
		a.DailyTransferAmount = decimal.Zero
		a.UpdatedAt = now
		changed++
	}
	return changed, nil
}

// ApplyTransfer atomically moves amount from sender to recipient, bumps
// the sender's daily counters and lastTransferTime, and appends both
// history entries. Used by the in-memory transfer store as its
// transaction primitive. Returns the sender's new balance.
func (m *MemoryStore) ApplyTransfer(senderID, recipientID, transactionID string, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sender, ok := m.accounts[senderID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	recipient, ok := m.accounts[recipientID]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	if sender.Balance.LessThan(amount) {
		return decimal.Zero, ErrInsufficientFunds
	}

	sender.Balance = sender.Balance.Sub(amount)
	sender.DailyTransferCount++
	sender.DailyTransferAmount = sender.DailyTransferAmount.Add(amount)
	t := now
	sender.LastTransferTime = &t
	sender.UpdatedAt = now

	recipient.Balance = recipient.Balance.Add(amount)
	recipient.UpdatedAt = now

	m.history[senderID] = append(m.history[senderID], &HistoryEntry{
		ID:                 idgen.New(),
		AccountID:          senderID,
		Type:               "transfer",
		Amount:             amount.Neg(),
		CounterpartyTxCode: recipient.TxCode,
		TransactionID:      transactionID,
		CreatedAt:          now,
	})
	m.history[recipientID] = append(m.history[recipientID], &HistoryEntry{
		ID:                 idgen.New(),
		AccountID:          recipientID,
		Type:               "receive",
		Amount:             amount,
		CounterpartyTxCode: sender.TxCode,
		TransactionID:      transactionID,
		CreatedAt:          now,
	})

	return sender.Balance, nil
}

// Put inserts or replaces an account without welcome-credit side effects
// (for tests).
func (m *MemoryStore) Put(a *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.accounts[a.ID]; ok && prev.TxCode != a.TxCode {
		m.byTxCode[prev.TxCode] = removeID(m.byTxCode[prev.TxCode], a.ID)
	}
	cp := *a
	m.accounts[a.ID] = &cp
	if !containsID(m.byTxCode[a.TxCode], a.ID) {
		m.byTxCode[a.TxCode] = append(m.byTxCode[a.TxCode], a.ID)
	}
}

// PutHistory appends raw history entries (for tests).
func (m *MemoryStore) PutHistory(entries ...*HistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := *e
		m.history[e.AccountID] = append(m.history[e.AccountID], &cp)
	}
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
