package audit

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// MemoryStore implements Store in memory for demo mode and testing.
type MemoryStore struct {
	entries []*Entry
	mu      sync.RWMutex
}

// NewMemoryStore creates an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Append(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *e
	if cp.ID == "" {
		cp.ID = idgen.New()
	}
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *MemoryStore) CountBySenderSince(_ context.Context, senderID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if e.SenderID == senderID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) CountBySenderToRecipientSince(_ context.Context, senderID, recipientID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, e := range m.entries {
		if e.SenderID == senderID && e.RecipientID == recipientID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MemoryStore) SenderTotalsSince(_ context.Context, senderID string, since time.Time) (Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t := Totals{Amount: decimal.Zero}
	for _, e := range m.entries {
		if e.SenderID == senderID && !e.CreatedAt.Before(since) {
			t.Count++
			t.Amount = t.Amount.Add(e.Amount)
		}
	}
	return t, nil
}
