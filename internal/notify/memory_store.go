package notify

import (
	"context"
	"sync"
)

// MemoryStore implements Store in memory for demo mode and testing.
type MemoryStore struct {
	byID   map[string]*Notification
	byUser map[string][]string
	mu     sync.RWMutex
}

// NewMemoryStore creates an in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Notification),
		byUser: make(map[string][]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *n
	m.byID[cp.ID] = &cp
	m.byUser[cp.UserID] = append(m.byUser[cp.UserID], cp.ID)
	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.byUser[userID]
	var result []*Notification
	for i := len(ids) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *m.byID[ids[i]]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	n.Read = true
	return nil
}
