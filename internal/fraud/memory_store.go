package fraud

import (
	"context"
	"sync"
	"time"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// MemoryFlagStore implements FlagStore in memory for demo mode and
// testing.
type MemoryFlagStore struct {
	flags map[string]*FlaggedTransaction
	order []string // insertion order, oldest first
	mu    sync.RWMutex
}

// NewMemoryFlagStore creates an in-memory flag store.
func NewMemoryFlagStore() *MemoryFlagStore {
	return &MemoryFlagStore{flags: make(map[string]*FlaggedTransaction)}
}

func (m *MemoryFlagStore) Create(_ context.Context, f *FlaggedTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *f
	if cp.ID == "" {
		cp.ID = idgen.New()
	}
	m.flags[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	f.ID = cp.ID
	return nil
}

func (m *MemoryFlagStore) Get(_ context.Context, id string) (*FlaggedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.flags[id]
	if !ok {
		return nil, ErrFlagNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *MemoryFlagStore) List(_ context.Context, status FlagStatus, limit int) ([]*FlaggedTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*FlaggedTransaction
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		f := m.flags[m.order[i]]
		if status != "" && f.Status != status {
			continue
		}
		cp := *f
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryFlagStore) SetReview(_ context.Context, id string, status FlagStatus, reviewerID, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flags[id]
	if !ok {
		return ErrFlagNotFound
	}
	f.Status = status
	f.ReviewedBy = reviewerID
	f.ReviewReason = reason
	t := at
	f.ReviewedAt = &t
	return nil
}
