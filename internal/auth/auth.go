// Package auth provides bearer-token authentication for the API.
//
// Token issuance belongs to the platform's identity service; this
// package only stores token hashes and resolves a presented token to
// an account identity with an optional admin role claim.
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"
)

// Errors
var (
	ErrNoToken      = errors.New("bearer token required")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrTokenMissing = errors.New("token not found")
)

// Role is a caller's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Token is one stored credential. Only the hash is kept.
type Token struct {
	ID        string     `json:"id"`
	Hash      string     `json:"-"`
	UserID    string     `json:"userId"`
	Role      Role       `json:"role"`
	CreatedAt time.Time  `json:"createdAt"`
	LastUsed  time.Time  `json:"lastUsed,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	Revoked   bool       `json:"revoked"`
}

// Identity is the resolved caller.
type Identity struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the identity carries the admin claim.
func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Store persists token records
type Store interface {
	Create(ctx context.Context, t *Token) error
	GetByHash(ctx context.Context, hash string) (*Token, error)
	Update(ctx context.Context, t *Token) error
	Revoke(ctx context.Context, id string) error
}

// Manager resolves presented tokens to identities.
type Manager struct {
	store Store
}

// NewManager creates an auth manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// IssueToken mints a credential for a user. The raw token is returned
// once and never stored.
func (m *Manager) IssueToken(ctx context.Context, userID string, role Role) (rawToken string, t *Token, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}

	rawToken = "ct_" + hex.EncodeToString(b)
	t = &Token{
		ID:        "tk_" + hex.EncodeToString(b[:8]),
		Hash:      hashToken(rawToken),
		UserID:    userID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := m.store.Create(ctx, t); err != nil {
		return "", nil, err
	}
	return rawToken, t, nil
}

// Resolve validates a presented token and returns the caller identity.
func (m *Manager) Resolve(ctx context.Context, raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrNoToken
	}

	raw = strings.TrimPrefix(raw, "Bearer ")
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "ct_") {
		return Identity{}, ErrInvalidToken
	}

	t, err := m.store.GetByHash(ctx, hashToken(raw))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if t.Revoked {
		return Identity{}, ErrInvalidToken
	}
	if t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt) {
		return Identity{}, ErrInvalidToken
	}

	// Update last used (fire and forget)
	go func() {
		t.LastUsed = time.Now().UTC()
		_ = m.store.Update(context.Background(), t)
	}()

	return Identity{UserID: t.UserID, Role: t.Role}, nil
}

func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*Token // by ID
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]*Token)}
}

func (s *MemoryStore) Create(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = t
	return nil
}

func (s *MemoryStore) GetByHash(_ context.Context, hash string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tokens {
		if t.Hash == hash {
			return t, nil
		}
	}
	return nil, ErrTokenMissing
}

func (s *MemoryStore) Update(_ context.Context, t *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[t.ID] = t
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return ErrTokenMissing
	}
	t.Revoked = true
	return nil
}
