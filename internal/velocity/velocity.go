// Package velocity watches the audit trail for burst activity and
// places offending accounts under review.
package velocity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/config"
	"github.com/spinhouse/coinledger/internal/idgen"
)

// AlertStatus is the triage state of a security alert.
type AlertStatus string

const (
	AlertNew          AlertStatus = "new"
	AlertAcknowledged AlertStatus = "acknowledged"
)

var ErrAlertNotFound = errors.New("security alert not found")

// Alert is one detected velocity incident.
type Alert struct {
	ID               string      `json:"id"`
	Type             string      `json:"type"` // always "velocity_attack"
	UserID           string      `json:"userId"`
	TransactionCount int         `json:"transactionCount"`
	Timeframe        string      `json:"timeframe"`
	Severity         string      `json:"severity"` // always "high"
	Status           AlertStatus `json:"status"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// AlertStore persists security alerts.
type AlertStore interface {
	Create(ctx context.Context, a *Alert) error
	List(ctx context.Context, limit int) ([]*Alert, error)
	Acknowledge(ctx context.Context, id string) error
}

// Publisher receives alerts for realtime delivery. Optional.
type Publisher interface {
	PublishSecurityAlert(a *Alert)
}

// Monitor reacts to freshly written audit entries. If a sender exceeds
// the velocity ceiling inside the trailing window the monitor raises a
// high-severity alert and moves the account to under_review. The
// transition is one-way; reinstating an account is an administrative
// action outside this service.
type Monitor struct {
	audits    audit.Store
	accounts  account.Store
	alerts    AlertStore
	rules     config.Rules
	publisher Publisher
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewMonitor creates a velocity monitor.
func NewMonitor(audits audit.Store, accounts account.Store, alerts AlertStore, rules config.Rules, logger *slog.Logger) *Monitor {
	return &Monitor{
		audits:   audits,
		accounts: accounts,
		alerts:   alerts,
		rules:    rules,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// SetPublisher attaches a realtime alert publisher.
func (m *Monitor) SetPublisher(p Publisher) { m.publisher = p }

// OnAuditEntryCreated runs the velocity check for the entry's sender.
// Invoked by the executor after every commit.
func (m *Monitor) OnAuditEntryCreated(ctx context.Context, e *audit.Entry) error {
	now := m.nowFn().UTC()
	since := now.Add(-m.rules.VelocityWindow)

	count, err := m.audits.CountBySenderSince(ctx, e.SenderID, since)
	if err != nil {
		return fmt.Errorf("counting recent transfers: %w", err)
	}
	if count <= m.rules.VelocityMax {
		return nil
	}

	alert := &Alert{
		ID:               idgen.New(),
		Type:             "velocity_attack",
		UserID:           e.SenderID,
		TransactionCount: count,
		Timeframe:        fmt.Sprintf("%d minutes", int(m.rules.VelocityWindow.Minutes())),
		Severity:         "high",
		Status:           AlertNew,
		CreatedAt:        now,
	}
	if err := m.alerts.Create(ctx, alert); err != nil {
		return fmt.Errorf("creating security alert: %w", err)
	}

	if err := m.accounts.SetStatus(ctx, e.SenderID, account.StatusUnderReview,
		"transaction velocity exceeded"); err != nil {
		m.logger.Error("failed to place account under review",
			"account", e.SenderID, "error", err)
	}

	if m.publisher != nil {
		m.publisher.PublishSecurityAlert(alert)
	}

	m.logger.Warn("velocity attack detected",
		"account", e.SenderID,
		"transfers", count,
		"window", m.rules.VelocityWindow.String(),
	)
	return nil
}

// MemoryAlertStore implements AlertStore in memory for demo mode and
// testing.
type MemoryAlertStore struct {
	alerts map[string]*Alert
	order  []string
	mu     sync.RWMutex
}

// NewMemoryAlertStore creates an in-memory alert store.
func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*Alert)}
}

func (m *MemoryAlertStore) Create(_ context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	if cp.ID == "" {
		cp.ID = idgen.New()
	}
	m.alerts[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	a.ID = cp.ID
	return nil
}

func (m *MemoryAlertStore) List(_ context.Context, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Alert
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *m.alerts[m.order[i]]
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryAlertStore) Acknowledge(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	a.Status = AlertAcknowledged
	return nil
}
