// Package notify records user-facing notifications and fans them out
// to registered webhook endpoints.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spinhouse/coinledger/internal/idgen"
)

var ErrNotFound = errors.New("notification not found")

// Notification is one user-facing message.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"` // e.g. transaction_rejected
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	MarkRead(ctx context.Context, id string) error
}

// Publisher receives notifications for realtime delivery. Optional.
type Publisher interface {
	PublishNotification(n *Notification)
}

// Service persists notifications and pushes them out. Implements the
// Notifier contract the review service expects.
type Service struct {
	store      Store
	dispatcher *Dispatcher
	publisher  Publisher
	logger     *slog.Logger
}

// NewService creates a notification service. dispatcher may be nil
// when webhook delivery is not configured.
func NewService(store Store, dispatcher *Dispatcher, logger *slog.Logger) *Service {
	return &Service{store: store, dispatcher: dispatcher, logger: logger}
}

// SetPublisher attaches a realtime notification publisher.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// NotifyTransferRejected records a rejection notice for the user.
func (s *Service) NotifyTransferRejected(ctx context.Context, userID, message string) error {
	return s.notify(ctx, &Notification{
		ID:        idgen.New(),
		UserID:    userID,
		Type:      "transaction_rejected",
		Title:     "Transfer rejected",
		Message:   message,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) notify(ctx context.Context, n *Notification) error {
	if err := s.store.Create(ctx, n); err != nil {
		return err
	}
	if s.publisher != nil {
		s.publisher.PublishNotification(n)
	}
	if s.dispatcher != nil {
		// Webhook delivery is best effort and never blocks the caller.
		s.dispatcher.Dispatch(n)
	}
	s.logger.Info("notification created",
		"user", n.UserID, "type", n.Type)
	return nil
}

// ListByUser returns the user's notifications, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}

// MarkRead marks one notification as read.
func (s *Service) MarkRead(ctx context.Context, id string) error {
	return s.store.MarkRead(ctx, id)
}
