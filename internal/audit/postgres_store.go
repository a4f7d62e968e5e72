package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, e *Entry) error {
	id := e.ID
	if id == "" {
		id = idgen.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, transaction_id, sender_id, sender_tx_code,
			recipient_id, recipient_tx_code, amount, status, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(12,2), $8, $9, $10, $11)
	`, id, e.TransactionID, e.SenderID, e.SenderTxCode,
		e.RecipientID, e.RecipientTxCode, e.Amount, e.Status, e.IP, e.UserAgent, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (p *PostgresStore) CountBySenderSince(ctx context.Context, senderID string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE sender_id = $1 AND created_at >= $2
	`, senderID, since).Scan(&count)
	return count, err
}

func (p *PostgresStore) CountBySenderToRecipientSince(ctx context.Context, senderID, recipientID string, since time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE sender_id = $1 AND recipient_id = $2 AND created_at >= $3
	`, senderID, recipientID, since).Scan(&count)
	return count, err
}

func (p *PostgresStore) SenderTotalsSince(ctx context.Context, senderID string, since time.Time) (Totals, error) {
	t := Totals{Amount: decimal.Zero}
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0)
		FROM audit_logs
		WHERE sender_id = $1 AND created_at >= $2
	`, senderID, since).Scan(&t.Count, &t.Amount)
	return t, err
}
