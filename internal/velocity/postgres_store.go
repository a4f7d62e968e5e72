package velocity

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// PostgresAlertStore implements AlertStore with PostgreSQL
type PostgresAlertStore struct {
	db *sql.DB
}

// NewPostgresAlertStore creates a new PostgreSQL-backed alert store
func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

func (p *PostgresAlertStore) Create(ctx context.Context, a *Alert) error {
	if a.ID == "" {
		a.ID = idgen.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO security_alerts (id, type, user_id, transaction_count,
			timeframe, severity, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Type, a.UserID, a.TransactionCount, a.Timeframe,
		a.Severity, a.Status, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert security alert: %w", err)
	}
	return nil
}

func (p *PostgresAlertStore) List(ctx context.Context, limit int) ([]*Alert, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, user_id, transaction_count, timeframe, severity, status, created_at
		FROM security_alerts
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var alerts []*Alert
	for rows.Next() {
		a := &Alert{}
		if err := rows.Scan(&a.ID, &a.Type, &a.UserID, &a.TransactionCount,
			&a.Timeframe, &a.Severity, &a.Status, &a.CreatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (p *PostgresAlertStore) Acknowledge(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE security_alerts SET status = 'acknowledged' WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAlertNotFound
	}
	return nil
}
