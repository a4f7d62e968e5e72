package fraud

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// PostgresFlagStore implements FlagStore with PostgreSQL
type PostgresFlagStore struct {
	db *sql.DB
}

// NewPostgresFlagStore creates a new PostgreSQL-backed flag store
func NewPostgresFlagStore(db *sql.DB) *PostgresFlagStore {
	return &PostgresFlagStore{db: db}
}

const flagColumns = `
	id, sender_id, COALESCE(recipient_id, ''), amount, reason, level,
	auto_approved, status, COALESCE(reviewed_by, ''), reviewed_at,
	COALESCE(review_reason, ''), created_at`

func (p *PostgresFlagStore) Create(ctx context.Context, f *FlaggedTransaction) error {
	if f.ID == "" {
		f.ID = idgen.New()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO flagged_transactions (id, sender_id, recipient_id, amount,
			reason, level, auto_approved, status, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(12,2), $5, $6, $7, $8, $9)
	`, f.ID, f.SenderID, f.RecipientID, f.Amount, f.Reason, f.Level,
		f.AutoApproved, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert flagged transaction: %w", err)
	}
	return nil
}

func (p *PostgresFlagStore) Get(ctx context.Context, id string) (*FlaggedTransaction, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+flagColumns+` FROM flagged_transactions WHERE id = $1
	`, id)
	f, err := scanFlag(row)
	if err == sql.ErrNoRows {
		return nil, ErrFlagNotFound
	}
	return f, err
}

func (p *PostgresFlagStore) List(ctx context.Context, status FlagStatus, limit int) ([]*FlaggedTransaction, error) {
	query := `SELECT ` + flagColumns + ` FROM flagged_transactions`
	args := []any{limit}
	if status != "" {
		query += ` WHERE status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT $1`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var flags []*FlaggedTransaction
	for rows.Next() {
		f, err := scanFlag(rows)
		if err != nil {
			return nil, err
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}

func (p *PostgresFlagStore) SetReview(ctx context.Context, id string, status FlagStatus, reviewerID, reason string, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE flagged_transactions
		SET status = $2, reviewed_by = $3, review_reason = $4, reviewed_at = $5
		WHERE id = $1
	`, id, status, reviewerID, reason, at)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrFlagNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlag(s rowScanner) (*FlaggedTransaction, error) {
	f := &FlaggedTransaction{}
	var reviewedAt sql.NullTime
	if err := s.Scan(&f.ID, &f.SenderID, &f.RecipientID, &f.Amount,
		&f.Reason, &f.Level, &f.AutoApproved, &f.Status,
		&f.ReviewedBy, &reviewedAt, &f.ReviewReason, &f.CreatedAt); err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		f.ReviewedAt = &t
	}
	return f, nil
}
