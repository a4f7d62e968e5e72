package transfer

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/spinhouse/coinledger/internal/account"
	"github.com/spinhouse/coinledger/internal/audit"
	"github.com/spinhouse/coinledger/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transfer store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreatePending(ctx context.Context, t *PendingTransaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pending_transactions (transaction_id, sender_id, sender_tx_code,
			recipient_id, recipient_tx_code, recipient_name, amount, status,
			requires_manual_review, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(12,2), $8, $9, $10)
	`, t.TransactionID, t.SenderID, t.SenderTxCode, t.RecipientID,
		t.RecipientTxCode, t.RecipientName, t.Amount, t.Status,
		t.RequiresManualReview, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending transaction: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetPending(ctx context.Context, transactionID string) (*PendingTransaction, error) {
	t := &PendingTransaction{}
	var executedAt, failedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT transaction_id, sender_id, sender_tx_code, recipient_id,
			recipient_tx_code, recipient_name, amount, status,
			requires_manual_review, COALESCE(failure_reason, ''),
			created_at, executed_at, failed_at
		FROM pending_transactions
		WHERE transaction_id = $1
	`, transactionID).Scan(&t.TransactionID, &t.SenderID, &t.SenderTxCode,
		&t.RecipientID, &t.RecipientTxCode, &t.RecipientName, &t.Amount,
		&t.Status, &t.RequiresManualReview, &t.FailureReason,
		&t.CreatedAt, &executedAt, &failedAt)
	if err == sql.ErrNoRows {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, err
	}
	if executedAt.Valid {
		v := executedAt.Time
		t.ExecutedAt = &v
	}
	if failedAt.Valid {
		v := failedAt.Time
		t.FailedAt = &v
	}
	return t, nil
}

func (p *PostgresStore) MarkFailed(ctx context.Context, transactionID, reason string, at time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pending_transactions
		SET status = 'failed', failure_reason = $2, failed_at = $3
		WHERE transaction_id = $1 AND status = 'pending'
	`, transactionID, reason, at)
	return err
}

// Execute runs the whole commit as one serializable transaction. The
// conditional status flip doubles as the idempotency lock: a second
// execution of the same transaction id finds no pending row and
// aborts without touching a balance.
func (p *PostgresStore) Execute(ctx context.Context, transactionID string, meta Meta, now time.Time) (*Outcome, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		senderID, senderTxCode       string
		recipientID, recipientTxCode string
		amount                       decimal.Decimal
	)
	err = tx.QueryRowContext(ctx, `
		UPDATE pending_transactions
		SET status = 'completed', executed_at = $2
		WHERE transaction_id = $1 AND status = 'pending'
		RETURNING sender_id, sender_tx_code, recipient_id, recipient_tx_code, amount
	`, transactionID, now).Scan(&senderID, &senderTxCode, &recipientID, &recipientTxCode, &amount)
	if err == sql.ErrNoRows {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("claiming pending transaction: %w", err)
	}

	// The balance guard in the WHERE clause is the live re-verify.
	var newBalance decimal.Decimal
	err = tx.QueryRowContext(ctx, `
		UPDATE accounts SET
			balance               = balance - $2::NUMERIC(12,2),
			daily_transfer_count  = daily_transfer_count + 1,
			daily_transfer_amount = daily_transfer_amount + $2::NUMERIC(12,2),
			last_transfer_time    = $3,
			updated_at            = $3
		WHERE id = $1 AND balance >= $2::NUMERIC(12,2)
		RETURNING balance
	`, senderID, amount, now).Scan(&newBalance)
	if err == sql.ErrNoRows {
		return nil, account.ErrInsufficientFunds
	}
	if err != nil {
		return nil, fmt.Errorf("debiting sender: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts SET balance = balance + $2::NUMERIC(12,2), updated_at = $3
		WHERE id = $1
	`, recipientID, amount, now)
	if err != nil {
		return nil, fmt.Errorf("crediting recipient: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, account.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_history (id, account_id, type, amount, counterparty_tx_code, transaction_id, created_at)
		VALUES ($1, $2, 'transfer', $3::NUMERIC(12,2), $4, $5, $6)
	`, idgen.New(), senderID, amount.Neg(), recipientTxCode, transactionID, now)
	if err != nil {
		return nil, fmt.Errorf("recording sender history: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO account_history (id, account_id, type, amount, counterparty_tx_code, transaction_id, created_at)
		VALUES ($1, $2, 'receive', $3::NUMERIC(12,2), $4, $5, $6)
	`, idgen.New(), recipientID, amount, senderTxCode, transactionID, now)
	if err != nil {
		return nil, fmt.Errorf("recording recipient history: %w", err)
	}

	entry := &audit.Entry{
		ID:              idgen.New(),
		TransactionID:   transactionID,
		SenderID:        senderID,
		SenderTxCode:    senderTxCode,
		RecipientID:     recipientID,
		RecipientTxCode: recipientTxCode,
		Amount:          amount,
		Status:          "completed",
		IP:              meta.IP,
		UserAgent:       meta.UserAgent,
		CreatedAt:       now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, transaction_id, sender_id, sender_tx_code,
			recipient_id, recipient_tx_code, amount, status, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC(12,2), $8, $9, $10, $11)
	`, entry.ID, entry.TransactionID, entry.SenderID, entry.SenderTxCode,
		entry.RecipientID, entry.RecipientTxCode, entry.Amount, entry.Status,
		entry.IP, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("recording audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Outcome{NewSenderBalance: newBalance, Audit: entry}, nil
}
