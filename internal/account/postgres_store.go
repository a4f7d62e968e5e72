package account

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/spinhouse/coinledger/internal/idgen"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed account store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const accountColumns = `
	id, username, tx_code, balance, daily_transfer_count, daily_transfer_amount,
	last_transfer_time, status, COALESCE(status_reason, ''), created_at, updated_at`

func (p *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id)
	return scanAccount(row)
}

func (p *PostgresStore) GetByTxCode(ctx context.Context, txCode string) (*Account, error) {
	// LIMIT 2 so a duplicate code is detectable instead of silently
	// resolving to the first row.
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE tx_code = $1 LIMIT 2
	`, txCode)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var matches []*Account
	for rows.Next() {
		a, err := scanAccountRows(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return nil, ErrTxCodeConflict
	}
}

func (p *PostgresStore) Create(ctx context.Context, a *Account) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, tx_code, balance, daily_transfer_count,
			daily_transfer_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC(12,2), 0, 0, $5, $6, $6)
	`, a.ID, a.Username, a.TxCode, a.Balance, a.Status, a.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrTxCodeTaken
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	if a.Balance.Sign() > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO account_history (id, account_id, type, amount, created_at)
			VALUES ($1, $2, 'welcome', $3::NUMERIC(12,2), $4)
		`, idgen.New(), a.ID, a.Balance, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record welcome entry: %w", err)
		}
	}

	return tx.Commit()
}

func (p *PostgresStore) SetStatus(ctx context.Context, id string, status Status, reason string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET status = $2, status_reason = $3, updated_at = NOW()
		WHERE id = $1
	`, id, status, reason)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CountHistory(ctx context.Context, id string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM account_history WHERE account_id = $1
	`, id).Scan(&count)
	return count, err
}

func (p *PostgresStore) History(ctx context.Context, id string, limit int) ([]*HistoryEntry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, account_id, type, amount, COALESCE(counterparty_tx_code, ''),
			COALESCE(transaction_id, ''), created_at
		FROM account_history
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, id, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{}
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Type, &e.Amount,
			&e.CounterpartyTxCode, &e.TransactionID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStore) ResetDailyCounters(ctx context.Context) (int64, error) {
	result, err := p.db.ExecContext(ctx, `
		UPDATE accounts SET
			daily_transfer_count  = 0,
			daily_transfer_amount = 0,
			updated_at            = NOW()
		WHERE daily_transfer_count <> 0 OR daily_transfer_amount <> 0
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset daily counters: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*Account, error) {
	a, err := scanAccountFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAccountRows(rows *sql.Rows) (*Account, error) {
	return scanAccountFrom(rows)
}

func scanAccountFrom(s rowScanner) (*Account, error) {
	a := &Account{}
	var lastTransfer sql.NullTime
	if err := s.Scan(&a.ID, &a.Username, &a.TxCode, &a.Balance,
		&a.DailyTransferCount, &a.DailyTransferAmount,
		&lastTransfer, &a.Status, &a.StatusReason,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	if lastTransfer.Valid {
		t := lastTransfer.Time
		a.LastTransferTime = &t
	}
	return a, nil
}
