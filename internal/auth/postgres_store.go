package auth

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed token store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO auth_tokens (id, hash, user_id, role, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.Hash, t.UserID, t.Role, t.CreatedAt, t.ExpiresAt, t.Revoked)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Token, error) {
	t := &Token{}
	var lastUsed, expiresAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, hash, user_id, role, created_at, last_used, expires_at, revoked
		FROM auth_tokens
		WHERE hash = $1
	`, hash).Scan(&t.ID, &t.Hash, &t.UserID, &t.Role, &t.CreatedAt,
		&lastUsed, &expiresAt, &t.Revoked)
	if err == sql.ErrNoRows {
		return nil, ErrTokenMissing
	}
	if err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t.LastUsed = lastUsed.Time
	}
	if expiresAt.Valid {
		v := expiresAt.Time
		t.ExpiresAt = &v
	}
	return t, nil
}

func (p *PostgresStore) Update(ctx context.Context, t *Token) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE auth_tokens SET last_used = $2, revoked = $3 WHERE id = $1
	`, t.ID, t.LastUsed, t.Revoked)
	return err
}

func (p *PostgresStore) Revoke(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE auth_tokens SET revoked = TRUE WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrTokenMissing
	}
	return nil
}
