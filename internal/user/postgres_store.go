package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed user store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*User, error) {
	var u User
	var publicKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, stellar_public_key, created_at, updated_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &publicKey, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.StellarPublicKey = publicKey.String
	return &u, nil
}

func (s *PostgresStore) SetWallet(ctx context.Context, id, publicKey string) (*User, error) {
	var u User
	var storedKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, stellar_public_key, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET stellar_public_key = EXCLUDED.stellar_public_key, updated_at = NOW()
		RETURNING id, stellar_public_key, created_at, updated_at
	`, id, publicKey).Scan(&u.ID, &storedKey, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert user wallet: %w", err)
	}
	u.StellarPublicKey = storedKey.String
	return &u, nil
}
