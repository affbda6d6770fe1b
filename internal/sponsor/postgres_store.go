package sponsor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists tiers and pledges in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed sponsor store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateTier(ctx context.Context, t *Tier) (*Tier, error) {
	var created Tier
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO sponsor_tiers (id, event_id, name, amount, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, event_id, name, amount, currency, created_at
	`, t.ID, t.EventID, t.Name, t.Amount, t.Currency).
		Scan(&created.ID, &created.EventID, &created.Name, &created.Amount, &created.Currency, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert sponsor tier: %w", err)
	}
	return &created, nil
}

func (s *PostgresStore) GetTier(ctx context.Context, id string) (*Tier, error) {
	var t Tier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, name, amount, currency, created_at
		FROM sponsor_tiers WHERE id = $1
	`, id).Scan(&t.ID, &t.EventID, &t.Name, &t.Amount, &t.Currency, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query sponsor tier: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTiersByEvent(ctx context.Context, eventID string) ([]*Tier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, name, amount, currency, created_at
		FROM sponsor_tiers WHERE event_id = $1 ORDER BY created_at
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list sponsor tiers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Tier
	for rows.Next() {
		var t Tier
		if err := rows.Scan(&t.ID, &t.EventID, &t.Name, &t.Amount, &t.Currency, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sponsor tier: %w", err)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

const pledgeColumns = `id, event_id, tier_id, sponsor_id, amount, currency, status, transaction_hash, created_at, updated_at`

func (s *PostgresStore) CreatePledge(ctx context.Context, p *Pledge) (*Pledge, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO sponsor_pledges (id, event_id, tier_id, sponsor_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+pledgeColumns,
		p.ID, p.EventID, p.TierID, p.SponsorID, p.Amount, p.Currency, p.Status)

	created, err := scanPledge(row)
	if err != nil {
		return nil, fmt.Errorf("insert pledge: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) GetPendingPledge(ctx context.Context, id string) (*Pledge, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pledgeColumns+` FROM sponsor_pledges WHERE id = $1 AND status = $2`,
		id, PledgePending)

	p, err := scanPledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPledgeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pledge: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPledgesByEvent(ctx context.Context, eventID string) ([]*Pledge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pledgeColumns+` FROM sponsor_pledges WHERE event_id = $1 ORDER BY created_at`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pledge: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetPledgeConfirmed(ctx context.Context, id, transactionHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sponsor_pledges
		SET status = $1, transaction_hash = $2, updated_at = NOW()
		WHERE id = $3
	`, PledgeConfirmed, transactionHash, id)
	if err != nil {
		return fmt.Errorf("confirm pledge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPledgeNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPledge(row rowScanner) (*Pledge, error) {
	var p Pledge
	var txHash sql.NullString
	err := row.Scan(&p.ID, &p.EventID, &p.TierID, &p.SponsorID, &p.Amount, &p.Currency,
		&p.Status, &txHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TransactionHash = txHash.String
	return &p, nil
}
