package ticket

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists tickets in PostgreSQL. The transaction_hash column
// carries a unique constraint, which is the hard guarantee behind one ticket
// per on-chain transaction.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed ticket store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const ticketColumns = `id, event_id, owner_id, asset_code, transaction_hash, status, signature, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, t *Ticket) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO tickets (id, event_id, owner_id, asset_code, transaction_hash, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+ticketColumns,
		t.ID, t.EventID, t.OwnerID, t.AssetCode, t.TransactionHash, t.Status)

	created, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("insert ticket: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)
	return notFoundOnNoRows(scanTicket(row))
}

func (s *PostgresStore) GetByTransactionHash(ctx context.Context, hash string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE transaction_hash = $1`, hash)
	return notFoundOnNoRows(scanTicket(row))
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetSignature(ctx context.Context, id, signature string) error {
	return s.exec(ctx,
		`UPDATE tickets SET signature = $1, updated_at = NOW() WHERE id = $2`, signature, id)
}

func (s *PostgresStore) SetOwner(ctx context.Context, id, ownerID string) error {
	return s.exec(ctx,
		`UPDATE tickets SET owner_id = $1, updated_at = NOW() WHERE id = $2`, ownerID, id)
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status Status) error {
	return s.exec(ctx,
		`UPDATE tickets SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
}

func (s *PostgresStore) MarkRefundedByOwner(ctx context.Context, eventID, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = $1, updated_at = NOW()
		WHERE event_id = $2 AND owner_id = $3
	`, StatusRefunded, eventID, ownerID)
	if err != nil {
		return fmt.Errorf("mark tickets refunded: %w", err)
	}
	return nil
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTicketNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var t Ticket
	var signature sql.NullString
	err := row.Scan(&t.ID, &t.EventID, &t.OwnerID, &t.AssetCode, &t.TransactionHash,
		&t.Status, &signature, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Signature = signature.String
	return &t, nil
}

func notFoundOnNoRows(t *Ticket, err error) (*Ticket, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query ticket: %w", err)
	}
	return t, nil
}
