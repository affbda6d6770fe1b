package event

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// defaultColumns deliberately excludes escrow_secret_encrypted.
const defaultColumns = `id, name, organizer_id, status, ticket_price, currency, max_attendees, escrow_public_key, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, e *Event) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, name, organizer_id, status, ticket_price, currency, max_attendees, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		RETURNING `+defaultColumns,
		e.ID, e.Name, e.OrganizerID, e.Status, e.TicketPrice, e.Currency, e.MaxAttendees)

	created, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+defaultColumns+` FROM events WHERE id = $1`, id)

	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetWithEscrowSecret(ctx context.Context, id string) (*Event, error) {
	var e Event
	var maxAttendees sql.NullInt64
	var escrowKey, escrowSecret sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT `+defaultColumns+`, escrow_secret_encrypted
		FROM events WHERE id = $1
	`, id).Scan(&e.ID, &e.Name, &e.OrganizerID, &e.Status, &e.TicketPrice, &e.Currency,
		&maxAttendees, &escrowKey, &e.CreatedAt, &e.UpdatedAt, &escrowSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query event with escrow secret: %w", err)
	}
	if maxAttendees.Valid {
		n := int(maxAttendees.Int64)
		e.MaxAttendees = &n
	}
	e.EscrowPublicKey = escrowKey.String
	e.EscrowSecretEncrypted = escrowSecret.String
	return &e, nil
}

func (s *PostgresStore) List(ctx context.Context, status Status) ([]*Event, error) {
	query := `SELECT ` + defaultColumns + ` FROM events`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetEscrow(ctx context.Context, id, publicKey, secretEncrypted string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events
		SET escrow_public_key = $1, escrow_secret_encrypted = $2, updated_at = NOW()
		WHERE id = $3
	`, publicKey, secretEncrypted, id)
	if err != nil {
		return fmt.Errorf("set event escrow: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) ClearEscrowSecret(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE events SET escrow_secret_encrypted = NULL, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear event escrow secret: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var e Event
	var maxAttendees sql.NullInt64
	var escrowKey sql.NullString
	err := row.Scan(&e.ID, &e.Name, &e.OrganizerID, &e.Status, &e.TicketPrice, &e.Currency,
		&maxAttendees, &escrowKey, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if maxAttendees.Valid {
		n := int(maxAttendees.Int64)
		e.MaxAttendees = &n
	}
	e.EscrowPublicKey = escrowKey.String
	return &e, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEventNotFound
	}
	return nil
}
