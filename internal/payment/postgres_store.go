package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists payments in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed payment store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `id, event_id, user_id, amount, currency, status, transaction_hash, failure_reason, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, p *Payment) (*Payment, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO payments (id, event_id, user_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING `+paymentColumns,
		p.ID, p.EventID, p.UserID, p.Amount, p.Currency, p.Status)

	created, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	return notFoundOnNoRows(scanPayment(row))
}

func (s *PostgresStore) GetPendingByID(ctx context.Context, id string) (*Payment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 AND status = $2`,
		id, StatusPending)
	return notFoundOnNoRows(scanPayment(row))
}

func (s *PostgresStore) CountActiveByEvent(ctx context.Context, eventID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payments
		WHERE event_id = $1 AND status IN ($2, $3)
	`, eventID, StatusPending, StatusConfirmed).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active payments: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) HasActiveForUser(ctx context.Context, eventID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments
			WHERE event_id = $1 AND user_id = $2 AND status IN ($3, $4)
		)
	`, eventID, userID, StatusPending, StatusConfirmed).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active payment: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListConfirmedByEvent(ctx context.Context, eventID string) ([]*Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at
	`, eventID, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("list confirmed payments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (s *PostgresStore) SetConfirmed(ctx context.Context, id, transactionHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, transaction_hash = $2, updated_at = NOW()
		WHERE id = $3
	`, StatusConfirmed, transactionHash, id)
	if err != nil {
		return fmt.Errorf("confirm payment: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetFailed(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1, failure_reason = $2, updated_at = NOW()
		WHERE id = $3
	`, StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("fail payment: %w", err)
	}
	return requireRow(res)
}

func (s *PostgresStore) SetRefunded(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusRefunded, id)
	if err != nil {
		return fmt.Errorf("refund payment: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	var txHash, failureReason sql.NullString
	err := row.Scan(&p.ID, &p.EventID, &p.UserID, &p.Amount, &p.Currency, &p.Status,
		&txHash, &failureReason, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.TransactionHash = txHash.String
	p.FailureReason = failureReason.String
	return &p, nil
}

func notFoundOnNoRows(p *Payment, err error) (*Payment, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query payment: %w", err)
	}
	return p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
