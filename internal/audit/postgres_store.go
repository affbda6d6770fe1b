package audit

import (
	"context"
	"database/sql"
)

// PostgresLogger writes audit entries to PostgreSQL.
type PostgresLogger struct {
	db *sql.DB
}

// NewPostgresLogger creates an audit logger backed by PostgreSQL.
func NewPostgresLogger(db *sql.DB) *PostgresLogger {
	return &PostgresLogger{db: db}
}

func (l *PostgresLogger) Log(ctx context.Context, entry *Entry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_log (action, user_id, resource_id, meta, created_at)
		VALUES ($1, $2, $3, $4::JSONB, NOW())
	`, entry.Action, entry.UserID, entry.ResourceID, metaJSON(entry.Meta))
	return err
}
