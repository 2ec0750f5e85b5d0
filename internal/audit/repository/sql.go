package repository

import (
	"context"
	"database/sql"
	"fmt"

	"feedback-collector/backend/internal/audit/domain"
	"feedback-collector/backend/internal/db"
)

// SQLRepository stores audit logs in the table configured by AUDIT_TABLE.
type SQLRepository struct {
	conn    *sql.DB
	dialect db.Dialect
	table   string
}

// NewSQLRepository returns an audit log repository that uses conn for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect, table string) *SQLRepository {
	if table == "" {
		table = "audit_logs"
	}
	return &SQLRepository{conn: conn, dialect: dialect, table: table}
}

// ListBySession returns audit logs for the given session, oldest first.
// Returns (nil, error) only on database errors.
func (r *SQLRepository) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT id, session_id, actor, action, resource, metadata, created_at
		FROM %s WHERE session_id = ? ORDER BY created_at, id LIMIT ? OFFSET ?`, r.table)
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(query), sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a       domain.AuditLog
			created db.Time
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Actor, &a.Action, &a.Resource, &a.Metadata, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = created.Time
		out = append(out, &a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The audit log must have ID set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, session_id, actor, action, resource, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, r.table)
	_, err := r.conn.ExecContext(ctx, r.dialect.Rebind(query),
		a.ID, a.SessionID, a.Actor, a.Action, a.Resource, a.Metadata, r.dialect.TimeArg(a.CreatedAt))
	return err
}
