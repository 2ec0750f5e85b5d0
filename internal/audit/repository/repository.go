package repository

import (
	"context"

	"feedback-collector/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	// ListBySession returns the entries for a session, oldest first, paginated by limit and offset.
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
