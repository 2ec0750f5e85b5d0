package repository

import (
	"context"

	"feedback-collector/backend/internal/session/domain"
)

// Repository defines persistence for sessions and their feedback.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetMany returns the sessions that exist among ids, keyed by id.
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Session, error)
	// Save inserts or replaces the session row.
	Save(ctx context.Context, s *domain.Session) error
	CountFeedback(ctx context.Context, sessionID string) (int, error)
	CreateFeedback(ctx context.Context, f *domain.Feedback) error
}

// TxRepository is a Repository that can scope a unit of work in one transaction.
type TxRepository interface {
	Repository
	// WithinTx runs fn against a Repository bound to a single transaction. The transaction
	// commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}
