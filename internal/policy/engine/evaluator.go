package engine

import (
	"context"

	"feedback-collector/backend/internal/session/domain"
)

// Action names an administrative operation guarded by the access policy.
type Action string

const (
	ActionUpdate Action = "update"
	ActionClose  Action = "close"
)

// AccessEvaluator decides whether an authenticated actor may perform an action on a session.
type AccessEvaluator interface {
	// Allow reports whether actor may perform action on s. An actor that is not an organiser
	// of s is never allowed by the default policy.
	Allow(ctx context.Context, action Action, s *domain.Session, actor domain.Actor) (bool, error)
}
