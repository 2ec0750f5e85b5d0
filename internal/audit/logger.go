package audit

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"feedback-collector/backend/internal/audit/domain"
	auditrepo "feedback-collector/backend/internal/audit/repository"
)

// Actions recorded by the session lifecycle.
const (
	ActionSessionCreated    = "session_created"
	ActionSessionUpdated    = "session_updated"
	ActionSessionClosed     = "session_closed"
	ActionCredentialReset   = "credential_reset"
	ActionFeedbackSubmitted = "feedback_submitted"
)

// ResourceSession and ResourceOrganiser name what an action touched.
const (
	ResourceSession   = "session"
	ResourceOrganiser = "organiser"
	ResourceFeedback  = "feedback"
)

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, sessionID, actor, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo  auditrepo.Repository
	clock clockwork.Clock
}

// NewLogger returns an AuditLogger that persists to repo. clock may be nil; then the real clock is used.
func NewLogger(repo auditrepo.Repository, clock clockwork.Clock) *Logger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Logger{repo: repo, clock: clock}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, sessionID, actor, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Actor:     actor,
		Action:    action,
		Resource:  resource,
		Metadata:  metadata,
		CreatedAt: l.clock.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
