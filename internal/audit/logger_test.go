package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-collector/backend/internal/audit/domain"
)

// mockAuditRepo implements the audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListBySession(context.Context, string, int, int) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	logger := NewLogger(repo, clock)

	logger.LogEvent(context.Background(), "s-1", "alice@example.com", ActionSessionUpdated, ResourceSession, `{"added":1}`)

	require.Len(t, repo.entries, 1)
	entry := repo.entries[0]
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "s-1", entry.SessionID)
	assert.Equal(t, "alice@example.com", entry.Actor)
	assert.Equal(t, ActionSessionUpdated, entry.Action)
	assert.Equal(t, ResourceSession, entry.Resource)
	assert.Equal(t, `{"added":1}`, entry.Metadata)
	assert.Equal(t, clock.Now(), entry.CreatedAt)
}

func TestLogger_LogEvent_UniqueIDs(t *testing.T) {
	repo := &mockAuditRepo{}
	logger := NewLogger(repo, nil)
	logger.LogEvent(context.Background(), "s-1", "", ActionFeedbackSubmitted, ResourceFeedback, "")
	logger.LogEvent(context.Background(), "s-1", "", ActionFeedbackSubmitted, ResourceFeedback, "")
	require.Len(t, repo.entries, 2)
	assert.NotEqual(t, repo.entries[0].ID, repo.entries[1].ID)
}

func TestLogger_LogEvent_RepoErrorIsSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	logger := NewLogger(repo, nil)
	assert.NotPanics(t, func() {
		logger.LogEvent(context.Background(), "s-1", "", ActionSessionClosed, ResourceSession, "")
	})
}

func TestLogger_LogEvent_NilRepoOrLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogger(nil, nil).LogEvent(context.Background(), "s-1", "", ActionSessionCreated, ResourceSession, "")
		var l *Logger
		l.LogEvent(context.Background(), "s-1", "", ActionSessionCreated, ResourceSession, "")
	})
}
