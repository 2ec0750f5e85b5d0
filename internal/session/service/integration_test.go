package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"feedback-collector/backend/internal/audit"
	auditrepo "feedback-collector/backend/internal/audit/repository"
	"feedback-collector/backend/internal/db"
	"feedback-collector/backend/internal/db/migrate"
	"feedback-collector/backend/internal/email"
	"feedback-collector/backend/internal/notify"
	"feedback-collector/backend/internal/policy/engine"
	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
	"feedback-collector/backend/internal/session/repository"
)

// TestSessionService_SQLiteEndToEnd wires the production collaborators against a SQLite file.
func TestSessionService_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	conn, err := db.Open(db.SQLite, filepath.Join(dir, "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Apply(conn))

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC))
	mailDir := filepath.Join(dir, "mail")
	dispatcher, err := notify.NewDispatcher(email.NewDevSender(mailDir, clock), "https://feedback.example.com", nil)
	require.NoError(t, err)
	policy, err := engine.NewOPAEvaluator(ctx)
	require.NoError(t, err)
	auditRepo := auditrepo.NewSQLRepository(conn, db.SQLite, "audit_logs")
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	svc := NewSessionService(
		repository.NewSQLRepository(conn, db.SQLite, repository.DefaultTables),
		security.NewPINService(nil, ""),
		policy,
		dispatcher,
		Options{Clock: clock, Audit: audit.NewLogger(auditRepo, clock), Tracer: tp.Tracer("test")},
	)

	created, err := svc.Create(ctx, createInput())
	require.NoError(t, err)
	require.Empty(t, created.NotificationFailures)

	alice, err := svc.Authenticate(ctx, created.ID, "alice@example.com", created.LeadPIN)
	require.NoError(t, err)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	in := domain.SessionInput{
		Title: stored.Title, Name: stored.Name, Date: stored.Date,
		Attendance: stored.Attendance, Certificate: stored.Certificate, Questions: stored.Questions,
	}
	for _, o := range stored.Organisers {
		in.Organisers = append(in.Organisers, domain.OrganiserInput{
			Name: o.Name, Email: o.Email, ExistingEmail: o.Email, IsLead: o.IsLead, CanEdit: o.CanEdit, Notifications: o.Notifications,
		})
	}
	in.Organisers = append(in.Organisers, domain.OrganiserInput{Name: "Carol", Email: "carol@example.com"})
	upd, err := svc.Update(ctx, created.ID, in, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol@example.com"}, upd.Organisers.Added)
	assert.Len(t, upd.Subsessions.Removed, 2, "both subsessions were omitted")

	carolViewer := domain.Actor{Email: "carol@example.com"}
	_, err = svc.Close(ctx, created.ID, carolViewer)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Close(ctx, created.ID, alice)
	require.NoError(t, err)
	_, err = svc.Close(ctx, created.ID, alice)
	assert.ErrorIs(t, err, domain.ErrConflict)

	entries, err := auditRepo.ListBySession(ctx, created.ID, 10, 0)
	require.NoError(t, err)
	actions := make([]string, len(entries))
	for i, e := range entries {
		actions[i] = e.Action
	}
	assert.ElementsMatch(t, []string{audit.ActionSessionCreated, audit.ActionSessionUpdated, audit.ActionSessionClosed}, actions)

	mails, err := os.ReadDir(mailDir)
	require.NoError(t, err)
	// create: 4 PINs; update: carol added, 2 subsessions removed; close: bob and carol.
	assert.Len(t, mails, 2*9)

	var failed int
	for _, s := range spans.Ended() {
		if s.Status().Code.String() == "Error" {
			failed++
		}
	}
	assert.Equal(t, 2, failed, "forbidden and conflicting close are recorded as span errors")
}
