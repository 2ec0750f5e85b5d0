package service

import (
	"context"
	"errors"
	"sync"

	"feedback-collector/backend/internal/notify"
	"feedback-collector/backend/internal/policy/engine"
	"feedback-collector/backend/internal/session/domain"
	"feedback-collector/backend/internal/session/repository"
)

// memData is the unlocked state of memStore; a transaction works on a copy of it.
type memData struct {
	sessions map[string]*domain.Session
	feedback []*domain.Feedback
	failSave map[string]bool
}

func (d *memData) GetByID(_ context.Context, id string) (*domain.Session, error) {
	return d.sessions[id].Clone(), nil
}

func (d *memData) GetMany(_ context.Context, ids []string) (map[string]*domain.Session, error) {
	out := make(map[string]*domain.Session, len(ids))
	for _, id := range ids {
		if s, ok := d.sessions[id]; ok {
			out[id] = s.Clone()
		}
	}
	return out, nil
}

func (d *memData) Save(_ context.Context, s *domain.Session) error {
	if d.failSave[s.ID] {
		return errors.New("disk full")
	}
	d.sessions[s.ID] = s.Clone()
	return nil
}

func (d *memData) CountFeedback(_ context.Context, sessionID string) (int, error) {
	n := 0
	for _, f := range d.feedback {
		if f.SessionID == sessionID {
			n++
		}
	}
	return n, nil
}

func (d *memData) CreateFeedback(_ context.Context, f *domain.Feedback) error {
	c := *f
	d.feedback = append(d.feedback, &c)
	return nil
}

func (d *memData) copy() *memData {
	sessions := make(map[string]*domain.Session, len(d.sessions))
	for k, v := range d.sessions {
		sessions[k] = v
	}
	return &memData{
		sessions: sessions,
		feedback: append([]*domain.Feedback(nil), d.feedback...),
		failSave: d.failSave,
	}
}

// memStore is an in-memory TxRepository. A transaction sees its own writes and publishes them
// only when fn succeeds.
type memStore struct {
	mu   sync.Mutex
	data *memData
}

var _ repository.TxRepository = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{data: &memData{sessions: map[string]*domain.Session{}, failSave: map[string]bool{}}}
}

func (m *memStore) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetByID(ctx, id)
}

func (m *memStore) GetMany(ctx context.Context, ids []string) (map[string]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.GetMany(ctx, ids)
}

func (m *memStore) Save(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Save(ctx, s)
}

func (m *memStore) CountFeedback(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CountFeedback(ctx, sessionID)
}

func (m *memStore) CreateFeedback(ctx context.Context, f *domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.CreateFeedback(ctx, f)
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repo repository.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := m.data.copy()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.data = tx
	return nil
}

func (m *memStore) failSaving(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.failSave[id] = true
}

func (m *memStore) feedbackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data.feedback)
}

// fakeNotifier records every dispatched event and fails for addresses in failFor.
type fakeNotifier struct {
	mu      sync.Mutex
	events  []domain.Event
	failFor map[string]bool
}

func (f *fakeNotifier) Dispatch(_ context.Context, events []domain.Event) []notify.Failure {
	f.mu.Lock()
	defer f.mu.Unlock()
	var failures []notify.Failure
	for _, ev := range events {
		f.events = append(f.events, ev)
		if f.failFor[ev.Recipient.Email] {
			failures = append(failures, notify.Failure{Name: ev.Recipient.Name, Email: ev.Recipient.Email, Error: "mailbox unavailable"})
		}
	}
	return failures
}

func (f *fakeNotifier) take() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.events
	f.events = nil
	return out
}

type auditEntry struct {
	sessionID, actor, action, resource, metadata string
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (f *fakeAudit) LogEvent(_ context.Context, sessionID, actor, action, resource, metadata string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, auditEntry{sessionID, actor, action, resource, metadata})
}

func (f *fakeAudit) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.action
	}
	return out
}

// editorsPolicy allows the lead and organisers with edit rights.
type editorsPolicy struct{}

func (editorsPolicy) Allow(_ context.Context, _ engine.Action, s *domain.Session, actor domain.Actor) (bool, error) {
	o := s.Organiser(actor.Email)
	return o != nil && (o.IsLead || o.CanEdit), nil
}
