// Package service orchestrates the session lifecycle: each operation loads, reconciles and
// persists inside one transaction, then notifies after commit.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"feedback-collector/backend/internal/audit"
	"feedback-collector/backend/internal/notify"
	"feedback-collector/backend/internal/policy/engine"
	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
	"feedback-collector/backend/internal/session/reconcile"
	"feedback-collector/backend/internal/session/repository"
	"feedback-collector/backend/internal/telemetry"
)

// Credentials mints and verifies organiser credentials.
type Credentials interface {
	Mint() (security.Credential, error)
	Verify(pin, salt, storedHash string) bool
}

// AccessPolicy decides whether an actor may update or close a session.
type AccessPolicy interface {
	Allow(ctx context.Context, action engine.Action, s *domain.Session, actor domain.Actor) (bool, error)
}

// Notifier delivers classified events and reports the ones that failed.
type Notifier interface {
	Dispatch(ctx context.Context, events []domain.Event) []notify.Failure
}

// Options holds optional collaborators and tunables. Zero values get defaults.
type Options struct {
	Timeout  time.Duration // per operation; default 30s
	Cooldown time.Duration // feedback notification window; default 1h
	Clock    clockwork.Clock
	NewID    func() string
	Audit    audit.AuditLogger
	Emitter  telemetry.EventEmitter
	Tracer   trace.Tracer
}

// CreateResult is the outcome of Create. LeadPIN is the raw PIN of the lead organiser; it is
// not stored anywhere.
type CreateResult struct {
	ID                   string
	LeadPIN              string
	NotificationFailures []notify.Failure
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Organisers           reconcile.Classification
	Subsessions          reconcile.Classification
	NotificationFailures []notify.Failure
}

// Result is the outcome of Close and ResetCredential.
type Result struct {
	NotificationFailures []notify.Failure
}

// FeedbackResult is the outcome of SubmitFeedback.
type FeedbackResult struct {
	FeedbackID           string
	NotificationFailures []notify.Failure
}

// SessionService implements the session lifecycle operations.
type SessionService struct {
	store    repository.TxRepository
	creds    Credentials
	policy   AccessPolicy
	notifier Notifier
	engine   *reconcile.Engine

	clock    clockwork.Clock
	newID    func() string
	timeout  time.Duration
	cooldown time.Duration
	audit    audit.AuditLogger
	emitter  telemetry.EventEmitter
	tracer   trace.Tracer
}

// NewSessionService returns a SessionService with the given dependencies.
func NewSessionService(store repository.TxRepository, creds Credentials, policy AccessPolicy, notifier Notifier, opts Options) *SessionService {
	s := &SessionService{
		store:    store,
		creds:    creds,
		policy:   policy,
		notifier: notifier,
		clock:    opts.Clock,
		newID:    opts.NewID,
		timeout:  opts.Timeout,
		cooldown: opts.Cooldown,
		audit:    opts.Audit,
		emitter:  opts.Emitter,
		tracer:   opts.Tracer,
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.cooldown <= 0 {
		s.cooldown = time.Hour
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("feedback-collector/session")
	}
	s.engine = reconcile.New(creds, s.newID, s.clock.Now)
	return s
}

// Create mints a session, its organiser credentials and its subsessions, and persists them in
// one transaction. Every organiser with an email is sent their PIN.
func (s *SessionService) Create(ctx context.Context, in domain.SessionInput) (res *CreateResult, err error) {
	ctx, done := s.start(ctx, "session.Create", "")
	defer func() { done(err) }()

	p, err := s.engine.Prepare(in)
	if err != nil {
		return nil, err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		for _, c := range p.Children {
			if err := repo.Save(ctx, c); err != nil {
				return fmt.Errorf("save subsession %s: %w", c.ID, err)
			}
		}
		if err := repo.Save(ctx, p.Session); err != nil {
			return fmt.Errorf("save session %s: %w", p.Session.ID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("session.id", p.Session.ID))

	lead := ""
	if l := p.Session.Lead(); l != nil {
		lead = l.Email
	}
	s.record(ctx, p.Session.ID, lead, audit.ActionSessionCreated, audit.ResourceSession, map[string]int{
		"organisers":  len(p.Session.Organisers),
		"subsessions": len(p.Children),
	})
	return &CreateResult{
		ID:                   p.Session.ID,
		LeadPIN:              p.LeadPIN,
		NotificationFailures: s.publish(ctx, p.Events),
	}, nil
}

// Update reconciles in against the stored session and persists the merged parent and every
// affected child row in one transaction. The lead is told when someone else edited the session.
func (s *SessionService) Update(ctx context.Context, id string, in domain.SessionInput, actor domain.Actor) (res *UpdateResult, err error) {
	ctx, done := s.start(ctx, "session.Update", id)
	defer func() { done(err) }()

	var rec *reconcile.Result
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		cur, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if cur.IsSubsession {
			return fmt.Errorf("%w: subsession %s is edited through its parent", domain.ErrForbidden, id)
		}
		if cur.Closed {
			return fmt.Errorf("%w: session %s is closed", domain.ErrConflict, id)
		}
		if err := s.authorize(ctx, engine.ActionUpdate, cur, actor); err != nil {
			return err
		}
		n, err := repo.CountFeedback(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: session %s already has feedback", domain.ErrConflict, id)
		}
		children, err := repo.GetMany(ctx, cur.Subsessions)
		if err != nil {
			return err
		}
		rec, err = s.engine.Reconcile(cur, children, in)
		if err != nil {
			return err
		}
		for _, w := range rec.Writes {
			if err := repo.Save(ctx, w); err != nil {
				return fmt.Errorf("save subsession %s: %w", w.ID, err)
			}
		}
		if err := repo.Save(ctx, rec.Session); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	actorEmail := domain.NormalizeEmail(actor.Email)
	events := rec.Events
	if lead := rec.Session.Lead(); lead != nil && lead.Email != actorEmail {
		events = append(events, domain.Event{
			Kind:         domain.EventNonLeadEdited,
			SessionID:    rec.Session.ID,
			SessionTitle: rec.Session.Title,
			Recipient:    domain.Recipient{Name: lead.Name, Email: lead.Email},
		})
	}
	for i := range events {
		events[i].Actor = actorEmail
	}

	s.record(ctx, id, actorEmail, audit.ActionSessionUpdated, audit.ResourceSession, map[string]int{
		"organisers_added":    len(rec.Organisers.Added),
		"organisers_edited":   len(rec.Organisers.Edited),
		"organisers_removed":  len(rec.Organisers.Removed),
		"subsessions_added":   len(rec.Subsessions.Added),
		"subsessions_edited":  len(rec.Subsessions.Edited),
		"subsessions_removed": len(rec.Subsessions.Removed),
	})
	return &UpdateResult{
		Organisers:           rec.Organisers,
		Subsessions:          rec.Subsessions,
		NotificationFailures: s.publish(ctx, events),
	}, nil
}

// Close marks the session and its open subsessions closed. Closing is terminal; closing an
// already closed session is a Conflict.
func (s *SessionService) Close(ctx context.Context, id string, actor domain.Actor) (res *Result, err error) {
	ctx, done := s.start(ctx, "session.Close", id)
	defer func() { done(err) }()

	var closed *domain.Session
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		cur, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if cur.Closed {
			return fmt.Errorf("%w: session %s is already closed", domain.ErrConflict, id)
		}
		if cur.IsSubsession {
			return fmt.Errorf("%w: subsession %s is closed through its parent", domain.ErrForbidden, id)
		}
		if err := s.authorize(ctx, engine.ActionClose, cur, actor); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		children, err := repo.GetMany(ctx, cur.Subsessions)
		if err != nil {
			return err
		}
		for _, cid := range cur.Subsessions {
			c := children[cid]
			if c == nil || c.Closed {
				continue
			}
			c.Closed = true
			c.UpdatedAt = now
			if err := repo.Save(ctx, c); err != nil {
				return fmt.Errorf("save subsession %s: %w", cid, err)
			}
		}
		cur.Closed = true
		cur.UpdatedAt = now
		if err := repo.Save(ctx, cur); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		closed = cur
		return nil
	})
	if err != nil {
		return nil, err
	}

	actorEmail := domain.NormalizeEmail(actor.Email)
	var events []domain.Event
	for _, o := range closed.Organisers {
		if o.Email == actorEmail {
			continue
		}
		events = append(events, domain.Event{
			Kind:         domain.EventClosureNotice,
			SessionID:    closed.ID,
			SessionTitle: closed.Title,
			Recipient:    domain.Recipient{Name: o.Name, Email: o.Email},
			Actor:        actorEmail,
		})
	}
	s.record(ctx, id, actorEmail, audit.ActionSessionClosed, audit.ResourceSession, map[string]int{
		"subsessions": len(closed.Subsessions),
	})
	return &Result{NotificationFailures: s.publish(ctx, events)}, nil
}

// ResetCredential mints a new salt and PIN for the organiser with the given email (case-insensitive)
// and sends the PIN to that organiser only. The previous PIN stops verifying.
func (s *SessionService) ResetCredential(ctx context.Context, id, email string) (res *Result, err error) {
	ctx, done := s.start(ctx, "session.ResetCredential", id)
	defer func() { done(err) }()

	var ev domain.Event
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		cur, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		o := cur.Organiser(email)
		if o == nil {
			return fmt.Errorf("%w: organiser %s in session %s", domain.ErrNotFound, domain.NormalizeEmail(email), id)
		}
		cred, err := s.creds.Mint()
		if err != nil {
			return err
		}
		o.Salt = cred.Salt
		o.PinHash = cred.Hash
		cur.UpdatedAt = s.clock.Now().UTC()
		if err := repo.Save(ctx, cur); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		ev = domain.Event{
			Kind:         domain.EventCredentialReset,
			SessionID:    cur.ID,
			SessionTitle: cur.Title,
			Recipient:    domain.Recipient{Name: o.Name, Email: o.Email},
			PIN:          cred.PIN,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, id, ev.Recipient.Email, audit.ActionCredentialReset, audit.ResourceOrganiser, nil)
	return &Result{NotificationFailures: s.publish(ctx, []domain.Event{ev})}, nil
}

// Authenticate verifies pin for the organiser with the given email and returns them as an Actor.
// Unknown organisers and wrong PINs are both Forbidden.
func (s *SessionService) Authenticate(ctx context.Context, id, email, pin string) (actor domain.Actor, err error) {
	ctx, done := s.start(ctx, "session.Authenticate", id)
	defer func() { done(err) }()

	cur, err := s.load(ctx, s.store, id)
	if err != nil {
		return domain.Actor{}, err
	}
	o := cur.Organiser(email)
	if o == nil || !s.creds.Verify(pin, o.Salt, o.PinHash) {
		return domain.Actor{}, fmt.Errorf("%w: invalid credentials", domain.ErrForbidden)
	}
	return domain.Actor{Email: o.Email, Name: o.Name}, nil
}

// SubmitFeedback validates and stores one feedback response, then notifies organisers that are
// outside their cooldown window. Subsession feedback answers the parent's questions.
func (s *SessionService) SubmitFeedback(ctx context.Context, id string, in domain.FeedbackInput) (res *FeedbackResult, err error) {
	ctx, done := s.start(ctx, "session.SubmitFeedback", id)
	defer func() { done(err) }()

	fb := &domain.Feedback{
		ID:        s.newID(),
		SessionID: id,
		Answers:   append([]domain.Answer(nil), in.Answers...),
		Attended:  in.Attended,
	}
	var events []domain.Event
	err = s.store.WithinTx(ctx, func(ctx context.Context, repo repository.Repository) error {
		target, err := s.load(ctx, repo, id)
		if err != nil {
			return err
		}
		if target.Closed {
			return fmt.Errorf("%w: session %s is closed", domain.ErrConflict, id)
		}
		questions, attendance := target.Questions, target.Attendance
		if target.IsSubsession {
			parent, err := s.parentOf(ctx, repo, target, in.ParentID)
			if err != nil {
				return err
			}
			questions, attendance = parent.Questions, parent.Attendance
		}
		if err := domain.ValidateFeedback(questions, attendance, fb); err != nil {
			return err
		}
		now := s.clock.Now().UTC()
		fb.CreatedAt = now
		if err := repo.CreateFeedback(ctx, fb); err != nil {
			return fmt.Errorf("save feedback: %w", err)
		}
		events = notify.FeedbackNotices(target, now, s.cooldown)
		if len(events) > 0 {
			if err := repo.Save(ctx, target); err != nil {
				return fmt.Errorf("save session %s: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, id, "", audit.ActionFeedbackSubmitted, audit.ResourceFeedback, map[string]int{
		"answers":  len(fb.Answers),
		"notified": len(events),
	})
	return &FeedbackResult{FeedbackID: fb.ID, NotificationFailures: s.publish(ctx, events)}, nil
}

// Get returns the stored session.
func (s *SessionService) Get(ctx context.Context, id string) (sess *domain.Session, err error) {
	ctx, done := s.start(ctx, "session.Get", id)
	defer func() { done(err) }()
	return s.load(ctx, s.store, id)
}

func (s *SessionService) parentOf(ctx context.Context, repo repository.Repository, child *domain.Session, parentID string) (*domain.Session, error) {
	if parentID == "" {
		return nil, fmt.Errorf("%w: parent id is required for subsession feedback", domain.ErrValidation)
	}
	parent, err := s.load(ctx, repo, parentID)
	if err != nil {
		return nil, err
	}
	for _, cid := range parent.Subsessions {
		if cid == child.ID {
			if parent.Closed {
				return nil, fmt.Errorf("%w: session %s is closed", domain.ErrConflict, parent.ID)
			}
			return parent, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is not a subsession of %s", domain.ErrValidation, child.ID, parentID)
}

func (s *SessionService) load(ctx context.Context, repo repository.Repository, id string) (*domain.Session, error) {
	cur, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, id)
	}
	return cur, nil
}

func (s *SessionService) authorize(ctx context.Context, action engine.Action, cur *domain.Session, actor domain.Actor) error {
	if s.policy == nil {
		return fmt.Errorf("%w: no access policy configured", domain.ErrForbidden)
	}
	ok, err := s.policy.Allow(ctx, action, cur, actor)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s may not %s session %s", domain.ErrForbidden, domain.NormalizeEmail(actor.Email), action, cur.ID)
	}
	return nil
}

// start bounds the operation by the configured timeout and opens its span. The returned func
// ends both and records the error category on the span.
func (s *SessionService) start(ctx context.Context, name, id string) (context.Context, func(error)) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	ctx, span := s.tracer.Start(ctx, name)
	if id != "" {
		span.SetAttributes(attribute.String("session.id", id))
	}
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("error.category", domain.Category(err)))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		cancel()
	}
}

// publish emits events to telemetry and dispatches them. Failures never propagate as errors.
func (s *SessionService) publish(ctx context.Context, events []domain.Event) []notify.Failure {
	for i := range events {
		telemetry.EmitAsync(s.emitter, &events[i])
	}
	if s.notifier == nil || len(events) == 0 {
		return nil
	}
	return s.notifier.Dispatch(ctx, events)
}

func (s *SessionService) record(ctx context.Context, sessionID, actor, action, resource string, meta map[string]int) {
	if s.audit == nil {
		return
	}
	metadata := ""
	if meta != nil {
		b, err := json.Marshal(meta)
		if err == nil {
			metadata = string(b)
		}
	}
	s.audit.LogEvent(ctx, sessionID, actor, action, resource, metadata)
}
