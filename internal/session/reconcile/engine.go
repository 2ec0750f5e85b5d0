// Package reconcile diffs a stored session against an incoming representation. It produces the
// merged session, the child rows that must be written, a classification of every organiser and
// subsession, and the ordered change events that drive notifications. It performs no I/O.
package reconcile

import (
	"fmt"
	"time"

	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
)

// Minter mints a fresh organiser credential.
type Minter interface {
	Mint() (security.Credential, error)
}

// Classification partitions entities into mutually exclusive change classes. Organisers are
// identified by email, subsessions by id.
type Classification struct {
	Unchanged []string
	Edited    []string
	Added     []string
	Removed   []string
}

// Result is the outcome of reconciling an update.
type Result struct {
	Session     *domain.Session   // merged parent
	Writes      []*domain.Session // child rows to upsert: edited, created and soft-closed
	Organisers  Classification
	Subsessions Classification
	Events      []domain.Event
}

// Engine reconciles sessions. Credentials and ids are minted through injected functions so the
// engine stays deterministic under test.
type Engine struct {
	minter Minter
	newID  func() string
	now    func() time.Time
}

// New returns an Engine. newID and now must not be nil.
func New(minter Minter, newID func() string, now func() time.Time) *Engine {
	return &Engine{minter: minter, newID: newID, now: now}
}

// Reconcile merges in into old. oldChildren holds the stored rows of old.Subsessions keyed by id.
// Any immutable-field violation aborts the whole reconciliation with domain.ErrValidation and
// nothing in the result may be written.
func (e *Engine) Reconcile(old *domain.Session, oldChildren map[string]*domain.Session, in domain.SessionInput) (*Result, error) {
	if old == nil {
		return nil, fmt.Errorf("%w: session", domain.ErrNotFound)
	}
	if old.IsSubsession {
		return nil, fmt.Errorf("%w: subsessions are updated through their parent", domain.ErrValidation)
	}
	in = normalized(in)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := e.now().UTC()

	merged := old.Clone()
	merged.Title = in.Title
	merged.Name = in.Name
	merged.Date = in.Date
	merged.MultipleDates = in.MultipleDates
	merged.Attendance = in.Attendance
	merged.Certificate = in.Certificate
	merged.Questions = cloneQuestions(in.Questions)
	merged.UpdatedAt = now

	res := &Result{Session: merged}
	if err := e.reconcileOrganisers(old, merged, in.Organisers, res); err != nil {
		return nil, err
	}
	if err := e.reconcileSubsessions(old, merged, oldChildren, in.Subsessions, now, res); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) reconcileOrganisers(old, merged *domain.Session, incoming []domain.OrganiserInput, res *Result) error {
	stored := make(map[string]domain.Organiser, len(old.Organisers))
	for _, o := range old.Organisers {
		stored[o.Email] = o
	}

	matched := make(map[string]bool, len(incoming))
	for _, o := range incoming {
		if o.ExistingEmail == "" {
			if o.IsLead {
				return fmt.Errorf("%w: the lead organiser is fixed at creation", domain.ErrValidation)
			}
			continue
		}
		prev, ok := stored[o.ExistingEmail]
		if !ok {
			return fmt.Errorf("%w: unknown organiser %s", domain.ErrValidation, o.ExistingEmail)
		}
		if o.Email != prev.Email {
			return fmt.Errorf("%w: organiser email %s cannot change", domain.ErrValidation, prev.Email)
		}
		if o.IsLead != prev.IsLead {
			return fmt.Errorf("%w: lead status of %s cannot change", domain.ErrValidation, prev.Email)
		}
		matched[prev.Email] = true
	}

	for _, prev := range old.Organisers {
		if matched[prev.Email] {
			continue
		}
		if prev.IsLead {
			return fmt.Errorf("%w: the lead organiser cannot be removed", domain.ErrValidation)
		}
		res.Organisers.Removed = append(res.Organisers.Removed, prev.Email)
		res.Events = append(res.Events, organiserEvent(domain.EventOrganiserRemoved, merged, prev, ""))
	}

	next := make([]domain.Organiser, 0, len(incoming))
	for _, o := range incoming {
		if o.ExistingEmail != "" {
			prev := stored[o.ExistingEmail]
			org := prev
			org.Name = o.Name
			org.CanEdit = o.CanEdit
			next = append(next, org)
			if org.Name != prev.Name || org.CanEdit != prev.CanEdit {
				res.Organisers.Edited = append(res.Organisers.Edited, org.Email)
				res.Events = append(res.Events, organiserEvent(domain.EventOrganiserEdited, merged, org, ""))
			} else {
				res.Organisers.Unchanged = append(res.Organisers.Unchanged, org.Email)
			}
			continue
		}
		cred, err := e.minter.Mint()
		if err != nil {
			return err
		}
		org := domain.Organiser{
			Name:          o.Name,
			Email:         o.Email,
			CanEdit:       o.CanEdit,
			Notifications: o.Notifications,
			PinHash:       cred.Hash,
			Salt:          cred.Salt,
		}
		next = append(next, org)
		res.Organisers.Added = append(res.Organisers.Added, org.Email)
		res.Events = append(res.Events, organiserEvent(domain.EventOrganiserAdded, merged, org, cred.PIN))
	}
	merged.Organisers = next
	return nil
}

func (e *Engine) reconcileSubsessions(old, merged *domain.Session, oldChildren map[string]*domain.Session, incoming []domain.SubsessionInput, now time.Time, res *Result) error {
	known := make(map[string]bool, len(old.Subsessions))
	for _, id := range old.Subsessions {
		known[id] = true
	}

	kept := make(map[string]bool, len(incoming))
	ids := make([]string, 0, len(incoming))
	for _, c := range incoming {
		if c.ID == "" {
			child, cred, err := e.newChild(merged, c, now)
			if err != nil {
				return err
			}
			ids = append(ids, child.ID)
			res.Writes = append(res.Writes, child)
			res.Subsessions.Added = append(res.Subsessions.Added, child.ID)
			res.Events = append(res.Events, childEvent(domain.EventSubsessionCreated, merged, child, cred.PIN))
			continue
		}
		if !known[c.ID] {
			return fmt.Errorf("%w: subsession %s does not belong to session %s", domain.ErrValidation, c.ID, old.ID)
		}
		stored := oldChildren[c.ID]
		if stored == nil || len(stored.Organisers) != 1 {
			return fmt.Errorf("%w: subsession %s", domain.ErrNotFound, c.ID)
		}
		kept[c.ID] = true
		ids = append(ids, c.ID)

		title := childTitle(merged, c)
		sole := stored.Organisers[0]
		if stored.Name == c.Name && stored.Title == title && sole.Email == c.OrganiserEmail {
			res.Subsessions.Unchanged = append(res.Subsessions.Unchanged, c.ID)
			continue
		}

		child := stored.Clone()
		child.Name = c.Name
		child.Title = title
		child.UpdatedAt = now
		org := &child.Organisers[0]
		if c.OrganiserName != "" {
			org.Name = c.OrganiserName
		}
		switch {
		case sole.Email == "" && c.OrganiserEmail != "":
			cred, err := e.minter.Mint()
			if err != nil {
				return err
			}
			org.Email = c.OrganiserEmail
			org.PinHash = cred.Hash
			org.Salt = cred.Salt
			org.Notifications = true
			res.Events = append(res.Events, childEvent(domain.EventSubsessionOrganiserAdded, merged, child, cred.PIN))
		case sole.Email != "" && c.OrganiserEmail != sole.Email:
			return fmt.Errorf("%w: organiser email of subsession %s cannot change once set", domain.ErrValidation, c.ID)
		default:
			res.Events = append(res.Events, childEvent(domain.EventSubsessionEdited, merged, child, ""))
		}
		if err := child.Validate(); err != nil {
			return err
		}
		res.Writes = append(res.Writes, child)
		res.Subsessions.Edited = append(res.Subsessions.Edited, c.ID)
	}

	for _, id := range old.Subsessions {
		if kept[id] {
			continue
		}
		res.Subsessions.Removed = append(res.Subsessions.Removed, id)
		stored := oldChildren[id]
		if stored == nil {
			continue
		}
		child := stored.Clone()
		child.Closed = true
		child.UpdatedAt = now
		res.Writes = append(res.Writes, child)
		if len(child.Organisers) == 1 && child.Organisers[0].Email != "" {
			res.Events = append(res.Events, childEvent(domain.EventSubsessionRemoved, merged, child, ""))
		}
	}
	merged.Subsessions = ids
	return nil
}

func organiserEvent(kind domain.EventKind, s *domain.Session, o domain.Organiser, pin string) domain.Event {
	return domain.Event{
		Kind:         kind,
		SessionID:    s.ID,
		SessionTitle: s.Title,
		Recipient:    domain.Recipient{Name: o.Name, Email: o.Email},
		PIN:          pin,
	}
}

func childEvent(kind domain.EventKind, parent, child *domain.Session, pin string) domain.Event {
	o := child.Organisers[0]
	return domain.Event{
		Kind:         kind,
		SessionID:    child.ID,
		SessionTitle: child.Title,
		ParentID:     parent.ID,
		Recipient:    domain.Recipient{Name: o.Name, Email: o.Email},
		PIN:          pin,
	}
}

func childTitle(parent *domain.Session, c domain.SubsessionInput) string {
	if c.Title != "" {
		return c.Title
	}
	return parent.Title
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, len(qs))
	for i, q := range qs {
		q.Options = append([]string(nil), q.Options...)
		out[i] = q
	}
	return out
}

// normalized returns a normalized copy of in without touching the caller's slices.
func normalized(in domain.SessionInput) domain.SessionInput {
	in.Organisers = append([]domain.OrganiserInput(nil), in.Organisers...)
	in.Subsessions = append([]domain.SubsessionInput(nil), in.Subsessions...)
	in.Questions = cloneQuestions(in.Questions)
	in.Normalize()
	return in
}
