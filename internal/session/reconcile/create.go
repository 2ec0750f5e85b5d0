package reconcile

import (
	"fmt"
	"time"

	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
)

// Prepared is a new session and its children, ready to be inserted.
type Prepared struct {
	Session  *domain.Session
	Children []*domain.Session
	LeadPIN  string
	Events   []domain.Event
}

// Prepare builds a new session from in: it mints the session id, one credential per organiser
// and recursively creates every subsession. An OrganiserAdded event is produced for every
// organiser and subsession organiser that has an email.
func (e *Engine) Prepare(in domain.SessionInput) (*Prepared, error) {
	in = normalized(in)
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := e.now().UTC()
	s := &domain.Session{
		ID:            e.newID(),
		Title:         in.Title,
		Name:          in.Name,
		Date:          in.Date,
		MultipleDates: in.MultipleDates,
		Attendance:    in.Attendance,
		Certificate:   in.Certificate,
		Questions:     cloneQuestions(in.Questions),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	p := &Prepared{Session: s}

	for _, o := range in.Organisers {
		cred, err := e.minter.Mint()
		if err != nil {
			return nil, err
		}
		org := domain.Organiser{
			Name:          o.Name,
			Email:         o.Email,
			IsLead:        o.IsLead,
			CanEdit:       o.CanEdit || o.IsLead,
			Notifications: o.Notifications,
			PinHash:       cred.Hash,
			Salt:          cred.Salt,
		}
		if org.IsLead {
			p.LeadPIN = cred.PIN
		}
		s.Organisers = append(s.Organisers, org)
		p.Events = append(p.Events, organiserEvent(domain.EventOrganiserAdded, s, org, cred.PIN))
	}

	for _, c := range in.Subsessions {
		if c.ID != "" {
			return nil, fmt.Errorf("%w: new session cannot reference existing subsession %s", domain.ErrValidation, c.ID)
		}
		child, cred, err := e.newChild(s, c, now)
		if err != nil {
			return nil, err
		}
		s.Subsessions = append(s.Subsessions, child.ID)
		p.Children = append(p.Children, child)
		if child.Organisers[0].Email != "" {
			p.Events = append(p.Events, childEvent(domain.EventOrganiserAdded, s, child, cred.PIN))
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// newChild runs the creation flow for one subsession of parent.
func (e *Engine) newChild(parent *domain.Session, c domain.SubsessionInput, now time.Time) (*domain.Session, security.Credential, error) {
	cred, err := e.minter.Mint()
	if err != nil {
		return nil, security.Credential{}, err
	}
	child := &domain.Session{
		ID:           e.newID(),
		Title:        childTitle(parent, c),
		Name:         c.Name,
		IsSubsession: true,
		Organisers: []domain.Organiser{{
			Name:          c.OrganiserName,
			Email:         c.OrganiserEmail,
			IsLead:        true,
			CanEdit:       true,
			Notifications: c.OrganiserEmail != "",
			PinHash:       cred.Hash,
			Salt:          cred.Salt,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := child.Validate(); err != nil {
		return nil, security.Credential{}, err
	}
	return child, cred, nil
}
