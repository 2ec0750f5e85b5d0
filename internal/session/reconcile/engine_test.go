package reconcile

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-collector/backend/internal/security"
	"feedback-collector/backend/internal/session/domain"
)

type failingMinter struct{}

func (failingMinter) Mint() (security.Credential, error) {
	return security.Credential{}, errors.New("entropy exhausted")
}

func newTestEngine() *Engine {
	n := 0
	return New(
		security.NewPINService(nil, ""),
		func() string { n++; return fmt.Sprintf("id-%d", n) },
		func() time.Time { return time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC) },
	)
}

func baseInput() domain.SessionInput {
	return domain.SessionInput{
		Title: "Intro to Go",
		Name:  "go-101",
		Date:  "2026-11-02",
		Questions: []domain.Question{
			{ID: "q1", Text: "How was it?", Type: domain.QuestionRating, Required: true},
		},
		Organisers: []domain.OrganiserInput{
			{Name: "Alice", Email: "alice@example.com", IsLead: true, CanEdit: true, Notifications: true},
			{Name: "Bob", Email: "bob@example.com", CanEdit: false},
		},
		Subsessions: []domain.SubsessionInput{
			{Name: "Part X", Title: "Part X", OrganiserName: "Xena", OrganiserEmail: "xena@example.com"},
			{Name: "Part Y", Title: "Part Y", OrganiserName: "Yuri", OrganiserEmail: "yuri@example.com"},
		},
	}
}

// inputFrom describes stored state as an update that changes nothing.
func inputFrom(s *domain.Session, children map[string]*domain.Session) domain.SessionInput {
	in := domain.SessionInput{
		Title:         s.Title,
		Name:          s.Name,
		Date:          s.Date,
		MultipleDates: s.MultipleDates,
		Attendance:    s.Attendance,
		Certificate:   s.Certificate,
		Questions:     s.Questions,
	}
	for _, o := range s.Organisers {
		in.Organisers = append(in.Organisers, domain.OrganiserInput{
			Name: o.Name, Email: o.Email, ExistingEmail: o.Email, IsLead: o.IsLead, CanEdit: o.CanEdit, Notifications: o.Notifications,
		})
	}
	for _, id := range s.Subsessions {
		c := children[id]
		in.Subsessions = append(in.Subsessions, domain.SubsessionInput{
			ID: c.ID, Name: c.Name, Title: c.Title, OrganiserName: c.Organisers[0].Name, OrganiserEmail: c.Organisers[0].Email,
		})
	}
	return in
}

func prepared(t *testing.T, e *Engine, in domain.SessionInput) (*domain.Session, map[string]*domain.Session) {
	t.Helper()
	p, err := e.Prepare(in)
	require.NoError(t, err)
	children := make(map[string]*domain.Session, len(p.Children))
	for _, c := range p.Children {
		children[c.ID] = c
	}
	return p.Session, children
}

func kinds(events []domain.Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = string(ev.Kind) + ":" + ev.Recipient.Email
	}
	return out
}

func TestPrepare_MintsCredentialsAndEvents(t *testing.T) {
	e := newTestEngine()
	in := baseInput()
	in.Subsessions = append(in.Subsessions, domain.SubsessionInput{Name: "Part Z", OrganiserName: "Nobody yet"})

	p, err := e.Prepare(in)
	require.NoError(t, err)

	s := p.Session
	assert.Equal(t, "id-1", s.ID)
	require.Len(t, s.Organisers, 2)
	require.Len(t, p.Children, 3)
	assert.Equal(t, []string{p.Children[0].ID, p.Children[1].ID, p.Children[2].ID}, s.Subsessions)

	lead := s.Lead()
	require.NotNil(t, lead)
	assert.Equal(t, "alice@example.com", lead.Email)
	assert.True(t, security.NewPINService(nil, "").Verify(p.LeadPIN, lead.Salt, lead.PinHash))

	assert.Equal(t, []string{
		"organiser_added:alice@example.com",
		"organiser_added:bob@example.com",
		"organiser_added:xena@example.com",
		"organiser_added:yuri@example.com",
	}, kinds(p.Events))
	for _, ev := range p.Events {
		assert.Len(t, ev.PIN, 6)
	}

	z := p.Children[2]
	assert.True(t, z.IsSubsession)
	assert.Equal(t, "Intro to Go", z.Title, "child title falls back to the parent's")
	assert.NotEmpty(t, z.Organisers[0].Salt, "emailless organiser still gets a credential")
	assert.False(t, z.Certificate)
	assert.Empty(t, z.Date)
}

func TestPrepare_RejectsInvalidInput(t *testing.T) {
	e := newTestEngine()

	noLead := baseInput()
	noLead.Organisers[0].IsLead = false
	_, err := e.Prepare(noLead)
	assert.ErrorIs(t, err, domain.ErrValidation)

	attendance := baseInput()
	attendance.Attendance = true
	_, err = e.Prepare(attendance)
	assert.ErrorIs(t, err, domain.ErrValidation)

	dup := baseInput()
	dup.Organisers[1].Email = "ALICE@example.com "
	_, err = e.Prepare(dup)
	assert.ErrorIs(t, err, domain.ErrValidation)

	existing := baseInput()
	existing.Subsessions[0].ID = "sub-1"
	_, err = e.Prepare(existing)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPrepare_MintFailurePropagates(t *testing.T) {
	e := New(failingMinter{}, func() string { return "id" }, time.Now)
	_, err := e.Prepare(baseInput())
	require.Error(t, err)
	assert.Equal(t, "infrastructure", domain.Category(err))
}

func TestReconcile_UnchangedSetYieldsNoEvents(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	res, err := e.Reconcile(old, children, inputFrom(old, children))
	require.NoError(t, err)

	assert.Empty(t, res.Events)
	assert.Empty(t, res.Writes)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, res.Organisers.Unchanged)
	assert.ElementsMatch(t, old.Subsessions, res.Subsessions.Unchanged)
	for i, o := range res.Session.Organisers {
		assert.Equal(t, old.Organisers[i].Salt, o.Salt)
		assert.Equal(t, old.Organisers[i].PinHash, o.PinHash)
	}
}

func TestReconcile_EditAndAddOrganisers(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers[1].Name = "Robert"
	in.Organisers = append(in.Organisers, domain.OrganiserInput{Name: "Carol", Email: "carol@example.com", CanEdit: true})

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"organiser_edited:bob@example.com",
		"organiser_added:carol@example.com",
	}, kinds(res.Events))
	assert.Equal(t, []string{"alice@example.com"}, res.Organisers.Unchanged)
	assert.Equal(t, []string{"bob@example.com"}, res.Organisers.Edited)
	assert.Equal(t, []string{"carol@example.com"}, res.Organisers.Added)
	assert.Empty(t, res.Organisers.Removed)

	alice := res.Session.Organiser("alice@example.com")
	assert.Equal(t, old.Organisers[0], *alice)
	bob := res.Session.Organiser("bob@example.com")
	assert.Equal(t, "Robert", bob.Name)
	assert.Equal(t, old.Organisers[1].Salt, bob.Salt)
	assert.Equal(t, old.Organisers[1].PinHash, bob.PinHash)

	carol := res.Session.Organiser("carol@example.com")
	require.NotNil(t, carol)
	assert.False(t, carol.IsLead)
	assert.True(t, security.NewPINService(nil, "").Verify(res.Events[1].PIN, carol.Salt, carol.PinHash))
	assert.Empty(t, res.Events[0].PIN, "edits never carry a PIN")
}

func TestReconcile_MatchedOrganiserKeepsNotificationState(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	sent := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	old.Organisers[0].LastSent = &sent

	in := inputFrom(old, children)
	in.Organisers[0].Notifications = false

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)
	alice := res.Session.Organiser("alice@example.com")
	assert.True(t, alice.Notifications)
	require.NotNil(t, alice.LastSent)
	assert.Equal(t, sent, *alice.LastSent)
}

func TestReconcile_EmailChangeFailsAndLeavesOldUntouched(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	snapshot := old.Clone()

	in := inputFrom(old, children)
	in.Organisers[1].Email = "bobby@example.com"

	res, err := e.Reconcile(old, children, in)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, snapshot, old)
}

func TestReconcile_LeadToggleFails(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers[1].IsLead = true
	_, err := e.Reconcile(old, children, in)
	assert.ErrorIs(t, err, domain.ErrValidation)

	in = inputFrom(old, children)
	in.Organisers = append(in.Organisers, domain.OrganiserInput{Name: "Dan", Email: "dan@example.com", IsLead: true})
	_, err = e.Reconcile(old, children, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_DroppingLeadFails(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers = in.Organisers[1:]
	_, err := e.Reconcile(old, children, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_UnknownExistingEmailFails(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers[1].ExistingEmail = "ghost@example.com"
	in.Organisers[1].Email = "ghost@example.com"
	_, err := e.Reconcile(old, children, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_RemoveOrganiser(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers = in.Organisers[:1]
	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"organiser_removed:bob@example.com"}, kinds(res.Events))
	assert.Equal(t, []string{"bob@example.com"}, res.Organisers.Removed)
	assert.Nil(t, res.Session.Organiser("bob@example.com"))
}

func TestReconcile_RemoveThenReAddMintsNewCredential(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	oldBob := *old.Organiser("bob@example.com")

	in := inputFrom(old, children)
	in.Organisers[1].ExistingEmail = ""

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"organiser_removed:bob@example.com",
		"organiser_added:bob@example.com",
	}, kinds(res.Events))
	bob := res.Session.Organiser("bob@example.com")
	require.NotNil(t, bob)
	assert.NotEqual(t, oldBob.Salt, bob.Salt)
	assert.NotEqual(t, oldBob.PinHash, bob.PinHash)
}

func TestReconcile_SubsessionRemovedIsSoftClosed(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	x, y := old.Subsessions[0], old.Subsessions[1]

	in := inputFrom(old, children)
	in.Subsessions = in.Subsessions[:1]

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)

	assert.Equal(t, []string{x}, res.Session.Subsessions)
	assert.Equal(t, []string{x}, res.Subsessions.Unchanged)
	assert.Equal(t, []string{y}, res.Subsessions.Removed)
	require.Len(t, res.Writes, 1)
	assert.Equal(t, y, res.Writes[0].ID)
	assert.True(t, res.Writes[0].Closed)
	assert.False(t, children[y].Closed, "stored child must not be mutated")
	assert.Equal(t, []string{"subsession_removed:yuri@example.com"}, kinds(res.Events))
	assert.Equal(t, old.ID, res.Events[0].ParentID)
}

func TestReconcile_RemovedEmaillessSubsessionHasNoEvent(t *testing.T) {
	e := newTestEngine()
	in := baseInput()
	in.Subsessions[1].OrganiserEmail = ""
	old, children := prepared(t, e, in)

	upd := inputFrom(old, children)
	upd.Subsessions = upd.Subsessions[:1]
	res, err := e.Reconcile(old, children, upd)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Len(t, res.Subsessions.Removed, 1)
	assert.Len(t, res.Writes, 1)
}

func TestReconcile_SubsessionEdited(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	x := old.Subsessions[0]

	in := inputFrom(old, children)
	in.Subsessions[0].Title = "Part X (revised)"

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"subsession_edited:xena@example.com"}, kinds(res.Events))
	assert.Equal(t, []string{x}, res.Subsessions.Edited)
	require.Len(t, res.Writes, 1)
	assert.Equal(t, "Part X (revised)", res.Writes[0].Title)
	assert.Equal(t, children[x].Organisers[0].Salt, res.Writes[0].Organisers[0].Salt)
}

func TestReconcile_SubsessionOrganiserEmailAddedOnce(t *testing.T) {
	e := newTestEngine()
	in := baseInput()
	in.Subsessions[1].OrganiserEmail = ""
	old, children := prepared(t, e, in)
	y := old.Subsessions[1]
	oldSalt := children[y].Organisers[0].Salt

	upd := inputFrom(old, children)
	upd.Subsessions[1].OrganiserEmail = "Yuri@Example.com"
	res, err := e.Reconcile(old, children, upd)
	require.NoError(t, err)

	assert.Equal(t, []string{"subsession_organiser_added:yuri@example.com"}, kinds(res.Events))
	require.Len(t, res.Writes, 1)
	org := res.Writes[0].Organisers[0]
	assert.Equal(t, "yuri@example.com", org.Email)
	assert.NotEqual(t, oldSalt, org.Salt)
	assert.True(t, security.NewPINService(nil, "").Verify(res.Events[0].PIN, org.Salt, org.PinHash))

	// Once set, the email is frozen.
	children[y] = res.Writes[0]
	upd2 := inputFrom(res.Session, children)
	upd2.Subsessions[1].OrganiserEmail = "mallory@example.com"
	_, err = e.Reconcile(res.Session, children, upd2)
	assert.ErrorIs(t, err, domain.ErrValidation)

	upd3 := inputFrom(res.Session, children)
	upd3.Subsessions[1].OrganiserEmail = ""
	_, err = e.Reconcile(res.Session, children, upd3)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_NewSubsessionIsCreated(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Subsessions = append(in.Subsessions, domain.SubsessionInput{Name: "Part W", Title: "Part W", OrganiserName: "Wes", OrganiserEmail: "wes@example.com"})

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)
	require.Len(t, res.Session.Subsessions, 3)
	newID := res.Session.Subsessions[2]
	assert.Equal(t, []string{newID}, res.Subsessions.Added)
	assert.Equal(t, []string{"subsession_created:wes@example.com"}, kinds(res.Events))
	assert.Len(t, res.Events[0].PIN, 6)
	require.Len(t, res.Writes, 1)
	assert.True(t, res.Writes[0].IsSubsession)
}

func TestReconcile_UnknownSubsessionFails(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Subsessions[0].ID = "someone-elses"
	_, err := e.Reconcile(old, children, in)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_RejectsSubsessionTarget(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())
	child := children[old.Subsessions[0]]
	_, err := e.Reconcile(child, nil, domain.SessionInput{Title: "x"})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconcile_ClassificationIsExhaustive(t *testing.T) {
	e := newTestEngine()
	old, children := prepared(t, e, baseInput())

	in := inputFrom(old, children)
	in.Organisers[1].CanEdit = true
	in.Organisers = append(in.Organisers, domain.OrganiserInput{Name: "Carol", Email: "carol@example.com"})
	in.Subsessions[0].Name = "Part X2"
	in.Subsessions = append(in.Subsessions[:1], domain.SubsessionInput{Name: "Part V", OrganiserName: "Val"})

	res, err := e.Reconcile(old, children, in)
	require.NoError(t, err)

	orgs := res.Organisers
	all := append(append(append(append([]string{}, orgs.Unchanged...), orgs.Edited...), orgs.Added...), orgs.Removed...)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com", "carol@example.com"}, all)

	subs := res.Subsessions
	allSubs := append(append(append(append([]string{}, subs.Unchanged...), subs.Edited...), subs.Added...), subs.Removed...)
	assert.Len(t, allSubs, 3)
	assert.Len(t, subs.Edited, 1)
	assert.Len(t, subs.Added, 1)
	assert.Len(t, subs.Removed, 1)
	assert.Empty(t, subs.Unchanged)
}
