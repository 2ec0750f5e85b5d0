package domain

// EventKind classifies a change that needs a notification.
type EventKind string

const (
	EventOrganiserAdded           EventKind = "organiser_added"
	EventOrganiserEdited          EventKind = "organiser_edited"
	EventOrganiserRemoved         EventKind = "organiser_removed"
	EventSubsessionCreated        EventKind = "subsession_created"
	EventSubsessionEdited         EventKind = "subsession_edited"
	EventSubsessionOrganiserAdded EventKind = "subsession_organiser_added"
	EventSubsessionRemoved        EventKind = "subsession_removed"
	EventNonLeadEdited            EventKind = "non_lead_edited"
	EventClosureNotice            EventKind = "closure_notice"
	EventCredentialReset          EventKind = "credential_reset"
	EventFeedbackSubmitted        EventKind = "feedback_submitted"
)

// Recipient is the single addressee of an event.
type Recipient struct {
	Name  string
	Email string
}

// Event is one classified change. PIN is set only on events that hand a freshly minted
// credential to its owner (added, created, reset); it is never persisted.
type Event struct {
	Kind         EventKind
	SessionID    string
	SessionTitle string
	ParentID     string // parent session id for subsession events
	Recipient    Recipient
	PIN          string
	Actor        string // email of the acting organiser, when known
}

// Actor is an authenticated organiser acting on a session.
type Actor struct {
	Email string
	Name  string
}

// MintsCredential reports whether events of this kind hand a fresh PIN to their recipient.
func (e Event) MintsCredential() bool {
	switch e.Kind {
	case EventOrganiserAdded, EventSubsessionCreated, EventSubsessionOrganiserAdded, EventCredentialReset:
		return true
	default:
		return false
	}
}
