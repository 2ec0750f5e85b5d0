package notify

import (
	"time"

	"feedback-collector/backend/internal/session/domain"
)

// Due reports whether o should receive a feedback notification at now: notifications are on,
// an email is set and at least cooldown has passed since the last one.
func Due(o domain.Organiser, now time.Time, cooldown time.Duration) bool {
	if !o.Notifications || o.Email == "" {
		return false
	}
	return o.LastSent == nil || now.Sub(*o.LastSent) >= cooldown
}

// FeedbackNotices stamps LastSent = now on every organiser of s that is Due and returns one
// FeedbackSubmitted event per stamped organiser. The caller persists s before sending, so the
// stamp holds whether or not the send succeeds.
func FeedbackNotices(s *domain.Session, now time.Time, cooldown time.Duration) []domain.Event {
	var events []domain.Event
	for i := range s.Organisers {
		o := &s.Organisers[i]
		if !Due(*o, now, cooldown) {
			continue
		}
		stamp := now
		o.LastSent = &stamp
		events = append(events, domain.Event{
			Kind:         domain.EventFeedbackSubmitted,
			SessionID:    s.ID,
			SessionTitle: s.Title,
			Recipient:    domain.Recipient{Name: o.Name, Email: o.Email},
		})
	}
	return events
}
