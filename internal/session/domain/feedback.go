package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Feedback is one submitted response to a session.
type Feedback struct {
	ID        string
	SessionID string
	Answers   []Answer
	Attended  bool
	CreatedAt time.Time
}

// FeedbackInput is an incoming feedback submission. ParentID is required when the target is a
// subsession: subsessions answer the questions of their parent.
type FeedbackInput struct {
	ParentID string
	Answers  []Answer
	Attended bool
}

// Answer is the response to a single question.
type Answer struct {
	QuestionID string
	Value      string
}

// ValidateFeedback checks answers against the session's questions. Subsessions answer the
// questions of their parent, so the caller passes the effective question set.
func ValidateFeedback(questions []Question, attendance bool, f *Feedback) error {
	if f.Attended && !attendance {
		return fmt.Errorf("%w: session does not record attendance", ErrValidation)
	}
	answered := make(map[string]string, len(f.Answers))
	for _, a := range f.Answers {
		answered[a.QuestionID] = a.Value
	}
	byID := make(map[string]Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for id := range answered {
		if _, ok := byID[id]; !ok {
			return fmt.Errorf("%w: unknown question %s", ErrValidation, id)
		}
	}
	for _, q := range questions {
		v, ok := answered[q.ID]
		if !ok || v == "" {
			if q.Required {
				return fmt.Errorf("%w: question %s is required", ErrValidation, q.ID)
			}
			continue
		}
		switch q.Type {
		case QuestionRating:
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 5 {
				return fmt.Errorf("%w: question %s expects a rating from 1 to 5", ErrValidation, q.ID)
			}
		case QuestionChoice:
			if !contains(q.Options, v) {
				return fmt.Errorf("%w: question %s has no option %q", ErrValidation, q.ID, v)
			}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
