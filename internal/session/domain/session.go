package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Session is a feedback request. Parent sessions own organisers and an ordered list of child
// (subsession) ids; subsessions carry exactly one organiser and no questions of their own.
type Session struct {
	ID            string
	Title         string
	Name          string
	Date          string // YYYY-MM-DD; empty when MultipleDates is set
	MultipleDates bool
	Organisers    []Organiser
	Questions     []Question
	Subsessions   []string
	Attendance    bool
	Certificate   bool
	Closed        bool
	IsSubsession  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Organiser is a person with administrative access to a session. Email is the natural key.
type Organiser struct {
	Name          string
	Email         string
	IsLead        bool
	CanEdit       bool
	PinHash       string
	Salt          string
	Notifications bool
	LastSent      *time.Time // nil until the first feedback notification
}

// QuestionType is the kind of answer a question expects.
type QuestionType string

const (
	QuestionText   QuestionType = "text"
	QuestionRating QuestionType = "rating"
	QuestionChoice QuestionType = "choice"
)

// Question is a single feedback question.
type Question struct {
	ID       string
	Text     string
	Type     QuestionType
	Options  []string // choice only
	Required bool
}

// Lead returns the lead organiser, or nil when the session has none (subsessions created
// without an organiser email still have a lead).
func (s *Session) Lead() *Organiser {
	for i := range s.Organisers {
		if s.Organisers[i].IsLead {
			return &s.Organisers[i]
		}
	}
	return nil
}

// Organiser returns the organiser with the given email (case-insensitive), or nil.
func (s *Session) Organiser(email string) *Organiser {
	email = NormalizeEmail(email)
	if email == "" {
		return nil
	}
	for i := range s.Organisers {
		if s.Organisers[i].Email == email {
			return &s.Organisers[i]
		}
	}
	return nil
}

// Question returns the question with the given id, or nil.
func (s *Session) Question(id string) *Question {
	for i := range s.Questions {
		if s.Questions[i].ID == id {
			return &s.Questions[i]
		}
	}
	return nil
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Organisers = make([]Organiser, len(s.Organisers))
	for i, o := range s.Organisers {
		if o.LastSent != nil {
			t := *o.LastSent
			o.LastSent = &t
		}
		c.Organisers[i] = o
	}
	c.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		q.Options = append([]string(nil), q.Options...)
		c.Questions[i] = q
	}
	c.Subsessions = append([]string(nil), s.Subsessions...)
	return &c
}

// Validate checks the structural invariants of a session about to be persisted.
func (s *Session) Validate() error {
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	if s.Attendance && !s.Certificate {
		return fmt.Errorf("%w: attendance requires certificate", ErrValidation)
	}
	if s.IsSubsession {
		if len(s.Organisers) != 1 {
			return fmt.Errorf("%w: subsession must have exactly one organiser", ErrValidation)
		}
		if len(s.Questions) > 0 || len(s.Subsessions) > 0 {
			return fmt.Errorf("%w: subsession cannot own questions or subsessions", ErrValidation)
		}
		if s.Certificate || s.Attendance || s.Date != "" {
			return fmt.Errorf("%w: subsession cannot set date, certificate or attendance", ErrValidation)
		}
		if e := s.Organisers[0].Email; e != "" {
			return validateEmail(e)
		}
		return nil
	}
	leads := 0
	seen := make(map[string]bool, len(s.Organisers))
	for _, o := range s.Organisers {
		if err := validateEmail(o.Email); err != nil {
			return err
		}
		if seen[o.Email] {
			return fmt.Errorf("%w: duplicate organiser email %s", ErrValidation, o.Email)
		}
		seen[o.Email] = true
		if o.IsLead {
			leads++
		}
	}
	if leads != 1 {
		return fmt.Errorf("%w: session must have exactly one lead organiser, got %d", ErrValidation, leads)
	}
	if !s.MultipleDates && s.Date != "" {
		if _, err := time.Parse(time.DateOnly, s.Date); err != nil {
			return fmt.Errorf("%w: invalid date %q", ErrValidation, s.Date)
		}
	}
	return validateQuestions(s.Questions)
}

func validateQuestions(qs []Question) error {
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if q.ID == "" || seen[q.ID] {
			return fmt.Errorf("%w: question ids must be unique and non-empty", ErrValidation)
		}
		seen[q.ID] = true
		switch q.Type {
		case QuestionText, QuestionRating:
		case QuestionChoice:
			if len(q.Options) == 0 {
				return fmt.Errorf("%w: choice question %s has no options", ErrValidation, q.ID)
			}
		default:
			return fmt.Errorf("%w: question %s has unknown type %q", ErrValidation, q.ID, q.Type)
		}
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}$`)

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: organiser email is required", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email %q", ErrValidation, email)
	}
	return nil
}
