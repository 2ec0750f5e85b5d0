package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"feedback-collector/backend/internal/notify"
	"feedback-collector/backend/internal/session/domain"
)

// Exit codes for feedbackctl. Domain error categories each get their own code.
const (
	ExitSuccess    = 0
	ExitFailure    = 1 // infrastructure failure
	ExitUsage      = 2
	ExitValidation = 3
	ExitNotFound   = 4
	ExitForbidden  = 5
	ExitConflict   = 6
)

// ExitError carries an explicit exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(format string, args ...any) *ExitError {
	return &ExitError{Code: ExitUsage, Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps err to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch domain.Category(err) {
	case "validation":
		return ExitValidation
	case "not_found":
		return ExitNotFound
	case "forbidden":
		return ExitForbidden
	case "conflict":
		return ExitConflict
	default:
		return ExitFailure
	}
}

// Response is the JSON envelope written with --format json.
type Response struct {
	Status string         `json:"status"`
	Data   any            `json:"data,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed command.
type ResponseError struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Output writes command results as text or JSON.
type Output struct {
	Format string
	Writer io.Writer
}

// Success writes data. In text mode data is printed with its String method.
func (o *Output) Success(data any) error {
	if o.Format == "json" {
		return json.NewEncoder(o.Writer).Encode(Response{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(o.Writer, data)
	return err
}

// Error writes err. Text mode leaves printing to the caller's stderr handling.
func (o *Output) Error(err error) {
	if o.Format != "json" {
		return
	}
	category := domain.Category(err)
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code == ExitUsage {
		category = "usage"
	}
	_ = json.NewEncoder(o.Writer).Encode(Response{
		Status: "error",
		Error:  &ResponseError{Category: category, Message: err.Error()},
	})
}

type failureView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Error string `json:"error"`
}

func failureViews(in []notify.Failure) []failureView {
	out := make([]failureView, len(in))
	for i, f := range in {
		out[i] = failureView(f)
	}
	return out
}

func writeFailures(b *strings.Builder, failures []failureView) {
	for _, f := range failures {
		fmt.Fprintf(b, "\nnotification failed: %s <%s>: %s", f.Name, f.Email, f.Error)
	}
}

type createView struct {
	ID                   string        `json:"id"`
	LeadPIN              string        `json:"leadPin"`
	NotificationFailures []failureView `json:"notificationFailures"`
}

func (v createView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s created\nlead PIN: %s", v.ID, v.LeadPIN)
	writeFailures(&b, v.NotificationFailures)
	return b.String()
}

type classificationView struct {
	Unchanged []string `json:"unchanged"`
	Edited    []string `json:"edited"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
}

func (c classificationView) summary() string {
	return fmt.Sprintf("%d unchanged, %d edited, %d added, %d removed",
		len(c.Unchanged), len(c.Edited), len(c.Added), len(c.Removed))
}

type updateView struct {
	ID                   string             `json:"id"`
	Organisers           classificationView `json:"organisers"`
	Subsessions          classificationView `json:"subsessions"`
	NotificationFailures []failureView      `json:"notificationFailures"`
}

func (v updateView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s updated\norganisers: %s\nsubsessions: %s",
		v.ID, v.Organisers.summary(), v.Subsessions.summary())
	writeFailures(&b, v.NotificationFailures)
	return b.String()
}

type resultView struct {
	ID                   string        `json:"id"`
	Action               string        `json:"action"`
	NotificationFailures []failureView `json:"notificationFailures"`
}

func (v resultView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "session %s: %s", v.ID, v.Action)
	writeFailures(&b, v.NotificationFailures)
	return b.String()
}

type feedbackView struct {
	SessionID            string        `json:"sessionId"`
	FeedbackID           string        `json:"feedbackId"`
	NotificationFailures []failureView `json:"notificationFailures"`
}

func (v feedbackView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "feedback %s recorded for session %s", v.FeedbackID, v.SessionID)
	writeFailures(&b, v.NotificationFailures)
	return b.String()
}

type actorView struct {
	SessionID string `json:"sessionId"`
	Email     string `json:"email"`
	Name      string `json:"name"`
}

func (v actorView) String() string {
	return fmt.Sprintf("authenticated %s <%s> for session %s", v.Name, v.Email, v.SessionID)
}

// sessionView is the public projection of a session. Credentials are never part of it.
type sessionView struct {
	ID            string          `json:"id"`
	Name          string          `json:"name,omitempty"`
	Title         string          `json:"title"`
	Date          string          `json:"date,omitempty"`
	MultipleDates bool            `json:"multipleDates"`
	Attendance    bool            `json:"attendance"`
	Certificate   bool            `json:"certificate"`
	Closed        bool            `json:"closed"`
	IsSubsession  bool            `json:"isSubsession"`
	Organisers    []organiserView `json:"organisers"`
	Questions     []questionView  `json:"questions"`
	Subsessions   []string        `json:"subsessions"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

type organiserView struct {
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	IsLead        bool       `json:"isLead"`
	CanEdit       bool       `json:"canEdit"`
	Notifications bool       `json:"notifications"`
	LastSent      *time.Time `json:"lastSent,omitempty"`
}

type questionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Type     string   `json:"type"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
}

func newSessionView(s *domain.Session) sessionView {
	v := sessionView{
		ID:            s.ID,
		Name:          s.Name,
		Title:         s.Title,
		Date:          s.Date,
		MultipleDates: s.MultipleDates,
		Attendance:    s.Attendance,
		Certificate:   s.Certificate,
		Closed:        s.Closed,
		IsSubsession:  s.IsSubsession,
		Organisers:    make([]organiserView, len(s.Organisers)),
		Questions:     make([]questionView, len(s.Questions)),
		Subsessions:   append([]string{}, s.Subsessions...),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	for i, o := range s.Organisers {
		v.Organisers[i] = organiserView{
			Name: o.Name, Email: o.Email, IsLead: o.IsLead, CanEdit: o.CanEdit,
			Notifications: o.Notifications, LastSent: o.LastSent,
		}
	}
	for i, q := range s.Questions {
		v.Questions[i] = questionView{ID: q.ID, Text: q.Text, Type: string(q.Type), Options: q.Options, Required: q.Required}
	}
	return v
}

func (v sessionView) String() string {
	var b strings.Builder
	state := "open"
	if v.Closed {
		state = "closed"
	}
	fmt.Fprintf(&b, "%s  %s (%s)", v.ID, v.Title, state)
	if v.Date != "" {
		fmt.Fprintf(&b, "\ndate: %s", v.Date)
	} else if v.MultipleDates {
		b.WriteString("\ndate: multiple")
	}
	for _, o := range v.Organisers {
		role := "organiser"
		switch {
		case o.IsLead:
			role = "lead"
		case o.CanEdit:
			role = "editor"
		}
		fmt.Fprintf(&b, "\n%-9s %s <%s>", role, o.Name, o.Email)
	}
	for _, q := range v.Questions {
		fmt.Fprintf(&b, "\nquestion  %s [%s] %s", q.ID, q.Type, q.Text)
	}
	for _, id := range v.Subsessions {
		fmt.Fprintf(&b, "\nchild     %s", id)
	}
	return b.String()
}
