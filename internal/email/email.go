// Package email delivers notification messages. Postmark is used when both tokens are configured;
// otherwise DevSender writes each message to disk.
package email

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrFailedToSendEmail = errors.New("email: failed to send")
	ErrInvalidConfig     = errors.New("email: invalid config")
	ErrInvalidMessage    = errors.New("email: invalid message")
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Sender sends one email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Tag     string // optional; used for Postmark analytics and dev file names
}

// Validate checks the message has a well-formed recipient, a subject and a body.
func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}
	if !emailRegex.MatchString(m.To) {
		return fmt.Errorf("%w: recipient %q is not a valid email address", ErrInvalidMessage, m.To)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.HTML) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidMessage)
	}
	return nil
}

// Config holds email service configuration. The Postmark tokens are optional; SenderEmail and
// SupportEmail establish the From and Reply-To of every message.
type Config struct {
	PostmarkServerToken  string
	PostmarkAccountToken string
	SenderEmail          string
	SupportEmail         string
	DevDir               string
}

// NewSender returns a Postmark sender when both tokens are set, and a DevSender otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken != "" || cfg.PostmarkAccountToken != "" {
		return NewPostmarkSender(cfg)
	}
	dir := cfg.DevDir
	if dir == "" {
		dir = "tmp/mail"
	}
	return NewDevSender(dir, nil), nil
}
