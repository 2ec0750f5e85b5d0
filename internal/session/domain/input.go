package domain

import (
	"fmt"
	"strings"
)

// SessionInput is the caller's desired representation of a session for create and update.
type SessionInput struct {
	Title         string
	Name          string
	Date          string
	MultipleDates bool
	Attendance    bool
	Certificate   bool
	Questions     []Question
	Organisers    []OrganiserInput
	Subsessions   []SubsessionInput
}

// OrganiserInput describes one organiser entry. ExistingEmail names the stored organiser this
// entry edits; it is empty for an entry that adds a new organiser.
type OrganiserInput struct {
	Name          string
	Email         string
	ExistingEmail string
	IsLead        bool
	CanEdit       bool
	Notifications bool
}

// SubsessionInput describes one child session. ID is empty for a child that should be created.
type SubsessionInput struct {
	ID             string
	Name           string
	Title          string
	OrganiserName  string
	OrganiserEmail string
}

// Normalize trims text fields and lower-cases every email in place.
func (in *SessionInput) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Name = strings.TrimSpace(in.Name)
	in.Date = strings.TrimSpace(in.Date)
	if in.MultipleDates {
		in.Date = ""
	}
	for i := range in.Organisers {
		o := &in.Organisers[i]
		o.Name = strings.TrimSpace(o.Name)
		o.Email = NormalizeEmail(o.Email)
		o.ExistingEmail = NormalizeEmail(o.ExistingEmail)
	}
	for i := range in.Subsessions {
		c := &in.Subsessions[i]
		c.ID = strings.TrimSpace(c.ID)
		c.Name = strings.TrimSpace(c.Name)
		c.Title = strings.TrimSpace(c.Title)
		c.OrganiserName = strings.TrimSpace(c.OrganiserName)
		c.OrganiserEmail = NormalizeEmail(c.OrganiserEmail)
	}
}

// Validate checks input-level rules that do not depend on stored state.
func (in *SessionInput) Validate() error {
	if in.Attendance && !in.Certificate {
		return fmt.Errorf("%w: attendance requires certificate", ErrValidation)
	}
	emails := make(map[string]bool, len(in.Organisers))
	existing := make(map[string]bool, len(in.Organisers))
	for _, o := range in.Organisers {
		if emails[o.Email] {
			return fmt.Errorf("%w: duplicate organiser email %s", ErrValidation, o.Email)
		}
		emails[o.Email] = true
		if o.ExistingEmail != "" {
			if existing[o.ExistingEmail] {
				return fmt.Errorf("%w: organiser %s referenced twice", ErrValidation, o.ExistingEmail)
			}
			existing[o.ExistingEmail] = true
		}
	}
	ids := make(map[string]bool, len(in.Subsessions))
	for _, c := range in.Subsessions {
		if c.ID == "" {
			continue
		}
		if ids[c.ID] {
			return fmt.Errorf("%w: subsession %s listed twice", ErrValidation, c.ID)
		}
		ids[c.ID] = true
	}
	return nil
}
