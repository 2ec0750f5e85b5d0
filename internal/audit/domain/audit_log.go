package domain

import "time"

// AuditLog records one administrative action on a session.
type AuditLog struct {
	ID        string
	SessionID string
	Actor     string // organiser email; empty for anonymous actions such as feedback submission
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}
