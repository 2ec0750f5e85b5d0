package telemetry

import (
	"context"
	"errors"

	"feedback-collector/backend/internal/session/domain"
)

// EventEmitter records lifecycle events (e.g. as OTel log records). Best-effort; callers log and ignore errors.
// Implementations must not record the event's PIN.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

type multiEmitter []EventEmitter

// Multi fans each event out to every non-nil emitter. Returns nil when none remain.
func Multi(emitters ...EventEmitter) EventEmitter {
	var m multiEmitter
	for _, e := range emitters {
		if e != nil {
			m = append(m, e)
		}
	}
	switch len(m) {
	case 0:
		return nil
	case 1:
		return m[0]
	}
	return m
}

// Emit calls every emitter and joins their errors.
func (m multiEmitter) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
