package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"feedback-collector/backend/internal/session/domain"
	"feedback-collector/backend/internal/telemetry"
)

const instrumentationName = "feedback-collector.lifecycle"

// recordEmitter is the part of otellog.Logger the emitter needs.
type recordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends lifecycle events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return NewEventEmitterWithLogger(provider.Logger(instrumentationName))
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger directly.
func NewEventEmitterWithLogger(logger recordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger, now: time.Now}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type otelEmitter struct {
	logger recordEmitter
	now    func() time.Time
}

// Emit converts the event to an OTel log record. The PIN is never copied into the record.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(e.now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(string(event.Kind)))
	rec.AddAttributes(otellog.String("event_kind", string(event.Kind)))
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.ParentID != "" {
		rec.AddAttributes(otellog.String("parent_id", event.ParentID))
	}
	if event.Recipient.Email != "" {
		rec.AddAttributes(otellog.String("recipient_email", event.Recipient.Email))
	}
	if event.Actor != "" {
		rec.AddAttributes(otellog.String("actor_email", event.Actor))
	}
	rec.AddAttributes(otellog.Bool("credential_minted", event.MintsCredential()))
	e.logger.Emit(ctx, rec)
	return nil
}
