// Package notify turns classified change events into emails, one recipient per event.
package notify

import (
	"context"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"feedback-collector/backend/internal/email"
	"feedback-collector/backend/internal/session/domain"
)

// Failure describes one notification that could not be delivered.
type Failure struct {
	Name  string
	Email string
	Error string
}

// Dispatcher sends one email per event, sequentially and in event order.
type Dispatcher struct {
	sender  email.Sender
	baseURL string
	sent    metric.Int64Counter
	failed  metric.Int64Counter
}

// NewDispatcher returns a Dispatcher sending through sender. meter may be nil; then outcomes are not counted.
func NewDispatcher(sender email.Sender, baseURL string, meter metric.Meter) (*Dispatcher, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	sent, err := meter.Int64Counter("notifications.sent", metric.WithDescription("Notification emails accepted by the mail transport"))
	if err != nil {
		return nil, err
	}
	failed, err := meter.Int64Counter("notifications.failed", metric.WithDescription("Notification emails that could not be rendered or sent"))
	if err != nil {
		return nil, err
	}
	return &Dispatcher{sender: sender, baseURL: baseURL, sent: sent, failed: failed}, nil
}

// Dispatch sends every event that has a recipient email. A failed send never stops the
// remaining sends; failures are returned in event order.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) []Failure {
	var failures []Failure
	for _, ev := range events {
		if ev.Recipient.Email == "" {
			continue
		}
		kind := metric.WithAttributes(attribute.String("event_kind", string(ev.Kind)))
		msg, err := Compose(ctx, ev, d.baseURL)
		if err == nil {
			err = d.sender.Send(ctx, msg)
		}
		if err != nil {
			log.Printf("notify: %s to %s for session %s failed: %v", ev.Kind, ev.Recipient.Email, ev.SessionID, err)
			d.failed.Add(ctx, 1, kind)
			failures = append(failures, Failure{Name: ev.Recipient.Name, Email: ev.Recipient.Email, Error: err.Error()})
			continue
		}
		d.sent.Add(ctx, 1, kind)
	}
	return failures
}
