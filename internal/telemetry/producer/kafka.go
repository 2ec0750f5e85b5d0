// Package producer publishes session change events to Kafka for downstream consumers.
package producer

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"feedback-collector/backend/internal/session/domain"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "feedback-events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements telemetry.EventEmitter using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	now    func() time.Time
}

// changeRecord is the JSON value of one message. It never carries a PIN.
type changeRecord struct {
	Kind             string    `json:"kind"`
	SessionID        string    `json:"sessionId"`
	SessionTitle     string    `json:"sessionTitle,omitempty"`
	ParentID         string    `json:"parentId,omitempty"`
	RecipientEmail   string    `json:"recipientEmail,omitempty"`
	ActorEmail       string    `json:"actorEmail,omitempty"`
	CredentialMinted bool      `json:"credentialMinted"`
	OccurredAt       time.Time `json:"occurredAt"`
}

// NewKafkaProducer creates a producer that writes change events to topic. Returns nil when
// brokers is empty so callers can treat Kafka as optional. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	if len(brokers) == 0 {
		return nil
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return newKafkaProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	})
}

func newKafkaProducer(w messageWriter) *KafkaProducer {
	return &KafkaProducer{writer: w, now: time.Now}
}

// Emit serializes the event as JSON and writes it keyed by session id, so every change of one
// session lands on the same partition in order.
func (p *KafkaProducer) Emit(ctx context.Context, event *domain.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(changeRecord{
		Kind:             string(event.Kind),
		SessionID:        event.SessionID,
		SessionTitle:     event.SessionTitle,
		ParentID:         event.ParentID,
		RecipientEmail:   event.Recipient.Email,
		ActorEmail:       event.Actor,
		CredentialMinted: event.MintsCredential(),
		OccurredAt:       p.now().UTC(),
	})
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	key := event.ParentID
	if key == "" {
		key = event.SessionID
	}
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_kind", Value: []byte(event.Kind)},
		},
	})
	if err != nil {
		log.Printf("telemetry: kafka emit failed: %v", err)
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call on a nil producer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
