package producer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedback-collector/backend/internal/session/domain"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestNewKafkaProducer_NoBrokersIsNil(t *testing.T) {
	p := NewKafkaProducer(nil, "topic")
	assert.Nil(t, p)
	assert.NoError(t, p.Emit(context.Background(), &domain.Event{Kind: domain.EventClosureNotice}))
	assert.NoError(t, p.Close())
}

func TestKafkaProducer_Emit(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w)
	at := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	err := p.Emit(context.Background(), &domain.Event{
		Kind:         domain.EventSubsessionCreated,
		SessionID:    "child-1",
		SessionTitle: "Profiling",
		ParentID:     "parent-1",
		Recipient:    domain.Recipient{Name: "Xena", Email: "xena@example.com"},
		PIN:          "123456",
		Actor:        "alice@example.com",
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "parent-1", string(msg.Key), "children share the parent's partition")
	assert.NotContains(t, string(msg.Value), "123456")
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "subsession_created", string(msg.Headers[0].Value))

	var rec changeRecord
	require.NoError(t, json.Unmarshal(msg.Value, &rec))
	assert.Equal(t, changeRecord{
		Kind:             "subsession_created",
		SessionID:        "child-1",
		SessionTitle:     "Profiling",
		ParentID:         "parent-1",
		RecipientEmail:   "xena@example.com",
		ActorEmail:       "alice@example.com",
		CredentialMinted: true,
		OccurredAt:       at,
	}, rec)
}

func TestKafkaProducer_EmitKeysBySessionWithoutParent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w)
	require.NoError(t, p.Emit(context.Background(), &domain.Event{Kind: domain.EventClosureNotice, SessionID: "s-1"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "s-1", string(w.msgs[0].Key))
}

func TestKafkaProducer_EmitError(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaProducer(&fakeWriter{err: boom})
	assert.ErrorIs(t, p.Emit(context.Background(), &domain.Event{Kind: domain.EventClosureNotice, SessionID: "s-1"}), boom)
}

func TestKafkaProducer_NilEventAndClose(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w)
	assert.NoError(t, p.Emit(context.Background(), nil))
	assert.Empty(t, w.msgs)
	assert.NoError(t, p.Close())
	assert.True(t, w.closed)
}
