package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/angelmondragon/library-backend/pkg/config"
)

type fakeChannel struct {
	exchange string
	key      string
	msg      amqp.Publishing
	err      error
	closeErr error
	closed   bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange = exchange
	f.key = key
	f.msg = msg
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return f.closeErr
}

func TestNewWithoutURLReturnsNoop(t *testing.T) {
	pub, err := New(context.Background(), config.EventsConfig{}, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := pub.(Noop); !ok {
		t.Fatalf("expected Noop publisher, got %T", pub)
	}
	if err := pub.Publish(context.Background(), TypeHoldCreated, nil); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}

func TestAMQPPublisherSendsEnvelope(t *testing.T) {
	ch := &fakeChannel{}
	pub := newAMQPPublisher(ch, nil, "library.circulation")
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	event := HoldCreatedEvent{
		ReservationID: uuid.New(),
		BookTitleID:   uuid.New(),
		HoldExpiresAt: fixed.Add(24 * time.Hour),
	}
	if err := pub.Publish(context.Background(), TypeHoldCreated, event); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if ch.exchange != "library.circulation" || ch.key != TypeHoldCreated {
		t.Fatalf("unexpected routing %s/%s", ch.exchange, ch.key)
	}
	if ch.msg.DeliveryMode != amqp.Persistent {
		t.Fatalf("expected persistent delivery")
	}

	var envelope Envelope
	if err := jsoniter.ConfigFastest.Unmarshal(ch.msg.Body, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.EventType != TypeHoldCreated || envelope.Version != envelopeVersion {
		t.Fatalf("unexpected envelope %+v", envelope)
	}
	if envelope.EventID != ch.msg.MessageId {
		t.Fatalf("message id %q does not match event id %q", ch.msg.MessageId, envelope.EventID)
	}

	var payload HoldCreatedEvent
	if err := jsoniter.ConfigFastest.Unmarshal(envelope.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ReservationID != event.ReservationID {
		t.Fatalf("expected reservation %s, got %s", event.ReservationID, payload.ReservationID)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !ch.closed {
		t.Fatal("expected channel closed")
	}
}

func TestAMQPPublisherWrapsErrors(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	pub := newAMQPPublisher(ch, nil, "x")
	if err := pub.Publish(context.Background(), TypeHoldExpired, HoldsExpiredEvent{}); err == nil {
		t.Fatal("expected publish error")
	}
	if _, err := NewEnvelope("", nil, time.Now()); err == nil {
		t.Fatal("expected missing event type error")
	}
}

func TestAMQPPublisherCloseReportsEveryFailure(t *testing.T) {
	ch := &fakeChannel{closeErr: errors.New("channel already closed")}
	conn := &fakeCloser{err: errors.New("connection reset")}
	pub := newAMQPPublisher(ch, conn, "x")

	err := pub.Close()
	if err == nil {
		t.Fatal("expected close error")
	}
	for _, want := range []string{"channel already closed", "connection reset"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
	if !ch.closed || !conn.closed {
		t.Fatal("expected channel and connection closed")
	}
}
