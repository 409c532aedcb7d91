package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

const envelopeVersion = 1

// Circulation event types, also used as routing keys.
const (
	TypeHoldCreated = "hold.created"
	TypeHoldExpired = "hold.expired"
)

// Envelope is the stable wire structure of every published event.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	EventType  string          `json:"eventType"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// NewEnvelope wraps data for eventType.
func NewEnvelope(eventType string, data any, occurredAt time.Time) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event type required")
	}
	raw, err := jsoniter.ConfigFastest.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		Version:    envelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: occurredAt.UTC(),
		Data:       raw,
	}, nil
}

// encode builds the envelope for data and its JSON body.
func encode(eventType string, data any, occurredAt time.Time) (Envelope, []byte, error) {
	envelope, err := NewEnvelope(eventType, data, occurredAt)
	if err != nil {
		return Envelope{}, nil, err
	}
	body, err := jsoniter.ConfigFastest.Marshal(envelope)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return envelope, body, nil
}

// HoldCreatedEvent announces that a copy was set aside for a reader.
type HoldCreatedEvent struct {
	ReservationID uuid.UUID `json:"reservationId"`
	UserID        uuid.UUID `json:"userId"`
	BookTitleID   uuid.UUID `json:"bookTitleId"`
	BookCopyID    uuid.UUID `json:"bookCopyId"`
	HoldExpiresAt time.Time `json:"holdExpiresAt"`
}

// HoldsExpiredEvent summarises one expiry run.
type HoldsExpiredEvent struct {
	ExpiredCount     int         `json:"expiredCount"`
	AffectedTitleIDs []uuid.UUID `json:"affectedTitleIds"`
}
