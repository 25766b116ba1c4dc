package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const currentEnvelopeVersion = 1

// ActorRef is the user who caused the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
}

// PayloadEnvelope wraps every stored payload. Data holds the event-specific
// struct; the rest is shared metadata consumers dedupe and order on.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(event DomainEvent, eventID uuid.UUID) ([]byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	version := event.Version
	if version == 0 {
		version = currentEnvelopeVersion
	}
	return json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	})
}

// DecodeEnvelope parses a delivered envelope; an event id that is not a uuid
// is rejected.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, uuid.UUID, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, uuid.Nil, err
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return PayloadEnvelope{}, uuid.Nil, fmt.Errorf("envelope event id: %w", err)
	}
	return envelope, eventID, nil
}
