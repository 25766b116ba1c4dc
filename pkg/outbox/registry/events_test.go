package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	contractID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.ContractSignedEvent{
		ContractRef: payloads.ContractRef{
			ContractID:     contractID,
			ContractNumber: "CTR-2025-000001",
			Title:          "Summer residency",
			CreatedBy:      uuid.New(),
		},
		Party:       enums.SigningPartyB,
		FullySigned: true,
		Status:      enums.ContractStatusSigned,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventContractSigned,
		AggregateType: enums.AggregateContract,
		AggregateID:   contractID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "contracts-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.ContractSignedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ContractID != contractID || !payload.FullySigned || payload.Party != enums.SigningPartyB {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
	if resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope missing occurred_at")
	}
}

func TestEventRegistryCoversEveryContractEvent(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{
		enums.EventContractCreated,
		enums.EventContractUpdated,
		enums.EventContractSigned,
		enums.EventContractStatusChanged,
		enums.EventContractDeleted,
		enums.EventContractExpiringSoon,
	} {
		if _, ok := reg.entries[eventType]; !ok {
			t.Fatalf("missing descriptor for %s", eventType)
		}
	}
	if topics := reg.Topics(); len(topics) != 1 || topics[0] != "contracts-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic to fail")
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("contract_archived"),
		AggregateType: enums.AggregateContract,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	assertNonRetryable(t, reg, event)
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventContractCreated,
		AggregateType: enums.OutboxAggregateType("invoice"),
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"contract_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	assertNonRetryable(t, reg, event)
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventContractCreated,
		AggregateType: enums.AggregateContract,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	assertNonRetryable(t, reg, event)
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventContractDeleted,
		AggregateType: enums.AggregateContract,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	assertNonRetryable(t, reg, event)
}

func TestEventRegistryResolveCorruptEnvelope(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventContractDeleted,
		AggregateType: enums.AggregateContract,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{not json`),
	}

	assertNonRetryable(t, reg, event)
}

func assertNonRetryable(t *testing.T, reg *EventRegistry, event models.OutboxEvent) {
	t.Helper()
	_, err := reg.Resolve(event)
	if err == nil {
		t.Fatalf("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T", err)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{ContractsTopic: "contracts-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
