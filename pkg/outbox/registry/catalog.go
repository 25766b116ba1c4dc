package registry

import (
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/payloads"
)

// contractEvents is the payload schema of every event the contracts
// aggregate emits. Producers and consumers both build from it.
var contractEvents = map[enums.OutboxEventType]func() any{
	enums.EventContractCreated:       newPayload[payloads.ContractCreatedEvent],
	enums.EventContractUpdated:       newPayload[payloads.ContractUpdatedEvent],
	enums.EventContractSigned:        newPayload[payloads.ContractSignedEvent],
	enums.EventContractStatusChanged: newPayload[payloads.ContractStatusChangedEvent],
	enums.EventContractDeleted:       newPayload[payloads.ContractDeletedEvent],
	enums.EventContractExpiringSoon:  newPayload[payloads.ContractExpiringSoonEvent],
}

func newPayload[T any]() any { return new(T) }
