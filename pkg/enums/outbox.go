package enums

import "fmt"

// OutboxAggregateType names the entity an outbox row belongs to.
type OutboxAggregateType string

const (
	AggregateContract OutboxAggregateType = "contract"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateContract,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType names a domain event carried through the outbox.
type OutboxEventType string

const (
	EventContractCreated       OutboxEventType = "contract_created"
	EventContractUpdated       OutboxEventType = "contract_updated"
	EventContractSigned        OutboxEventType = "contract_signed"
	EventContractStatusChanged OutboxEventType = "contract_status_changed"
	EventContractDeleted       OutboxEventType = "contract_deleted"
	EventContractExpiringSoon  OutboxEventType = "contract_expiring_soon"
)

var validOutboxEventTypes = []OutboxEventType{
	EventContractCreated,
	EventContractUpdated,
	EventContractSigned,
	EventContractStatusChanged,
	EventContractDeleted,
	EventContractExpiringSoon,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
