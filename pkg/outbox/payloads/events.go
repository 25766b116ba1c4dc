package payloads

import (
	"time"

	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/google/uuid"
)

// ContractRef is the common header every contract event carries.
type ContractRef struct {
	ContractID     uuid.UUID `json:"contract_id"`
	ContractNumber string    `json:"contract_number"`
	Title          string    `json:"title"`
	CreatedBy      uuid.UUID `json:"created_by"`
}

// ContractCreatedEvent is emitted once per new contract.
type ContractCreatedEvent struct {
	ContractRef
	ContractType enums.ContractType `json:"contract_type"`
	PartyBName   string             `json:"party_b_name"`
}

// ContractUpdatedEvent lists the fields an update touched.
type ContractUpdatedEvent struct {
	ContractRef
	Fields    []string  `json:"fields"`
	UpdatedBy uuid.UUID `json:"updated_by"`
}

// ContractSignedEvent reports a signature by one party.
type ContractSignedEvent struct {
	ContractRef
	Party       enums.SigningParty   `json:"party"`
	SignedBy    uuid.UUID            `json:"signed_by"`
	FullySigned bool                 `json:"fully_signed"`
	Status      enums.ContractStatus `json:"status"`
}

// ContractStatusChangedEvent reports a caller-directed status transition.
type ContractStatusChangedEvent struct {
	ContractRef
	PreviousStatus enums.ContractStatus `json:"previous_status"`
	Status         enums.ContractStatus `json:"status"`
	Reason         *string              `json:"reason,omitempty"`
	ChangedBy      uuid.UUID            `json:"changed_by"`
}

// ContractDeletedEvent reports a soft delete.
type ContractDeletedEvent struct {
	ContractRef
	DeletedBy uuid.UUID `json:"deleted_by"`
}

// ContractExpiringSoonEvent is emitted by the expiring-soon job, at most once
// per contract and expiration date.
type ContractExpiringSoonEvent struct {
	ContractRef
	ExpirationDate string    `json:"expiration_date"`
	DaysRemaining  int       `json:"days_remaining"`
	DetectedAt     time.Time `json:"detected_at"`
}
