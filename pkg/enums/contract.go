package enums

import "fmt"

// ContractStatus tracks where a contract sits in its lifecycle.
type ContractStatus string

const (
	ContractStatusDraft            ContractStatus = "draft"
	ContractStatusPendingReview    ContractStatus = "pending_review"
	ContractStatusPendingSignature ContractStatus = "pending_signature"
	ContractStatusSigned           ContractStatus = "signed"
	ContractStatusActive           ContractStatus = "active"
	ContractStatusExpired          ContractStatus = "expired"
	ContractStatusCancelled        ContractStatus = "cancelled"
	ContractStatusTerminated       ContractStatus = "terminated"
)

var validContractStatuses = []ContractStatus{
	ContractStatusDraft,
	ContractStatusPendingReview,
	ContractStatusPendingSignature,
	ContractStatusSigned,
	ContractStatusActive,
	ContractStatusExpired,
	ContractStatusCancelled,
	ContractStatusTerminated,
}

// String implements fmt.Stringer.
func (s ContractStatus) String() string {
	return string(s)
}

// IsValid reports whether the value matches the canonical contract status set.
func (s ContractStatus) IsValid() bool {
	for _, candidate := range validContractStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsPreSignature reports whether signing may still move the status.
// Once a contract is active or terminal, signatures no longer change its status.
func (s ContractStatus) IsPreSignature() bool {
	switch s {
	case ContractStatusDraft, ContractStatusPendingReview, ContractStatusPendingSignature, ContractStatusSigned:
		return true
	default:
		return false
	}
}

// ParseContractStatus converts raw input into ContractStatus.
func ParseContractStatus(value string) (ContractStatus, error) {
	for _, candidate := range validContractStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contract status %q", value)
}

// ContractType classifies the agreement.
type ContractType string

const (
	ContractTypeService       ContractType = "service"
	ContractTypeRental        ContractType = "rental"
	ContractTypeCollaboration ContractType = "collaboration"
	ContractTypePartnership   ContractType = "partnership"
	ContractTypeOther         ContractType = "other"
)

var validContractTypes = []ContractType{
	ContractTypeService,
	ContractTypeRental,
	ContractTypeCollaboration,
	ContractTypePartnership,
	ContractTypeOther,
}

// String implements fmt.Stringer.
func (t ContractType) String() string {
	return string(t)
}

// IsValid reports whether the value matches the canonical contract type set.
func (t ContractType) IsValid() bool {
	for _, candidate := range validContractTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseContractType converts raw input into ContractType.
func ParseContractType(value string) (ContractType, error) {
	for _, candidate := range validContractTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid contract type %q", value)
}

// SigningParty identifies one of the two signing sides.
type SigningParty string

const (
	SigningPartyA SigningParty = "a"
	SigningPartyB SigningParty = "b"
)

// IsValid reports whether the party is a or b.
func (p SigningParty) IsValid() bool {
	return p == SigningPartyA || p == SigningPartyB
}

// ParseSigningParty converts raw input into SigningParty.
func ParseSigningParty(value string) (SigningParty, error) {
	p := SigningParty(value)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid signing party %q", value)
	}
	return p, nil
}

// ContractHistoryAction tags an audit entry.
type ContractHistoryAction string

const (
	ContractHistoryCreated        ContractHistoryAction = "created"
	ContractHistoryUpdated        ContractHistoryAction = "updated"
	ContractHistorySignedByPartyA ContractHistoryAction = "signed_by_party_a"
	ContractHistorySignedByPartyB ContractHistoryAction = "signed_by_party_b"
	ContractHistoryStatusChanged  ContractHistoryAction = "status_changed"
)

// SignedActionFor maps a signing party to its history action.
func SignedActionFor(party SigningParty) ContractHistoryAction {
	if party == SigningPartyB {
		return ContractHistorySignedByPartyB
	}
	return ContractHistorySignedByPartyA
}
