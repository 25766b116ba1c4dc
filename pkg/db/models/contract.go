package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
)

// SignatureData is the opaque payload captured when a party signs.
type SignatureData struct {
	Signature string    `json:"signature"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	SignerID  uuid.UUID `json:"signer_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Contract is a legal agreement between the issuing agency (party A) and a counterparty (party B).
type Contract struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ContractNumber string             `gorm:"column:contract_number;not null;uniqueIndex"`
	ContractType   enums.ContractType `gorm:"column:contract_type;type:text;not null"`
	TemplateID     *uuid.UUID         `gorm:"column:template_id;type:uuid"`
	ClientID       *uuid.UUID         `gorm:"column:client_id;type:uuid"`
	DJID           *uuid.UUID         `gorm:"column:dj_id;type:uuid"`
	EventID        *uuid.UUID         `gorm:"column:event_id;type:uuid"`

	PartyAName    string `gorm:"column:party_a_name;not null"`
	PartyALegalID string `gorm:"column:party_a_id;not null"`
	PartyAAddress string `gorm:"column:party_a_address;not null"`

	PartyBName    string  `gorm:"column:party_b_name;not null"`
	PartyBLegalID string  `gorm:"column:party_b_id;not null"`
	PartyBAddress string  `gorm:"column:party_b_address;not null"`
	PartyBEmail   *string `gorm:"column:party_b_email"`
	PartyBPhone   *string `gorm:"column:party_b_phone"`

	Title       string            `gorm:"column:title;not null"`
	Description *string           `gorm:"column:description"`
	Content     string            `gorm:"column:content;not null"`
	Variables   datatypes.JSONMap `gorm:"column:variables"`

	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null;default:0"`
	Currency     string          `gorm:"column:currency;type:char(3);not null;default:'EUR'"`
	PaymentTerms *string         `gorm:"column:payment_terms"`

	StartDate      datatypes.Date  `gorm:"column:start_date;not null"`
	EndDate        *datatypes.Date `gorm:"column:end_date"`
	ExpirationDate *datatypes.Date `gorm:"column:expiration_date"`
	AutoRenew      bool            `gorm:"column:auto_renew;not null;default:false"`
	RenewalPeriod  *string         `gorm:"column:renewal_period"`

	Notes         *string `gorm:"column:notes"`
	InternalNotes *string `gorm:"column:internal_notes"`

	Status              enums.ContractStatus               `gorm:"column:status;type:text;not null;default:'draft'"`
	SignedByPartyA      bool                               `gorm:"column:signed_by_party_a;not null;default:false"`
	SignedByPartyB      bool                               `gorm:"column:signed_by_party_b;not null;default:false"`
	SignaturePartyAData datatypes.JSONType[*SignatureData] `gorm:"column:signature_party_a_data"`
	SignaturePartyBData datatypes.JSONType[*SignatureData] `gorm:"column:signature_party_b_data"`
	SignatureDate       *time.Time                         `gorm:"column:signature_date"`

	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`
	CancellationReason *string    `gorm:"column:cancellation_reason"`

	CreatedBy uuid.UUID      `gorm:"column:created_by;type:uuid;not null"`
	UpdatedBy *uuid.UUID     `gorm:"column:updated_by;type:uuid"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName pins the table name.
func (Contract) TableName() string { return "contracts" }

// BeforeCreate assigns the identity when the caller did not.
func (c *Contract) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// FullySigned reports whether both parties have signed.
func (c Contract) FullySigned() bool {
	return c.SignedByPartyA && c.SignedByPartyB
}

// ContractHistory is an append-only audit record for a contract.
type ContractHistory struct {
	ID           uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	ContractID   uuid.UUID                   `gorm:"column:contract_id;type:uuid;not null;index"`
	Action       enums.ContractHistoryAction `gorm:"column:action;type:text;not null"`
	FieldChanged *string                     `gorm:"column:field_changed"`
	NewValue     datatypes.JSON              `gorm:"column:new_value"`
	ChangeReason *string                     `gorm:"column:change_reason"`
	ChangedBy    uuid.UUID                   `gorm:"column:changed_by;type:uuid;not null"`
	CreatedAt    time.Time                   `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (ContractHistory) TableName() string { return "contract_history" }

// BeforeCreate assigns the identity when the caller did not.
func (h *ContractHistory) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}
