package contracts

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/pagination"
)

const dateLayout = "2006-01-02"

// CreateContractInput carries every caller-supplied field of a new contract.
// Dates are YYYY-MM-DD strings.
type CreateContractInput struct {
	ContractType enums.ContractType `json:"contract_type" validate:"required"`
	TemplateID   *uuid.UUID         `json:"template_id"`
	ClientID     *uuid.UUID         `json:"client_id"`
	DJID         *uuid.UUID         `json:"dj_id"`
	EventID      *uuid.UUID         `json:"event_id"`

	PartyAName    string `json:"party_a_name" validate:"required,min=2,max=255"`
	PartyALegalID string `json:"party_a_id" validate:"required,min=5,max=50"`
	PartyAAddress string `json:"party_a_address" validate:"required,min=10,max=500"`

	PartyBName    string  `json:"party_b_name" validate:"required,min=2,max=255"`
	PartyBLegalID string  `json:"party_b_id" validate:"required,min=5,max=50"`
	PartyBAddress string  `json:"party_b_address" validate:"required,min=10,max=500"`
	PartyBEmail   *string `json:"party_b_email" validate:"omitempty,email"`
	PartyBPhone   *string `json:"party_b_phone" validate:"omitempty,min=9,max=20,phone"`

	Title       string         `json:"title" validate:"required,min=5,max=255"`
	Description *string        `json:"description" validate:"omitempty,min=10,max=2000"`
	Content     string         `json:"content" validate:"required,min=50"`
	Variables   map[string]any `json:"variables"`

	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency" validate:"omitempty,len=3,alpha"`
	PaymentTerms *string         `json:"payment_terms" validate:"omitempty,min=10,max=1000"`

	StartDate      string  `json:"start_date" validate:"required,date"`
	EndDate        *string `json:"end_date" validate:"omitempty,date"`
	ExpirationDate *string `json:"expiration_date" validate:"omitempty,date"`
	AutoRenew      bool    `json:"auto_renew"`
	RenewalPeriod  *string `json:"renewal_period" validate:"omitempty,max=50"`

	Notes         *string `json:"notes" validate:"omitempty,max=2000"`
	InternalNotes *string `json:"internal_notes" validate:"omitempty,max=2000"`

	CreatedBy uuid.UUID `json:"-"`
}

// SignatureInput is the payload captured by the caller at signing time.
type SignatureInput struct {
	Signature string    `json:"signature" validate:"required,min=50"`
	IPAddress string    `json:"ip_address" validate:"required,ip"`
	UserAgent string    `json:"user_agent" validate:"max=500"`
	SignerID  uuid.UUID `json:"signer_id"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusChangeInput carries a caller-directed status transition.
type StatusChangeInput struct {
	Status enums.ContractStatus `json:"status" validate:"required"`
	Reason *string              `json:"reason" validate:"omitempty,min=10,max=500"`
}

// ListFilters narrows getAll. Zero values mean "no filter".
type ListFilters struct {
	Page         int
	Limit        int
	Status       enums.ContractStatus
	ContractType enums.ContractType
	ClientID     *uuid.UUID
	DJID         *uuid.UUID
	Search       string
}

// ListResult is one page of contracts plus its page metadata.
type ListResult struct {
	Contracts  []ContractDTO   `json:"contracts"`
	Pagination pagination.Page `json:"pagination"`
}

// ContractDTO exposes a contract in API responses.
type ContractDTO struct {
	ID             uuid.UUID          `json:"id"`
	ContractNumber string             `json:"contract_number"`
	ContractType   enums.ContractType `json:"contract_type"`
	TemplateID     *uuid.UUID         `json:"template_id,omitempty"`
	ClientID       *uuid.UUID         `json:"client_id,omitempty"`
	DJID           *uuid.UUID         `json:"dj_id,omitempty"`
	EventID        *uuid.UUID         `json:"event_id,omitempty"`

	PartyAName    string  `json:"party_a_name"`
	PartyALegalID string  `json:"party_a_id"`
	PartyAAddress string  `json:"party_a_address"`
	PartyBName    string  `json:"party_b_name"`
	PartyBLegalID string  `json:"party_b_id"`
	PartyBAddress string  `json:"party_b_address"`
	PartyBEmail   *string `json:"party_b_email,omitempty"`
	PartyBPhone   *string `json:"party_b_phone,omitempty"`

	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Content     string         `json:"content"`
	Variables   map[string]any `json:"variables"`

	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	PaymentTerms *string         `json:"payment_terms,omitempty"`

	StartDate      string  `json:"start_date"`
	EndDate        *string `json:"end_date,omitempty"`
	ExpirationDate *string `json:"expiration_date,omitempty"`
	AutoRenew      bool    `json:"auto_renew"`
	RenewalPeriod  *string `json:"renewal_period,omitempty"`

	Notes         *string `json:"notes,omitempty"`
	InternalNotes *string `json:"internal_notes,omitempty"`

	Status              enums.ContractStatus  `json:"status"`
	SignedByPartyA      bool                  `json:"signed_by_party_a"`
	SignedByPartyB      bool                  `json:"signed_by_party_b"`
	SignaturePartyAData *models.SignatureData `json:"signature_party_a_data,omitempty"`
	SignaturePartyBData *models.SignatureData `json:"signature_party_b_data,omitempty"`
	SignatureDate       *time.Time            `json:"signature_date,omitempty"`

	CancelledBy        *uuid.UUID `json:"cancelled_by,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`

	CreatedBy uuid.UUID  `json:"created_by"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	ClientName  *string `json:"client_name,omitempty"`
	ClientEmail *string `json:"client_email,omitempty"`
	DJName      *string `json:"dj_name,omitempty"`
	DJEmail     *string `json:"dj_email,omitempty"`
	EventName   *string `json:"event_name,omitempty"`
	EventDate   *string `json:"event_date,omitempty"`
}

// HistoryEntryDTO exposes one audit record.
type HistoryEntryDTO struct {
	ID            uuid.UUID                   `json:"id"`
	ContractID    uuid.UUID                   `json:"contract_id"`
	Action        enums.ContractHistoryAction `json:"action"`
	FieldChanged  *string                     `json:"field_changed,omitempty"`
	NewValue      json.RawMessage             `json:"new_value,omitempty"`
	ChangeReason  *string                     `json:"change_reason,omitempty"`
	ChangedBy     uuid.UUID                   `json:"changed_by"`
	ChangedByName *string                     `json:"changed_by_name,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
}

// Stats aggregates non-deleted contracts.
type Stats struct {
	Total            int64           `json:"total" gorm:"column:total"`
	Draft            int64           `json:"draft" gorm:"column:draft"`
	PendingSignature int64           `json:"pending_signature" gorm:"column:pending_signature"`
	Signed           int64           `json:"signed" gorm:"column:signed"`
	Active           int64           `json:"active" gorm:"column:active"`
	Expired          int64           `json:"expired" gorm:"column:expired"`
	FullySigned      int64           `json:"fully_signed" gorm:"column:fully_signed"`
	AverageAmount    decimal.Decimal `json:"avg_amount" gorm:"column:avg_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount" gorm:"column:total_amount"`
}

// contractView is a contract row plus the read-only display columns joined
// from its client, DJ and event.
type contractView struct {
	models.Contract
	ClientName  *string         `gorm:"column:client_name;->"`
	ClientEmail *string         `gorm:"column:client_email;->"`
	DJName      *string         `gorm:"column:dj_name;->"`
	DJEmail     *string         `gorm:"column:dj_email;->"`
	EventName   *string         `gorm:"column:event_name;->"`
	EventDate   *datatypes.Date `gorm:"column:event_date;->"`
}

type historyView struct {
	models.ContractHistory
	ChangedByName *string `gorm:"column:changed_by_name;->"`
}

// FromModel maps a contract row to its DTO.
func FromModel(c models.Contract) ContractDTO {
	variables := map[string]any(c.Variables)
	if variables == nil {
		variables = map[string]any{}
	}
	return ContractDTO{
		ID:                  c.ID,
		ContractNumber:      c.ContractNumber,
		ContractType:        c.ContractType,
		TemplateID:          c.TemplateID,
		ClientID:            c.ClientID,
		DJID:                c.DJID,
		EventID:             c.EventID,
		PartyAName:          c.PartyAName,
		PartyALegalID:       c.PartyALegalID,
		PartyAAddress:       c.PartyAAddress,
		PartyBName:          c.PartyBName,
		PartyBLegalID:       c.PartyBLegalID,
		PartyBAddress:       c.PartyBAddress,
		PartyBEmail:         c.PartyBEmail,
		PartyBPhone:         c.PartyBPhone,
		Title:               c.Title,
		Description:         c.Description,
		Content:             c.Content,
		Variables:           variables,
		TotalAmount:         c.TotalAmount,
		Currency:            c.Currency,
		PaymentTerms:        c.PaymentTerms,
		StartDate:           formatDate(c.StartDate),
		EndDate:             formatDatePtr(c.EndDate),
		ExpirationDate:      formatDatePtr(c.ExpirationDate),
		AutoRenew:           c.AutoRenew,
		RenewalPeriod:       c.RenewalPeriod,
		Notes:               c.Notes,
		InternalNotes:       c.InternalNotes,
		Status:              c.Status,
		SignedByPartyA:      c.SignedByPartyA,
		SignedByPartyB:      c.SignedByPartyB,
		SignaturePartyAData: c.SignaturePartyAData.Data(),
		SignaturePartyBData: c.SignaturePartyBData.Data(),
		SignatureDate:       c.SignatureDate,
		CancelledBy:         c.CancelledBy,
		CancellationReason:  c.CancellationReason,
		CreatedBy:           c.CreatedBy,
		UpdatedBy:           c.UpdatedBy,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
}

func fromView(v contractView) ContractDTO {
	dto := FromModel(v.Contract)
	dto.ClientName = v.ClientName
	dto.ClientEmail = v.ClientEmail
	dto.DJName = v.DJName
	dto.DJEmail = v.DJEmail
	dto.EventName = v.EventName
	dto.EventDate = formatDatePtr(v.EventDate)
	return dto
}

func fromHistory(h historyView) HistoryEntryDTO {
	var newValue json.RawMessage
	if len(h.NewValue) > 0 {
		newValue = json.RawMessage(h.NewValue)
	}
	return HistoryEntryDTO{
		ID:            h.ID,
		ContractID:    h.ContractID,
		Action:        h.Action,
		FieldChanged:  h.FieldChanged,
		NewValue:      newValue,
		ChangeReason:  h.ChangeReason,
		ChangedBy:     h.ChangedBy,
		ChangedByName: h.ChangedByName,
		CreatedAt:     h.CreatedAt,
	}
}

func formatDate(d datatypes.Date) string {
	return time.Time(d).Format(dateLayout)
}

func formatDatePtr(d *datatypes.Date) *string {
	if d == nil {
		return nil
	}
	s := formatDate(*d)
	return &s
}

// parseDate reads a YYYY-MM-DD string as a UTC calendar date.
func parseDate(value string) (datatypes.Date, error) {
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return datatypes.Date{}, err
	}
	return datatypes.Date(t), nil
}

func calendarDate(t time.Time) datatypes.Date {
	y, m, d := t.UTC().Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}
