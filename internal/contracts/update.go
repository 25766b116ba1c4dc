package contracts

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
)

// Mutable contract fields. Each name is both the API key and the column.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldContent        = "content"
	FieldVariables      = "variables"
	FieldTotalAmount    = "total_amount"
	FieldPaymentTerms   = "payment_terms"
	FieldStartDate      = "start_date"
	FieldEndDate        = "end_date"
	FieldExpirationDate = "expiration_date"
	FieldAutoRenew      = "auto_renew"
	FieldRenewalPeriod  = "renewal_period"
	FieldNotes          = "notes"
	FieldInternalNotes  = "internal_notes"
)

// ContractUpdate is the allow-listed set of fields Update may touch.
// A nil field was not provided.
type ContractUpdate struct {
	Title          *string          `json:"title" validate:"omitempty,min=5,max=255"`
	Description    *string          `json:"description" validate:"omitempty,min=10,max=2000"`
	Content        *string          `json:"content" validate:"omitempty,min=50"`
	Variables      *map[string]any  `json:"variables"`
	TotalAmount    *decimal.Decimal `json:"total_amount"`
	PaymentTerms   *string          `json:"payment_terms" validate:"omitempty,min=10,max=1000"`
	StartDate      *string          `json:"start_date" validate:"omitempty,date"`
	EndDate        *string          `json:"end_date" validate:"omitempty,date"`
	ExpirationDate *string          `json:"expiration_date" validate:"omitempty,date"`
	AutoRenew      *bool            `json:"auto_renew"`
	RenewalPeriod  *string          `json:"renewal_period" validate:"omitempty,max=50"`
	Notes          *string          `json:"notes" validate:"omitempty,max=2000"`
	InternalNotes  *string          `json:"internal_notes" validate:"omitempty,max=2000"`
}

type updateField struct {
	name   string
	decode func(u *ContractUpdate, raw json.RawMessage) error
}

var updateFields = []updateField{
	{FieldTitle, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.Title) }},
	{FieldDescription, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.Description) }},
	{FieldContent, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.Content) }},
	{FieldVariables, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.Variables) }},
	{FieldTotalAmount, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.TotalAmount) }},
	{FieldPaymentTerms, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.PaymentTerms) }},
	{FieldStartDate, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.StartDate) }},
	{FieldEndDate, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.EndDate) }},
	{FieldExpirationDate, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.ExpirationDate) }},
	{FieldAutoRenew, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.AutoRenew) }},
	{FieldRenewalPeriod, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.RenewalPeriod) }},
	{FieldNotes, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.Notes) }},
	{FieldInternalNotes, func(u *ContractUpdate, raw json.RawMessage) error { return decodeField(raw, &u.InternalNotes) }},
}

// ParseUpdateMap builds a ContractUpdate from a sparse JSON object. Keys outside
// the allow-list are ignored; a JSON null counts as not provided.
func ParseUpdateMap(raw map[string]json.RawMessage) (ContractUpdate, error) {
	var update ContractUpdate
	problems := fieldErrors{}
	for _, field := range updateFields {
		value, ok := raw[field.name]
		if !ok {
			continue
		}
		if err := field.decode(&update, value); err != nil {
			problems.add(field.name, "has the wrong type")
		}
	}
	if err := problems.err(); err != nil {
		return ContractUpdate{}, err
	}
	return update, nil
}

func decodeField[T any](raw json.RawMessage, dst **T) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return err
	}
	*dst = &value
	return nil
}

// fieldChange is one provided field: the value written to the column and the
// value recorded in history.
type fieldChange struct {
	field  string
	column any
	audit  any
}

// Fields lists the provided field names in allow-list order.
func (u ContractUpdate) Fields() []string {
	provided := []bool{
		u.Title != nil,
		u.Description != nil,
		u.Content != nil,
		u.Variables != nil,
		u.TotalAmount != nil,
		u.PaymentTerms != nil,
		u.StartDate != nil,
		u.EndDate != nil,
		u.ExpirationDate != nil,
		u.AutoRenew != nil,
		u.RenewalPeriod != nil,
		u.Notes != nil,
		u.InternalNotes != nil,
	}
	names := make([]string, 0, len(provided))
	for i, ok := range provided {
		if ok {
			names = append(names, updateFields[i].name)
		}
	}
	return names
}

// IsEmpty reports whether no allow-listed field was provided.
func (u ContractUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}

func (u ContractUpdate) changes() ([]fieldChange, error) {
	var out []fieldChange
	add := func(field string, column, audit any) {
		out = append(out, fieldChange{field: field, column: column, audit: audit})
	}
	addDate := func(field string, value *string) error {
		if value == nil {
			return nil
		}
		d, err := parseDate(*value)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("invalid %s", field))
		}
		add(field, d, *value)
		return nil
	}

	if u.Title != nil {
		add(FieldTitle, *u.Title, *u.Title)
	}
	if u.Description != nil {
		add(FieldDescription, *u.Description, *u.Description)
	}
	if u.Content != nil {
		add(FieldContent, *u.Content, *u.Content)
	}
	if u.Variables != nil {
		vars := *u.Variables
		if vars == nil {
			vars = map[string]any{}
		}
		add(FieldVariables, datatypes.JSONMap(vars), vars)
	}
	if u.TotalAmount != nil {
		add(FieldTotalAmount, *u.TotalAmount, *u.TotalAmount)
	}
	if u.PaymentTerms != nil {
		add(FieldPaymentTerms, *u.PaymentTerms, *u.PaymentTerms)
	}
	if err := addDate(FieldStartDate, u.StartDate); err != nil {
		return nil, err
	}
	if err := addDate(FieldEndDate, u.EndDate); err != nil {
		return nil, err
	}
	if err := addDate(FieldExpirationDate, u.ExpirationDate); err != nil {
		return nil, err
	}
	if u.AutoRenew != nil {
		add(FieldAutoRenew, *u.AutoRenew, *u.AutoRenew)
	}
	if u.RenewalPeriod != nil {
		add(FieldRenewalPeriod, *u.RenewalPeriod, *u.RenewalPeriod)
	}
	if u.Notes != nil {
		add(FieldNotes, *u.Notes, *u.Notes)
	}
	if u.InternalNotes != nil {
		add(FieldInternalNotes, *u.InternalNotes, *u.InternalNotes)
	}
	return out, nil
}
