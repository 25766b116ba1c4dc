package contracts

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
)

const (
	minSearchLen = 2
	maxSearchLen = 100
)

var (
	phoneRe  = regexp.MustCompile(`^[+\d\s()-]+$`)
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(dateLayout, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	return v
}

// fieldErrors collects field -> message pairs and renders them as a
// validation error.
type fieldErrors map[string]string

func (f fieldErrors) add(field, message string) {
	if _, exists := f[field]; !exists {
		f[field] = message
	}
}

func (f fieldErrors) merge(err error) error {
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		return err
	}
	for _, fe := range errs {
		f.add(fe.Field(), validationMessage(fe))
	}
	return nil
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string(f))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "email":
		return "must be a valid email"
	case "ip":
		return "must be a valid ip address"
	case "date":
		return "must be a date in YYYY-MM-DD format"
	case "phone":
		return "must contain only digits, spaces, +, -, ( and )"
	case "alpha":
		return "must contain only letters"
	}
	return "is invalid"
}

// ValidateCreate checks a new contract before it reaches the store.
func ValidateCreate(in CreateContractInput) error {
	problems := fieldErrors{}
	if err := problems.merge(validate.Struct(in)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	if in.ContractType != "" && !in.ContractType.IsValid() {
		problems.add("contract_type", "must be one of service, rental, collaboration, partnership, other")
	}
	if in.TotalAmount.IsNegative() {
		problems.add("total_amount", "must be zero or greater")
	}
	if in.CreatedBy == uuid.Nil {
		problems.add("created_by", "is required")
	}
	if in.EndDate != nil {
		checkDateOrder(problems, in.StartDate, *in.EndDate)
	}
	return problems.err()
}

// ValidateUpdate applies the create bounds to the provided fields only.
func ValidateUpdate(in ContractUpdate) error {
	problems := fieldErrors{}
	if err := problems.merge(validate.Struct(in)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	if in.TotalAmount != nil && in.TotalAmount.IsNegative() {
		problems.add(FieldTotalAmount, "must be zero or greater")
	}
	if in.StartDate != nil && in.EndDate != nil {
		checkDateOrder(problems, *in.StartDate, *in.EndDate)
	}
	return problems.err()
}

// validateStoredDates checks the date order an update leaves behind when it
// changes only one side of the range.
func validateStoredDates(current models.Contract, in ContractUpdate) error {
	if in.StartDate == nil && in.EndDate == nil {
		return nil
	}
	start := formatDate(current.StartDate)
	if in.StartDate != nil {
		start = *in.StartDate
	}
	end := formatDatePtr(current.EndDate)
	if in.EndDate != nil {
		end = in.EndDate
	}
	if end == nil {
		return nil
	}
	problems := fieldErrors{}
	checkDateOrder(problems, start, *end)
	return problems.err()
}

// ValidateSignature checks the signing party and captured payload.
func ValidateSignature(party enums.SigningParty, in SignatureInput) error {
	problems := fieldErrors{}
	if !party.IsValid() {
		problems.add("party", "must be a or b")
	}
	if err := problems.merge(validate.Struct(in)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	if in.SignerID == uuid.Nil {
		problems.add("signer_id", "is required")
	}
	if in.Timestamp.IsZero() {
		problems.add("timestamp", "is required")
	}
	return problems.err()
}

// ValidateStatusChange enforces the enum and the cancellation-reason policy.
func ValidateStatusChange(in StatusChangeInput) error {
	problems := fieldErrors{}
	if err := problems.merge(validate.Struct(in)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	if in.Status != "" && !in.Status.IsValid() {
		problems.add("status", "is not a valid contract status")
	}
	if in.Status == enums.ContractStatusCancelled && (in.Reason == nil || strings.TrimSpace(*in.Reason) == "") {
		problems.add("reason", "is required to cancel a contract")
	}
	return problems.err()
}

// normalizeSearch trims the search term and rejects lengths outside 2..100.
func normalizeSearch(search string) (string, error) {
	trimmed := strings.TrimSpace(search)
	if trimmed == "" {
		return "", nil
	}
	if n := len([]rune(trimmed)); n < minSearchLen || n > maxSearchLen {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"search": fmt.Sprintf("must be between %d and %d characters", minSearchLen, maxSearchLen)})
	}
	return trimmed, nil
}

func checkDateOrder(problems fieldErrors, start, end string) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return
	}
	if !endDate.After(startDate) {
		problems.add("end_date", "must be after start_date")
	}
}
