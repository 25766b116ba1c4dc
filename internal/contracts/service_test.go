package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/metrics"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
)

func strPtr(s string) *string { return &s }

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreateStartsAsDraftWithCreatedHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	contract := f.create(t, nil)

	assert.NotEqual(t, uuid.Nil, contract.ID)
	assert.Equal(t, enums.ContractStatusDraft, contract.Status)
	assert.Equal(t, "CTR-2025-000001", contract.ContractNumber)
	assert.Equal(t, "EUR", contract.Currency)
	assert.Equal(t, map[string]any{}, contract.Variables)
	assert.False(t, contract.SignedByPartyA)
	assert.False(t, contract.SignedByPartyB)
	assert.Nil(t, contract.SignatureDate)
	assert.Equal(t, "2025-01-01", contract.StartDate)

	history, err := f.svc.GetHistory(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.ContractHistoryCreated, history[0].Action)
	assert.Equal(t, f.user.ID, history[0].ChangedBy)
	require.NotNil(t, history[0].ChangedByName)
	assert.Equal(t, f.user.Email, *history[0].ChangedByName)

	assert.Equal(t, []enums.OutboxEventType{enums.EventContractCreated}, f.outboxTypes(t, contract.ID))
	assert.Equal(t, float64(1), f.mutationCount(t, "create", metrics.OutcomeSuccess))
	assert.Contains(t, f.logs.String(), "contract.created")
	assert.Contains(t, f.logs.String(), contract.ID.String())
}

func TestCreateNumbersAreSequentialPerYear(t *testing.T) {
	f := newFixture(t)

	first := f.create(t, nil)
	second := f.create(t, nil)
	f.clock.Advance(365 * 24 * time.Hour)
	nextYear := f.create(t, nil)

	assert.Equal(t, "CTR-2025-000001", first.ContractNumber)
	assert.Equal(t, "CTR-2025-000002", second.ContractNumber)
	assert.Equal(t, "CTR-2026-000001", nextYear.ContractNumber)
}

func TestCreateRejectsEndBeforeStart(t *testing.T) {
	f := newFixture(t)
	input := validCreateInput(f.user.ID)
	input.EndDate = strPtr("2024-12-31")

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "end_date")

	var count int64
	require.NoError(t, f.client.DB().Model(&models.Contract{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, f.seq.counters)
	assert.Equal(t, float64(1), f.mutationCount(t, "create", metrics.OutcomeFailure))
}

func TestCreateRejectsNegativeAmountAndUnknownType(t *testing.T) {
	f := newFixture(t)
	input := validCreateInput(f.user.ID)
	input.TotalAmount = decimal.NewFromInt(-1)
	input.ContractType = "lease"

	_, err := f.svc.Create(context.Background(), input)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "total_amount")
	assert.Contains(t, details, "contract_type")
}

func TestCreateRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	failHistoryInserts(t, f.client.DB())

	_, err := f.svc.Create(context.Background(), validCreateInput(f.user.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))

	var contracts, events int64
	require.NoError(t, f.client.DB().Model(&models.Contract{}).Count(&contracts).Error)
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Zero(t, contracts)
	assert.Zero(t, events)
}

func TestCreateNumbersFromStoredContractsWhenSequenceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.create(t, nil)
	f.seq.err = errors.New("redis down")

	second := f.create(t, nil)
	third := f.create(t, nil)

	assert.Equal(t, "CTR-2025-000002", second.ContractNumber)
	assert.Equal(t, "CTR-2025-000003", third.ContractNumber)
}

func TestCreateRecoversFromLostSequence(t *testing.T) {
	f := newFixture(t)
	f.create(t, nil)
	deleted := f.create(t, nil)
	_, err := f.svc.Delete(context.Background(), deleted.ID, f.user.ID)
	require.NoError(t, err)

	f.seq.counters = map[string]int64{}

	recovered := f.create(t, nil)
	next := f.create(t, nil)

	assert.Equal(t, "CTR-2025-000003", recovered.ContractNumber)
	assert.Equal(t, "CTR-2025-000004", next.ContractNumber)
	assert.Equal(t, int64(4), f.seq.counters["ah:counter:contracts:2025"])
	assert.Contains(t, f.logs.String(), "contract number already taken")

	var events int64
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventContractCreated).Count(&events).Error)
	assert.Equal(t, int64(4), events)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	taken := f.create(t, nil)

	svc, err := NewService(ServiceParams{
		Repository: NewRepository(f.client.DB()),
		DB:         f.client,
		Outbox:     outbox.NewService(outbox.NewRepository(f.client.DB()), nil),
		Numbers:    fixedNumbers(taken.ContractNumber),
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		Now:        f.clock.Now,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validCreateInput(f.user.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))
}

func TestGetByIDReturnsNilWhenAbsent(t *testing.T) {
	f := newFixture(t)

	contract, err := f.svc.GetByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, contract)

	_, err = f.svc.GetByID(context.Background(), uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestGetByIDIncludesDisplayFields(t *testing.T) {
	f := newFixture(t)
	db := f.client.DB()

	client := models.Client{Name: "Sala Apolo", Email: strPtr("bookings@apolo.test")}
	dj := models.DJ{Name: "DJ Nova", Email: strPtr("nova@djs.test")}
	eventDate := datatypes.Date(time.Date(2025, 7, 12, 0, 0, 0, 0, time.UTC))
	event := models.Event{Name: "Summer Closing", EventDate: &eventDate}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&dj).Error)
	require.NoError(t, db.Create(&event).Error)

	created := f.create(t, func(in *CreateContractInput) {
		in.ClientID = &client.ID
		in.DJID = &dj.ID
		in.EventID = &event.ID
	})
	plain := f.create(t, nil)

	got, err := f.svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ClientName)
	assert.Equal(t, "Sala Apolo", *got.ClientName)
	assert.Equal(t, "bookings@apolo.test", *got.ClientEmail)
	assert.Equal(t, "DJ Nova", *got.DJName)
	assert.Equal(t, "nova@djs.test", *got.DJEmail)
	assert.Equal(t, "Summer Closing", *got.EventName)
	require.NotNil(t, got.EventDate)
	assert.Equal(t, "2025-07-12", *got.EventDate)

	other, err := f.svc.GetByID(context.Background(), plain.ID)
	require.NoError(t, err)
	assert.Nil(t, other.ClientName)
	assert.Nil(t, other.EventDate)

	page, err := f.svc.GetAll(context.Background(), ListFilters{ClientID: &client.ID})
	require.NoError(t, err)
	require.Len(t, page.Contracts, 1)
	assert.Equal(t, created.ID, page.Contracts[0].ID)
	assert.Equal(t, "Sala Apolo", *page.Contracts[0].ClientName)
}

func TestUpdateRecordsOneHistoryEntryPerField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	update, err := ParseUpdateMap(map[string]json.RawMessage{
		"title":  json.RawMessage(`"Winter residency 2025"`),
		"notes":  json.RawMessage(`"Bring the long cables"`),
		"status": json.RawMessage(`"active"`),
		"id":     json.RawMessage(`"` + uuid.NewString() + `"`),
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, contract.ID, update, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winter residency 2025", updated.Title)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "Bring the long cables", *updated.Notes)
	assert.Equal(t, enums.ContractStatusDraft, updated.Status)
	assert.Equal(t, contract.ID, updated.ID)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, f.user.ID, *updated.UpdatedBy)

	history, err := f.svc.GetHistory(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)

	values := map[string]string{}
	for _, entry := range history {
		if entry.Action != enums.ContractHistoryUpdated {
			continue
		}
		require.NotNil(t, entry.FieldChanged)
		values[*entry.FieldChanged] = string(entry.NewValue)
	}
	assert.Equal(t, map[string]string{
		FieldTitle: `"Winter residency 2025"`,
		FieldNotes: `"Bring the long cables"`,
	}, values)

	assert.ElementsMatch(t, []enums.OutboxEventType{enums.EventContractCreated, enums.EventContractUpdated}, f.outboxTypes(t, contract.ID))
}

func TestUpdateStoresDatesAndVariables(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	update, err := ParseUpdateMap(map[string]json.RawMessage{
		"end_date":        json.RawMessage(`"2025-12-31"`),
		"expiration_date": json.RawMessage(`"2025-12-31"`),
		"variables":       json.RawMessage(`{"venue":"Apolo","sets":2}`),
		"total_amount":    json.RawMessage(`"2750.50"`),
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), contract.ID, update, f.user.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.EndDate)
	assert.Equal(t, "2025-12-31", *updated.EndDate)
	assert.Equal(t, "Apolo", updated.Variables["venue"])
	assert.True(t, decimal.RequireFromString("2750.50").Equal(updated.TotalAmount))
	assert.Equal(t, int64(5), f.historyCount(t, contract.ID))
}

func TestUpdateWithNoAllowedFieldsIsRejected(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	update, err := ParseUpdateMap(map[string]json.RawMessage{
		"status":     json.RawMessage(`"signed"`),
		"created_by": json.RawMessage(`"` + uuid.NewString() + `"`),
		"title":      json.RawMessage(`null`),
	})
	require.NoError(t, err)
	require.True(t, update.IsEmpty())

	_, err = f.svc.Update(context.Background(), contract.ID, update, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, "no valid fields to update", pkgerrors.As(err).Message())
	assert.Equal(t, int64(1), f.historyCount(t, contract.ID))
}

func TestUpdateRejectsEndBeforeStartWhenBothProvided(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	_, err := f.svc.Update(context.Background(), contract.ID, ContractUpdate{
		StartDate: strPtr("2025-06-01"),
		EndDate:   strPtr("2025-05-01"),
	}, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, int64(1), f.historyCount(t, contract.ID))
}

func TestUpdateChecksDatesAgainstStoredRange(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, func(in *CreateContractInput) {
		in.EndDate = strPtr("2025-06-30")
	})

	cases := map[string]ContractUpdate{
		"end before stored start": {EndDate: strPtr("2024-12-01")},
		"start after stored end":  {StartDate: strPtr("2025-07-15")},
	}
	for name, update := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Update(context.Background(), contract.ID, update, f.user.ID)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
			details, ok := pkgerrors.As(err).Details().(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, "end_date")
		})
	}

	stored, err := f.svc.GetByID(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", stored.StartDate)
	assert.Equal(t, "2025-06-30", *stored.EndDate)
	assert.Equal(t, int64(1), f.historyCount(t, contract.ID))

	updated, err := f.svc.Update(context.Background(), contract.ID, ContractUpdate{StartDate: strPtr("2025-02-01")}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-02-01", updated.StartDate)
}

func TestUpdateDatesOfMissingContract(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Update(context.Background(), uuid.New(), ContractUpdate{EndDate: strPtr("2026-01-01")}, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)
	failHistoryInserts(t, f.client.DB())

	_, err := f.svc.Update(context.Background(), contract.ID, ContractUpdate{Title: strPtr("Should not persist")}, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePersistence))

	current, err := f.svc.GetByID(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.Equal(t, contract.Title, current.Title)
	assert.Nil(t, current.UpdatedBy)
	assert.Equal(t, []enums.OutboxEventType{enums.EventContractCreated}, f.outboxTypes(t, contract.ID))
	assert.Equal(t, float64(1), f.mutationCount(t, "update", metrics.OutcomeFailure))
}

func TestMutationsOnMissingContractReturnNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	missing := uuid.New()

	_, err := f.svc.Update(ctx, missing, ContractUpdate{Title: strPtr("Nothing here")}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Sign(ctx, missing, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.UpdateStatus(ctx, missing, StatusChangeInput{Status: enums.ContractStatusActive}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMutationsRequireUser(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	_, err := f.svc.Update(context.Background(), contract.ID, ContractUpdate{Title: strPtr("Anonymous edit")}, uuid.Nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
}

func TestSignBothPartiesKeepsFirstSignatureDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)
	firstSignedAt := f.clock.Now()

	afterA, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, firstSignedAt), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusPendingSignature, afterA.Status)
	assert.True(t, afterA.SignedByPartyA)
	assert.False(t, afterA.SignedByPartyB)
	require.NotNil(t, afterA.SignatureDate)
	assert.True(t, firstSignedAt.Equal(*afterA.SignatureDate))
	require.NotNil(t, afterA.SignaturePartyAData)
	assert.Equal(t, "203.0.113.10", afterA.SignaturePartyAData.IPAddress)
	assert.Nil(t, afterA.SignaturePartyBData)

	f.clock.Advance(2 * time.Hour)
	afterB, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusSigned, afterB.Status)
	assert.True(t, afterB.SignedByPartyA)
	assert.True(t, afterB.SignedByPartyB)
	require.NotNil(t, afterB.SignatureDate)
	assert.True(t, firstSignedAt.Equal(*afterB.SignatureDate))

	f.clock.Advance(time.Hour)
	again, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusSigned, again.Status)
	assert.True(t, firstSignedAt.Equal(*again.SignatureDate))

	history, err := f.svc.GetHistory(ctx, contract.ID)
	require.NoError(t, err)
	actions := make([]enums.ContractHistoryAction, 0, len(history))
	for _, entry := range history {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []enums.ContractHistoryAction{
		enums.ContractHistoryCreated,
		enums.ContractHistorySignedByPartyA,
		enums.ContractHistorySignedByPartyB,
		enums.ContractHistorySignedByPartyA,
	}, actions)
	assert.Equal(t, float64(3), f.mutationCount(t, "sign", metrics.OutcomeSuccess))
}

func TestSignDoesNotRegressActiveContract(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	_, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Sign(ctx, contract.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusActive}, f.user.ID)
	require.NoError(t, err)

	resigned, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusActive, resigned.Status)
}

func TestSignRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	_, err := f.svc.Sign(context.Background(), contract.ID, enums.SigningParty("c"), validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	short := validSignature(f.user.ID, f.clock.Now())
	short.Signature = "too-short"
	_, err = f.svc.Sign(context.Background(), contract.ID, enums.SigningPartyA, short, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	current, err := f.svc.GetByID(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.False(t, current.SignedByPartyA)
}

func TestSignRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)
	failHistoryInserts(t, f.client.DB())

	_, err := f.svc.Sign(context.Background(), contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.Error(t, err)

	current, err := f.svc.GetByID(context.Background(), contract.ID)
	require.NoError(t, err)
	assert.False(t, current.SignedByPartyA)
	assert.Nil(t, current.SignatureDate)
	assert.Equal(t, enums.ContractStatusDraft, current.Status)
}

func TestUpdateStatusToSignedRequiresBothSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	_, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusSigned}, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, int64(1), f.historyCount(t, contract.ID))

	_, err = f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusSigned}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.Sign(ctx, contract.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusDraft}, f.user.ID)
	require.NoError(t, err)
	signed, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusSigned}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusSigned, signed.Status)
}

func TestUpdateStatusCancelRecordsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)
	reason := "Client moved the event to next year"

	cancelled, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{
		Status: enums.ContractStatusCancelled,
		Reason: &reason,
	}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.user.ID, *cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, reason, *cancelled.CancellationReason)

	history, err := f.svc.GetHistory(ctx, contract.ID)
	require.NoError(t, err)
	var statusEntry *HistoryEntryDTO
	for i := range history {
		if history[i].Action == enums.ContractHistoryStatusChanged {
			statusEntry = &history[i]
		}
	}
	require.NotNil(t, statusEntry)
	assert.JSONEq(t, `"cancelled"`, string(statusEntry.NewValue))
	require.NotNil(t, statusEntry.ChangeReason)
	assert.Equal(t, reason, *statusEntry.ChangeReason)

	assert.Contains(t, f.outboxTypes(t, contract.ID), enums.EventContractStatusChanged)
}

func TestUpdateStatusCancelRequiresReason(t *testing.T) {
	f := newFixture(t)
	contract := f.create(t, nil)

	_, err := f.svc.UpdateStatus(context.Background(), contract.ID, StatusChangeInput{Status: enums.ContractStatusCancelled}, f.user.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	blank := "          "
	_, err = f.svc.UpdateStatus(context.Background(), contract.ID, StatusChangeInput{Status: enums.ContractStatusCancelled, Reason: &blank}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusIsPermissiveOutsideSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	expired, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusExpired}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusExpired, expired.Status)
	assert.Nil(t, expired.CancelledBy)
	assert.Nil(t, expired.CancellationReason)

	draft, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusDraft}, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ContractStatusDraft, draft.Status)

	_, err = f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: "archived"}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteIsSoftAndKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	deleted, err := f.svc.Delete(ctx, contract.ID, f.user.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err := f.svc.GetByID(ctx, contract.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	again, err := f.svc.Delete(ctx, contract.ID, f.user.ID)
	require.NoError(t, err)
	assert.False(t, again)

	missing, err := f.svc.Delete(ctx, uuid.New(), f.user.ID)
	require.NoError(t, err)
	assert.False(t, missing)

	var raw models.Contract
	require.NoError(t, f.client.DB().Unscoped().Where("id = ?", contract.ID).Take(&raw).Error)
	assert.True(t, raw.DeletedAt.Valid)

	history, err := f.svc.GetHistory(ctx, contract.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	page, err := f.svc.GetAll(ctx, ListFilters{})
	require.NoError(t, err)
	assert.Empty(t, page.Contracts)

	_, err = f.svc.Update(ctx, contract.ID, ContractUpdate{Title: strPtr("Ghost edit")}, f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Contains(t, f.outboxTypes(t, contract.ID), enums.EventContractDeleted)
	assert.Contains(t, f.logs.String(), "contract.deleted")
}

func TestGetAllPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var last *ContractDTO
	for i := 0; i < 5; i++ {
		last = f.create(t, nil)
	}

	first, err := f.svc.GetAll(ctx, ListFilters{Page: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Contracts, 2)
	assert.Equal(t, last.ID, first.Contracts[0].ID)
	assert.Equal(t, 1, first.Pagination.CurrentPage)
	assert.Equal(t, 3, first.Pagination.TotalPages)
	assert.Equal(t, int64(5), first.Pagination.TotalItems)
	assert.Equal(t, 2, first.Pagination.ItemsPerPage)

	third, err := f.svc.GetAll(ctx, ListFilters{Page: 3, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, third.Contracts, 1)

	beyond, err := f.svc.GetAll(ctx, ListFilters{Page: 9, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond.Contracts)
	assert.Equal(t, int64(5), beyond.Pagination.TotalItems)

	defaults, err := f.svc.GetAll(ctx, ListFilters{Page: -1, Limit: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Pagination.CurrentPage)
	assert.Equal(t, 100, defaults.Pagination.ItemsPerPage)
}

func TestGetAllFiltersAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gala := f.create(t, func(in *CreateContractInput) {
		in.Title = "Winter Gala Night"
		in.ContractType = enums.ContractTypeRental
	})
	nova := f.create(t, func(in *CreateContractInput) {
		in.PartyBName = "Nova Sound Collective"
	})
	_ = f.create(t, nil)

	_, err := f.svc.Sign(ctx, nova.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		filters ListFilters
		want    []uuid.UUID
	}{
		{name: "status", filters: ListFilters{Status: enums.ContractStatusPendingSignature}, want: []uuid.UUID{nova.ID}},
		{name: "type", filters: ListFilters{ContractType: enums.ContractTypeRental}, want: []uuid.UUID{gala.ID}},
		{name: "title case insensitive", filters: ListFilters{Search: "  winter GALA "}, want: []uuid.UUID{gala.ID}},
		{name: "party b name", filters: ListFilters{Search: "sound collective"}, want: []uuid.UUID{nova.ID}},
		{name: "contract number", filters: ListFilters{Search: gala.ContractNumber}, want: []uuid.UUID{gala.ID}},
		{name: "wildcards are literal", filters: ListFilters{Search: "%%"}, want: []uuid.UUID{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.svc.GetAll(ctx, tc.filters)
			require.NoError(t, err)
			got := make([]uuid.UUID, 0, len(page.Contracts))
			for _, c := range page.Contracts {
				got = append(got, c.ID)
			}
			assert.ElementsMatch(t, tc.want, got)
			assert.Equal(t, int64(len(tc.want)), page.Pagination.TotalItems)
		})
	}
}

func TestGetAllRejectsBadFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetAll(ctx, ListFilters{Search: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.GetAll(ctx, ListFilters{Status: "archived"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.GetAll(ctx, ListFilters{ContractType: "lease"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func (f *storeFixture) activeExpiringIn(t *testing.T, days int) *ContractDTO {
	t.Helper()
	expiration := f.clock.Now().AddDate(0, 0, days).Format(dateLayout)
	contract := f.create(t, func(in *CreateContractInput) {
		in.ExpirationDate = &expiration
	})
	active, err := f.svc.UpdateStatus(context.Background(), contract.ID, StatusChangeInput{Status: enums.ContractStatusActive}, f.user.ID)
	require.NoError(t, err)
	return active
}

func TestGetExpiringSoon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	soon := f.activeExpiringIn(t, 5)
	later := f.activeExpiringIn(t, 10)
	today := f.activeExpiringIn(t, 0)
	_ = f.activeExpiringIn(t, -1)
	_ = f.activeExpiringIn(t, 45)

	draftExpiration := f.clock.Now().AddDate(0, 0, 3).Format(dateLayout)
	_ = f.create(t, func(in *CreateContractInput) { in.ExpirationDate = &draftExpiration })

	week, err := f.svc.GetExpiringSoon(ctx, 7)
	require.NoError(t, err)
	ids := make([]uuid.UUID, 0, len(week))
	for _, c := range week {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uuid.UUID{today.ID, soon.ID}, ids)

	month, err := f.svc.GetExpiringSoon(ctx, 0)
	require.NoError(t, err)
	ids = ids[:0]
	for _, c := range month {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uuid.UUID{today.ID, soon.ID, later.ID}, ids)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.True(t, empty.TotalAmount.IsZero())

	a := f.create(t, func(in *CreateContractInput) { in.TotalAmount = decimal.NewFromInt(1000) })
	b := f.create(t, func(in *CreateContractInput) { in.TotalAmount = decimal.NewFromInt(3000) })
	gone := f.create(t, func(in *CreateContractInput) { in.TotalAmount = decimal.NewFromInt(9000) })

	_, err = f.svc.Sign(ctx, a.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Sign(ctx, a.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Sign(ctx, b.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
	require.NoError(t, err)
	_, err = f.svc.Delete(ctx, gone.ID, f.user.ID)
	require.NoError(t, err)

	stats, err := f.svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(0), stats.Draft)
	assert.Equal(t, int64(1), stats.PendingSignature)
	assert.Equal(t, int64(1), stats.Signed)
	assert.Equal(t, int64(1), stats.FullySigned)
	assert.True(t, decimal.NewFromInt(4000).Equal(stats.TotalAmount), stats.TotalAmount.String())
	assert.True(t, decimal.NewFromInt(2000).Equal(stats.AverageAmount), stats.AverageAmount.String())
}

func TestSignedStatusImpliesBothFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	contract := f.create(t, nil)

	steps := []func() error{
		func() error {
			_, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyB, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusSigned}, f.user.ID)
			return err
		},
		func() error {
			_, err := f.svc.Sign(ctx, contract.ID, enums.SigningPartyA, validSignature(f.user.ID, f.clock.Now()), f.user.ID)
			return err
		},
		func() error {
			_, err := f.svc.UpdateStatus(ctx, contract.ID, StatusChangeInput{Status: enums.ContractStatusPendingReview}, f.user.ID)
			return err
		},
	}
	for _, step := range steps {
		_ = step()
		var row models.Contract
		require.NoError(t, f.client.DB().Where("id = ?", contract.ID).Take(&row).Error)
		if row.Status == enums.ContractStatusSigned {
			assert.True(t, row.FullySigned())
		}
	}
}
