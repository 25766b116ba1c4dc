package contracts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/agencyhub-backend/pkg/config"
	dbpkg "github.com/angelmondragon/agencyhub-backend/pkg/db"
	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/agencyhub-backend/pkg/errors"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/metrics"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/agencyhub-backend/pkg/pagination"
)

const (
	opCreate       = "create"
	opUpdate       = "update"
	opSign         = "sign"
	opUpdateStatus = "update_status"
	opDelete       = "delete"

	maxNumberAttempts = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the contract store: lifecycle mutations with their audit trail,
// plus the read paths used by the API and scheduled jobs.
type Service interface {
	Create(ctx context.Context, input CreateContractInput) (*ContractDTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (*ContractDTO, error)
	GetAll(ctx context.Context, filters ListFilters) (*ListResult, error)
	Update(ctx context.Context, id uuid.UUID, update ContractUpdate, userID uuid.UUID) (*ContractDTO, error)
	Sign(ctx context.Context, id uuid.UUID, party enums.SigningParty, signature SignatureInput, userID uuid.UUID) (*ContractDTO, error)
	// UpdateStatus accepts any known status from any state, except that
	// signed is refused with CodeStateConflict until both parties have signed.
	UpdateStatus(ctx context.Context, id uuid.UUID, input StatusChangeInput, userID uuid.UUID) (*ContractDTO, error)
	Delete(ctx context.Context, id, userID uuid.UUID) (bool, error)
	GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntryDTO, error)
	GetExpiringSoon(ctx context.Context, days int) ([]ContractDTO, error)
	Stats(ctx context.Context) (*Stats, error)
}

// ServiceParams wires the contract store.
type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Outbox     eventEmitter
	Numbers    NumberGenerator
	Logger     *logger.Logger
	Metrics    *metrics.ContractMetrics
	Config     config.ContractsConfig
	Now        func() time.Time
}

type service struct {
	repo    Repository
	db      txRunner
	outbox  eventEmitter
	numbers NumberGenerator
	logg    *logger.Logger
	metrics *metrics.ContractMetrics
	cfg     config.ContractsConfig
	now     func() time.Time
}

// NewService builds the contract store.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("contracts repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("contract number generator required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = pagination.DefaultLimit
	}
	if cfg.MaxPageLimit <= 0 {
		cfg.MaxPageLimit = pagination.MaxLimit
	}
	if cfg.ExpiringSoonDays <= 0 {
		cfg.ExpiringSoonDays = 30
	}
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		cfg.DefaultCurrency = "EUR"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:    params.Repository,
		db:      params.DB,
		outbox:  params.Outbox,
		numbers: params.Numbers,
		logg:    params.Logger,
		metrics: params.Metrics,
		cfg:     cfg,
		now:     now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateContractInput) (result *ContractDTO, err error) {
	defer func() { s.metrics.Observe(opCreate, err) }()

	if strings.TrimSpace(input.Currency) == "" {
		input.Currency = s.cfg.DefaultCurrency
	}
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if input.Variables == nil {
		input.Variables = map[string]any{}
	}
	if err := ValidateCreate(input); err != nil {
		return nil, err
	}

	contract, err := buildContract(input)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for attempt := 1; ; attempt++ {
		number, err := s.allocateNumber(ctx, now, attempt)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodePersistence, err, "allocate contract number")
		}
		contract.ContractNumber = number

		err = s.insertContract(ctx, contract, input.CreatedBy)
		if err == nil {
			break
		}
		if attempt == maxNumberAttempts || !dbpkg.IsUniqueViolation(err, "contract_number") {
			return nil, storeError(err, "create contract")
		}
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"contract_number": number,
			"attempt":         attempt,
		}), "contract number already taken, resyncing sequence")
	}

	s.logMutation(ctx, "contract.created", contract.ID, input.CreatedBy)
	dto := FromModel(*contract)
	return &dto, nil
}

func (s *service) allocateNumber(ctx context.Context, now time.Time, attempt int) (string, error) {
	if attempt == 1 {
		return s.numbers.Next(ctx, now)
	}
	return s.numbers.Resync(ctx, now)
}

func (s *service) insertContract(ctx context.Context, contract *models.Contract, createdBy uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, contract); err != nil {
			return err
		}
		if err := repo.AppendHistory(ctx, models.ContractHistory{
			ContractID: contract.ID,
			Action:     enums.ContractHistoryCreated,
			ChangedBy:  createdBy,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.contractEvent(contract, enums.EventContractCreated, createdBy, payloads.ContractCreatedEvent{
			ContractRef:  refOf(contract),
			ContractType: contract.ContractType,
			PartyBName:   contract.PartyBName,
		}))
	})
}

// GetByID returns nil without an error when the contract is absent or deleted.
func (s *service) GetByID(ctx context.Context, id uuid.UUID) (*ContractDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	view, err := s.repo.FindView(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError(err, "load contract")
	}
	dto := fromView(*view)
	return &dto, nil
}

func (s *service) GetAll(ctx context.Context, filters ListFilters) (*ListResult, error) {
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
			WithDetails(map[string]string{"status": "is not a valid contract status"})
	}
	if filters.ContractType != "" && !filters.ContractType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid contract type filter").
			WithDetails(map[string]string{"contract_type": "is not a valid contract type"})
	}
	search, err := normalizeSearch(filters.Search)
	if err != nil {
		return nil, err
	}

	params := pagination.Normalize(pagination.Params{Page: filters.Page, Limit: filters.Limit}, s.cfg.DefaultPageLimit, s.cfg.MaxPageLimit)
	views, total, err := s.repo.List(ctx, listQuery{
		Limit:        params.Limit,
		Offset:       params.Offset(),
		Status:       filters.Status,
		ContractType: filters.ContractType,
		ClientID:     filters.ClientID,
		DJID:         filters.DJID,
		Search:       search,
	})
	if err != nil {
		return nil, storeError(err, "list contracts")
	}

	items := make([]ContractDTO, 0, len(views))
	for _, v := range views {
		items = append(items, fromView(v))
	}
	return &ListResult{
		Contracts:  items,
		Pagination: pagination.NewPage(params, total),
	}, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, update ContractUpdate, userID uuid.UUID) (result *ContractDTO, err error) {
	defer func() { s.metrics.Observe(opUpdate, err) }()

	if err := requireIDs(id, userID); err != nil {
		return nil, err
	}
	if update.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no valid fields to update")
	}
	if err := ValidateUpdate(update); err != nil {
		return nil, err
	}
	changes, err := update.changes()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	columns := map[string]any{
		"updated_by": userID,
		"updated_at": now,
	}
	history := make([]models.ContractHistory, 0, len(changes))
	fields := make([]string, 0, len(changes))
	for _, change := range changes {
		columns[change.field] = change.column
		encoded, err := json.Marshal(change.audit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode "+change.field)
		}
		field := change.field
		history = append(history, models.ContractHistory{
			ContractID:   id,
			Action:       enums.ContractHistoryUpdated,
			FieldChanged: &field,
			NewValue:     datatypes.JSON(encoded),
			ChangedBy:    userID,
		})
		fields = append(fields, field)
	}

	var updated *models.Contract
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if update.StartDate != nil || update.EndDate != nil {
			current, err := repo.FindForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := validateStoredDates(*current, update); err != nil {
				return err
			}
		}
		affected, err := repo.UpdateColumns(ctx, id, columns)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errContractNotFound()
		}
		for _, entry := range history {
			if err := repo.AppendHistory(ctx, entry); err != nil {
				return err
			}
		}
		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.contractEvent(updated, enums.EventContractUpdated, userID, payloads.ContractUpdatedEvent{
			ContractRef: refOf(updated),
			Fields:      fields,
			UpdatedBy:   userID,
		}))
	})
	if err != nil {
		return nil, storeError(err, "update contract")
	}

	s.logMutation(ctx, "contract.updated", id, userID)
	dto := FromModel(*updated)
	return &dto, nil
}

func (s *service) Sign(ctx context.Context, id uuid.UUID, party enums.SigningParty, signature SignatureInput, userID uuid.UUID) (result *ContractDTO, err error) {
	defer func() { s.metrics.Observe(opSign, err) }()

	if err := requireIDs(id, userID); err != nil {
		return nil, err
	}
	if err := ValidateSignature(party, signature); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	flagColumn, dataColumn := "signed_by_party_a", "signature_party_a_data"
	if party == enums.SigningPartyB {
		flagColumn, dataColumn = "signed_by_party_b", "signature_party_b_data"
	}
	data := &models.SignatureData{
		Signature: signature.Signature,
		IPAddress: signature.IPAddress,
		UserAgent: signature.UserAgent,
		SignerID:  signature.SignerID,
		Timestamp: signature.Timestamp.UTC(),
	}

	var signed *models.Contract
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.UpdateColumns(ctx, id, map[string]any{
			flagColumn:       true,
			dataColumn:       datatypes.NewJSONType(data),
			"signature_date": gorm.Expr("COALESCE(signature_date, ?)", now),
			"updated_by":     userID,
			"updated_at":     now,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return errContractNotFound()
		}

		signed, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if next := statusAfterSignature(*signed); next != signed.Status {
			if _, err := repo.UpdateColumns(ctx, id, map[string]any{"status": next}); err != nil {
				return err
			}
			signed.Status = next
		}

		if err := repo.AppendHistory(ctx, models.ContractHistory{
			ContractID: id,
			Action:     enums.SignedActionFor(party),
			ChangedBy:  userID,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.contractEvent(signed, enums.EventContractSigned, userID, payloads.ContractSignedEvent{
			ContractRef: refOf(signed),
			Party:       party,
			SignedBy:    userID,
			FullySigned: signed.FullySigned(),
			Status:      signed.Status,
		}))
	})
	if err != nil {
		return nil, storeError(err, "sign contract")
	}

	logCtx := s.logg.WithField(ctx, "party", string(party))
	s.logMutation(logCtx, "contract.signed", id, userID)
	dto := FromModel(*signed)
	return &dto, nil
}

// statusAfterSignature moves a contract that has not yet gone live to signed
// once both parties signed, otherwise to pending_signature. Active and terminal
// contracts keep their status.
func statusAfterSignature(c models.Contract) enums.ContractStatus {
	if !c.Status.IsPreSignature() {
		return c.Status
	}
	if c.FullySigned() {
		return enums.ContractStatusSigned
	}
	return enums.ContractStatusPendingSignature
}

func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, input StatusChangeInput, userID uuid.UUID) (result *ContractDTO, err error) {
	defer func() { s.metrics.Observe(opUpdateStatus, err) }()

	if err := requireIDs(id, userID); err != nil {
		return nil, err
	}
	if err := ValidateStatusChange(input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	encodedStatus, err := json.Marshal(input.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode status")
	}

	var changed *models.Contract
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if input.Status == enums.ContractStatusSigned && !current.FullySigned() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "contract can only be marked signed once both parties have signed")
		}

		previous := current.Status
		columns := map[string]any{
			"status":     input.Status,
			"updated_by": userID,
			"updated_at": now,
		}
		if input.Status == enums.ContractStatusCancelled {
			columns["cancelled_by"] = userID
			columns["cancellation_reason"] = input.Reason
		}
		if _, err := repo.UpdateColumns(ctx, id, columns); err != nil {
			return err
		}

		if err := repo.AppendHistory(ctx, models.ContractHistory{
			ContractID:   id,
			Action:       enums.ContractHistoryStatusChanged,
			NewValue:     datatypes.JSON(encodedStatus),
			ChangeReason: input.Reason,
			ChangedBy:    userID,
		}); err != nil {
			return err
		}

		changed, err = repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, s.contractEvent(changed, enums.EventContractStatusChanged, userID, payloads.ContractStatusChangedEvent{
			ContractRef:    refOf(changed),
			PreviousStatus: previous,
			Status:         changed.Status,
			Reason:         input.Reason,
			ChangedBy:      userID,
		}))
	})
	if err != nil {
		return nil, storeError(err, "update contract status")
	}

	logCtx := s.logg.WithField(ctx, "status", input.Status.String())
	s.logMutation(logCtx, "contract.status_changed", id, userID)
	dto := FromModel(*changed)
	return &dto, nil
}

// Delete soft-deletes the contract. It reports false, without an error, when
// no live contract matched.
func (s *service) Delete(ctx context.Context, id, userID uuid.UUID) (deleted bool, err error) {
	defer func() { s.metrics.Observe(opDelete, err) }()

	if err := requireIDs(id, userID); err != nil {
		return false, err
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		contract, err := repo.FindForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		affected, err := repo.SoftDelete(ctx, id, userID, now)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		deleted = true
		return s.outbox.Emit(ctx, tx, s.contractEvent(contract, enums.EventContractDeleted, userID, payloads.ContractDeletedEvent{
			ContractRef: refOf(contract),
			DeletedBy:   userID,
		}))
	})
	if err != nil {
		return false, storeError(err, "delete contract")
	}

	if deleted {
		s.logMutation(ctx, "contract.deleted", id, userID)
	}
	return deleted, nil
}

func (s *service) GetHistory(ctx context.Context, id uuid.UUID) ([]HistoryEntryDTO, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	rows, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, storeError(err, "load contract history")
	}
	entries := make([]HistoryEntryDTO, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, fromHistory(row))
	}
	return entries, nil
}

// GetExpiringSoon lists active contracts expiring within [today, today+days].
// A non-positive days uses the configured default.
func (s *service) GetExpiringSoon(ctx context.Context, days int) ([]ContractDTO, error) {
	if days <= 0 {
		days = s.cfg.ExpiringSoonDays
	}
	today := calendarDate(s.now())
	until := calendarDate(time.Time(today).AddDate(0, 0, days))

	views, err := s.repo.ExpiringBetween(ctx, today, until)
	if err != nil {
		return nil, storeError(err, "list expiring contracts")
	}
	items := make([]ContractDTO, 0, len(views))
	for _, v := range views {
		items = append(items, fromView(v))
	}
	return items, nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, storeError(err, "load contract stats")
	}
	return stats, nil
}

func (s *service) contractEvent(c *models.Contract, eventType enums.OutboxEventType, actor uuid.UUID, data any) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateContract,
		AggregateID:   c.ID,
		Actor:         &outbox.ActorRef{UserID: actor},
		Data:          data,
		OccurredAt:    s.now().UTC(),
	}
}

func (s *service) logMutation(ctx context.Context, msg string, contractID, userID uuid.UUID) {
	ctx = s.logg.WithContractID(ctx, contractID.String())
	ctx = s.logg.WithUserID(ctx, userID.String())
	s.logg.Info(ctx, msg)
}

func refOf(c *models.Contract) payloads.ContractRef {
	return payloads.ContractRef{
		ContractID:     c.ID,
		ContractNumber: c.ContractNumber,
		Title:          c.Title,
		CreatedBy:      c.CreatedBy,
	}
}

func buildContract(input CreateContractInput) (*models.Contract, error) {
	start, err := parseDate(input.StartDate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid start_date")
	}
	end, err := parseOptionalDate(input.EndDate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid end_date")
	}
	expiration, err := parseOptionalDate(input.ExpirationDate)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid expiration_date")
	}
	return &models.Contract{
		ContractType:   input.ContractType,
		TemplateID:     input.TemplateID,
		ClientID:       input.ClientID,
		DJID:           input.DJID,
		EventID:        input.EventID,
		PartyAName:     input.PartyAName,
		PartyALegalID:  input.PartyALegalID,
		PartyAAddress:  input.PartyAAddress,
		PartyBName:     input.PartyBName,
		PartyBLegalID:  input.PartyBLegalID,
		PartyBAddress:  input.PartyBAddress,
		PartyBEmail:    input.PartyBEmail,
		PartyBPhone:    input.PartyBPhone,
		Title:          input.Title,
		Description:    input.Description,
		Content:        input.Content,
		Variables:      datatypes.JSONMap(input.Variables),
		TotalAmount:    input.TotalAmount,
		Currency:       input.Currency,
		PaymentTerms:   input.PaymentTerms,
		StartDate:      start,
		EndDate:        end,
		ExpirationDate: expiration,
		AutoRenew:      input.AutoRenew,
		RenewalPeriod:  input.RenewalPeriod,
		Notes:          input.Notes,
		InternalNotes:  input.InternalNotes,
		Status:         enums.ContractStatusDraft,
		CreatedBy:      input.CreatedBy,
	}, nil
}

func parseOptionalDate(value *string) (*datatypes.Date, error) {
	if value == nil {
		return nil, nil
	}
	d, err := parseDate(*value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func requireIDs(contractID, userID uuid.UUID) error {
	if contractID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "contract id required")
	}
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func errContractNotFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "contract not found")
}

// storeError keeps coded errors and maps everything else from the storage
// layer. The transaction has already been rolled back.
func storeError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if coded := pkgerrors.As(err); coded != nil {
		return coded
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errContractNotFound()
	}
	return pkgerrors.Wrap(pkgerrors.CodePersistence, err, msg)
}
