package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/agencyhub-backend/internal/contracts"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/payloads"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const expiringSoonDays = 30

// ContractExpiringJobParams configures the expiring-soon notices.
type ContractExpiringJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Contracts expiringContractsSource
	Outbox    dedupedEmitter
	Days      int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type expiringContractsSource interface {
	GetExpiringSoon(ctx context.Context, days int) ([]contracts.ContractDTO, error)
}

type dedupedEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

// NewContractExpiringJob constructs the job that queues one contract_expiring_soon
// event per contract and expiration date.
func NewContractExpiringJob(params ContractExpiringJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Contracts == nil {
		return nil, fmt.Errorf("contracts service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	days := params.Days
	if days <= 0 {
		days = expiringSoonDays
	}
	return &contractExpiringJob{
		logg:      params.Logger,
		db:        params.DB,
		contracts: params.Contracts,
		outbox:    params.Outbox,
		days:      days,
		now:       time.Now,
	}, nil
}

type contractExpiringJob struct {
	logg      *logger.Logger
	db        txRunner
	contracts expiringContractsSource
	outbox    dedupedEmitter
	days      int
	now       func() time.Time
}

func (j *contractExpiringJob) Name() string { return "contract-expiring-soon" }

func (j *contractExpiringJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	expiring, err := j.contracts.GetExpiringSoon(ctx, j.days)
	if err != nil {
		return fmt.Errorf("list expiring contracts: %w", err)
	}

	var errs error
	queued := 0
	for _, contract := range expiring {
		written, err := j.queueNotice(ctx, contract, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("contract %s: %w", contract.ID, err))
			continue
		}
		if written {
			queued++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"window_days": j.days,
		"expiring":    len(expiring),
		"queued":      queued,
		"failed":      len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "expiring contract notices queued")
	return errs
}

func (j *contractExpiringJob) queueNotice(ctx context.Context, contract contracts.ContractDTO, now time.Time) (bool, error) {
	if contract.ExpirationDate == nil {
		return false, nil
	}
	expiration, err := time.ParseInLocation("2006-01-02", *contract.ExpirationDate, time.UTC)
	if err != nil {
		return false, fmt.Errorf("parse expiration date: %w", err)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	event := outbox.DomainEvent{
		EventType:     enums.EventContractExpiringSoon,
		AggregateType: enums.AggregateContract,
		AggregateID:   contract.ID,
		Data: payloads.ContractExpiringSoonEvent{
			ContractRef: payloads.ContractRef{
				ContractID:     contract.ID,
				ContractNumber: contract.ContractNumber,
				Title:          contract.Title,
				CreatedBy:      contract.CreatedBy,
			},
			ExpirationDate: *contract.ExpirationDate,
			DaysRemaining:  int(expiration.Sub(today).Hours() / 24),
			DetectedAt:     now,
		},
		OccurredAt: now,
		DedupeKey:  ExpiringSoonDedupeKey(contract),
	}

	var written bool
	err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		written, err = j.outbox.EmitIfNotExists(ctx, tx, event)
		return err
	})
	return written, err
}

// ExpiringSoonDedupeKey scopes the notice to the contract and its current
// expiration date, so an extended contract is announced again.
func ExpiringSoonDedupeKey(contract contracts.ContractDTO) string {
	expiration := ""
	if contract.ExpirationDate != nil {
		expiration = *contract.ExpirationDate
	}
	return fmt.Sprintf("%s:%s:%s", enums.EventContractExpiringSoon, contract.ID, expiration)
}
