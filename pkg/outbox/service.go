package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
)

var errTxRequired = errors.New("transaction required")

// DomainEvent is what producers hand to Emit. A non-empty DedupeKey makes the
// event unique across the outbox table.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
	DedupeKey     string
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return errors.New("aggregate id required")
	}
	return nil
}

// Emitter writes domain events inside the caller's transaction, so the event
// exists exactly when the state change that caused it commits.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error)
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

// NewService accepts a nil logger; events are then queued silently.
func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	_, err := s.queue(ctx, tx, event, func(row models.OutboxEvent) (bool, error) {
		return true, s.repo.Insert(tx, row)
	})
	return err
}

// EmitIfNotExists reports whether a row was written. A concurrent writer
// that wins the dedupe_key race is treated the same as an existing row.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) (bool, error) {
	if event.DedupeKey == "" {
		return false, errors.New("dedupe key required")
	}
	if tx != nil {
		if exists, err := s.repo.ExistsByDedupeKeyTx(tx, event.DedupeKey); err != nil || exists {
			return false, err
		}
	}
	return s.queue(ctx, tx, event, func(row models.OutboxEvent) (bool, error) {
		return s.repo.InsertIfAbsent(tx, row)
	})
}

func (s *Service) queue(ctx context.Context, tx *gorm.DB, event DomainEvent, insert func(models.OutboxEvent) (bool, error)) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	if err := event.validate(); err != nil {
		return false, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now().UTC()
	}

	eventID := uuid.New()
	payload, err := sealEnvelope(event, eventID)
	if err != nil {
		return false, err
	}
	row := models.OutboxEvent{
		ID:            eventID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}
	if event.DedupeKey != "" {
		row.DedupeKey = &event.DedupeKey
	}
	written, err := insert(row)
	if err != nil || !written {
		return false, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctxOrBackground(ctx), map[string]any{
			"event_id":       eventID.String(),
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return true, nil
}

func ctxOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
