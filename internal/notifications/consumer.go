package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/logger"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

const contractNotificationConsumer = "contract-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

// Consumer watches contract events and turns signatures, expirations and
// upcoming expirations into notifications for the contract's creator.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	decoders     payloadDecoder
	idempotency  idempotencyChecker
	logg         *logger.Logger
	handled      map[enums.OutboxEventType]struct{}
}

// NewConsumer builds a contract notification consumer.
func NewConsumer(repo repository, subscription *pubsub.Subscriber, decoders payloadDecoder, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("contracts subscription required")
	}
	if decoders == nil {
		return nil, fmt.Errorf("payload decoders required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		decoders:     decoders,
		idempotency:  manager,
		logg:         logg,
		handled:      handledEvents(),
	}, nil
}

func handledEvents() map[enums.OutboxEventType]struct{} {
	return map[enums.OutboxEventType]struct{}{
		enums.EventContractSigned:        {},
		enums.EventContractStatusChanged: {},
		enums.EventContractExpiringSoon:  {},
	}
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		logCtx := c.logg.WithField(ctx, "message_id", msg.ID)
		result := c.process(logCtx, msg.Attributes["event_type"], msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, rawType string, data []byte) processResult {
	eventType := enums.OutboxEventType(rawType)
	logCtx := c.logg.WithField(ctx, "event_type", rawType)

	if _, ok := c.handled[eventType]; !ok {
		c.logg.Debug(logCtx, "skipping event without notification")
		return processResult{ack: true}
	}

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, contractNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		_ = c.idempotency.Release(ctx, contractNotificationConsumer, eventID)
		return processResult{nack: true}
	}

	notification, err := buildNotification(payload)
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Release(ctx, contractNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	if notification == nil {
		c.logg.Debug(logCtx, "event does not warrant a notification")
		return processResult{ack: true}
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"contract_id": notification.RelatedContractID.String(),
		"user_id":     notification.UserID.String(),
	})
	if err := c.repo.Create(ctx, notification); err != nil {
		c.logg.Error(logCtx, "failed to store notification", err)
		_ = c.idempotency.Release(ctx, contractNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	c.logg.Info(logCtx, "contract notification stored")
	return processResult{ack: true}
}

// buildNotification returns nil when the event needs no notification.
func buildNotification(payload interface{}) (*models.Notification, error) {
	switch event := payload.(type) {
	case *payloads.ContractSignedEvent:
		if !event.FullySigned {
			return nil, nil
		}
		return newContractNotification(event.ContractRef, enums.NotificationTypeSuccess, enums.NotificationPriorityNormal,
			"Contract signed: "+event.ContractNumber,
			fmt.Sprintf("%s has been signed by both parties.", event.Title))
	case *payloads.ContractStatusChangedEvent:
		if event.Status != enums.ContractStatusExpired {
			return nil, nil
		}
		return newContractNotification(event.ContractRef, enums.NotificationTypeWarning, enums.NotificationPriorityNormal,
			"Contract expired: "+event.ContractNumber,
			fmt.Sprintf("%s has expired.", event.Title))
	case *payloads.ContractExpiringSoonEvent:
		priority := enums.NotificationPriorityNormal
		if event.DaysRemaining <= 7 {
			priority = enums.NotificationPriorityHigh
		}
		return newContractNotification(event.ContractRef, enums.NotificationTypeWarning, priority,
			"Contract expiring soon: "+event.ContractNumber,
			fmt.Sprintf("%s expires in %s (%s).", event.Title, daysLabel(event.DaysRemaining), event.ExpirationDate))
	default:
		return nil, fmt.Errorf("unexpected payload %T", payload)
	}
}

func newContractNotification(ref payloads.ContractRef, kind enums.NotificationType, priority enums.NotificationPriority, title, message string) (*models.Notification, error) {
	if ref.ContractID == uuid.Nil {
		return nil, fmt.Errorf("contract id missing")
	}
	if ref.CreatedBy == uuid.Nil {
		return nil, fmt.Errorf("contract creator missing")
	}
	contractID := ref.ContractID
	link := fmt.Sprintf("/contracts/%s", contractID)
	return &models.Notification{
		UserID:            ref.CreatedBy,
		Type:              kind,
		Priority:          priority,
		Title:             title,
		Message:           strings.TrimSpace(message),
		Link:              &link,
		RelatedContractID: &contractID,
	}, nil
}

func daysLabel(days int) string {
	switch {
	case days <= 0:
		return "less than a day"
	case days == 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}
