package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/agencyhub-backend/pkg/db/models"
	"github.com/angelmondragon/agencyhub-backend/pkg/enums"
	"github.com/angelmondragon/agencyhub-backend/pkg/metrics"
	"github.com/angelmondragon/agencyhub-backend/pkg/outbox/registry"
	"gorm.io/gorm"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

func (o outcome) metricLabel() string {
	switch o {
	case outcomePublished:
		return metrics.OutboxPublished
	case outcomeRetry:
		return metrics.OutboxRetry
	default:
		return metrics.OutboxDeadLettered
	}
}

// dispatchResult is what happened to one outbox row, before it is recorded.
type dispatchResult struct {
	outcome outcome
	reason  enums.OutboxDLQErrorReason
	topic   string
	eventID string
	err     error
}

// processBatch claims up to batchSize rows and settles each one. It reports
// whether any row was claimed. Only bookkeeping failures abort the batch;
// publish failures are recorded on the row.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) dispatchResult {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return dispatchResult{outcome: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err}
	}
	result := dispatchResult{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	err = s.publish(ctx, event, resolved)
	var nonRetryable registry.NonRetryableError
	switch {
	case err == nil:
		result.outcome = outcomePublished
	case errors.As(err, &nonRetryable):
		result.outcome, result.reason, result.err = outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable, err
	case event.AttemptCount+1 >= s.maxAttempts:
		result.outcome, result.reason = outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
		result.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		result.outcome, result.err = outcomeRetry, err
	}
	return result
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if event.DedupeKey != nil {
		attrs["dedupe_key"] = *event.DedupeKey
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{Data: event.Payload, Attributes: attrs})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// settle records the dispatch result on the row, and in the DLQ when the row
// is given up on.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, result dispatchResult) error {
	logCtx := s.logg.WithFields(ctx, s.eventFields(event, result))

	switch result.outcome {
	case outcomePublished:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox event published")

	case outcomeRetry:
		if err := s.repo.MarkFailedTx(tx, event.ID, result.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", result.err.Error()), "outbox publish failed")

	case outcomeDeadLetter:
		message := result.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   result.reason,
			ErrorMessage:  &message,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, result.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.logg.Warn(s.logg.WithField(logCtx, "error", message), "outbox event will not be retried")
	}

	if s.metrics != nil {
		s.metrics.ObservePublish(string(event.EventType), result.outcome.metricLabel())
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, result dispatchResult) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if result.outcome != outcomePublished {
		fields["attempt_count"] = event.AttemptCount + 1
	}
	if result.reason != "" {
		fields["error_reason"] = result.reason
	}
	if result.eventID != "" {
		fields["event_id"] = result.eventID
	}
	if result.topic != "" {
		fields["topic"] = result.topic
	}
	return fields
}
