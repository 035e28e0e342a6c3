package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
)

const analyticsConsumerName = "analytics"

// Handler defines how to process analytics envelopes.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type claimGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service consumes back-office events from Pub/Sub while honoring Redis idempotency.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	guard        claimGuard
	logg         *logger.Logger
}

// NewService creates a new analytics worker service.
func NewService(subscription *gcppubsub.Subscriber, handler Handler, guard claimGuard, logg *logger.Logger) (*Service, error) {
	if subscription == nil {
		return nil, errors.New("analytics subscription is required")
	}
	if handler == nil {
		return nil, errors.New("analytics handler is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		subscription: subscription,
		handler:      handler,
		guard:        guard,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run starts consuming analytics messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{"message_id": msg.ID}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, err := s.buildEnvelope(msg)
	if err != nil {
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "analytics.invalid_envelope")
		return processResult{}
	}
	fields["event_id"] = envelope.EventID
	fields["event_type"] = envelope.EventType
	fields["aggregate_type"] = envelope.AggregateType
	fields["aggregate_id"] = envelope.AggregateID
	fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	logCtx = s.logg.WithFields(ctx, fields)

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "analytics.invalid_event_id")
		return processResult{}
	}

	first, err := s.guard.Claim(logCtx, analyticsConsumerName, eventID)
	if err != nil {
		s.logg.Error(logCtx, "analytics.idempotency_check_failed", err)
		return processResult{nack: true}
	}
	if !first {
		s.logg.Info(logCtx, "analytics.event_already_processed")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		s.logg.Error(logCtx, "analytics.handler_failed", err)
		if relErr := s.guard.Release(logCtx, analyticsConsumerName, eventID); relErr != nil {
			s.logg.Error(logCtx, "analytics.idempotency_release_failed", relErr)
		}
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "analytics.event_recorded")
	return processResult{}
}

func (s *Service) buildEnvelope(msg *gcppubsub.Message) (*types.Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	return &types.Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
