package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/registry"
)

const consumerName = "automation-webhooks"

type eventResolver interface {
	ResolveMessage(eventType string, data []byte) (*registry.ResolvedEvent, error)
}

type claimGuard interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type webhookPoster interface {
	Post(ctx context.Context, path string, body map[string]any) error
	Source() string
}

// Consumer forwards back-office events from the automation subscription to the workflow engine.
type Consumer struct {
	subscription *pubsub.Subscriber
	resolver     eventResolver
	guard        claimGuard
	webhook      webhookPoster
	logg         *logger.Logger
}

// NewConsumer builds the webhook forwarder. subscription may be nil when only Process is used.
func NewConsumer(subscription *pubsub.Subscriber, resolver eventResolver, guard claimGuard, webhook webhookPoster, logg *logger.Logger) (*Consumer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if guard == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if webhook == nil {
		return nil, fmt.Errorf("webhook client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		subscription: subscription,
		resolver:     resolver,
		guard:        guard,
		webhook:      webhook,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("automation subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Process(ctx, msg.ID, msg.Attributes, msg.Data) == ResultNack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// Result is the delivery decision for one message.
type Result int

const (
	ResultAck Result = iota
	ResultNack
)

// Process handles one delivery and reports whether it should be acked.
func (c *Consumer) Process(ctx context.Context, messageID string, attributes map[string]string, data []byte) Result {
	eventType := attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	path, ok := WebhookPath(enums.OutboxEventType(eventType))
	if !ok {
		c.logg.Info(logCtx, "automation.skip_unrouted_event")
		return ResultAck
	}

	resolved, err := c.resolver.ResolveMessage(eventType, data)
	if err != nil {
		c.logg.Error(logCtx, "automation.decode_failed", err)
		return ResultAck
	}

	eventID, err := uuid.Parse(resolved.Envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "automation.invalid_event_id", err)
		return ResultAck
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	first, err := c.guard.Claim(ctx, consumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "automation.idempotency_check_failed", err)
		return ResultNack
	}
	if !first {
		c.logg.Info(logCtx, "automation.event_already_processed")
		return ResultAck
	}

	body, err := c.buildBody(eventType, resolved)
	if err != nil {
		c.logg.Error(logCtx, "automation.body_build_failed", err)
		return ResultAck
	}

	err = c.webhook.Post(ctx, path, body)
	if err == nil {
		c.logg.Info(logCtx, "automation.webhook_delivered")
		return ResultAck
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) && !statusErr.Retryable() {
		c.logg.Warn(c.logg.WithField(logCtx, "status", statusErr.StatusCode), "automation.webhook_rejected")
		return ResultAck
	}

	c.logg.Error(logCtx, "automation.webhook_failed", err)
	if relErr := c.guard.Release(ctx, consumerName, eventID); relErr != nil {
		c.logg.Error(logCtx, "automation.idempotency_release_failed", relErr)
	}
	return ResultNack
}

// buildBody flattens the payload and stamps event_type, timestamp and source on top.
func (c *Consumer) buildBody(eventType string, resolved *registry.ResolvedEvent) (map[string]any, error) {
	body := map[string]any{}
	if err := json.Unmarshal(resolved.Envelope.Data, &body); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	occurred := resolved.Envelope.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	body["event_type"] = eventType
	body["timestamp"] = occurred.UTC().Format(time.RFC3339)
	body["source"] = c.webhook.Source()
	return body, nil
}
