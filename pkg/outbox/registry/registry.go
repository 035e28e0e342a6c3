package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
	// Urgent events leave a publish batch before the rest: a customer is
	// waiting on the password reset mail, buyers on the low stock alert,
	// billing on the overdue invoice alert.
	Urgent bool
}

// ResolvedEvent is the result of decoding an outbox row or a delivered message.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry builds the registry. Every back-office event goes to the automation topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.AutomationTopic == "" {
		return nil, fmt.Errorf("automation topic is required")
	}
	topic := cfg.AutomationTopic

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventClientRegistered,
			AggregateType:  enums.AggregateUser,
			PayloadFactory: func() any { return &payloads.ClientRegisteredEvent{} },
		},
		{
			EventType:      enums.EventProductLowStock,
			AggregateType:  enums.AggregateProduct,
			PayloadFactory: func() any { return &payloads.ProductLowStockEvent{} },
			Urgent:         true,
		},
		{
			EventType:      enums.EventPasswordResetRequested,
			AggregateType:  enums.AggregatePrincipal,
			PayloadFactory: func() any { return &payloads.PasswordResetRequestedEvent{} },
			Urgent:         true,
		},
		{
			EventType:      enums.EventUserStateChanged,
			AggregateType:  enums.AggregateUser,
			PayloadFactory: func() any { return &payloads.UserStateChangedEvent{} },
		},
		{
			EventType:      enums.EventOrderCreated,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() any { return &payloads.OrderCreatedEvent{} },
			Urgent:         true,
		},
		{
			EventType:      enums.EventOrderStatusChanged,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() any { return &payloads.OrderStatusChangedEvent{} },
		},
		{
			EventType:      enums.EventInvoiceOverdue,
			AggregateType:  enums.AggregateOrder,
			PayloadFactory: func() any { return &payloads.InvoiceOverdueEvent{} },
			Urgent:         true,
		},
		{
			EventType:      enums.EventPurchaseOrderCreated,
			AggregateType:  enums.AggregatePurchaseOrder,
			PayloadFactory: func() any { return &payloads.PurchaseOrderCreatedEvent{} },
		},
	} {
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Descriptor returns the descriptor for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}
	return r.decode(desc, event.Payload)
}

// ResolveMessage decodes a message delivered from the topic using its event_type attribute.
func (r *EventRegistry) ResolveMessage(eventType string, data []byte) (*ResolvedEvent, error) {
	desc, ok := r.entries[enums.OutboxEventType(eventType)]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %q", eventType))
	}
	return r.decode(desc, data)
}

func (r *EventRegistry) decode(desc EventDescriptor, raw []byte) (*ResolvedEvent, error) {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", desc.EventType))
	}
	if _, err := uuid.Parse(envelope.EventID); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("invalid event id %q", envelope.EventID))
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", desc.EventType, err))
	}
	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
