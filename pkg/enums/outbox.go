package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateUser      OutboxAggregateType = "user"
	AggregateProduct   OutboxAggregateType = "product"
	AggregatePrincipal OutboxAggregateType = "principal"
	AggregateOrder     OutboxAggregateType = "order"
	// AggregatePurchaseOrder keys supplier purchase orders.
	AggregatePurchaseOrder OutboxAggregateType = "purchase_order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateUser,
	AggregateProduct,
	AggregatePrincipal,
	AggregateOrder,
	AggregatePurchaseOrder,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventClientRegistered       OutboxEventType = "client_registered"
	EventProductLowStock        OutboxEventType = "product_low_stock"
	EventPasswordResetRequested OutboxEventType = "password_reset_requested"
	EventUserStateChanged       OutboxEventType = "user_state_changed"
	EventOrderCreated           OutboxEventType = "order_created"
	EventOrderStatusChanged     OutboxEventType = "order_status_changed"
	EventInvoiceOverdue         OutboxEventType = "invoice_overdue"
	EventPurchaseOrderCreated   OutboxEventType = "purchase_order_created"
)

var validOutboxEventTypes = []OutboxEventType{
	EventClientRegistered,
	EventProductLowStock,
	EventPasswordResetRequested,
	EventUserStateChanged,
	EventOrderCreated,
	EventOrderStatusChanged,
	EventInvoiceOverdue,
	EventPurchaseOrderCreated,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
