package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

// StatusEvent builds the order_status_changed notification for order, which
// must already carry its new status.
func StatusEvent(order *models.Order, previous enums.OrderStatus, email string, actorID *uuid.UUID, at time.Time) outbox.DomainEvent {
	data := payloads.OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		CustomerID:     order.CustomerID,
		Email:          email,
		PreviousStatus: previous,
		NewStatus:      order.Status,
		InvoiceNumber:  order.InvoiceNumber,
		ChangedAt:      at.UTC(),
	}
	if order.Status == enums.OrderStatusEntregado {
		data.InvoiceDeadline = order.InvoiceDeadline
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          data,
	}
	if actorID != nil {
		event.Actor = &outbox.ActorRef{UserID: *actorID}
	}
	return event
}
