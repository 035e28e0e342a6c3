package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Envelope is a back-office event as delivered on the analytics subscription.
type Envelope struct {
	EventID       string                    `json:"event_id"`
	EventType     enums.OutboxEventType     `json:"event_type"`
	AggregateType enums.OutboxAggregateType `json:"aggregate_type"`
	AggregateID   string                    `json:"aggregate_id"`
	OccurredAt    time.Time                 `json:"occurred_at"`
	Payload       json.RawMessage           `json:"payload"`
}
