package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

type captureWriter struct {
	rows []models.OutboxEvent
	err  error
}

func (c *captureWriter) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if c.err != nil {
		return c.err
	}
	c.rows = append(c.rows, event)
	return nil
}

func TestEmitWrapsPayloadInEnvelope(t *testing.T) {
	writer := &captureWriter{}
	svc := NewService(writer, logger.New(logger.Options{ServiceName: "test"}))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	actor := uuid.New()
	aggregate := uuid.New()
	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventUserStateChanged,
		AggregateType: enums.AggregateUser,
		AggregateID:   aggregate,
		Actor:         &ActorRef{UserID: actor, Role: "gerencia"},
		Data:          map[string]string{"new_state": "aprobado"},
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(writer.rows) != 1 {
		t.Fatalf("expected one row got %d", len(writer.rows))
	}
	row := writer.rows[0]
	if row.ID == uuid.Nil || row.AggregateID != aggregate {
		t.Fatalf("unexpected row ids %+v", row)
	}

	var envelope PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 || !envelope.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected envelope header %+v", envelope)
	}
	if envelope.Actor == nil || envelope.Actor.UserID != actor {
		t.Fatalf("expected actor to be carried")
	}
	if string(envelope.Data) != `{"new_state":"aprobado"}` {
		t.Fatalf("unexpected data %s", envelope.Data)
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(&captureWriter{}, nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{
		EventType:     enums.EventProductLowStock,
		AggregateType: enums.AggregateProduct,
	})
	if err == nil {
		t.Fatal("expected error without tx")
	}
}

func TestEmitRejectsUnknownEvent(t *testing.T) {
	writer := &captureWriter{}
	svc := NewService(writer, nil)
	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     "shipment_lost",
		AggregateType: enums.AggregateProduct,
	})
	if err == nil {
		t.Fatal("expected error for unknown event")
	}
	if len(writer.rows) != 0 {
		t.Fatal("no row should be written")
	}
}

func TestEmitPropagatesWriterError(t *testing.T) {
	svc := NewService(&captureWriter{err: errors.New("insert failed")}, nil)
	err := svc.Emit(context.Background(), &gorm.DB{}, DomainEvent{
		EventType:     enums.EventClientRegistered,
		AggregateType: enums.AggregateUser,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	})
	if err == nil {
		t.Fatal("expected writer error")
	}
}
