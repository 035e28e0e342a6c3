package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/internal/analytics/types"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
)

func TestBuildEnvelope(t *testing.T) {
	svc := newTestService(t)
	eventID := uuid.NewString()
	payload := outbox.PayloadEnvelope{
		EventID:    eventID,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       json.RawMessage(`{"product_id":"p-1"}`),
	}
	msg := buildMessage(payload, map[string]string{
		"event_type":     "product_low_stock",
		"aggregate_type": "product",
		"aggregate_id":   "p-1",
	})

	env, err := svc.buildEnvelope(msg)
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventType != enums.EventProductLowStock {
		t.Fatalf("unexpected event type %v", env.EventType)
	}
	if env.AggregateType != enums.AggregateProduct {
		t.Fatalf("unexpected aggregate type %v", env.AggregateType)
	}
	if env.AggregateID != "p-1" || env.EventID != eventID {
		t.Fatalf("unexpected ids %+v", env)
	}
	if !env.OccurredAt.Equal(payload.OccurredAt) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
}

func TestProcessWritesRow(t *testing.T) {
	guard := &stubGuard{}
	rows := &stubWriter{}
	sink, err := NewSink(rows)
	if err != nil {
		t.Fatalf("sink: %v", err)
	}
	svc := newTestServiceWithDeps(t, sink, guard)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if res.nack {
		t.Fatal("expected ack")
	}
	if len(rows.rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows.rows))
	}
	row := rows.rows[0]
	if row.EventType != "client_registered" || row.AggregateType != "user" || row.AggregateID != "abc-123" {
		t.Fatalf("unexpected row %+v", row)
	}
	if !row.Payload.Valid || row.Payload.JSONVal != `{"email":"a@b.test"}` {
		t.Fatalf("unexpected payload %+v", row.Payload)
	}
}

func TestProcessAlreadyProcessed(t *testing.T) {
	guard := &stubGuard{seen: true}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, guard)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if res.nack {
		t.Fatalf("expected ack, got nack")
	}
	if handler.called {
		t.Fatal("handler should not be invoked when already processed")
	}
	if len(guard.claimed) != 1 {
		t.Fatalf("expected claim once, got %d", len(guard.claimed))
	}
}

func TestProcessHandlerErrorRetries(t *testing.T) {
	guard := &stubGuard{}
	handler := &stubHandler{err: errors.New("boom")}
	svc := newTestServiceWithDeps(t, handler, guard)

	res := svc.process(context.Background(), buildAnalyticsMessage(t))
	if !res.nack {
		t.Fatalf("expected nack on handler error")
	}
	if !handler.called {
		t.Fatal("handler should be invoked")
	}
	if len(guard.released) != 1 {
		t.Fatalf("expected idempotency release on failure")
	}
}

func TestProcessInvalidEnvelope(t *testing.T) {
	guard := &stubGuard{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, guard)

	res := svc.process(context.Background(), &gcppubsub.Message{Data: []byte("invalid json")})
	if res.nack {
		t.Fatalf("invalid envelope should ack")
	}
	if handler.called || len(guard.claimed) != 0 {
		t.Fatal("nothing downstream should run")
	}
}

func TestProcessUnknownEventType(t *testing.T) {
	guard := &stubGuard{}
	handler := &stubHandler{}
	svc := newTestServiceWithDeps(t, handler, guard)

	data, _ := json.Marshal(outbox.PayloadEnvelope{EventID: uuid.NewString(), Data: json.RawMessage(`{}`)})
	res := svc.process(context.Background(), &gcppubsub.Message{Data: data, Attributes: map[string]string{
		"event_type":     "shipment_lost",
		"aggregate_type": "user",
		"aggregate_id":   "x",
	}})
	if res.nack || handler.called {
		t.Fatal("unknown event types should be acked without handling")
	}
}

func buildAnalyticsMessage(t *testing.T) *gcppubsub.Message {
	t.Helper()
	payload := outbox.PayloadEnvelope{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"email":"a@b.test"}`),
	}
	return buildMessage(payload, map[string]string{
		"event_type":     "client_registered",
		"aggregate_type": "user",
		"aggregate_id":   "abc-123",
	})
}

func buildMessage(payload outbox.PayloadEnvelope, attrs map[string]string) *gcppubsub.Message {
	data, _ := json.Marshal(payload)
	return &gcppubsub.Message{
		ID:         "msg-1",
		Data:       data,
		Attributes: attrs,
	}
}

func newTestService(t *testing.T) *Service {
	return newTestServiceWithDeps(t, &stubHandler{}, &stubGuard{})
}

func newTestServiceWithDeps(t *testing.T, handler Handler, guard *stubGuard) *Service {
	t.Helper()
	return &Service{
		handler: handler,
		guard:   guard,
		logg:    logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	}
}

type stubHandler struct {
	called   bool
	envelope types.Envelope
	err      error
}

func (h *stubHandler) Handle(ctx context.Context, envelope types.Envelope) error {
	h.called = true
	h.envelope = envelope
	return h.err
}

type stubWriter struct {
	rows []types.BackofficeEventRow
}

func (w *stubWriter) Insert(ctx context.Context, row types.BackofficeEventRow) error {
	w.rows = append(w.rows, row)
	return nil
}

type stubGuard struct {
	seen     bool
	claimErr error
	claimed  []uuid.UUID
	released []uuid.UUID
}

func (s *stubGuard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	s.claimed = append(s.claimed, eventID)
	return !s.seen, s.claimErr
}

func (s *stubGuard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	s.released = append(s.released, eventID)
	return nil
}
