package automation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/pkg/config"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/registry"
)

func TestProcessAcksOnSuccessAndPostsFlattenedBody(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	consumer, store := newTestConsumer(t, hook.URL)

	productID := uuid.New()
	eventID := uuid.New()
	data := envelope(t, eventID, payloads.ProductLowStockEvent{
		ProductID:    productID,
		Name:         "Guantes",
		StockCurrent: 1,
		StockMinimum: 10,
		Source:       payloads.LowStockSourceAdjustment,
	})

	got := consumer.Process(context.Background(), "m-1", attrs(enums.EventProductLowStock), data)
	if got != ResultAck {
		t.Fatalf("expected ack, got %v", got)
	}

	req := hook.last()
	if req.path != "/alerta-stock" {
		t.Fatalf("unexpected path %q", req.path)
	}
	if req.body["product_id"] != productID.String() || req.body["name"] != "Guantes" {
		t.Fatalf("payload fields missing: %+v", req.body)
	}
	if req.body["event_type"] != "product_low_stock" || req.body["source"] != "medfarma-test" {
		t.Fatalf("stamped fields missing: %+v", req.body)
	}
	if req.body["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected timestamp %v", req.body["timestamp"])
	}
	if len(store.claimed) != 1 {
		t.Fatalf("expected claim to stay after success")
	}
}

func TestProcessSkipsDuplicateDelivery(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	consumer, _ := newTestConsumer(t, hook.URL)

	data := envelope(t, uuid.New(), payloads.ClientRegisteredEvent{UserID: uuid.New(), Email: "a@b.test"})
	consumer.Process(context.Background(), "m-1", attrs(enums.EventClientRegistered), data)
	got := consumer.Process(context.Background(), "m-2", attrs(enums.EventClientRegistered), data)

	if got != ResultAck {
		t.Fatalf("expected ack for duplicate, got %v", got)
	}
	if hook.count() != 1 {
		t.Fatalf("expected one webhook call, got %d", hook.count())
	}
}

func TestProcessAcksClientErrorAndKeepsClaim(t *testing.T) {
	hook := newHookServer(t, http.StatusUnprocessableEntity)
	consumer, store := newTestConsumer(t, hook.URL)

	data := envelope(t, uuid.New(), payloads.UserStateChangedEvent{UserID: uuid.New(), NewState: enums.ApprovalAprobado})
	got := consumer.Process(context.Background(), "m-1", attrs(enums.EventUserStateChanged), data)

	if got != ResultAck {
		t.Fatalf("expected ack on 4xx, got %v", got)
	}
	if hook.last().path != "/estado-usuario" {
		t.Fatalf("unexpected path %q", hook.last().path)
	}
	if len(store.claimed) != 1 {
		t.Fatalf("claim should be kept on 4xx")
	}
}

func TestProcessNacksServerErrorAndReleasesClaim(t *testing.T) {
	hook := newHookServer(t, http.StatusBadGateway)
	consumer, store := newTestConsumer(t, hook.URL)

	data := envelope(t, uuid.New(), payloads.PasswordResetRequestedEvent{PrincipalID: uuid.New(), Email: "a@b.test", ResetToken: "tok"})
	got := consumer.Process(context.Background(), "m-1", attrs(enums.EventPasswordResetRequested), data)

	if got != ResultNack {
		t.Fatalf("expected nack on 5xx, got %v", got)
	}
	if hook.last().path != "/recuperar-password" {
		t.Fatalf("unexpected path %q", hook.last().path)
	}
	if len(store.claimed) != 0 {
		t.Fatalf("claim should be released on 5xx")
	}
}

func TestProcessNacksTransportFailure(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	url := hook.URL
	hook.Close()
	consumer, store := newTestConsumer(t, url)

	data := envelope(t, uuid.New(), payloads.ClientRegisteredEvent{UserID: uuid.New()})
	if got := consumer.Process(context.Background(), "m-1", attrs(enums.EventClientRegistered), data); got != ResultNack {
		t.Fatalf("expected nack on transport failure, got %v", got)
	}
	if len(store.claimed) != 0 {
		t.Fatalf("claim should be released on transport failure")
	}
}

func TestProcessAcksUndecodableMessages(t *testing.T) {
	hook := newHookServer(t, http.StatusOK)
	consumer, _ := newTestConsumer(t, hook.URL)

	if got := consumer.Process(context.Background(), "m-1", map[string]string{"event_type": "unknown"}, []byte(`{}`)); got != ResultAck {
		t.Fatalf("expected ack for unrouted event")
	}
	if got := consumer.Process(context.Background(), "m-2", attrs(enums.EventClientRegistered), []byte(`not json`)); got != ResultAck {
		t.Fatalf("expected ack for malformed envelope")
	}
	if hook.count() != 0 {
		t.Fatalf("no webhook should be called")
	}
}

func newTestConsumer(t *testing.T, baseURL string) (*Consumer, *memoryStore) {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.PubSubConfig{AutomationTopic: "automation-topic"})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	store := &memoryStore{claimed: map[string]bool{}}
	guard, err := idempotency.NewGuard(store, time.Hour)
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	webhook, err := NewWebhookClient(config.AutomationConfig{WebhookBaseURL: baseURL, Timeout: time.Second, Source: "medfarma-test"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	consumer, err := NewConsumer(nil, reg, guard, webhook, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	return consumer, store
}

func attrs(eventType enums.OutboxEventType) map[string]string {
	return map[string]string{"event_type": string(eventType)}
}

func envelope(t *testing.T, eventID uuid.UUID, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:       data,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

type hookRequest struct {
	path string
	body map[string]any
}

type hookServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []hookRequest
}

func newHookServer(t *testing.T, status int) *hookServer {
	t.Helper()
	h := &hookServer{}
	h.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		h.mu.Lock()
		h.requests = append(h.requests, hookRequest{path: r.URL.Path, body: body})
		h.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(h.Close)
	return h
}

func (h *hookServer) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *hookServer) last() hookRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return hookRequest{}
	}
	return h.requests[len(h.requests)-1]
}

type memoryStore struct {
	claimed map[string]bool
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "mf:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.claimed, key)
	}
	return nil
}
