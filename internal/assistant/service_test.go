package assistant

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
)

func TestChatRejectsInvalidMessageWithoutCalls(t *testing.T) {
	cases := map[string]any{
		"missing":    nil,
		"empty":      "",
		"whitespace": "   ",
		"number":     42,
		"object":     map[string]any{"text": "hola"},
	}
	for name, message := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{Message: message})
			if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if h.products.calls != 0 || h.clients.calls != 0 || h.generator.calls != 0 {
				t.Fatalf("expected no downstream calls, got products=%d clients=%d generator=%d", h.products.calls, h.clients.calls, h.generator.calls)
			}
		})
	}
}

func TestChatRejectsMalformedProductID(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{
		Message: "hola",
		Context: &ChatContext{ProductID: "not-a-uuid"},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if h.products.calls != 0 {
		t.Fatalf("expected no product lookup")
	}
}

func TestChatScopesToProductAndSkipsClientsByDefault(t *testing.T) {
	h := newHarness(t)
	productID := uuid.New()

	resp, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{
		Message: "  ¿Hay stock?  ",
		Context: &ChatContext{ProductID: productID.String(), Category: "ignored"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if h.products.scope.ProductID == nil || *h.products.scope.ProductID != productID {
		t.Fatalf("expected product scope %s, got %+v", productID, h.products.scope)
	}
	if h.products.limit != 50 {
		t.Fatalf("expected default product limit 50, got %d", h.products.limit)
	}
	if h.clients.calls != 0 {
		t.Fatalf("clients loaded without includeClients")
	}
	if strings.Contains(h.generator.prompt, "CLIENTES ACTIVOS:") {
		t.Fatalf("prompt should not include clients")
	}
	if !strings.HasSuffix(h.generator.prompt, "CONSULTA DEL VENDEDOR:\n¿Hay stock?") {
		t.Fatalf("unexpected prompt tail")
	}
	if resp.Response != "respuesta" {
		t.Fatalf("unexpected response %q", resp.Response)
	}
	if _, err := uuid.Parse(resp.ConversationID); err != nil {
		t.Fatalf("expected generated conversation id, got %q", resp.ConversationID)
	}
	h.waitLogged(t)
}

func TestChatIncludesClientsWhenRequested(t *testing.T) {
	h := newHarness(t)
	include := true

	resp, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{
		Message: "clientes",
		Context: &ChatContext{IncludeClients: &include, ConversationID: "conv-1"},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if h.clients.calls != 1 || h.clients.limit != 20 {
		t.Fatalf("expected one client lookup with limit 20, got calls=%d limit=%d", h.clients.calls, h.clients.limit)
	}
	if !strings.Contains(h.generator.prompt, "👤 Clínica Norte") {
		t.Fatalf("prompt missing client line")
	}
	if resp.ConversationID != "conv-1" {
		t.Fatalf("expected conversation id to be echoed, got %q", resp.ConversationID)
	}

	h.waitLogged(t)
	entry := h.store.last()
	if entry == nil {
		t.Fatal("expected conversation log")
	}
	ctxJSON := string(entry.Context)
	if !strings.Contains(ctxJSON, `"products_count":1`) || !strings.Contains(ctxJSON, `"clients_count":1`) || !strings.Contains(ctxJSON, `"conversation_id":"conv-1"`) {
		t.Fatalf("unexpected log context %s", ctxJSON)
	}
}

func TestChatSucceedsWhenConversationLogFails(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("db down")

	resp, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{Message: "hola"})
	if err != nil {
		t.Fatalf("chat should not fail on log error: %v", err)
	}
	if resp.Response == "" {
		t.Fatal("expected response")
	}
	if logErr := h.waitLogged(t); logErr == nil {
		t.Fatal("expected the log write to have failed")
	}
}

func TestChatMapsFailures(t *testing.T) {
	t.Run("products", func(t *testing.T) {
		h := newHarness(t)
		h.products.err = errors.New("timeout")
		_, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{Message: "hola"})
		if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
			t.Fatalf("expected dependency error, got %v", err)
		}
		if h.generator.calls != 0 {
			t.Fatal("generator should not run")
		}
	})
	t.Run("generation", func(t *testing.T) {
		h := newHarness(t)
		h.generator.err = errors.New("status 500")
		_, err := h.svc.Chat(context.Background(), uuid.New(), ChatRequest{Message: "hola"})
		if !pkgerrors.IsCode(err, pkgerrors.CodeGenerationFailure) {
			t.Fatalf("expected generation failure, got %v", err)
		}
		if strings.Contains(pkgerrors.As(err).Message(), "500") {
			t.Fatalf("cause leaked into public message")
		}
		if len(h.store.entries()) != 0 {
			t.Fatal("failed exchange should not be logged")
		}
	})
}

func TestStatusReportsMissingKey(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Products:      &stubProducts{},
		Clients:       &stubClients{},
		Conversations: &stubStore{},
		Model:         "gemini-1.5-pro-latest",
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	status := svc.Status()
	if status.Status != "missing_api_key" || status.Model != "gemini-1.5-pro-latest" || status.Version != "1.0.0" {
		t.Fatalf("unexpected status %+v", status)
	}
	if _, err := svc.Chat(context.Background(), uuid.New(), ChatRequest{Message: "hola"}); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error without generator, got %v", err)
	}
	if len(svc.SuggestedQuestions()) != len(SuggestedQuestions) {
		t.Fatal("suggested questions mismatch")
	}
}

type harness struct {
	svc       Service
	products  *stubProducts
	clients   *stubClients
	generator *stubGenerator
	store     *stubStore
	logged    chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	category := "Descartables"
	tax := "30-11111111-1"
	h := &harness{
		products: &stubProducts{rows: []models.Product{{
			ID: uuid.New(), Name: "Guantes", Category: &category, StockCurrent: 2, StockMinimum: 5,
			UnitPrice: decimal.RequireFromString("10"),
		}}},
		clients:   &stubClients{rows: []models.User{{FullName: "Clínica Norte", Email: "norte@test", TaxID: &tax}}},
		generator: &stubGenerator{text: "respuesta"},
		store:     &stubStore{},
		logged:    make(chan error, 1),
	}
	svc, err := NewService(ServiceParams{
		Products:      h.products,
		Clients:       h.clients,
		Conversations: h.store,
		Generator:     h.generator,
		Logger:        testLogger(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.(*service).logged = func(err error) { h.logged <- err }
	h.svc = svc
	return h
}

func (h *harness) waitLogged(t *testing.T) error {
	t.Helper()
	select {
	case err := <-h.logged:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("conversation log was not written")
		return nil
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

type stubProducts struct {
	rows  []models.Product
	err   error
	calls int
	scope product.ContextScope
	limit int
}

func (s *stubProducts) ListActiveForContext(ctx context.Context, scope product.ContextScope, limit int) ([]models.Product, error) {
	s.calls++
	s.scope = scope
	s.limit = limit
	return s.rows, s.err
}

type stubClients struct {
	rows  []models.User
	err   error
	calls int
	limit int
}

func (s *stubClients) ListApprovedClients(ctx context.Context, limit int) ([]models.User, error) {
	s.calls++
	s.limit = limit
	return s.rows, s.err
}

type stubGenerator struct {
	text   string
	err    error
	calls  int
	prompt string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.text, s.err
}

func (s *stubGenerator) Model() string { return "gemini-test" }

type stubStore struct {
	mu   sync.Mutex
	rows []models.ConversationLog
	err  error
}

func (s *stubStore) Create(ctx context.Context, entry *models.ConversationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, *entry)
	return nil
}

func (s *stubStore) RecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.ConversationLog, error) {
	return nil, nil
}

func (s *stubStore) entries() []models.ConversationLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ConversationLog(nil), s.rows...)
}

func (s *stubStore) last() *models.ConversationLog {
	rows := s.entries()
	if len(rows) == 0 {
		return nil
	}
	return &rows[len(rows)-1]
}
