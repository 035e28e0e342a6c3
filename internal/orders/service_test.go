package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

type stubTx struct{}

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubStore struct {
	orders map[uuid.UUID]*models.Order
	listed ListFilter
}

func newStubStore(orders ...*models.Order) *stubStore {
	s := &stubStore{orders: map[uuid.UUID]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *stubStore) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *order
	return &clone, nil
}

func (s *stubStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return s.FindByID(ctx, id)
}

func (s *stubStore) Update(_ context.Context, order *models.Order) error {
	clone := *order
	s.orders[order.ID] = &clone
	return nil
}

func (s *stubStore) CustomerEmail(context.Context, uuid.UUID) (string, error) {
	return "compras@sanatorio.test", nil
}

func (s *stubStore) List(_ context.Context, filter ListFilter) ([]Summary, int64, error) {
	s.listed = filter
	return nil, 0, nil
}

type captureOutbox struct {
	events []outbox.DomainEvent
}

func (c *captureOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	c.events = append(c.events, event)
	return nil
}

type captureAudit struct {
	actions []string
}

func (c *captureAudit) Log(_ context.Context, action, _ string, _ map[string]any, _ *uuid.UUID) {
	c.actions = append(c.actions, action)
}

func newTestService(t *testing.T, store *stubStore) (*service, *captureOutbox, *captureAudit) {
	t.Helper()
	out, audit := &captureOutbox{}, &captureAudit{}
	svc, err := NewService(ServiceParams{
		Repo:    store,
		MoverTx: func(*gorm.DB) Mover { return store },
		Tx:      stubTx{},
		Outbox:  out,
		Audit:   audit,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc.(*service), out, audit
}

func testOrder(status enums.OrderStatus) *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		Number:        "PED-1001",
		CustomerID:    uuid.New(),
		Total:         decimal.RequireFromString("121.00"),
		Status:        status,
		PaymentStatus: enums.PaymentPendiente,
	}
}

func TestCancelEmitsStatusChange(t *testing.T) {
	order := testOrder(enums.OrderStatusConfirmado)
	store := newStubStore(order)
	svc, out, audit := newTestService(t, store)

	dto, err := svc.Cancel(context.Background(), uuid.New(), order.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if dto.Status != enums.OrderStatusCancelado {
		t.Fatalf("expected cancelado, got %s", dto.Status)
	}
	if len(out.events) != 1 || out.events[0].EventType != enums.EventOrderStatusChanged {
		t.Fatalf("expected one status event, got %#v", out.events)
	}
	data := out.events[0].Data.(payloads.OrderStatusChangedEvent)
	if data.PreviousStatus != enums.OrderStatusConfirmado || data.Email != "compras@sanatorio.test" {
		t.Fatalf("unexpected payload %#v", data)
	}
	if len(audit.actions) != 1 || audit.actions[0] != "cancelacion_pedido" {
		t.Fatalf("unexpected audit %v", audit.actions)
	}

	if _, err := svc.Cancel(context.Background(), uuid.New(), order.ID); err != nil {
		t.Fatalf("second cancel should be a no-op: %v", err)
	}
	if len(out.events) != 1 {
		t.Fatal("repeat cancel must not emit again")
	}
}

func TestCancelRejectsShippedOrders(t *testing.T) {
	order := testOrder(enums.OrderStatusDespachado)
	svc, out, _ := newTestService(t, newStubStore(order))

	_, err := svc.Cancel(context.Background(), uuid.New(), order.ID)
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(out.events) != 0 {
		t.Fatal("no event expected")
	}
}

func TestUpdatePaymentRecordsChange(t *testing.T) {
	order := testOrder(enums.OrderStatusEntregado)
	store := newStubStore(order)
	svc, _, audit := newTestService(t, store)

	dto, err := svc.UpdatePayment(context.Background(), uuid.New(), order.ID, PaymentInput{Status: enums.PaymentParcial})
	if err != nil {
		t.Fatalf("update payment: %v", err)
	}
	if dto.PaymentStatus != enums.PaymentParcial {
		t.Fatalf("expected parcial, got %s", dto.PaymentStatus)
	}
	if len(audit.actions) != 1 {
		t.Fatalf("expected one audit entry, got %v", audit.actions)
	}

	if _, err := svc.UpdatePayment(context.Background(), uuid.New(), order.ID, PaymentInput{Status: "debe"}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetForCustomerHidesOtherCustomers(t *testing.T) {
	order := testOrder(enums.OrderStatusConfirmado)
	svc, _, _ := newTestService(t, newStubStore(order))

	if _, err := svc.GetForCustomer(context.Background(), uuid.New(), order.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	dto, err := svc.GetForCustomer(context.Background(), order.CustomerID, order.ID)
	if err != nil || dto.Number != "PED-1001" {
		t.Fatalf("expected own order, got %v %v", dto, err)
	}
}

func TestListNormalizesPaging(t *testing.T) {
	store := newStubStore()
	svc, _, _ := newTestService(t, store)

	page, err := svc.List(context.Background(), ListFilter{Limit: 0, Offset: -5})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.listed.Limit <= 0 || store.listed.Offset != 0 {
		t.Fatalf("paging not normalized: %#v", store.listed)
	}
	if page.Items == nil {
		t.Fatal("items should be an empty slice")
	}
}

func TestStatusEventCarriesDeadlineOnDelivery(t *testing.T) {
	order := testOrder(enums.OrderStatusEntregado)
	deadline := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	order.InvoiceDeadline = &deadline

	event := StatusEvent(order, enums.OrderStatusDespachado, "a@b.test", nil, deadline.Add(-2*time.Hour))
	data := event.Data.(payloads.OrderStatusChangedEvent)
	if data.InvoiceDeadline == nil || !data.InvoiceDeadline.Equal(deadline) {
		t.Fatalf("expected deadline, got %v", data.InvoiceDeadline)
	}
	if event.Actor != nil {
		t.Fatal("system changes carry no actor")
	}

	order.Status = enums.OrderStatusFacturado
	data = StatusEvent(order, enums.OrderStatusEntregado, "a@b.test", nil, deadline).Data.(payloads.OrderStatusChangedEvent)
	if data.InvoiceDeadline != nil {
		t.Fatal("deadline only travels with the delivery notice")
	}
}
