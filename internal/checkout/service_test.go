package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/cart"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

type stubTx struct{ err error }

func (s stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	return s.err
}

type stubCarts struct {
	view    *cart.View
	cleared bool
}

func (s *stubCarts) Get(context.Context, string) (*cart.View, error) { return s.view, nil }

func (s *stubCarts) Clear(context.Context, string) (*cart.View, error) {
	s.cleared = true
	return cart.Empty(), nil
}

type stubProducts map[uuid.UUID]*models.Product

func (s stubProducts) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

type stubOrders struct {
	created *models.Order
}

func (s *stubOrders) NextNumber(context.Context) (string, error) { return "PED-1001", nil }

func (s *stubOrders) Create(_ context.Context, order *models.Order) error {
	s.created = order
	return nil
}

type stubDispatch struct {
	opened []uuid.UUID
}

func (s *stubDispatch) Open(_ context.Context, orderID uuid.UUID) error {
	s.opened = append(s.opened, orderID)
	return nil
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

type fixture struct {
	svc      Service
	carts    *stubCarts
	orders   *stubOrders
	dispatch *stubDispatch
	outbox   *captureOutbox
	audit    *captureAudit
}

func newFixture(t *testing.T, tx stubTx, products stubProducts, items ...cart.Item) *fixture {
	t.Helper()
	f := &fixture{
		carts:    &stubCarts{view: &cart.View{Items: items}},
		orders:   &stubOrders{},
		dispatch: &stubDispatch{},
		outbox:   &captureOutbox{},
		audit:    &captureAudit{},
	}
	svc, err := NewService(ServiceParams{
		Carts:      f.carts,
		Products:   products,
		OrdersTx:   func(*gorm.DB) OrderWriter { return f.orders },
		DispatchTx: func(*gorm.DB) DispatchOpener { return f.dispatch },
		Tx:         tx,
		Outbox:     f.outbox,
		Audit:      f.audit,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func activeProduct(name, price string) *models.Product {
	return &models.Product{
		ID:        uuid.New(),
		Name:      name,
		UnitPrice: decimal.RequireFromString(price),
		Status:    enums.ProductStatusActivo,
	}
}

func TestExecuteRepricesFromCatalog(t *testing.T) {
	gloves := activeProduct("Guantes de nitrilo", "12.50")
	masks := activeProduct("Barbijo N95", "3.00")
	products := stubProducts{gloves.ID: gloves, masks.ID: masks}
	f := newFixture(t, stubTx{}, products,
		cart.Item{ID: gloves.ID, Name: gloves.Name, Price: decimal.RequireFromString("1.00"), Quantity: 2},
		cart.Item{ID: masks.ID, Name: masks.Name, Price: masks.UnitPrice, Quantity: 10},
	)
	customer := Customer{ID: uuid.New(), Email: "compras@clinica.test", FullName: "Clinica Norte"}

	dto, err := f.svc.Execute(context.Background(), customer, "cart-1", CheckoutInput{})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !dto.Subtotal.Equal(decimal.RequireFromString("55.00")) {
		t.Fatalf("expected subtotal 55.00, got %s", dto.Subtotal)
	}
	if !dto.Tax.Equal(decimal.RequireFromString("11.55")) || !dto.Total.Equal(decimal.RequireFromString("66.55")) {
		t.Fatalf("unexpected tax %s total %s", dto.Tax, dto.Total)
	}
	if dto.Number != "PED-1001" || dto.Status != enums.OrderStatusConfirmado {
		t.Fatalf("unexpected order %s %s", dto.Number, dto.Status)
	}
	if len(f.dispatch.opened) != 1 || f.dispatch.opened[0] != dto.ID {
		t.Fatalf("expected a dispatch for the order, got %v", f.dispatch.opened)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventOrderCreated {
		t.Fatalf("expected order_created, got %#v", f.outbox.events)
	}
	data := f.outbox.events[0].Data.(payloads.OrderCreatedEvent)
	if data.OrderNumber != "PED-1001" || data.Email != customer.Email || len(data.Items) != 2 {
		t.Fatalf("unexpected payload %#v", data)
	}
	if !f.carts.cleared {
		t.Fatal("cart should be cleared after commit")
	}
	if len(f.audit.actions) != 1 || f.audit.actions[0] != "nuevo_pedido" {
		t.Fatalf("unexpected audit %v", f.audit.actions)
	}
}

func TestExecuteRejectsEmptyCart(t *testing.T) {
	f := newFixture(t, stubTx{}, stubProducts{})
	_, err := f.svc.Execute(context.Background(), Customer{ID: uuid.New()}, "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.orders.created != nil {
		t.Fatal("no order expected")
	}
}

func TestExecuteRejectsInactiveProduct(t *testing.T) {
	retired := activeProduct("Termometro de mercurio", "9.00")
	retired.Status = enums.ProductStatusInactivo
	f := newFixture(t, stubTx{}, stubProducts{retired.ID: retired},
		cart.Item{ID: retired.ID, Name: retired.Name, Quantity: 1},
	)
	_, err := f.svc.Execute(context.Background(), Customer{ID: uuid.New()}, "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	missing := newFixture(t, stubTx{}, stubProducts{}, cart.Item{ID: uuid.New(), Name: "Gasas", Quantity: 1})
	if _, err := missing.svc.Execute(context.Background(), Customer{ID: uuid.New()}, "cart-1", CheckoutInput{}); !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict for a deleted product, got %v", err)
	}
}

func TestExecuteKeepsCartWhenCommitFails(t *testing.T) {
	gloves := activeProduct("Guantes de latex", "8.00")
	f := newFixture(t, stubTx{err: errors.New("serialization failure")}, stubProducts{gloves.ID: gloves},
		cart.Item{ID: gloves.ID, Name: gloves.Name, Quantity: 1},
	)
	_, err := f.svc.Execute(context.Background(), Customer{ID: uuid.New()}, "cart-1", CheckoutInput{})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if f.carts.cleared {
		t.Fatal("cart must survive a failed checkout")
	}
	if len(f.audit.actions) != 0 {
		t.Fatal("failed checkout must not be audited")
	}
}

func TestNewServiceValidatesTaxRate(t *testing.T) {
	_, err := NewService(ServiceParams{
		Carts:      &stubCarts{},
		Products:   stubProducts{},
		OrdersTx:   func(*gorm.DB) OrderWriter { return &stubOrders{} },
		DispatchTx: func(*gorm.DB) DispatchOpener { return &stubDispatch{} },
		Tx:         stubTx{},
		Outbox:     &captureOutbox{},
		Audit:      &captureAudit{},
		TaxRate:    decimal.RequireFromString("1.5"),
	})
	if err == nil {
		t.Fatal("expected tax rate error")
	}
}
