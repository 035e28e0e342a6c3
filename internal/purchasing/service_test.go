package purchasing

import (
	"context"
	"testing"

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

func (stubTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

type stubStore struct {
	orders  map[uuid.UUID]*models.PurchaseOrder
	created *models.PurchaseOrder
	updates int
}

func (s *stubStore) FindByID(_ context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	po, ok := s.orders[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return po, nil
}

func (s *stubStore) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	return s.FindByID(ctx, id)
}

func (s *stubStore) List(context.Context, ListFilter) ([]Summary, int64, error) { return nil, 0, nil }

func (s *stubStore) Metrics(context.Context) (*Metrics, error) { return &Metrics{}, nil }

func (s *stubStore) NextNumber(context.Context) (string, error) { return "OC-000042", nil }

func (s *stubStore) Create(_ context.Context, po *models.PurchaseOrder) error {
	s.created = po
	return nil
}

func (s *stubStore) Update(context.Context, *models.PurchaseOrder) error {
	s.updates++
	return nil
}

type stubProducts struct {
	items map[uuid.UUID]*models.Product
}

func (s *stubProducts) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	p, ok := s.items[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (s *stubProducts) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return s.FindByID(ctx, id)
}

func (s *stubProducts) UpdateStock(_ context.Context, id uuid.UUID, stock int) error {
	s.items[id].StockCurrent = stock
	return nil
}

func (s *stubProducts) LowStock(context.Context, bool) ([]models.Product, error) {
	var out []models.Product
	for _, p := range s.items {
		if p.IsLowStock() {
			out = append(out, *p)
		}
	}
	return out, nil
}

type stubSuppliers map[uuid.UUID]*models.Supplier

func (s stubSuppliers) FindByID(_ context.Context, id uuid.UUID) (*models.Supplier, error) {
	sup, ok := s[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sup, nil
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
	svc       Service
	store     *stubStore
	products  *stubProducts
	suppliers stubSuppliers
	outbox    *captureOutbox
	audit     *captureAudit
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     &stubStore{orders: map[uuid.UUID]*models.PurchaseOrder{}},
		products:  &stubProducts{items: map[uuid.UUID]*models.Product{}},
		suppliers: stubSuppliers{},
		outbox:    &captureOutbox{},
		audit:     &captureAudit{},
	}
	svc, err := NewService(ServiceParams{
		Repo:       f.store,
		PurchaseTx: func(*gorm.DB) purchaseWriter { return f.store },
		StockTx:    func(*gorm.DB) StockLocker { return f.products },
		Products:   f.products,
		Suppliers:  f.suppliers,
		Tx:         stubTx{},
		Outbox:     f.outbox,
		Audit:      f.audit,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc
	return f
}

func (f *fixture) addProduct(name string, current, minimum int) *models.Product {
	p := &models.Product{ID: uuid.New(), Name: name, StockCurrent: current, StockMinimum: minimum, UnitPrice: decimal.RequireFromString("10.00"), Status: enums.ProductStatusActivo}
	f.products.items[p.ID] = p
	return p
}

func (f *fixture) addSupplier(status enums.PartnerStatus) *models.Supplier {
	email := "ventas@drogueria.test"
	s := &models.Supplier{ID: uuid.New(), Name: "Drogueria Sur", Email: &email, Status: status}
	f.suppliers[s.ID] = s
	return s
}

func TestCreateTotalsLinesAndEmitsEvent(t *testing.T) {
	f := newFixture(t)
	supplier := f.addSupplier(enums.PartnerActivo)
	gauze := f.addProduct("Gasas", 2, 10)
	gloves := f.addProduct("Guantes", 0, 50)
	actor := uuid.New()

	out, err := f.svc.Create(context.Background(), actor, CreateInput{
		SupplierID: supplier.ID,
		Items: []LineInput{
			{ProductID: gauze.ID, Quantity: 20, UnitCost: decimal.RequireFromString("1.25")},
			{ProductID: gloves.ID, Quantity: 100, UnitCost: decimal.RequireFromString("0.40")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if out.Number != "OC-000042" || out.Status != enums.PurchasePendiente {
		t.Fatalf("unexpected order %+v", out)
	}
	if !out.Total.Equal(decimal.RequireFromString("65.00")) {
		t.Fatalf("expected total 65.00, got %s", out.Total)
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != enums.EventPurchaseOrderCreated {
		t.Fatalf("expected purchase_order_created, got %+v", f.outbox.events)
	}
	payload := f.outbox.events[0].Data.(payloads.PurchaseOrderCreatedEvent)
	if payload.SupplierEmail == nil || len(payload.Lines) != 2 || payload.Lines[0].Name != "Gasas" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(f.audit.actions) != 1 || f.audit.actions[0] != "orden_compra" {
		t.Fatalf("unexpected audit %v", f.audit.actions)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	active := f.addSupplier(enums.PartnerActivo)
	inactive := f.addSupplier(enums.PartnerInactivo)
	p := f.addProduct("Alcohol", 1, 5)
	line := LineInput{ProductID: p.ID, Quantity: 3, UnitCost: decimal.RequireFromString("2.00")}

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"no lines", CreateInput{SupplierID: active.ID}},
		{"unknown supplier", CreateInput{SupplierID: uuid.New(), Items: []LineInput{line}}},
		{"inactive supplier", CreateInput{SupplierID: inactive.ID, Items: []LineInput{line}}},
		{"duplicate product", CreateInput{SupplierID: active.ID, Items: []LineInput{line, line}}},
		{"unknown product", CreateInput{SupplierID: active.ID, Items: []LineInput{{ProductID: uuid.New(), Quantity: 1}}}},
		{"negative cost", CreateInput{SupplierID: active.ID, Items: []LineInput{{ProductID: p.ID, Quantity: 1, UnitCost: decimal.RequireFromString("-1")}}}},
	}
	for _, tc := range cases {
		_, err := f.svc.Create(context.Background(), uuid.New(), tc.input)
		if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	if f.store.created != nil || len(f.outbox.events) != 0 {
		t.Fatal("rejected orders must not be stored")
	}
}

func TestReceiveAddsStock(t *testing.T) {
	f := newFixture(t)
	p := f.addProduct("Jeringas", 4, 20)
	po := &models.PurchaseOrder{
		ID:     uuid.New(),
		Status: enums.PurchaseEnviada,
		Items:  []models.PurchaseOrderItem{{ProductID: p.ID, Quantity: 30, UnitCost: decimal.RequireFromString("0.50")}},
	}
	f.store.orders[po.ID] = po

	out, err := f.svc.UpdateStatus(context.Background(), uuid.New(), po.ID, StatusInput{Status: enums.PurchaseRecibida})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if p.StockCurrent != 34 {
		t.Fatalf("expected stock 34, got %d", p.StockCurrent)
	}
	if out.ReceivedAt == nil || out.Status != enums.PurchaseRecibida {
		t.Fatalf("unexpected order %+v", out)
	}

	// Repeating the status is a no-op and must not add stock twice.
	if _, err := f.svc.UpdateStatus(context.Background(), uuid.New(), po.ID, StatusInput{Status: enums.PurchaseRecibida}); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if p.StockCurrent != 34 || f.store.updates != 1 || len(f.audit.actions) != 1 {
		t.Fatalf("repeat changed state: stock=%d updates=%d audit=%v", p.StockCurrent, f.store.updates, f.audit.actions)
	}
}

func TestUpdateStatusRejectsClosedOrders(t *testing.T) {
	f := newFixture(t)
	po := &models.PurchaseOrder{ID: uuid.New(), Status: enums.PurchaseCancelada}
	f.store.orders[po.ID] = po

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), po.ID, StatusInput{Status: enums.PurchaseRecibida})
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	_, err = f.svc.UpdateStatus(context.Background(), uuid.New(), uuid.New(), StatusInput{Status: enums.PurchaseEnviada})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRestockReportsDeficit(t *testing.T) {
	f := newFixture(t)
	f.addProduct("Barbijos", 3, 40)
	f.addProduct("Vendas", 50, 10)

	items, err := f.svc.Restock(context.Background())
	if err != nil {
		t.Fatalf("restock: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Barbijos" || items[0].Deficit != 37 {
		t.Fatalf("unexpected restock list %+v", items)
	}
}
