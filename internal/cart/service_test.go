package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	redisclient "github.com/angelmondragon/medfarma-backend/pkg/redis"
)

type memoryKV struct {
	mu     sync.Mutex
	values map[string]string
	ttl    time.Duration
	err    error
}

func newMemoryKV() *memoryKV {
	return &memoryKV{values: map[string]string{}}
}

func (m *memoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[key]
	if !ok {
		return "", redisclient.Nil
	}
	return v, nil
}

func (m *memoryKV) Update(_ context.Context, key string, ttl time.Duration, fn func(string, bool) (string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	current, ok := m.values[key]
	next, err := fn(current, ok)
	if err != nil {
		return err
	}
	m.values[key] = next
	m.ttl = ttl
	return nil
}

func (m *memoryKV) CartKey(cartID string) string {
	return "mf:cart:" + cartID
}

type stubCatalog struct {
	mu       sync.Mutex
	products map[uuid.UUID]*product.ProductDTO
	calls    int
}

func (s *stubCatalog) GetActive(_ context.Context, id uuid.UUID) (*product.ProductDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
}

func newTestService(t *testing.T, kv *memoryKV, catalog *stubCatalog) Service {
	t.Helper()
	svc, err := NewService(NewStore(kv, 0), catalog)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestServiceAddProductUsesCatalogPrice(t *testing.T) {
	productID := uuid.New()
	category := "Descartables"
	catalog := &stubCatalog{products: map[uuid.UUID]*product.ProductDTO{
		productID: {ID: productID, Name: "Guantes", UnitPrice: decimal.RequireFromString("99.90"), Brands: []string{"Medline"}, Category: &category},
	}}
	kv := newMemoryKV()
	svc := newTestService(t, kv, catalog)
	cartID, _ := NewID()
	ctx := context.Background()

	view, err := svc.AddProduct(ctx, cartID, productID)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	view, err = svc.AddProduct(ctx, cartID, productID)
	if err != nil {
		t.Fatalf("add again: %v", err)
	}
	if view.TotalItems != 2 || !view.TotalPrice.Equal(decimal.RequireFromString("199.80")) {
		t.Fatalf("unexpected totals %+v", view)
	}
	if *view.Items[0].Brand != "Medline" || !view.IsOpen {
		t.Fatalf("unexpected line %+v", view.Items[0])
	}
	if catalog.calls != 1 {
		t.Fatalf("expected a single catalog lookup, got %d", catalog.calls)
	}
	if kv.ttl != DefaultTTL {
		t.Fatalf("expected 30 day ttl, got %s", kv.ttl)
	}

	reloaded, err := svc.Get(ctx, cartID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if reloaded.TotalItems != 2 {
		t.Fatalf("expected persisted snapshot, got %+v", reloaded)
	}
}

func TestServiceAddUnknownProduct(t *testing.T) {
	svc := newTestService(t, newMemoryKV(), &stubCatalog{})
	cartID, _ := NewID()

	_, err := svc.AddProduct(context.Background(), cartID, uuid.New())
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestServiceEmptyCartAndMutations(t *testing.T) {
	productID := uuid.New()
	catalog := &stubCatalog{products: map[uuid.UUID]*product.ProductDTO{
		productID: {ID: productID, Name: "Gasas", UnitPrice: decimal.RequireFromString("5")},
	}}
	svc := newTestService(t, newMemoryKV(), catalog)
	cartID, _ := NewID()
	ctx := context.Background()

	view, err := svc.Get(ctx, cartID)
	if err != nil || len(view.Items) != 0 || view.Items == nil {
		t.Fatalf("expected empty cart, got %+v %v", view, err)
	}

	if _, err := svc.AddProduct(ctx, cartID, productID); err != nil {
		t.Fatalf("add: %v", err)
	}
	view, _ = svc.SetQuantity(ctx, cartID, productID, 10)
	if view.TotalItems != 10 || !view.TotalPrice.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected view %+v", view)
	}
	view, _ = svc.Toggle(ctx, cartID)
	if view.IsOpen {
		t.Fatal("expected closed cart")
	}
	view, _ = svc.Remove(ctx, cartID, productID)
	if len(view.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", view.Items)
	}
	if _, err := svc.Clear(ctx, cartID); err != nil {
		t.Fatalf("clear: %v", err)
	}
}

func TestServiceRejectsInvalidIDAndMapsStoreErrors(t *testing.T) {
	kv := newMemoryKV()
	svc := newTestService(t, kv, &stubCatalog{})

	if _, err := svc.Get(context.Background(), "bad id"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}

	kv.err = errors.New("redis down")
	cartID, _ := NewID()
	if _, err := svc.Get(context.Background(), cartID); !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency, got %v", err)
	}
}

func TestServiceConcurrentAddsKeepEveryLine(t *testing.T) {
	ids := make([]uuid.UUID, 8)
	products := map[uuid.UUID]*product.ProductDTO{}
	for i := range ids {
		ids[i] = uuid.New()
		products[ids[i]] = &product.ProductDTO{ID: ids[i], Name: "Producto", UnitPrice: decimal.NewFromInt(1)}
	}
	svc := newTestService(t, newMemoryKV(), &stubCatalog{products: products})
	cartID, _ := NewID()
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if _, err := svc.AddProduct(ctx, cartID, id); err != nil {
				t.Errorf("add %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	view, err := svc.Get(ctx, cartID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(view.Items) != len(ids) || view.TotalItems != len(ids) {
		t.Fatalf("expected %d lines, got %+v", len(ids), view.Items)
	}
}
