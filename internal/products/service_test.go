package product

import (
	"context"
	"errors"
	"strings"
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

type stubRepo struct {
	products map[uuid.UUID]*models.Product
	created  []*models.Product
	listed   ListFilter
	findErr  error
}

func newStubRepo(products ...*models.Product) *stubRepo {
	r := &stubRepo{products: map[uuid.UUID]*models.Product{}}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Product, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	if p, ok := r.products[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *stubRepo) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	return r.FindByID(ctx, id)
}

func (r *stubRepo) UpdateStock(_ context.Context, id uuid.UUID, stock int) error {
	r.products[id].StockCurrent = stock
	return nil
}

func (r *stubRepo) Create(_ context.Context, product *models.Product) error {
	product.ID = uuid.New()
	r.created = append(r.created, product)
	r.products[product.ID] = product
	return nil
}

func (r *stubRepo) Update(_ context.Context, product *models.Product) error {
	clone := *product
	r.products[product.ID] = &clone
	return nil
}

func (r *stubRepo) List(_ context.Context, filter ListFilter) ([]models.Product, int64, error) {
	r.listed = filter
	return nil, 0, nil
}

func (r *stubRepo) LowStock(context.Context, bool) ([]models.Product, error) {
	return nil, nil
}

func (r *stubRepo) Categories(context.Context, bool) ([]string, error) {
	return nil, nil
}

func (r *stubRepo) Stats(context.Context) (*Stats, error) {
	return &Stats{}, nil
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

type stubSigner struct {
	object      string
	contentType string
	err         error
}

func (s *stubSigner) SignedURL(bucket, object, contentType string, expires time.Duration) (string, error) {
	s.object, s.contentType = object, contentType
	if s.err != nil {
		return "", s.err
	}
	return "https://storage.googleapis.com/" + bucket + "/" + object + "?Signature=x", nil
}

func (s *stubSigner) PublicURL(bucket, object string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + object
}

type fixture struct {
	svc    *service
	repo   *stubRepo
	outbox *captureOutbox
	audit  *captureAudit
	signer *stubSigner
}

func newFixture(t *testing.T, products ...*models.Product) *fixture {
	t.Helper()
	f := &fixture{
		repo:   newStubRepo(products...),
		outbox: &captureOutbox{},
		audit:  &captureAudit{},
		signer: &stubSigner{},
	}
	svc, err := NewService(ServiceParams{
		Repo:    f.repo,
		StockTx: func(*gorm.DB) stockLocker { return f.repo },
		Tx:      stubTx{},
		Outbox:  f.outbox,
		Audit:   f.audit,
		Signer:  f.signer,
		Bucket:  "medfarma-media",
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	f.svc = svc.(*service)
	f.svc.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f
}

func activeProduct(stock, minimum int) *models.Product {
	return &models.Product{
		ID:           uuid.New(),
		Name:         "Guantes de nitrilo",
		StockCurrent: stock,
		StockMinimum: minimum,
		UnitPrice:    decimal.RequireFromString("1200.00"),
		Status:       enums.ProductStatusActivo,
	}
}

func TestNewServiceRequiresStockBinder(t *testing.T) {
	_, err := NewService(ServiceParams{Repo: newStubRepo(), Tx: stubTx{}, Outbox: &captureOutbox{}, Audit: &captureAudit{}})
	if err == nil {
		t.Fatal("expected error without a stock binder for a non-repository store")
	}
}

func TestAdjustStockIntoLowStockEmitsEvent(t *testing.T) {
	product := activeProduct(10, 5)
	f := newFixture(t, product)

	got, err := f.svc.AdjustStock(context.Background(), uuid.New(), product.ID, AdjustStockInput{Operation: enums.StockRestar, Quantity: 6})
	if err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if got.StockCurrent != 4 || !got.LowStock {
		t.Fatalf("unexpected product %+v", got)
	}
	if len(f.outbox.events) != 1 {
		t.Fatalf("expected one event, got %d", len(f.outbox.events))
	}
	event := f.outbox.events[0]
	if event.EventType != enums.EventProductLowStock || event.AggregateID != product.ID {
		t.Fatalf("unexpected event %+v", event)
	}
	payload := event.Data.(payloads.ProductLowStockEvent)
	if payload.StockCurrent != 4 || payload.StockMinimum != 5 || payload.Source != payloads.LowStockSourceAdjustment {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if len(f.audit.actions) != 1 || f.audit.actions[0] != "ajuste_stock" {
		t.Fatalf("unexpected audit %v", f.audit.actions)
	}
}

func TestAdjustStockAlreadyLowDoesNotReemit(t *testing.T) {
	product := activeProduct(3, 5)
	f := newFixture(t, product)

	if _, err := f.svc.AdjustStock(context.Background(), uuid.New(), product.ID, AdjustStockInput{Operation: enums.StockRestar, Quantity: 1}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}
	if len(f.outbox.events) != 0 {
		t.Fatalf("expected no event, got %d", len(f.outbox.events))
	}
}

func TestAdjustStockOperations(t *testing.T) {
	cases := []struct {
		op   enums.StockOperation
		qty  int
		want int
	}{
		{enums.StockSumar, 5, 15},
		{enums.StockRestar, 50, 0},
		{enums.StockEstablecer, 7, 7},
	}
	for _, tc := range cases {
		product := activeProduct(10, 0)
		f := newFixture(t, product)
		got, err := f.svc.AdjustStock(context.Background(), uuid.New(), product.ID, AdjustStockInput{Operation: tc.op, Quantity: tc.qty})
		if err != nil {
			t.Fatalf("%s: %v", tc.op, err)
		}
		if got.StockCurrent != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.op, tc.want, got.StockCurrent)
		}
	}
}

func TestAdjustStockRejectsOverflow(t *testing.T) {
	product := activeProduct(enums.MaxStock-10, 5)
	f := newFixture(t, product)

	_, err := f.svc.AdjustStock(context.Background(), uuid.New(), product.ID, AdjustStockInput{Operation: enums.StockSumar, Quantity: 1_000_000})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation on overflow, got %v", err)
	}
	_, err = f.svc.AdjustStock(context.Background(), uuid.New(), product.ID, AdjustStockInput{Operation: enums.StockSumar, Quantity: 1_000_001})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation above the bound, got %v", err)
	}
}

func TestAdjustStockValidationAndNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AdjustStock(context.Background(), uuid.New(), uuid.New(), AdjustStockInput{Operation: "multiplicar", Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	_, err = f.svc.AdjustStock(context.Background(), uuid.New(), uuid.New(), AdjustStockInput{Operation: enums.StockSumar, Quantity: 1})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateDefaultsAndValidation(t *testing.T) {
	f := newFixture(t)
	category := "  Descartables "

	got, err := f.svc.Create(context.Background(), uuid.New(), CreateProductInput{
		Name:      " Barbijo N95 ",
		Brands:    []string{"3M", " 3m ", "", "Medline"},
		UnitPrice: decimal.RequireFromString("350.25"),
		Category:  &category,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Name != "Barbijo N95" || got.Status != enums.ProductStatusActivo || *got.Category != "Descartables" {
		t.Fatalf("unexpected product %+v", got)
	}
	if len(got.Brands) != 2 {
		t.Fatalf("expected deduped brands, got %v", got.Brands)
	}

	negative := decimal.RequireFromString("-1")
	_, err = f.svc.Create(context.Background(), uuid.New(), CreateProductInput{Name: "X", UnitPrice: decimal.Zero, LotPrice: &negative})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	product := activeProduct(1, 0)
	f := newFixture(t, product)

	got, err := f.svc.Deactivate(context.Background(), uuid.New(), product.ID)
	if err != nil || got.Status != enums.ProductStatusInactivo {
		t.Fatalf("deactivate: %+v %v", got, err)
	}
	if _, err := f.svc.Deactivate(context.Background(), uuid.New(), product.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	if len(f.audit.actions) != 1 {
		t.Fatalf("expected one audit entry, got %v", f.audit.actions)
	}
	if _, err := f.svc.GetActive(context.Background(), product.ID); !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected inactive product hidden, got %v", err)
	}
}

func TestListNormalizesPagination(t *testing.T) {
	f := newFixture(t)

	page, err := f.svc.List(context.Background(), ListFilter{Limit: 1000, Offset: -3})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.repo.listed.Limit != 100 || f.repo.listed.Offset != 0 || page.Limit != 100 {
		t.Fatalf("unexpected pagination %+v", f.repo.listed)
	}
}

func TestImageUploadURL(t *testing.T) {
	product := activeProduct(1, 0)
	f := newFixture(t, product)

	upload, err := f.svc.ImageUploadURL(context.Background(), product.ID, ImageUploadInput{Filename: "foto.PNG", ContentType: "image/png"})
	if err != nil {
		t.Fatalf("upload url: %v", err)
	}
	wantObject := "productos/" + product.ID.String() + "-1700000000.png"
	if upload.ObjectName != wantObject || f.signer.object != wantObject {
		t.Fatalf("unexpected object %q", upload.ObjectName)
	}
	if !strings.HasSuffix(upload.PublicURL, wantObject) || !strings.Contains(upload.UploadURL, "Signature=") {
		t.Fatalf("unexpected urls %+v", upload)
	}

	_, err = f.svc.ImageUploadURL(context.Background(), product.ID, ImageUploadInput{Filename: "foto.exe", ContentType: "image/png"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation, got %v", err)
	}
	_, err = f.svc.ImageUploadURL(context.Background(), product.ID, ImageUploadInput{Filename: "foto.jpg", ContentType: "image/png"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation for mismatched type, got %v", err)
	}

	f.signer.err = errors.New("no signer")
	_, err = f.svc.ImageUploadURL(context.Background(), product.ID, ImageUploadInput{Filename: "foto.jpg", ContentType: "image/jpeg"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency, got %v", err)
	}
}
