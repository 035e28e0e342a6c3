package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

func TestLowStockJobEmitsOncePerDay(t *testing.T) {
	p1 := models.Product{ID: uuid.New(), Name: "Guantes", StockCurrent: 1, StockMinimum: 10}
	p2 := models.Product{ID: uuid.New(), Name: "Gasas", StockCurrent: 0, StockMinimum: 5}
	marker := newFakeMarker()
	emitter := &fakeEmitter{}
	job := newLowStockJob(t, &fakeLowStock{rows: []models.Product{p1, p2}}, emitter, marker)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(emitter.events))
	}
	ev := emitter.events[0]
	if ev.EventType != enums.EventProductLowStock || ev.AggregateType != enums.AggregateProduct || ev.AggregateID != p1.ID {
		t.Fatalf("unexpected event %+v", ev)
	}
	data, ok := ev.Data.(payloads.ProductLowStockEvent)
	if !ok || data.Source != payloads.LowStockSourceSweep {
		t.Fatalf("unexpected payload %+v", ev.Data)
	}
	if _, ok := marker.keys["mf:low_stock_alert:2026-02-10:"+p1.ID.String()]; !ok {
		t.Fatalf("expected dedup key for %s, have %v", p1.ID, marker.keys)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("second run in the same day should not emit, got %d events", len(emitter.events))
	}

	job.now = func() time.Time { return time.Date(2026, 2, 11, 9, 0, 0, 0, time.UTC) }
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("next day run: %v", err)
	}
	if len(emitter.events) != 4 {
		t.Fatalf("next day should alert again, got %d events", len(emitter.events))
	}
}

func TestLowStockJobCombinesFailuresAndReleasesKey(t *testing.T) {
	bad := models.Product{ID: uuid.New(), Name: "Falla"}
	good := models.Product{ID: uuid.New(), Name: "Ok"}
	marker := newFakeMarker()
	emitter := &fakeEmitter{failFor: bad.ID}
	job := newLowStockJob(t, &fakeLowStock{rows: []models.Product{bad, good}}, emitter, marker)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	if n := len(multierr.Errors(err)); n != 1 {
		t.Fatalf("expected 1 failure, got %d", n)
	}
	if len(emitter.events) != 1 || emitter.events[0].AggregateID != good.ID {
		t.Fatalf("good product should still be alerted, got %+v", emitter.events)
	}
	if _, ok := marker.keys["mf:low_stock_alert:2026-02-10:"+bad.ID.String()]; ok {
		t.Fatal("failed alert should release its dedup key")
	}
}

func TestLowStockJobPropagatesLoadError(t *testing.T) {
	job := newLowStockJob(t, &fakeLowStock{err: errors.New("db down")}, &fakeEmitter{}, newFakeMarker())
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func newLowStockJob(t *testing.T, source *fakeLowStock, emitter *fakeEmitter, marker *fakeMarker) *lowStockJob {
	t.Helper()
	jobIface, err := NewLowStockJob(LowStockJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:       retentionTxRunner{},
		Products: source,
		Outbox:   emitter,
		Marker:   marker,
	})
	if err != nil {
		t.Fatalf("NewLowStockJob: %v", err)
	}
	job := jobIface.(*lowStockJob)
	job.now = func() time.Time { return time.Date(2026, 2, 10, 23, 30, 0, 0, time.UTC) }
	return job
}

type fakeLowStock struct {
	rows []models.Product
	err  error
}

func (f *fakeLowStock) LowStock(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	if !activeOnly {
		return nil, errors.New("sweep must only consider active products")
	}
	return f.rows, f.err
}

type fakeEmitter struct {
	events  []outbox.DomainEvent
	failFor uuid.UUID
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if event.AggregateID == f.failFor {
		return errors.New("insert failed")
	}
	f.events = append(f.events, event)
	return nil
}

type fakeMarker struct {
	keys map[string]bool
}

func newFakeMarker() *fakeMarker {
	return &fakeMarker{keys: map[string]bool{}}
}

func (f *fakeMarker) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeMarker) Del(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.keys, k)
	}
	return nil
}

func (f *fakeMarker) LowStockAlertKey(productID, day string) string {
	return "mf:low_stock_alert:" + day + ":" + productID
}
