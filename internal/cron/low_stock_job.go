package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	product "github.com/angelmondragon/medfarma-backend/internal/products"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

const lowStockDedupTTL = 48 * time.Hour

type lowStockSource interface {
	LowStock(ctx context.Context, activeOnly bool) ([]models.Product, error)
}

// alertMarker claims the per-product, per-day alert slot.
type alertMarker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LowStockAlertKey(productID, day string) string
}

type LowStockJobParams struct {
	Logger   *logger.Logger
	DB       txRunner
	Products lowStockSource
	Outbox   outboxEmitter
	Marker   alertMarker
	// Location decides where the calendar day rolls over. Defaults to UTC.
	Location *time.Location
}

func NewLowStockJob(params LowStockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product source required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Marker == nil {
		return nil, fmt.Errorf("alert marker required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &lowStockJob{
		logg:     params.Logger,
		db:       params.DB,
		products: params.Products,
		outbox:   params.Outbox,
		marker:   params.Marker,
		loc:      loc,
		now:      time.Now,
	}, nil
}

type lowStockJob struct {
	logg     *logger.Logger
	db       txRunner
	products lowStockSource
	outbox   outboxEmitter
	marker   alertMarker
	loc      *time.Location
	now      func() time.Time
}

func (j *lowStockJob) Name() string { return "low-stock-sweep" }

// Run emits one product_low_stock event per active low-stock product per day.
// Failures on one product do not stop the sweep; they are combined into the returned error.
func (j *lowStockJob) Run(ctx context.Context) error {
	rows, err := j.products.LowStock(ctx, true)
	if err != nil {
		return fmt.Errorf("load low stock products: %w", err)
	}

	day := j.now().In(j.loc).Format("2006-01-02")
	var (
		errs    error
		emitted int
		skipped int
	)
	for i := range rows {
		p := &rows[i]
		sent, err := j.alert(ctx, p, day)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("product %s: %w", p.ID, err))
			continue
		}
		if sent {
			emitted++
		} else {
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"day":        day,
		"candidates": len(rows),
		"emitted":    emitted,
		"skipped":    skipped,
		"failed":     len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "low stock sweep complete")
	return errs
}

func (j *lowStockJob) alert(ctx context.Context, p *models.Product, day string) (bool, error) {
	key := j.marker.LowStockAlertKey(p.ID.String(), day)
	first, err := j.marker.SetNX(ctx, key, j.now().UTC().Format(time.RFC3339), lowStockDedupTTL)
	if err != nil {
		return false, fmt.Errorf("claim alert: %w", err)
	}
	if !first {
		return false, nil
	}

	event := product.LowStockEvent(p, payloads.LowStockSourceSweep, nil)
	if err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, event)
	}); err != nil {
		if delErr := j.marker.Del(ctx, key); delErr != nil {
			err = multierr.Append(err, fmt.Errorf("release alert: %w", delErr))
		}
		return false, fmt.Errorf("emit alert: %w", err)
	}
	return true, nil
}
