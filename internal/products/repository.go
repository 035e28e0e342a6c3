package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Repository wires together all product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDForUpdate loads the product holding a row lock until the transaction ends.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) Update(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// UpdateStock writes the new stock level only.
func (r *Repository) UpdateStock(ctx context.Context, id uuid.UUID, stock int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock_current", stock).Error
}

// List returns one page of products plus the unpaged total, ordered by name.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Product, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Product{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		q = q.Where("(name ILIKE ? OR technical_description ILIKE ? OR array_to_string(brands, ' ') ILIKE ?)", pattern, pattern, pattern)
	}
	if filter.Category != "" {
		q = q.Where("category = ?", filter.Category)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.LowStock {
		q = q.Where("stock_current < stock_minimum")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Product
	err := q.Order("name ASC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	return rows, total, err
}

// ListActiveForContext returns at most limit active products within scope, ordered by name.
func (r *Repository) ListActiveForContext(ctx context.Context, scope ContextScope, limit int) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Where("status = ?", enums.ProductStatusActivo)
	switch {
	case scope.ProductID != nil:
		q = q.Where("id = ?", *scope.ProductID)
	case strings.TrimSpace(scope.Category) != "":
		q = q.Where("category = ?", strings.TrimSpace(scope.Category))
	}
	var rows []models.Product
	err := q.Order("name ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

// LowStock lists products whose stock sits below their minimum.
func (r *Repository) LowStock(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Where("stock_current < stock_minimum")
	if activeOnly {
		q = q.Where("status = ?", enums.ProductStatusActivo)
	}
	var rows []models.Product
	err := q.Order("stock_current ASC").Order("name ASC").Find(&rows).Error
	return rows, err
}

// Categories returns the distinct non-empty categories, sorted.
func (r *Repository) Categories(ctx context.Context, activeOnly bool) ([]string, error) {
	q := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("category IS NOT NULL AND category <> ''")
	if activeOnly {
		q = q.Where("status = ?", enums.ProductStatusActivo)
	}
	var out []string
	err := q.Distinct("category").Order("category ASC").Pluck("category", &out).Error
	return out, err
}

type statsRow struct {
	Total      int64
	Active     int64
	Inactive   int64
	LowStock   int64
	StockValue decimal.Decimal
}

func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var row statsRow
	err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'activo') AS active,
       COUNT(*) FILTER (WHERE status = 'inactivo') AS inactive,
       COUNT(*) FILTER (WHERE stock_current < stock_minimum) AS low_stock,
       COALESCE(SUM(stock_current * unit_price), 0) AS stock_value
FROM products`).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &Stats{
		Total:      row.Total,
		Active:     row.Active,
		Inactive:   row.Inactive,
		LowStock:   row.LowStock,
		StockValue: row.StockValue,
	}, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
