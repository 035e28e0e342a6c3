package purchasing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

// NumberPrefix starts every purchase order reference.
const NumberPrefix = "OC-"

// Repository persists purchase orders and answers the management metrics.
type Repository struct {
	db *gorm.DB
}

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

// NextNumber draws OC-000001 style references from purchase_order_number_seq.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.db.WithContext(ctx).Raw("SELECT nextval('purchase_order_number_seq')").Scan(&n).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", NumberPrefix, n), nil
}

func (r *Repository) Create(ctx context.Context, po *models.PurchaseOrder) error {
	if po.ID == uuid.Nil {
		po.ID = uuid.New()
	}
	for i := range po.Items {
		if po.Items[i].ID == uuid.Nil {
			po.Items[i].ID = uuid.New()
		}
		po.Items[i].PurchaseOrderID = po.ID
	}
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	if err := r.db.WithContext(ctx).Preload("Items").First(&po, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

// FindByIDForUpdate locks the purchase order row and loads its items.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var po models.PurchaseOrder
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&po, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Where("purchase_order_id = ?", id).
		Find(&po.Items).Error; err != nil {
		return nil, err
	}
	return &po, nil
}

// Update saves the header columns. Lines are immutable once created.
func (r *Repository) Update(ctx context.Context, po *models.PurchaseOrder) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(po).Error
}

// List returns one page of purchase orders with their supplier, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Summary, int64, error) {
	q := r.db.WithContext(ctx).
		Table("purchase_orders AS po").
		Joins("JOIN suppliers s ON s.id = po.supplier_id")
	if filter.SupplierID != nil {
		q = q.Where("po.supplier_id = ?", *filter.SupplierID)
	}
	if filter.Status != nil {
		q = q.Where("po.status = ?", *filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []Summary
	err := q.Select(`po.id, po.number, po.supplier_id, s.name AS supplier_name, po.status, po.total, po.created_at,
       (SELECT COALESCE(SUM(i.quantity), 0) FROM purchase_order_items i WHERE i.purchase_order_id = po.id) AS total_items`).
		Order("po.created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Scan(&rows).Error
	return rows, total, err
}

// Metrics values the inventory at list price and counts what needs
// purchasing attention.
func (r *Repository) Metrics(ctx context.Context) (*Metrics, error) {
	var m Metrics
	err := r.db.WithContext(ctx).Raw(`
SELECT (SELECT COALESCE(SUM(stock_current * unit_price), 0) FROM products) AS inventory_value,
       (SELECT COUNT(*) FROM products WHERE stock_current < stock_minimum) AS low_stock,
       (SELECT COUNT(*) FROM purchase_orders WHERE status IN ('pendiente', 'enviada')) AS open_purchase_orders,
       (SELECT COUNT(*) FROM suppliers WHERE status = 'activo') AS active_suppliers`).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}
