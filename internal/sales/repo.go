package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Repository persists commissions and answers the sales dashboard queries.
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

func (r *Repository) CreateCommission(ctx context.Context, c *models.Commission) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repository) FindCommissionForUpdate(ctx context.Context, id uuid.UUID) (*models.Commission, error) {
	var c models.Commission
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) UpdateCommission(ctx context.Context, c *models.Commission) error {
	return r.db.WithContext(ctx).Save(c).Error
}

// ListCommissions returns one page of commissions with their order and
// seller, newest first.
func (r *Repository) ListCommissions(ctx context.Context, filter CommissionFilter) ([]CommissionRow, int64, error) {
	q := r.db.WithContext(ctx).
		Table("commissions AS c").
		Joins("JOIN orders o ON o.id = c.order_id").
		Joins("JOIN users u ON u.id = c.seller_id")
	if filter.SellerID != nil {
		q = q.Where("c.seller_id = ?", *filter.SellerID)
	}
	if filter.Status != nil {
		q = q.Where("c.status = ?", *filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []CommissionRow
	err := q.Select(`c.id, c.order_id, o.number AS order_number, o.total AS order_total,
       c.seller_id, u.full_name AS seller_name, c.amount, c.rate, c.status, c.created_at, c.updated_at`).
		Order("c.created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Scan(&rows).Error
	return rows, total, err
}

type metricsRow struct {
	TotalSales decimal.Decimal
	OrderCount int64
}

// Metrics sums non-cancelled sales since from, optionally for one seller,
// plus the commissions still owed.
func (r *Repository) Metrics(ctx context.Context, sellerID *uuid.UUID, from *time.Time) (*Metrics, error) {
	orders := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(total), 0) AS total_sales, COUNT(*) AS order_count").
		Where("status <> ?", enums.OrderStatusCancelado)
	commissions := r.db.WithContext(ctx).
		Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0) AS pending_commissions").
		Where("status = ?", enums.CommissionPendiente)
	if sellerID != nil {
		orders = orders.Where("seller_id = ?", *sellerID)
		commissions = commissions.Where("seller_id = ?", *sellerID)
	}
	if from != nil {
		orders = orders.Where("created_at >= ?", *from)
	}

	var row metricsRow
	if err := orders.Scan(&row).Error; err != nil {
		return nil, err
	}
	var owed struct{ PendingCommissions decimal.Decimal }
	if err := commissions.Scan(&owed).Error; err != nil {
		return nil, err
	}
	return &Metrics{
		TotalSales:         row.TotalSales,
		OrderCount:         row.OrderCount,
		PendingCommissions: owed.PendingCommissions,
	}, nil
}
