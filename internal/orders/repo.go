package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// NumberPrefix starts every order reference.
const NumberPrefix = "PED-"

// Repository persists orders and their lines.
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

// NextNumber draws the next order reference from order_number_seq, so two
// concurrent checkouts never share a number.
func (r *Repository) NextNumber(ctx context.Context) (string, error) {
	var n int64
	if err := r.db.WithContext(ctx).Raw("SELECT nextval('order_number_seq')").Scan(&n).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%d", NumberPrefix, n), nil
}

// Create inserts the order together with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	for i := range order.Items {
		if order.Items[i].ID == uuid.Nil {
			order.Items[i].ID = uuid.New()
		}
		order.Items[i].OrderID = order.ID
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID loads the order with its items ordered by name.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("name ASC") }).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate loads the order row under a lock, without items.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// Update saves the order columns. Items are immutable after checkout.
func (r *Repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(order).Error
}

// CustomerEmail returns the address status notifications go to.
func (r *Repository) CustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error) {
	var email string
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", customerID).
		Pluck("email", &email).Error
	return email, err
}

const summaryColumns = `o.id, o.number, o.customer_id, u.full_name AS customer_name, u.email AS customer_email,
       o.seller_id, o.total, o.status, o.payment_status, o.invoice_number, o.delivered_at,
       o.invoice_deadline, o.audit_alert, o.created_at, o.updated_at,
       (SELECT COALESCE(SUM(i.quantity), 0) FROM order_items i WHERE i.order_id = o.id) AS total_items`

func (r *Repository) summaries(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("orders AS o").
		Joins("JOIN users u ON u.id = o.customer_id")
}

// List returns one page of order summaries, newest first, plus the unpaged total.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Summary, int64, error) {
	q := r.summaries(ctx)
	if filter.CustomerID != nil {
		q = q.Where("o.customer_id = ?", *filter.CustomerID)
	}
	if filter.SellerID != nil {
		q = q.Where("o.seller_id = ?", *filter.SellerID)
	}
	if filter.Status != nil {
		q = q.Where("o.status = ?", *filter.Status)
	}
	if filter.PaymentStatus != nil {
		q = q.Where("o.payment_status = ?", *filter.PaymentStatus)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		q = q.Where("(o.number ILIKE ? OR u.full_name ILIKE ? OR u.email ILIKE ?)", pattern, pattern, pattern)
	}
	if filter.From != nil {
		q = q.Where("o.created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		q = q.Where("o.created_at < ?", *filter.To)
	}
	if filter.AuditAlert {
		q = q.Where("o.audit_alert")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []Summary
	err := q.Select(summaryColumns).
		Order("o.created_at DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Scan(&rows).Error
	return rows, total, err
}

// AwaitingInvoice lists delivered orders, the longest waiting first.
func (r *Repository) AwaitingInvoice(ctx context.Context) ([]Summary, error) {
	var rows []Summary
	err := r.summaries(ctx).
		Select(summaryColumns).
		Where("o.status = ?", enums.OrderStatusEntregado).
		Order("COALESCE(o.delivered_at, o.updated_at) ASC").
		Scan(&rows).Error
	return rows, err
}

// FlagOverdue raises the audit alert on delivered orders past their invoice
// deadline and returns the orders that were newly flagged.
func (r *Repository) FlagOverdue(ctx context.Context, now time.Time) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).Raw(`
UPDATE orders
SET audit_alert = true, updated_at = ?
WHERE status = ? AND invoice_deadline < ? AND NOT audit_alert
RETURNING *`, now, enums.OrderStatusEntregado, now).Scan(&rows).Error
	return rows, err
}

// BillingTotals is the invoicing dashboard summary.
type BillingTotals struct {
	Pending           int64           `json:"pending"`
	Overdue           int64           `json:"overdue"`
	InvoicedThisMonth decimal.Decimal `json:"invoiced_this_month"`
}

// BillingTotals counts delivered orders waiting for an invoice, those past
// the deadline at now, and the amount invoiced since monthStart.
func (r *Repository) BillingTotals(ctx context.Context, now, monthStart time.Time) (*BillingTotals, error) {
	var row BillingTotals
	err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) FILTER (WHERE status = 'entregado') AS pending,
       COUNT(*) FILTER (WHERE status = 'entregado' AND invoice_deadline < ?) AS overdue,
       COALESCE(SUM(total) FILTER (WHERE status = 'facturado' AND invoiced_at >= ?), 0) AS invoiced_this_month
FROM orders
WHERE status IN ('entregado', 'facturado')`, now, monthStart).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
