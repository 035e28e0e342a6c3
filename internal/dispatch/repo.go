package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Repository persists dispatches and carriers.
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

// Open queues a dispatch in preparacion for orderID.
func (r *Repository) Open(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Create(&models.Dispatch{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.DispatchPreparacion,
	}).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Dispatch, error) {
	var d models.Dispatch
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Dispatch, error) {
	var d models.Dispatch
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Repository) Update(ctx context.Context, d *models.Dispatch) error {
	return r.db.WithContext(ctx).Save(d).Error
}

const activeColumns = `d.id, d.order_id, o.number AS order_number, o.total AS order_total, o.status AS order_status,
       u.full_name AS customer_name, u.email AS customer_email, u.whatsapp AS customer_whatsapp,
       d.carrier_id, c.name AS carrier_name, d.tracking_number, d.picked_up_at, d.estimated_delivery,
       d.received_by, d.proof_url, d.notes, d.status, d.created_at, d.updated_at`

// Active lists dispatches still in flight plus those delivered since, newest
// first. Cancelled orders never show.
func (r *Repository) Active(ctx context.Context, since time.Time) ([]ActiveDispatch, error) {
	var rows []ActiveDispatch
	err := r.db.WithContext(ctx).
		Table("dispatches AS d").
		Joins("JOIN orders o ON o.id = d.order_id").
		Joins("JOIN users u ON u.id = o.customer_id").
		Joins("LEFT JOIN carriers c ON c.id = d.carrier_id").
		Select(activeColumns).
		Where("o.status <> ?", enums.OrderStatusCancelado).
		Where("(d.status <> ? OR d.updated_at >= ?)", enums.DispatchEntregado, since).
		Order("d.created_at DESC").
		Scan(&rows).Error
	return rows, err
}

// Metrics counts dispatches per board column. Delivered counts only those
// closed since dayStart.
func (r *Repository) Metrics(ctx context.Context, dayStart time.Time) (*Metrics, error) {
	var m Metrics
	err := r.db.WithContext(ctx).Raw(`
SELECT COUNT(*) FILTER (WHERE d.status = 'preparacion') AS preparing,
       COUNT(*) FILTER (WHERE d.status = 'listo') AS ready,
       COUNT(*) FILTER (WHERE d.status = 'despachado') AS in_transit,
       COUNT(*) FILTER (WHERE d.status = 'entregado' AND d.updated_at >= ?) AS delivered_today,
       COUNT(*) FILTER (WHERE d.status = 'error') AS failed
FROM dispatches d
JOIN orders o ON o.id = d.order_id
WHERE o.status <> 'cancelado'`, dayStart).Scan(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Carriers lists carriers by name.
func (r *Repository) Carriers(ctx context.Context, activeOnly bool) ([]models.Carrier, error) {
	q := r.db.WithContext(ctx)
	if activeOnly {
		q = q.Where("status = ?", enums.PartnerActivo)
	}
	var rows []models.Carrier
	err := q.Order("name ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindCarrier(ctx context.Context, id uuid.UUID) (*models.Carrier, error) {
	var c models.Carrier
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) CreateCarrier(ctx context.Context, c *models.Carrier) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repository) UpdateCarrier(ctx context.Context, c *models.Carrier) error {
	return r.db.WithContext(ctx).Save(c).Error
}
