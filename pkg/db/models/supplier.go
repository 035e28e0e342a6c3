package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Supplier is a vendor purchasing buys stock from.
type Supplier struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name         string              `gorm:"column:name;not null"`
	TaxID        *string             `gorm:"column:tax_id"`
	ContactName  *string             `gorm:"column:contact_name"`
	Phone        *string             `gorm:"column:phone"`
	Email        *string             `gorm:"column:email"`
	Supplies     pq.StringArray      `gorm:"column:supplies;type:text[];not null;default:'{}'"`
	LeadTimeDays *int                `gorm:"column:lead_time_days"`
	PaymentTerms *string             `gorm:"column:payment_terms"`
	Rating       *decimal.Decimal    `gorm:"column:rating;type:numeric(2,1)"`
	LogoURL      *string             `gorm:"column:logo_url"`
	Status       enums.PartnerStatus `gorm:"column:status;type:partner_status;not null;default:activo"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// PurchaseOrder is a restock request sent to a supplier.
type PurchaseOrder struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number     string                    `gorm:"column:number;not null;uniqueIndex"`
	SupplierID uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null"`
	CreatedBy  uuid.UUID                 `gorm:"column:created_by;type:uuid;not null"`
	Status     enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status;not null;default:pendiente"`
	Total      decimal.Decimal           `gorm:"column:total;type:numeric(14,2);not null"`
	Notes      *string                   `gorm:"column:notes"`
	ReceivedAt *time.Time                `gorm:"column:received_at"`
	Items      []PurchaseOrderItem       `gorm:"foreignKey:PurchaseOrderID"`
	CreatedAt  time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

type PurchaseOrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PurchaseOrderID uuid.UUID       `gorm:"column:purchase_order_id;type:uuid;not null"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Quantity        int             `gorm:"column:quantity;not null"`
	UnitCost        decimal.Decimal `gorm:"column:unit_cost;type:numeric(12,2);not null"`
}
