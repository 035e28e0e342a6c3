package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Order is a customer order created from the cart. Number is the human
// reference (PED-1001) drawn from order_number_seq.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Number          string              `gorm:"column:number;not null;uniqueIndex"`
	CustomerID      uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	SellerID        *uuid.UUID          `gorm:"column:seller_id;type:uuid"`
	Subtotal        decimal.Decimal     `gorm:"column:subtotal;type:numeric(14,2);not null"`
	Discount        decimal.Decimal     `gorm:"column:discount;type:numeric(14,2);not null;default:0"`
	Tax             decimal.Decimal     `gorm:"column:tax;type:numeric(14,2);not null;default:0"`
	Total           decimal.Decimal     `gorm:"column:total;type:numeric(14,2);not null"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:confirmado"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:pendiente"`
	InvoiceNumber   *string             `gorm:"column:invoice_number"`
	InvoicedAt      *time.Time          `gorm:"column:invoiced_at"`
	DeliveredAt     *time.Time          `gorm:"column:delivered_at"`
	InvoiceDeadline *time.Time          `gorm:"column:invoice_deadline"`
	AuditAlert      bool                `gorm:"column:audit_alert;not null;default:false"`
	Notes           *string             `gorm:"column:notes"`
	Items           []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem freezes the product name and price at checkout time.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Brand     *string         `gorm:"column:brand"`
	Category  *string         `gorm:"column:category"`
	UnitPrice decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity  int             `gorm:"column:quantity;not null"`
	LineTotal decimal.Decimal `gorm:"column:line_total;type:numeric(14,2);not null"`
}

// Commission is what a seller earns on an invoiced order.
type Commission struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID              `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	SellerID  uuid.UUID              `gorm:"column:seller_id;type:uuid;not null"`
	Amount    decimal.Decimal        `gorm:"column:amount;type:numeric(14,2);not null"`
	Rate      decimal.Decimal        `gorm:"column:rate;type:numeric(5,4);not null"`
	Status    enums.CommissionStatus `gorm:"column:status;type:commission_status;not null;default:pendiente"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
