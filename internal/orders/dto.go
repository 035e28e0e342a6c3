package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// OrderDTO is the full order with its lines.
type OrderDTO struct {
	ID              uuid.UUID           `json:"id"`
	Number          string              `json:"number"`
	CustomerID      uuid.UUID           `json:"customer_id"`
	SellerID        *uuid.UUID          `json:"seller_id,omitempty"`
	Items           []OrderItemDTO      `json:"items"`
	Subtotal        decimal.Decimal     `json:"subtotal"`
	Discount        decimal.Decimal     `json:"discount"`
	Tax             decimal.Decimal     `json:"tax"`
	Total           decimal.Decimal     `json:"total"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	InvoiceNumber   *string             `json:"invoice_number,omitempty"`
	InvoicedAt      *time.Time          `json:"invoiced_at,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	InvoiceDeadline *time.Time          `json:"invoice_deadline,omitempty"`
	AuditAlert      bool                `json:"audit_alert"`
	Notes           *string             `json:"notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type OrderItemDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Brand     *string         `json:"brand,omitempty"`
	Category  *string         `json:"category,omitempty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

// NewOrderDTO builds the DTO from the persisted order and its preloaded items.
func NewOrderDTO(order *models.Order) *OrderDTO {
	items := make([]OrderItemDTO, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemDTO{
			ProductID: item.ProductID,
			Name:      item.Name,
			Brand:     item.Brand,
			Category:  item.Category,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal,
		})
	}
	return &OrderDTO{
		ID:              order.ID,
		Number:          order.Number,
		CustomerID:      order.CustomerID,
		SellerID:        order.SellerID,
		Items:           items,
		Subtotal:        order.Subtotal,
		Discount:        order.Discount,
		Tax:             order.Tax,
		Total:           order.Total,
		Status:          order.Status,
		PaymentStatus:   order.PaymentStatus,
		InvoiceNumber:   order.InvoiceNumber,
		InvoicedAt:      order.InvoicedAt,
		DeliveredAt:     order.DeliveredAt,
		InvoiceDeadline: order.InvoiceDeadline,
		AuditAlert:      order.AuditAlert,
		Notes:           order.Notes,
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
}

// Summary is one row of an order listing, joined with the customer.
type Summary struct {
	ID              uuid.UUID           `json:"id"`
	Number          string              `json:"number"`
	CustomerID      uuid.UUID           `json:"customer_id"`
	CustomerName    string              `json:"customer_name"`
	CustomerEmail   string              `json:"customer_email"`
	SellerID        *uuid.UUID          `json:"seller_id,omitempty"`
	TotalItems      int                 `json:"total_items"`
	Total           decimal.Decimal     `json:"total"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	InvoiceNumber   *string             `json:"invoice_number,omitempty"`
	DeliveredAt     *time.Time          `json:"delivered_at,omitempty"`
	InvoiceDeadline *time.Time          `json:"invoice_deadline,omitempty"`
	AuditAlert      bool                `json:"audit_alert"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// ListFilter narrows the order listing. Zero values mean no constraint.
type ListFilter struct {
	CustomerID    *uuid.UUID
	SellerID      *uuid.UUID
	Status        *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	Search        string
	From          *time.Time
	To            *time.Time
	AuditAlert    bool
	Limit         int
	Offset        int
}

// PaymentInput records the customer's payment progress.
type PaymentInput struct {
	Status enums.PaymentStatus `json:"status" validate:"required,oneof=pendiente parcial pagado"`
}
