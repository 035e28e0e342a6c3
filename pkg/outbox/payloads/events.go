package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// ClientRegisteredEvent asks the back office to validate a new customer account.
type ClientRegisteredEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	TaxID        *string   `json:"tax_id,omitempty"`
	WhatsApp     *string   `json:"whatsapp,omitempty"`
	Institution  *string   `json:"institution,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ProductLowStockEvent alerts purchasing that a product fell below its minimum.
type ProductLowStockEvent struct {
	ProductID    uuid.UUID `json:"product_id"`
	Name         string    `json:"name"`
	Category     *string   `json:"category,omitempty"`
	StockCurrent int       `json:"stock_current"`
	StockMinimum int       `json:"stock_minimum"`
	Source       string    `json:"source"`
}

// Low-stock event sources.
const (
	LowStockSourceAdjustment = "stock_adjustment"
	LowStockSourceSweep      = "daily_sweep"
)

// PasswordResetRequestedEvent carries the single-use token to be mailed to the principal.
type PasswordResetRequestedEvent struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Email       string    `json:"email"`
	ResetToken  string    `json:"reset_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// UserStateChangedEvent notifies the user that staff changed their approval state.
type UserStateChangedEvent struct {
	UserID        uuid.UUID           `json:"user_id"`
	Email         string              `json:"email"`
	FullName      string              `json:"full_name"`
	PreviousState enums.ApprovalState `json:"previous_state"`
	NewState      enums.ApprovalState `json:"new_state"`
	ChangedBy     uuid.UUID           `json:"changed_by"`
}

// OrderCreatedEvent tells sales and logistics a customer confirmed an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID          `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	CustomerID  uuid.UUID          `json:"customer_id"`
	Email       string             `json:"email"`
	FullName    string             `json:"full_name"`
	Items       []OrderCreatedLine `json:"items"`
	Subtotal    decimal.Decimal    `json:"subtotal"`
	Tax         decimal.Decimal    `json:"tax"`
	Total       decimal.Decimal    `json:"total"`
	CreatedAt   time.Time          `json:"created_at"`
}

type OrderCreatedLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderStatusChangedEvent notifies the customer of a fulfilment step.
// InvoiceDeadline is set when the order was just delivered.
type OrderStatusChangedEvent struct {
	OrderID         uuid.UUID         `json:"order_id"`
	OrderNumber     string            `json:"order_number"`
	CustomerID      uuid.UUID         `json:"customer_id"`
	Email           string            `json:"email,omitempty"`
	PreviousStatus  enums.OrderStatus `json:"previous_status"`
	NewStatus       enums.OrderStatus `json:"new_status"`
	InvoiceNumber   *string           `json:"invoice_number,omitempty"`
	InvoiceDeadline *time.Time        `json:"invoice_deadline,omitempty"`
	ChangedAt       time.Time         `json:"changed_at"`
}

// InvoiceOverdueEvent raises an audit alert for a delivered order that
// missed its invoicing deadline.
type InvoiceOverdueEvent struct {
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	Total           decimal.Decimal `json:"total"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	InvoiceDeadline time.Time       `json:"invoice_deadline"`
}

// PurchaseOrderCreatedEvent hands a new purchase order to the supplier workflow.
type PurchaseOrderCreatedEvent struct {
	PurchaseOrderID uuid.UUID           `json:"purchase_order_id"`
	Number          string              `json:"number"`
	SupplierID      uuid.UUID           `json:"supplier_id"`
	SupplierName    string              `json:"supplier_name"`
	SupplierEmail   *string             `json:"supplier_email,omitempty"`
	Lines           []PurchaseOrderLine `json:"lines"`
	Total           decimal.Decimal     `json:"total"`
	CreatedBy       uuid.UUID           `json:"created_by"`
}

type PurchaseOrderLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}
