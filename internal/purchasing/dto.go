package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Metrics is the management dashboard header.
type Metrics struct {
	InventoryValue     decimal.Decimal `json:"valor_total_inventario"`
	LowStock           int64           `json:"productos_stock_bajo"`
	OpenPurchaseOrders int64           `json:"ordenes_compra_pendientes"`
	ActiveSuppliers    int64           `json:"proveedores_activos"`
}

// RestockItem is a product below its minimum with the units missing to
// reach it.
type RestockItem struct {
	ProductID    uuid.UUID       `json:"product_id"`
	Name         string          `json:"name"`
	Category     *string         `json:"category,omitempty"`
	StockCurrent int             `json:"stock_current"`
	StockMinimum int             `json:"stock_minimum"`
	Deficit      int             `json:"deficit"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
}

type PurchaseOrderDTO struct {
	ID         uuid.UUID                 `json:"id"`
	Number     string                    `json:"number"`
	SupplierID uuid.UUID                 `json:"supplier_id"`
	CreatedBy  uuid.UUID                 `json:"created_by"`
	Status     enums.PurchaseOrderStatus `json:"status"`
	Total      decimal.Decimal           `json:"total"`
	Notes      *string                   `json:"notes,omitempty"`
	ReceivedAt *time.Time                `json:"received_at,omitempty"`
	Items      []PurchaseOrderItemDTO    `json:"items"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

type PurchaseOrderItemDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func NewPurchaseOrderDTO(po *models.PurchaseOrder) *PurchaseOrderDTO {
	items := make([]PurchaseOrderItemDTO, 0, len(po.Items))
	for _, item := range po.Items {
		items = append(items, PurchaseOrderItemDTO{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitCost:  item.UnitCost,
			LineTotal: item.UnitCost.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return &PurchaseOrderDTO{
		ID:         po.ID,
		Number:     po.Number,
		SupplierID: po.SupplierID,
		CreatedBy:  po.CreatedBy,
		Status:     po.Status,
		Total:      po.Total,
		Notes:      po.Notes,
		ReceivedAt: po.ReceivedAt,
		Items:      items,
		CreatedAt:  po.CreatedAt,
		UpdatedAt:  po.UpdatedAt,
	}
}

// Summary is one row of the purchase order listing.
type Summary struct {
	ID           uuid.UUID                 `json:"id"`
	Number       string                    `json:"number"`
	SupplierID   uuid.UUID                 `json:"supplier_id"`
	SupplierName string                    `json:"supplier_name"`
	Status       enums.PurchaseOrderStatus `json:"status"`
	Total        decimal.Decimal           `json:"total"`
	TotalItems   int                       `json:"total_items"`
	CreatedAt    time.Time                 `json:"created_at"`
}

type ListFilter struct {
	SupplierID *uuid.UUID
	Status     *enums.PurchaseOrderStatus
	Limit      int
	Offset     int
}

type CreateInput struct {
	SupplierID uuid.UUID   `json:"supplier_id" validate:"required"`
	Items      []LineInput `json:"items" validate:"required,min=1,max=200,dive"`
	Notes      *string     `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

type LineInput struct {
	ProductID uuid.UUID       `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gte=1,lte=1000000"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type StatusInput struct {
	Status enums.PurchaseOrderStatus `json:"status" validate:"required,oneof=pendiente enviada recibida cancelada"`
}
