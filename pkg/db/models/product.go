package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Product is a catalog entry with its stock levels and list prices.
type Product struct {
	ID                   uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name                 string              `gorm:"column:name;not null"`
	Brands               pq.StringArray      `gorm:"column:brands;type:text[];not null;default:'{}'"`
	TechnicalDescription *string             `gorm:"column:technical_description"`
	StockCurrent         int                 `gorm:"column:stock_current;not null;default:0"`
	StockMinimum         int                 `gorm:"column:stock_minimum;not null;default:0"`
	UnitPrice            decimal.Decimal     `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LotPrice             *decimal.Decimal    `gorm:"column:lot_price;type:numeric(12,2)"`
	Category             *string             `gorm:"column:category"`
	Status               enums.ProductStatus `gorm:"column:status;type:product_status;not null;default:activo"`
	ImageURL             *string             `gorm:"column:image_url"`
	CreatedAt            time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// IsLowStock reports whether current stock sits below the configured minimum.
func (p Product) IsLowStock() bool {
	return p.StockCurrent < p.StockMinimum
}
