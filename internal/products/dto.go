package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// ProductDTO represents the catalog product payload returned to clients.
type ProductDTO struct {
	ID                   uuid.UUID           `json:"id"`
	Name                 string              `json:"name"`
	Brands               []string            `json:"brands"`
	TechnicalDescription *string             `json:"technical_description,omitempty"`
	StockCurrent         int                 `json:"stock_current"`
	StockMinimum         int                 `json:"stock_minimum"`
	LowStock             bool                `json:"low_stock"`
	UnitPrice            decimal.Decimal     `json:"unit_price"`
	LotPrice             *decimal.Decimal    `json:"lot_price,omitempty"`
	Category             *string             `json:"category,omitempty"`
	Status               enums.ProductStatus `json:"status"`
	ImageURL             *string             `json:"image_url,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:                   product.ID,
		Name:                 product.Name,
		Brands:               append([]string{}, product.Brands...),
		TechnicalDescription: product.TechnicalDescription,
		StockCurrent:         product.StockCurrent,
		StockMinimum:         product.StockMinimum,
		LowStock:             product.IsLowStock(),
		UnitPrice:            product.UnitPrice,
		LotPrice:             product.LotPrice,
		Category:             product.Category,
		Status:               product.Status,
		ImageURL:             product.ImageURL,
		CreatedAt:            product.CreatedAt,
		UpdatedAt:            product.UpdatedAt,
	}
}

func newProductDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewProductDTO(&rows[i]))
	}
	return out
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name                 string               `json:"name" validate:"required,min=2,max=200"`
	Brands               []string             `json:"brands" validate:"omitempty,max=20,dive,max=80"`
	TechnicalDescription *string              `json:"technical_description,omitempty" validate:"omitempty,max=5000"`
	StockCurrent         int                  `json:"stock_current" validate:"gte=0,lte=1000000"`
	StockMinimum         int                  `json:"stock_minimum" validate:"gte=0,lte=1000000"`
	UnitPrice            decimal.Decimal      `json:"unit_price"`
	LotPrice             *decimal.Decimal     `json:"lot_price,omitempty"`
	Category             *string              `json:"category,omitempty" validate:"omitempty,max=100"`
	Status               *enums.ProductStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name                 *string              `json:"name,omitempty" validate:"omitempty,min=2,max=200"`
	Brands               *[]string            `json:"brands,omitempty" validate:"omitempty,max=20,dive,max=80"`
	TechnicalDescription *string              `json:"technical_description,omitempty" validate:"omitempty,max=5000"`
	StockMinimum         *int                 `json:"stock_minimum,omitempty" validate:"omitempty,gte=0,lte=1000000"`
	UnitPrice            *decimal.Decimal     `json:"unit_price,omitempty"`
	LotPrice             *decimal.Decimal     `json:"lot_price,omitempty"`
	Category             *string              `json:"category,omitempty" validate:"omitempty,max=100"`
	Status               *enums.ProductStatus `json:"status,omitempty" validate:"omitempty,oneof=activo inactivo"`
	ImageURL             *string              `json:"image_url,omitempty" validate:"omitempty,url,max=1000"`
}

// AdjustStockInput applies one stock operation.
type AdjustStockInput struct {
	Operation enums.StockOperation `json:"operation" validate:"required,oneof=sumar restar establecer"`
	Quantity  int                  `json:"quantity" validate:"gte=0,lte=1000000"`
}

// ImageUploadInput names the file the client wants to upload.
type ImageUploadInput struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"content_type" validate:"required,max=100"`
}

// ImageUpload is a signed upload target plus the URL to save after upload.
type ImageUpload struct {
	UploadURL   string    `json:"upload_url"`
	PublicURL   string    `json:"public_url"`
	ObjectName  string    `json:"object_name"`
	ContentType string    `json:"content_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Stats summarises the catalog for the stock dashboard.
type Stats struct {
	Total      int64           `json:"total"`
	Active     int64           `json:"active"`
	Inactive   int64           `json:"inactive"`
	LowStock   int64           `json:"low_stock"`
	StockValue decimal.Decimal `json:"stock_value"`
}
