package product

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

func mustCreateTestProduct(t *testing.T, tx *gorm.DB, category string, stock, minimum int, status enums.ProductStatus) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:           uuid.New(),
		Name:         fmt.Sprintf("Test %s %s", category, uuid.NewString()[:8]),
		Brands:       pq.StringArray{"3M", "Medline"},
		StockCurrent: stock,
		StockMinimum: minimum,
		UnitPrice:    decimal.RequireFromString("10.50"),
		Category:     &category,
		Status:       status,
	}
	if err := tx.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}
