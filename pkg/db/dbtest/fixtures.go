package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// CreateUser inserts an approved user with its principal.
func CreateUser(t *testing.T, tx *gorm.DB, role enums.UserRole, fullName string) *models.User {
	t.Helper()
	email := uuid.NewString()[:8] + "@medfarma.test"
	principal := &models.Principal{Email: email, PasswordHash: "x"}
	if err := tx.Create(principal).Error; err != nil {
		t.Fatalf("create principal: %v", err)
	}
	user := &models.User{
		ID:            principal.ID,
		Email:         email,
		FullName:      fullName,
		Role:          role,
		ApprovalState: enums.ApprovalAprobado,
	}
	if err := tx.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// CreateProduct inserts an active product priced at price.
func CreateProduct(t *testing.T, tx *gorm.DB, name, price string, stock, minimum int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:           uuid.New(),
		Name:         name + " " + uuid.NewString()[:8],
		StockCurrent: stock,
		StockMinimum: minimum,
		UnitPrice:    decimal.RequireFromString(price),
		Status:       enums.ProductStatusActivo,
	}
	if err := tx.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}
