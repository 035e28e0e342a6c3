package purchasing

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/medfarma-backend/pkg/db/dbtest"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

func TestRepositoryCreateListAndReload(t *testing.T) {
	tx := dbtest.Postgres(t)
	repo := NewRepository(tx)
	ctx := context.Background()

	buyer := dbtest.CreateUser(t, tx, enums.RoleCompras, "Compras Central")
	product := dbtest.CreateProduct(t, tx, "Cateter", "15.00", 1, 10)
	supplier := &models.Supplier{Name: "Distribuidora Este", Status: enums.PartnerActivo}
	require.NoError(t, tx.Create(supplier).Error)

	number, err := repo.NextNumber(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(number, NumberPrefix))

	po := &models.PurchaseOrder{
		ID:         uuid.New(),
		Number:     number,
		SupplierID: supplier.ID,
		CreatedBy:  buyer.ID,
		Status:     enums.PurchasePendiente,
		Total:      decimal.RequireFromString("36.00"),
		Items:      []models.PurchaseOrderItem{{ProductID: product.ID, Quantity: 12, UnitCost: decimal.RequireFromString("3.00")}},
	}
	require.NoError(t, repo.Create(ctx, po))

	rows, total, err := repo.List(ctx, ListFilter{SupplierID: &supplier.ID, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, "Distribuidora Este", rows[0].SupplierName)
	assert.Equal(t, 12, rows[0].TotalItems)

	locked, err := repo.FindByIDForUpdate(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, locked.Items, 1)
	locked.Status = enums.PurchaseEnviada
	require.NoError(t, repo.Update(ctx, locked))

	reloaded, err := repo.FindByID(ctx, po.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseEnviada, reloaded.Status)
	assert.Len(t, reloaded.Items, 1)

	m, err := repo.Metrics(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, m.OpenPurchaseOrders, int64(1))
	assert.GreaterOrEqual(t, m.LowStock, int64(1))
	assert.GreaterOrEqual(t, m.ActiveSuppliers, int64(1))
}
