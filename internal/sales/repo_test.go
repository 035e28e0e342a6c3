package sales

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db/dbtest"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

func createSale(t *testing.T, tx *gorm.DB, customer, seller *models.User, total string, status enums.OrderStatus) *models.Order {
	t.Helper()
	amount := decimal.RequireFromString(total)
	order := &models.Order{
		ID:            uuid.New(),
		Number:        "PED-S" + uuid.NewString()[:8],
		CustomerID:    customer.ID,
		SellerID:      &seller.ID,
		Subtotal:      amount,
		Total:         amount,
		Status:        status,
		PaymentStatus: enums.PaymentPendiente,
	}
	require.NoError(t, tx.Create(order).Error)
	return order
}

func TestRepositoryMetricsPerSeller(t *testing.T) {
	tx := dbtest.Postgres(t)
	repo := NewRepository(tx)
	ctx := context.Background()

	customer := dbtest.CreateUser(t, tx, enums.RoleCliente, "Hospital Italiano")
	seller := dbtest.CreateUser(t, tx, enums.RoleVendedor, "Lucia Vendedora")
	rival := dbtest.CreateUser(t, tx, enums.RoleVendedor, "Martin Vendedor")

	invoiced := createSale(t, tx, customer, seller, "1000.00", enums.OrderStatusFacturado)
	createSale(t, tx, customer, seller, "250.00", enums.OrderStatusConfirmado)
	createSale(t, tx, customer, seller, "999.00", enums.OrderStatusCancelado)
	createSale(t, tx, customer, rival, "400.00", enums.OrderStatusConfirmado)

	require.NoError(t, repo.CreateCommission(ctx, &models.Commission{
		OrderID:  invoiced.ID,
		SellerID: seller.ID,
		Amount:   decimal.RequireFromString("30.00"),
		Rate:     decimal.RequireFromString("0.03"),
		Status:   enums.CommissionPendiente,
	}))

	m, err := repo.Metrics(ctx, &seller.ID, nil)
	require.NoError(t, err)
	assert.True(t, m.TotalSales.Equal(decimal.RequireFromString("1250.00")), m.TotalSales.String())
	assert.Equal(t, int64(2), m.OrderCount)
	assert.True(t, m.PendingCommissions.Equal(decimal.RequireFromString("30.00")))

	rows, total, err := repo.ListCommissions(ctx, CommissionFilter{SellerID: &seller.ID, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, invoiced.Number, rows[0].OrderNumber)
	assert.Equal(t, "Lucia Vendedora", rows[0].SellerName)

	locked, err := repo.FindCommissionForUpdate(ctx, rows[0].ID)
	require.NoError(t, err)
	locked.Status = enums.CommissionLiquidado
	require.NoError(t, repo.UpdateCommission(ctx, locked))

	m, err = repo.Metrics(ctx, &seller.ID, nil)
	require.NoError(t, err)
	assert.True(t, m.PendingCommissions.IsZero())
}
