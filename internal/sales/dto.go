package sales

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

// Viewer is who is looking at the sales board. Sellers only ever see
// their own orders and commissions.
type Viewer struct {
	ID    uuid.UUID
	Role  enums.UserRole
	Super bool
}

func ViewerFrom(u *users.ApplicationUser) Viewer {
	if u == nil {
		return Viewer{}
	}
	return Viewer{ID: u.ID, Role: u.Role, Super: u.IsSuper()}
}

// scope returns the seller filter the viewer is bound to, or requested when
// the viewer may see everyone.
func (v Viewer) scope(requested *uuid.UUID) *uuid.UUID {
	if v.Role == enums.RoleVendedor && !v.Super {
		id := v.ID
		return &id
	}
	return requested
}

type Metrics struct {
	TotalSales         decimal.Decimal `json:"total_ventas"`
	OrderCount         int64           `json:"cantidad_pedidos"`
	PendingCommissions decimal.Decimal `json:"comisiones_pendientes"`
}

type CommissionRow struct {
	ID          uuid.UUID              `json:"id"`
	OrderID     uuid.UUID              `json:"order_id"`
	OrderNumber string                 `json:"order_number"`
	OrderTotal  decimal.Decimal        `json:"order_total"`
	SellerID    uuid.UUID              `json:"seller_id"`
	SellerName  string                 `json:"seller_name"`
	Amount      decimal.Decimal        `json:"amount"`
	Rate        decimal.Decimal        `json:"rate"`
	Status      enums.CommissionStatus `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

type CommissionFilter struct {
	SellerID *uuid.UUID
	Status   *enums.CommissionStatus
	Limit    int
	Offset   int
}

type AssignSellerInput struct {
	SellerID uuid.UUID `json:"seller_id" validate:"required"`
}

type SettleInput struct {
	Status enums.CommissionStatus `json:"status" validate:"required,oneof=liquidado cancelado"`
}
