package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const auditModule = "ventas"

// Service backs the sales board: totals, the seller's orders and
// commissions, and the admin actions on both.
type Service interface {
	Metrics(ctx context.Context, viewer Viewer, sellerID *uuid.UUID, from *time.Time) (*Metrics, error)
	Orders(ctx context.Context, viewer Viewer, filter orders.ListFilter) (*types.Page[orders.Summary], error)
	Commissions(ctx context.Context, viewer Viewer, filter CommissionFilter) (*types.Page[CommissionRow], error)
	AssignSeller(ctx context.Context, actorID, orderID uuid.UUID, input AssignSellerInput) (*orders.OrderDTO, error)
	SettleCommission(ctx context.Context, actorID, id uuid.UUID, input SettleInput) error
}

type salesStore interface {
	ListCommissions(ctx context.Context, filter CommissionFilter) ([]CommissionRow, int64, error)
	Metrics(ctx context.Context, sellerID *uuid.UUID, from *time.Time) (*Metrics, error)
}

// commissionLocker is the transactional slice used by SettleCommission.
type commissionLocker interface {
	FindCommissionForUpdate(ctx context.Context, id uuid.UUID) (*models.Commission, error)
	UpdateCommission(ctx context.Context, c *models.Commission) error
}

type orderLister interface {
	Get(ctx context.Context, id uuid.UUID) (*orders.OrderDTO, error)
	List(ctx context.Context, filter orders.ListFilter) (*types.Page[orders.Summary], error)
}

type userLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*users.ApplicationUser, error)
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Repo salesStore
	// CommissionTx defaults to Repo.WithTx when Repo is a *Repository.
	CommissionTx func(tx *gorm.DB) commissionLocker
	OrdersTx     func(tx *gorm.DB) orders.Mover
	Orders       orderLister
	Users        userLookup
	Tx           db.TxRunner
	Audit        auditLogger
	Logger       *logger.Logger
}

type service struct {
	repo         salesStore
	commissionTx func(tx *gorm.DB) commissionLocker
	ordersTx     func(tx *gorm.DB) orders.Mover
	orders       orderLister
	users        userLookup
	tx           db.TxRunner
	audit        auditLogger
	logg         *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if params.OrdersTx == nil {
		return nil, fmt.Errorf("order transaction binder required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	commissionTx := params.CommissionTx
	if commissionTx == nil {
		repo, ok := params.Repo.(*Repository)
		if !ok {
			return nil, fmt.Errorf("commission transaction binder required")
		}
		commissionTx = func(tx *gorm.DB) commissionLocker { return repo.WithTx(tx) }
	}
	return &service{
		repo:         params.Repo,
		commissionTx: commissionTx,
		ordersTx:     params.OrdersTx,
		orders:       params.Orders,
		users:        params.Users,
		tx:           params.Tx,
		audit:        params.Audit,
		logg:         params.Logger,
	}, nil
}

func (s *service) Metrics(ctx context.Context, viewer Viewer, sellerID *uuid.UUID, from *time.Time) (*Metrics, error) {
	m, err := s.repo.Metrics(ctx, viewer.scope(sellerID), from)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sales metrics")
	}
	return m, nil
}

func (s *service) Orders(ctx context.Context, viewer Viewer, filter orders.ListFilter) (*types.Page[orders.Summary], error) {
	filter.SellerID = viewer.scope(filter.SellerID)
	return s.orders.List(ctx, filter)
}

func (s *service) Commissions(ctx context.Context, viewer Viewer, filter CommissionFilter) (*types.Page[CommissionRow], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset
	filter.SellerID = viewer.scope(filter.SellerID)

	rows, total, err := s.repo.ListCommissions(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commissions")
	}
	if rows == nil {
		rows = []CommissionRow{}
	}
	return &types.Page[CommissionRow]{Items: rows, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// AssignSeller attributes an open order to an approved seller, who earns
// the commission once it is invoiced.
func (s *service) AssignSeller(ctx context.Context, actorID, orderID uuid.UUID, input AssignSellerInput) (*orders.OrderDTO, error) {
	seller, err := s.users.Get(ctx, input.SellerID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown seller").
				WithDetails(map[string]string{"seller_id": "does not exist"})
		}
		return nil, err
	}
	if seller.Role != enums.RoleVendedor || seller.ApprovalState != enums.ApprovalAprobado {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is not an approved seller").
			WithDetails(map[string]string{"seller_id": "must be an approved vendedor"})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.ordersTx(tx)
		order, err := store.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status.Closed() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is closed").
				WithDetails(map[string]string{"status": string(order.Status)})
		}
		order.SellerID = &seller.ID
		if err := store.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: assign seller")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign seller")
	}
	s.audit.Log(ctx, "asignacion_vendedor", auditModule, map[string]any{
		"order_id":  orderID.String(),
		"seller_id": seller.ID.String(),
	}, &actorID)
	return s.orders.Get(ctx, orderID)
}

// SettleCommission moves a pending commission to liquidado or cancelado.
func (s *service) SettleCommission(ctx context.Context, actorID, id uuid.UUID, input SettleInput) error {
	if input.Status != enums.CommissionLiquidado && input.Status != enums.CommissionCancelado {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid commission status").
			WithDetails(map[string]string{"status": "must be one of liquidado cancelado"})
	}
	var changed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.commissionTx(tx)
		c, err := store.FindCommissionForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "commission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commission")
		}
		switch c.Status {
		case input.Status:
			return nil
		case enums.CommissionPendiente:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "commission already settled").
				WithDetails(map[string]string{"status": string(c.Status)})
		}
		c.Status = input.Status
		if err := store.UpdateCommission(ctx, c); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: settle commission")
		}
		changed = true
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle commission")
	}
	if changed {
		s.audit.Log(ctx, "liquidacion_comision", auditModule, map[string]any{
			"commission_id": id.String(),
			"status":        string(input.Status),
		}, &actorID)
	}
	return nil
}
