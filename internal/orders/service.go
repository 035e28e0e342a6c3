package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const auditModule = "ventas"

// Service exposes order reads plus the changes that are not part of
// fulfilment or invoicing.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error)
	GetForCustomer(ctx context.Context, customerID, id uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, filter ListFilter) (*types.Page[Summary], error)
	UpdatePayment(ctx context.Context, actorID, id uuid.UUID, input PaymentInput) (*OrderDTO, error)
	Cancel(ctx context.Context, actorID, id uuid.UUID) (*OrderDTO, error)
}

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int64, error)
}

// Mover is the transactional slice used to change an order's state.
type Mover interface {
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	Update(ctx context.Context, order *models.Order) error
	CustomerEmail(ctx context.Context, customerID uuid.UUID) (string, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Repo orderReader
	// MoverTx binds the state changes to a transaction. Defaults to
	// Repo.WithTx when Repo is a *Repository.
	MoverTx func(tx *gorm.DB) Mover
	Tx      db.TxRunner
	Outbox  outboxEmitter
	Audit   auditLogger
	Logger  *logger.Logger
}

type service struct {
	repo    orderReader
	moverTx func(tx *gorm.DB) Mover
	tx      db.TxRunner
	outbox  outboxEmitter
	audit   auditLogger
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	moverTx := params.MoverTx
	if moverTx == nil {
		repo, ok := params.Repo.(*Repository)
		if !ok {
			return nil, fmt.Errorf("order transaction binder required")
		}
		moverTx = func(tx *gorm.DB) Mover { return repo.WithTx(tx) }
	}
	return &service{
		repo:    params.Repo,
		moverTx: moverTx,
		tx:      params.Tx,
		outbox:  params.Outbox,
		audit:   params.Audit,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err)
	}
	return NewOrderDTO(order), nil
}

// GetForCustomer hides other customers' orders behind a not found.
func (s *service) GetForCustomer(ctx context.Context, customerID, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err)
	}
	if order.CustomerID != customerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return NewOrderDTO(order), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*types.Page[Summary], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	if rows == nil {
		rows = []Summary{}
	}
	return &types.Page[Summary]{Items: rows, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (s *service) UpdatePayment(ctx context.Context, actorID, id uuid.UUID, input PaymentInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status").
			WithDetails(map[string]string{"status": "must be one of pendiente parcial pagado"})
	}
	var previous enums.PaymentStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.moverTx(tx)
		order, err := store.FindByIDForUpdate(ctx, id)
		if err != nil {
			return loadError(err)
		}
		if order.Status == enums.OrderStatusCancelado {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
		}
		previous = order.PaymentStatus
		if previous == input.Status {
			return nil
		}
		order.PaymentStatus = input.Status
		if err := store.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update payment status")
		}
		return nil
	})
	if err != nil {
		return nil, txError(err, "update payment status")
	}
	if previous != input.Status {
		s.audit.Log(ctx, "estado_pago", auditModule, map[string]any{
			"order_id": id.String(),
			"previous": string(previous),
			"current":  string(input.Status),
		}, &actorID)
	}
	return s.Get(ctx, id)
}

// Cancel stops an order that has not left the warehouse yet.
func (s *service) Cancel(ctx context.Context, actorID, id uuid.UUID) (*OrderDTO, error) {
	var changed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		store := s.moverTx(tx)
		order, err := store.FindByIDForUpdate(ctx, id)
		if err != nil {
			return loadError(err)
		}
		previous := order.Status
		switch previous {
		case enums.OrderStatusCancelado:
			return nil
		case enums.OrderStatusCotizacion, enums.OrderStatusConfirmado, enums.OrderStatusEnPreparacion:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order can no longer be cancelled").
				WithDetails(map[string]string{"status": string(previous)})
		}
		order.Status = enums.OrderStatusCancelado
		if err := store.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: cancel order")
		}
		email, err := store.CustomerEmail(ctx, order.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer email")
		}
		if err := s.outbox.Emit(ctx, tx, StatusEvent(order, previous, email, &actorID, s.now())); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, txError(err, "cancel order")
	}
	if changed {
		s.audit.Log(ctx, "cancelacion_pedido", auditModule, map[string]any{"order_id": id.String()}, &actorID)
	}
	return s.Get(ctx, id)
}

func loadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func txError(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
