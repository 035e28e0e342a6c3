package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/medfarma-backend/pkg/pagination"
	"github.com/angelmondragon/medfarma-backend/pkg/types"
)

const auditModule = "compras"

// Service covers restocking: what to reorder, purchase orders and their
// reception into stock.
type Service interface {
	Metrics(ctx context.Context) (*Metrics, error)
	Restock(ctx context.Context) ([]RestockItem, error)
	Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*PurchaseOrderDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*PurchaseOrderDTO, error)
	List(ctx context.Context, filter ListFilter) (*types.Page[Summary], error)
	UpdateStatus(ctx context.Context, actorID, id uuid.UUID, input StatusInput) (*PurchaseOrderDTO, error)
}

type purchaseStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]Summary, int64, error)
	Metrics(ctx context.Context) (*Metrics, error)
}

// purchaseWriter is the transactional slice of the repository.
type purchaseWriter interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, po *models.PurchaseOrder) error
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	Update(ctx context.Context, po *models.PurchaseOrder) error
}

type productCatalog interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	LowStock(ctx context.Context, activeOnly bool) ([]models.Product, error)
}

// StockLocker adds received units to products under a row lock.
type StockLocker interface {
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error)
	UpdateStock(ctx context.Context, id uuid.UUID, stock int) error
}

type supplierLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Supplier, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Repo purchaseStore
	// PurchaseTx defaults to Repo.WithTx when Repo is a *Repository.
	PurchaseTx func(tx *gorm.DB) purchaseWriter
	StockTx    func(tx *gorm.DB) StockLocker
	Products   productCatalog
	Suppliers  supplierLoader
	Tx         db.TxRunner
	Outbox     outboxEmitter
	Audit      auditLogger
	Logger     *logger.Logger
}

type service struct {
	repo       purchaseStore
	purchaseTx func(tx *gorm.DB) purchaseWriter
	stockTx    func(tx *gorm.DB) StockLocker
	products   productCatalog
	suppliers  supplierLoader
	tx         db.TxRunner
	outbox     outboxEmitter
	audit      auditLogger
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchase order repository required")
	}
	if params.StockTx == nil {
		return nil, fmt.Errorf("stock transaction binder required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if params.Suppliers == nil {
		return nil, fmt.Errorf("supplier loader required")
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
	purchaseTx := params.PurchaseTx
	if purchaseTx == nil {
		repo, ok := params.Repo.(*Repository)
		if !ok {
			return nil, fmt.Errorf("purchase transaction binder required")
		}
		purchaseTx = func(tx *gorm.DB) purchaseWriter { return repo.WithTx(tx) }
	}
	return &service{
		repo:       params.Repo,
		purchaseTx: purchaseTx,
		stockTx:    params.StockTx,
		products:   params.Products,
		suppliers:  params.Suppliers,
		tx:         params.Tx,
		outbox:     params.Outbox,
		audit:      params.Audit,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Metrics(ctx context.Context) (*Metrics, error) {
	m, err := s.repo.Metrics(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purchasing metrics")
	}
	return m, nil
}

// Restock lists every product under its minimum, lowest stock first.
func (s *service) Restock(ctx context.Context) ([]RestockItem, error) {
	rows, err := s.products.LowStock(ctx, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products to restock")
	}
	out := make([]RestockItem, 0, len(rows))
	for _, p := range rows {
		out = append(out, RestockItem{
			ProductID:    p.ID,
			Name:         p.Name,
			Category:     p.Category,
			StockCurrent: p.StockCurrent,
			StockMinimum: p.StockMinimum,
			Deficit:      p.StockMinimum - p.StockCurrent,
			UnitPrice:    p.UnitPrice,
		})
	}
	return out, nil
}

// Create registers a purchase order for an active supplier and hands it to
// the supplier workflow through purchase_order_created.
func (s *service) Create(ctx context.Context, actorID uuid.UUID, input CreateInput) (*PurchaseOrderDTO, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "purchase order has no lines")
	}
	supplier, err := s.suppliers.FindByID(ctx, input.SupplierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown supplier").
				WithDetails(map[string]string{"supplier_id": "does not exist"})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load supplier")
	}
	if supplier.Status != enums.PartnerActivo {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier is inactive").
			WithDetails(map[string]string{"supplier_id": "must be an active supplier"})
	}

	po := &models.PurchaseOrder{
		ID:         uuid.New(),
		SupplierID: supplier.ID,
		CreatedBy:  actorID,
		Status:     enums.PurchasePendiente,
		Notes:      trimOptional(input.Notes),
	}
	lines := make([]payloads.PurchaseOrderLine, 0, len(input.Items))
	seen := make(map[uuid.UUID]struct{}, len(input.Items))
	total := decimal.Zero
	for i, line := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if _, dup := seen[line.ProductID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product listed twice").
				WithDetails(map[string]string{field: "duplicate product"})
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]string{field: "quantity must be at least 1"})
		}
		if line.UnitCost.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit cost must not be negative").
				WithDetails(map[string]string{field: "unit_cost must be >= 0"})
		}
		product, err := s.products.FindByID(ctx, line.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown product").
					WithDetails(map[string]string{field: "product does not exist"})
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		cost := line.UnitCost.Round(2)
		po.Items = append(po.Items, models.PurchaseOrderItem{
			ProductID: product.ID,
			Quantity:  line.Quantity,
			UnitCost:  cost,
		})
		lines = append(lines, payloads.PurchaseOrderLine{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			UnitCost:  cost,
		})
		total = total.Add(cost.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	po.Total = total.Round(2)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		writer := s.purchaseTx(tx)
		number, err := writer.NextNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate purchase order number")
		}
		po.Number = number
		if err := writer.Create(ctx, po); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create purchase order")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventPurchaseOrderCreated,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   po.ID,
			Data: payloads.PurchaseOrderCreatedEvent{
				PurchaseOrderID: po.ID,
				Number:          po.Number,
				SupplierID:      supplier.ID,
				SupplierName:    supplier.Name,
				SupplierEmail:   supplier.Email,
				Lines:           lines,
				Total:           po.Total,
				CreatedBy:       actorID,
			},
			Actor: &outbox.ActorRef{UserID: actorID},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit purchase order event")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create purchase order")
	}

	s.audit.Log(ctx, "orden_compra", auditModule, map[string]any{
		"purchase_order_id": po.ID.String(),
		"number":            po.Number,
		"supplier_id":       supplier.ID.String(),
		"total":             po.Total.StringFixed(2),
	}, &actorID)
	return NewPurchaseOrderDTO(po), nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*PurchaseOrderDTO, error) {
	po, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, loadError(err)
	}
	return NewPurchaseOrderDTO(po), nil
}

func (s *service) List(ctx context.Context, filter ListFilter) (*types.Page[Summary], error) {
	page := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}.Normalize()
	filter.Limit, filter.Offset = page.Limit, page.Offset

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list purchase orders")
	}
	if rows == nil {
		rows = []Summary{}
	}
	return &types.Page[Summary]{Items: rows, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

// UpdateStatus moves a purchase order forward. Reception adds every line
// to stock in the same transaction.
func (s *service) UpdateStatus(ctx context.Context, actorID, id uuid.UUID, input StatusInput) (*PurchaseOrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid purchase order status").
			WithDetails(map[string]string{"status": "must be one of pendiente enviada recibida cancelada"})
	}
	var (
		result   *models.PurchaseOrder
		previous enums.PurchaseOrderStatus
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		writer := s.purchaseTx(tx)
		po, err := writer.FindByIDForUpdate(ctx, id)
		if err != nil {
			return loadError(err)
		}
		previous = po.Status
		result = po
		if po.Status == input.Status {
			return nil
		}
		if !po.Status.CanMoveTo(input.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "purchase order status change not allowed").
				WithDetails(map[string]string{"from": string(po.Status), "to": string(input.Status)})
		}
		if input.Status == enums.PurchaseRecibida {
			if err := s.receive(ctx, tx, po); err != nil {
				return err
			}
			now := s.now().UTC()
			po.ReceivedAt = &now
		}
		po.Status = input.Status
		if err := writer.Update(ctx, po); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update purchase order")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update purchase order")
	}
	if result.Status != previous {
		s.audit.Log(ctx, "estado_orden_compra", auditModule, map[string]any{
			"purchase_order_id": id.String(),
			"previous":          string(previous),
			"current":           string(result.Status),
		}, &actorID)
	}
	return NewPurchaseOrderDTO(result), nil
}

func (s *service) receive(ctx context.Context, tx *gorm.DB, po *models.PurchaseOrder) error {
	stock := s.stockTx(tx)
	for _, item := range po.Items {
		product, err := stock.FindByIDForUpdate(ctx, item.ProductID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeConflict, "received product no longer exists").
					WithDetails(map[string]string{"product_id": item.ProductID.String()})
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock product")
		}
		if err := stock.UpdateStock(ctx, product.ID, product.StockCurrent+item.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update stock")
		}
	}
	return nil
}

func loadError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "purchase order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load purchase order")
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
