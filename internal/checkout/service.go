package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/cart"
	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

// DefaultTaxRate is the IVA applied on top of the cart subtotal.
var DefaultTaxRate = decimal.RequireFromString("0.21")

// Service turns a customer's cart into a confirmed order.
type Service interface {
	Execute(ctx context.Context, customer Customer, cartID string, input CheckoutInput) (*orders.OrderDTO, error)
}

// Customer identifies who is checking out. Email and FullName travel in the
// order_created notification.
type Customer struct {
	ID       uuid.UUID
	Email    string
	FullName string
}

// CheckoutInput captures optional data sent with the order.
type CheckoutInput struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type cartStore interface {
	Get(ctx context.Context, cartID string) (*cart.View, error)
	Clear(ctx context.Context, cartID string) (*cart.View, error)
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// OrderWriter is the transactional slice of the orders repository.
type OrderWriter interface {
	NextNumber(ctx context.Context) (string, error)
	Create(ctx context.Context, order *models.Order) error
}

// DispatchOpener queues a new order for the warehouse.
type DispatchOpener interface {
	Open(ctx context.Context, orderID uuid.UUID) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Carts      cartStore
	Products   productLoader
	OrdersTx   func(tx *gorm.DB) OrderWriter
	DispatchTx func(tx *gorm.DB) DispatchOpener
	Tx         db.TxRunner
	Outbox     outboxPublisher
	Audit      auditLogger
	Logger     *logger.Logger
	TaxRate    decimal.Decimal
}

type service struct {
	carts      cartStore
	products   productLoader
	ordersTx   func(tx *gorm.DB) OrderWriter
	dispatchTx func(tx *gorm.DB) DispatchOpener
	tx         db.TxRunner
	outbox     outboxPublisher
	audit      auditLogger
	logg       *logger.Logger
	taxRate    decimal.Decimal
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Carts == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if params.OrdersTx == nil {
		return nil, fmt.Errorf("order writer binder required")
	}
	if params.DispatchTx == nil {
		return nil, fmt.Errorf("dispatch binder required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit logger required")
	}
	rate := params.TaxRate
	if rate.IsZero() {
		rate = DefaultTaxRate
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("tax rate must be within [0, 1)")
	}
	return &service{
		carts:      params.Carts,
		products:   params.Products,
		ordersTx:   params.OrdersTx,
		dispatchTx: params.DispatchTx,
		tx:         params.Tx,
		outbox:     params.Outbox,
		audit:      params.Audit,
		logg:       params.Logger,
		taxRate:    rate,
		now:        time.Now,
	}, nil
}

// Execute reprices the cart against the catalog, then creates the order,
// its dispatch and the order_created event in one transaction. The cart is
// cleared only after the commit.
func (s *service) Execute(ctx context.Context, customer Customer, cartID string, input CheckoutInput) (*orders.OrderDTO, error) {
	if customer.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if strings.TrimSpace(cartID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}

	view, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if view == nil || len(view.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}

	order, err := s.buildOrder(ctx, customer.ID, view.Items)
	if err != nil {
		return nil, err
	}
	order.Notes = trimOptional(input.Notes)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		writer := s.ordersTx(tx)
		number, err := writer.NextNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}
		order.Number = number
		if err := writer.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create order")
		}
		if err := s.dispatchTx(tx).Open(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: open dispatch")
		}
		return s.outbox.Emit(ctx, tx, createdEvent(order, customer, s.now()))
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checkout")
	}

	if _, err := s.carts.Clear(ctx, cartID); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "error": err.Error()}), "clear cart after checkout failed")
	}
	s.audit.Log(ctx, "nuevo_pedido", "ventas", map[string]any{
		"order_id": order.ID.String(),
		"number":   order.Number,
		"total":    order.Total.StringFixed(2),
	}, &customer.ID)
	return orders.NewOrderDTO(order), nil
}

// buildOrder prices every line from the current catalog. Cart prices are a
// display cache and never reach the order.
func (s *service) buildOrder(ctx context.Context, customerID uuid.UUID, items []cart.Item) (*models.Order, error) {
	order := &models.Order{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Status:        enums.OrderStatusConfirmado,
		PaymentStatus: enums.PaymentPendiente,
		Discount:      decimal.Zero,
	}
	subtotal := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		product, err := s.products.FindByID(ctx, item.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, unavailable(item.Name)
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
		}
		if product.Status != enums.ProductStatusActivo {
			return nil, unavailable(product.Name)
		}
		line := product.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Brand:     item.Brand,
			Category:  product.Category,
			UnitPrice: product.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: line,
		})
		subtotal = subtotal.Add(line)
	}
	if len(order.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
	}
	order.Subtotal = subtotal
	order.Tax = subtotal.Mul(s.taxRate).Round(2)
	order.Total = order.Subtotal.Sub(order.Discount).Add(order.Tax)
	return order, nil
}

func unavailable(name string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "product no longer available").
		WithDetails(map[string]string{"product": name})
}

func createdEvent(order *models.Order, customer Customer, at time.Time) outbox.DomainEvent {
	lines := make([]payloads.OrderCreatedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, payloads.OrderCreatedLine{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderCreatedEvent{
			OrderID:     order.ID,
			OrderNumber: order.Number,
			CustomerID:  customer.ID,
			Email:       customer.Email,
			FullName:    customer.FullName,
			Items:       lines,
			Subtotal:    order.Subtotal,
			Tax:         order.Tax,
			Total:       order.Total,
			CreatedAt:   at.UTC(),
		},
		Actor: &outbox.ActorRef{UserID: customer.ID},
	}
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
