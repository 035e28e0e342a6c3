package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/pkg/db"
	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
	"github.com/angelmondragon/medfarma-backend/pkg/logger"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox"
	"github.com/angelmondragon/medfarma-backend/pkg/outbox/payloads"
)

const auditModule = "facturacion"

// DefaultCommissionRate is the seller's share of an invoiced order total.
var DefaultCommissionRate = decimal.RequireFromString("0.03")

// Service closes the loop between delivery and invoicing.
type Service interface {
	Metrics(ctx context.Context) (*orders.BillingTotals, error)
	Pending(ctx context.Context) ([]PendingOrder, error)
	MarkInvoiced(ctx context.Context, actorID, orderID uuid.UUID, input InvoiceInput) (*orders.OrderDTO, error)
	FlagOverdue(ctx context.Context) (int, error)
}

// PendingOrder is a delivered order waiting for its invoice.
type PendingOrder struct {
	orders.Summary
	Overdue bool `json:"overdue"`
}

type InvoiceInput struct {
	Number string `json:"invoice_number" validate:"required,min=1,max=50"`
}

type orderReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	AwaitingInvoice(ctx context.Context) ([]orders.Summary, error)
	BillingTotals(ctx context.Context, now, monthStart time.Time) (*orders.BillingTotals, error)
}

// Ledger is the transactional slice of the orders repository billing needs.
type Ledger interface {
	orders.Mover
	FlagOverdue(ctx context.Context, now time.Time) ([]models.Order, error)
}

// CommissionWriter records what the seller earns on an invoiced order.
type CommissionWriter interface {
	CreateCommission(ctx context.Context, c *models.Commission) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditLogger interface {
	Log(ctx context.Context, action, module string, details map[string]any, userID *uuid.UUID)
}

type ServiceParams struct {
	Orders orderReader
	// LedgerTx defaults to Orders.WithTx when Orders is an *orders.Repository.
	LedgerTx       func(tx *gorm.DB) Ledger
	CommissionsTx  func(tx *gorm.DB) CommissionWriter
	Tx             db.TxRunner
	Outbox         outboxEmitter
	Audit          auditLogger
	CommissionRate decimal.Decimal
	Location       *time.Location
	Logger         *logger.Logger
}

type service struct {
	orders        orderReader
	ledgerTx      func(tx *gorm.DB) Ledger
	commissionsTx func(tx *gorm.DB) CommissionWriter
	tx            db.TxRunner
	outbox        outboxEmitter
	audit         auditLogger
	rate          decimal.Decimal
	loc           *time.Location
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.CommissionsTx == nil {
		return nil, fmt.Errorf("commission binder required")
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
	ledgerTx := params.LedgerTx
	if ledgerTx == nil {
		repo, ok := params.Orders.(*orders.Repository)
		if !ok {
			return nil, fmt.Errorf("ledger transaction binder required")
		}
		ledgerTx = func(tx *gorm.DB) Ledger { return repo.WithTx(tx) }
	}
	rate := params.CommissionRate
	if rate.IsZero() {
		rate = DefaultCommissionRate
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("commission rate must be within [0, 1]")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		orders:        params.Orders,
		ledgerTx:      ledgerTx,
		commissionsTx: params.CommissionsTx,
		tx:            params.Tx,
		outbox:        params.Outbox,
		audit:         params.Audit,
		rate:          rate,
		loc:           loc,
		logg:          params.Logger,
		now:           time.Now,
	}, nil
}

func (s *service) Metrics(ctx context.Context) (*orders.BillingTotals, error) {
	now := s.now().In(s.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	totals, err := s.orders.BillingTotals(ctx, now, monthStart)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "billing metrics")
	}
	return totals, nil
}

// Pending lists delivered orders, oldest delivery first, flagging those
// past their deadline.
func (s *service) Pending(ctx context.Context) ([]PendingOrder, error) {
	rows, err := s.orders.AwaitingInvoice(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders awaiting invoice")
	}
	now := s.now()
	out := make([]PendingOrder, 0, len(rows))
	for _, row := range rows {
		overdue := row.InvoiceDeadline != nil && row.InvoiceDeadline.Before(now)
		out = append(out, PendingOrder{Summary: row, Overdue: overdue})
	}
	return out, nil
}

// MarkInvoiced closes a delivered order with its invoice number. Repeating
// the call with the same number is a no-op.
func (s *service) MarkInvoiced(ctx context.Context, actorID, orderID uuid.UUID, input InvoiceInput) (*orders.OrderDTO, error) {
	number := strings.TrimSpace(input.Number)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice number required").
			WithDetails(map[string]string{"invoice_number": "required"})
	}

	var (
		changed    bool
		commission *models.Commission
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledgerTx(tx)
		order, err := ledger.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return loadError(err)
		}
		switch order.Status {
		case enums.OrderStatusFacturado:
			if order.InvoiceNumber != nil && *order.InvoiceNumber == number {
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already invoiced").
				WithDetails(map[string]string{"invoice_number": derefString(order.InvoiceNumber)})
		case enums.OrderStatusEntregado:
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered orders can be invoiced").
				WithDetails(map[string]string{"status": string(order.Status)})
		}

		now := s.now().UTC()
		previous := order.Status
		order.Status = enums.OrderStatusFacturado
		order.InvoiceNumber = &number
		order.InvoicedAt = &now
		order.AuditAlert = false
		if err := ledger.Update(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: mark invoiced")
		}

		if order.SellerID != nil {
			commission = &models.Commission{
				ID:       uuid.New(),
				OrderID:  order.ID,
				SellerID: *order.SellerID,
				Amount:   order.Total.Mul(s.rate).Round(2),
				Rate:     s.rate,
				Status:   enums.CommissionPendiente,
			}
			if err := s.commissionsTx(tx).CreateCommission(ctx, commission); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: create commission")
			}
		}

		email, err := ledger.CustomerEmail(ctx, order.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer email")
		}
		if err := s.outbox.Emit(ctx, tx, orders.StatusEvent(order, previous, email, &actorID, now)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		changed = true
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoiced")
	}

	if changed {
		details := map[string]any{"order_id": orderID.String(), "invoice_number": number}
		if commission != nil {
			details["commission"] = commission.Amount.StringFixed(2)
		}
		s.audit.Log(ctx, "facturacion_pedido", auditModule, details, &actorID)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, loadError(err)
	}
	return orders.NewOrderDTO(order), nil
}

// FlagOverdue raises the audit alert on every delivered order past its
// deadline and emits invoice_overdue once per order.
func (s *service) FlagOverdue(ctx context.Context) (int, error) {
	var flagged []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.ledgerTx(tx).FlagOverdue(ctx, s.now().UTC())
		if err != nil {
			return err
		}
		for i := range rows {
			if err := s.outbox.Emit(ctx, tx, OverdueEvent(&rows[i])); err != nil {
				return err
			}
		}
		flagged = rows
		return nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag overdue invoices")
	}
	for _, order := range flagged {
		s.audit.Log(ctx, "alerta_facturacion", auditModule, map[string]any{
			"order_id": order.ID.String(),
			"number":   order.Number,
		}, nil)
	}
	return len(flagged), nil
}

// OverdueEvent builds the invoice_overdue alert for order.
func OverdueEvent(order *models.Order) outbox.DomainEvent {
	data := payloads.InvoiceOverdueEvent{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Total:       order.Total,
		DeliveredAt: order.DeliveredAt,
	}
	if order.InvoiceDeadline != nil {
		data.InvoiceDeadline = order.InvoiceDeadline.UTC()
	}
	return outbox.DomainEvent{
		EventType:     enums.EventInvoiceOverdue,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data:          data,
	}
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

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
