package enums

import (
	"fmt"
	"strings"
)

// OrderStatus tracks an order from checkout to invoicing on orders.status.
type OrderStatus string

const (
	OrderStatusCotizacion    OrderStatus = "cotizacion"
	OrderStatusConfirmado    OrderStatus = "confirmado"
	OrderStatusEnPreparacion OrderStatus = "en_preparacion"
	OrderStatusDespachado    OrderStatus = "despachado"
	OrderStatusEntregado     OrderStatus = "entregado"
	OrderStatusFacturado     OrderStatus = "facturado"
	OrderStatusCancelado     OrderStatus = "cancelado"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCotizacion, OrderStatusConfirmado, OrderStatusEnPreparacion,
		OrderStatusDespachado, OrderStatusEntregado, OrderStatusFacturado, OrderStatusCancelado:
		return true
	}
	return false
}

// Closed reports whether no further fulfilment can happen.
func (s OrderStatus) Closed() bool {
	return s == OrderStatusFacturado || s == OrderStatusCancelado
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid order status %q", value)
	}
	return status, nil
}

// PaymentStatus is orders.payment_status.
type PaymentStatus string

const (
	PaymentPendiente PaymentStatus = "pendiente"
	PaymentParcial   PaymentStatus = "parcial"
	PaymentPagado    PaymentStatus = "pagado"
)

func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentPendiente, PaymentParcial, PaymentPagado:
		return true
	}
	return false
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status %q", value)
	}
	return status, nil
}

// CommissionStatus is commissions.status.
type CommissionStatus string

const (
	CommissionPendiente CommissionStatus = "pendiente"
	CommissionLiquidado CommissionStatus = "liquidado"
	CommissionCancelado CommissionStatus = "cancelado"
)

func (s CommissionStatus) IsValid() bool {
	switch s {
	case CommissionPendiente, CommissionLiquidado, CommissionCancelado:
		return true
	}
	return false
}

func ParseCommissionStatus(value string) (CommissionStatus, error) {
	status := CommissionStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid commission status %q", value)
	}
	return status, nil
}
