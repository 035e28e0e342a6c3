package enums

import (
	"fmt"
	"strings"
)

// DispatchStatus is dispatches.status.
type DispatchStatus string

const (
	DispatchPreparacion DispatchStatus = "preparacion"
	DispatchListo       DispatchStatus = "listo"
	DispatchDespachado  DispatchStatus = "despachado"
	DispatchEntregado   DispatchStatus = "entregado"
	DispatchError       DispatchStatus = "error"
)

func (s DispatchStatus) IsValid() bool {
	switch s {
	case DispatchPreparacion, DispatchListo, DispatchDespachado, DispatchEntregado, DispatchError:
		return true
	}
	return false
}

// Active reports whether the dispatch still needs attention from the floor.
func (s DispatchStatus) Active() bool {
	return s != DispatchEntregado
}

// OrderStatus is the order state a dispatch in this state implies. Error
// leaves the order untouched.
func (s DispatchStatus) OrderStatus() (OrderStatus, bool) {
	switch s {
	case DispatchPreparacion, DispatchListo:
		return OrderStatusEnPreparacion, true
	case DispatchDespachado:
		return OrderStatusDespachado, true
	case DispatchEntregado:
		return OrderStatusEntregado, true
	}
	return "", false
}

func ParseDispatchStatus(value string) (DispatchStatus, error) {
	status := DispatchStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid dispatch status %q", value)
	}
	return status, nil
}

// PartnerStatus is the activo/inactivo flag on suppliers and carriers.
type PartnerStatus string

const (
	PartnerActivo   PartnerStatus = "activo"
	PartnerInactivo PartnerStatus = "inactivo"
)

func (s PartnerStatus) IsValid() bool {
	return s == PartnerActivo || s == PartnerInactivo
}

func ParsePartnerStatus(value string) (PartnerStatus, error) {
	status := PartnerStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status %q", value)
	}
	return status, nil
}

// PurchaseOrderStatus is purchase_orders.status.
type PurchaseOrderStatus string

const (
	PurchasePendiente PurchaseOrderStatus = "pendiente"
	PurchaseEnviada   PurchaseOrderStatus = "enviada"
	PurchaseRecibida  PurchaseOrderStatus = "recibida"
	PurchaseCancelada PurchaseOrderStatus = "cancelada"
)

func (s PurchaseOrderStatus) IsValid() bool {
	switch s {
	case PurchasePendiente, PurchaseEnviada, PurchaseRecibida, PurchaseCancelada:
		return true
	}
	return false
}

// Open reports whether the purchase order still counts as pending.
func (s PurchaseOrderStatus) Open() bool {
	return s == PurchasePendiente || s == PurchaseEnviada
}

// CanMoveTo lists the allowed transitions: pendiente may be sent, received or
// cancelled; enviada may be received or cancelled; the rest are final.
func (s PurchaseOrderStatus) CanMoveTo(next PurchaseOrderStatus) bool {
	switch s {
	case PurchasePendiente:
		return next == PurchaseEnviada || next == PurchaseRecibida || next == PurchaseCancelada
	case PurchaseEnviada:
		return next == PurchaseRecibida || next == PurchaseCancelada
	}
	return false
}

func ParsePurchaseOrderStatus(value string) (PurchaseOrderStatus, error) {
	status := PurchaseOrderStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid purchase order status %q", value)
	}
	return status, nil
}
