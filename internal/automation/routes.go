package automation

import "github.com/angelmondragon/medfarma-backend/pkg/enums"

// webhookPaths maps each back-office event onto its workflow.
var webhookPaths = map[enums.OutboxEventType]string{
	enums.EventClientRegistered:       "validacion-cliente",
	enums.EventProductLowStock:        "alerta-stock",
	enums.EventPasswordResetRequested: "recuperar-password",
	enums.EventUserStateChanged:       "estado-usuario",
	enums.EventOrderCreated:           "nuevo-pedido",
	enums.EventOrderStatusChanged:     "estado-pedido",
	enums.EventInvoiceOverdue:         "alerta-facturacion",
	enums.EventPurchaseOrderCreated:   "orden-compra",
}

// WebhookPath returns the workflow path for eventType.
func WebhookPath(eventType enums.OutboxEventType) (string, bool) {
	path, ok := webhookPaths[eventType]
	return path, ok
}
