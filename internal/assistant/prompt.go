package assistant

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

const (
	productContextHeader = "CATÁLOGO DE PRODUCTOS:\n\n"
	clientContextHeader  = "CLIENTES ACTIVOS:\n\n"
	queryMarker          = "\n\nCONSULTA DEL VENDEDOR:\n"
	descriptionLimit     = 100
	noCategory           = "Sin categoría"
)

const systemInstruction = `Eres un asistente de ventas experto de MEDICAL FARMA S.A., una distribuidora farmacéutica argentina.

TU ROL:
- Ayudar a los vendedores a consultar información de productos
- Verificar disponibilidad y precios
- Proporcionar datos de contacto de clientes
- Recomendar productos según necesidades del cliente
- Alertar sobre productos con stock bajo o sin stock

INSTRUCCIONES:
✅ SIEMPRE responde en español argentino profesional
✅ Sé claro, conciso y útil
✅ Si un producto tiene stock bajo, sugiere contactar a compras
✅ Si no hay stock, ofrece alternativas similares
✅ Formatea las respuestas con emojis para mejor legibilidad
✅ Si no encuentras información exacta, pide más detalles

❌ NO inventes información que no esté en el contexto
❌ NO des consejos médicos
❌ NO modifiques precios ni stock

INFORMACIÓN DISPONIBLE:

`

const closingReminder = "Recuerda: Tu objetivo es hacer que los vendedores sean más eficientes y puedan responder rápidamente a los clientes."

// SuggestedQuestions seeds the chat page.
var SuggestedQuestions = []string{
	"¿Qué productos tenemos con stock bajo?",
	"¿Cuál es el precio de los guantes de látex?",
	"¿Qué productos están sin stock?",
	"¿Qué alternativas hay para jeringas descartables?",
	"Dame la lista de productos de la categoría descartables",
	"¿Cuál es el precio por lote de los barbijos?",
	"¿Qué marcas de gasas tenemos disponibles?",
	"¿Qué clientes activos tenemos registrados?",
}

// BuildProductContext renders the catalog block of the prompt.
func BuildProductContext(products []models.Product) string {
	var sb strings.Builder
	sb.WriteString(productContextHeader)
	for _, p := range products {
		sb.WriteString("📦 ")
		sb.WriteString(p.Name)
		sb.WriteString("\n   Categoría: ")
		if p.Category != nil && strings.TrimSpace(*p.Category) != "" {
			sb.WriteString(*p.Category)
		} else {
			sb.WriteString(noCategory)
		}
		sb.WriteString("\n   Stock: ")
		sb.WriteString(strconv.Itoa(p.StockCurrent))
		sb.WriteString(" unidades")
		switch {
		case p.StockCurrent <= 0:
			sb.WriteString(" ❌ SIN STOCK")
		case p.IsLowStock():
			sb.WriteString(" ⚠️ STOCK BAJO")
		}
		sb.WriteString("\n   Precio unitario: $")
		sb.WriteString(p.UnitPrice.StringFixed(2))
		if p.LotPrice != nil {
			sb.WriteString(" | Precio por lote: $")
			sb.WriteString(p.LotPrice.StringFixed(2))
		}
		if len(p.Brands) > 0 {
			sb.WriteString("\n   Marcas: ")
			sb.WriteString(strings.Join(p.Brands, ", "))
		}
		if p.TechnicalDescription != nil && strings.TrimSpace(*p.TechnicalDescription) != "" {
			sb.WriteString("\n   Descripción: ")
			sb.WriteString(truncate(*p.TechnicalDescription, descriptionLimit))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// BuildClientContext renders the client block. No clients renders nothing.
func BuildClientContext(clients []models.User) string {
	if len(clients) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(clientContextHeader)
	for _, c := range clients {
		sb.WriteString("👤 ")
		sb.WriteString(c.FullName)
		sb.WriteString("\n   DNI/CUIT: ")
		sb.WriteString(deref(c.TaxID))
		sb.WriteString("\n   Email: ")
		sb.WriteString(c.Email)
		sb.WriteString("\n")
		if phone := deref(c.WhatsApp); phone != "" {
			sb.WriteString("   Teléfono: ")
			sb.WriteString(phone)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// BuildPrompt assembles the full prompt sent to the model.
func BuildPrompt(productContext, clientContext, message string) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString(productContext)
	sb.WriteString("\n\n")
	sb.WriteString(clientContext)
	sb.WriteString("\n\n")
	sb.WriteString(closingReminder)
	sb.WriteString(queryMarker)
	sb.WriteString(message)
	return sb.String()
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
