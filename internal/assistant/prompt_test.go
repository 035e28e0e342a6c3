package assistant

import (
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/medfarma-backend/pkg/db/models"
)

func TestBuildProductContextMarksStock(t *testing.T) {
	category := "Descartables"
	lot := decimal.RequireFromString("900")
	products := []models.Product{
		{Name: "Guantes", Category: &category, StockCurrent: 3, StockMinimum: 10, UnitPrice: decimal.RequireFromString("12.5"), LotPrice: &lot, Brands: pq.StringArray{"Acme", "Medix"}},
		{Name: "Gasas", StockCurrent: 0, StockMinimum: 5, UnitPrice: decimal.RequireFromString("3")},
		{Name: "Jeringas", StockCurrent: 50, StockMinimum: 5, UnitPrice: decimal.RequireFromString("1.2")},
	}

	got := BuildProductContext(products)

	if !strings.HasPrefix(got, "CATÁLOGO DE PRODUCTOS:") {
		t.Fatalf("missing header: %q", got)
	}
	checks := []string{
		"📦 Guantes\n   Categoría: Descartables\n   Stock: 3 unidades ⚠️ STOCK BAJO",
		"Precio unitario: $12.50 | Precio por lote: $900.00",
		"Marcas: Acme, Medix",
		"📦 Gasas\n   Categoría: Sin categoría\n   Stock: 0 unidades ❌ SIN STOCK",
		"📦 Jeringas\n   Categoría: Sin categoría\n   Stock: 50 unidades\n",
	}
	for _, want := range checks {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in context:\n%s", want, got)
		}
	}
}

func TestBuildProductContextTruncatesDescription(t *testing.T) {
	desc := strings.Repeat("á", 150)
	got := BuildProductContext([]models.Product{{Name: "X", TechnicalDescription: &desc, UnitPrice: decimal.Zero}})

	want := "Descripción: " + strings.Repeat("á", 100) + "..."
	if !strings.Contains(got, want) {
		t.Fatalf("expected truncated description, got %q", got)
	}
}

func TestBuildClientContext(t *testing.T) {
	if got := BuildClientContext(nil); got != "" {
		t.Fatalf("expected empty context, got %q", got)
	}

	tax := "20-12345678-9"
	phone := "+54 11 5555 5555"
	got := BuildClientContext([]models.User{{FullName: "Clínica Sur", Email: "compras@sur.test", TaxID: &tax, WhatsApp: &phone}})

	want := "👤 Clínica Sur\n   DNI/CUIT: 20-12345678-9\n   Email: compras@sur.test\n   Teléfono: +54 11 5555 5555\n"
	if !strings.HasPrefix(got, "CLIENTES ACTIVOS:") || !strings.Contains(got, want) {
		t.Fatalf("unexpected client context %q", got)
	}
}

func TestBuildPromptEndsWithQuery(t *testing.T) {
	got := BuildPrompt("CATÁLOGO DE PRODUCTOS:\n\n", "", "¿Qué hay sin stock?")

	if !strings.HasPrefix(got, "Eres un asistente de ventas experto de MEDICAL FARMA S.A.") {
		t.Fatalf("missing system instruction")
	}
	if !strings.Contains(got, "NO des consejos médicos") {
		t.Fatalf("missing medical advice rule")
	}
	if !strings.HasSuffix(got, "\n\nCONSULTA DEL VENDEDOR:\n¿Qué hay sin stock?") {
		t.Fatalf("unexpected prompt tail %q", got[len(got)-60:])
	}
}
