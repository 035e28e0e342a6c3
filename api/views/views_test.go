package views

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/medfarma-backend/internal/access"
	"github.com/angelmondragon/medfarma-backend/internal/permissions"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	v, err := NewRenderer(nil)
	if err != nil {
		t.Fatalf("parse templates: %v", err)
	}
	return v
}

func TestBlockedPageNamesStateAndOffersLogout(t *testing.T) {
	v := newTestRenderer(t)
	cases := map[enums.ApprovalState]string{
		enums.ApprovalPendiente:  "pendiente de aprobación",
		enums.ApprovalRechazado:  "rechazada",
		enums.ApprovalSuspendido: "suspendida",
	}
	for state, want := range cases {
		rec := httptest.NewRecorder()
		v.Blocked(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil), access.PortalCustomer, state)

		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 got %d", state, rec.Code)
		}
		body := rec.Body.String()
		if !strings.Contains(body, want) {
			t.Fatalf("%s: expected %q in page", state, want)
		}
		if strings.Count(body, "<form") != 1 || !strings.Contains(body, `action="/auth/logout"`) {
			t.Fatalf("%s: expected a single logout form, got %s", state, body)
		}
		if !strings.Contains(body, `value="customer"`) {
			t.Fatalf("%s: logout form must carry the portal", state)
		}
	}
}

func TestLoginPageEscapesInput(t *testing.T) {
	v := newTestRenderer(t)
	rec := httptest.NewRecorder()
	v.Login(rec, httptest.NewRequest(http.MethodGet, "/acceso", nil), http.StatusOK, LoginPage{
		Portal: access.PortalStaff,
		Next:   `/admin/stock"><script>`,
	})

	body := rec.Body.String()
	if strings.Contains(body, "<script>") {
		t.Fatalf("next value was not escaped: %s", body)
	}
	if !strings.Contains(body, "Acceso del personal") {
		t.Fatalf("expected staff heading")
	}
}

func TestDashboardRendersDisabledTilesWithoutHref(t *testing.T) {
	v := newTestRenderer(t)
	rec := httptest.NewRecorder()
	v.Dashboard(rec, httptest.NewRequest(http.MethodGet, "/admin/dashboard", nil), DashboardPage{
		User: &users.ApplicationUser{FullName: "Ana"},
		Tiles: []permissions.Tile{
			{Key: "stock", Title: "Stock", Href: "/admin/stock", Enabled: true},
			{Key: "compras", Title: "Compras", Enabled: false},
		},
	})

	body := rec.Body.String()
	if !strings.Contains(body, `<a href="/admin/stock">Stock</a>`) {
		t.Fatalf("expected enabled stock link: %s", body)
	}
	if strings.Contains(body, `/admin/compras`) {
		t.Fatalf("disabled tile must not link: %s", body)
	}
}
