package cart

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/medfarma-backend/api/middleware"
	"github.com/angelmondragon/medfarma-backend/internal/checkout"
	"github.com/angelmondragon/medfarma-backend/internal/orders"
	"github.com/angelmondragon/medfarma-backend/internal/users"
	"github.com/angelmondragon/medfarma-backend/pkg/enums"
)

type stubCheckout struct {
	customer checkout.Customer
	cartID   string
	input    checkout.CheckoutInput
	calls    int
}

func (s *stubCheckout) Execute(_ context.Context, customer checkout.Customer, cartID string, input checkout.CheckoutInput) (*orders.OrderDTO, error) {
	s.calls++
	s.customer, s.cartID, s.input = customer, cartID, input
	return &orders.OrderDTO{ID: uuid.New(), Number: "PED-1001", CustomerID: customer.ID}, nil
}

func customerRequest(body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(http.MethodPost, "/api/customer/checkout", nil)
	} else {
		req = httptest.NewRequest(http.MethodPost, "/api/customer/checkout", strings.NewReader(body))
	}
	user := &users.ApplicationUser{ID: uuid.New(), Email: "compras@clinica.test", FullName: "Clinica Sur", Role: enums.RoleCliente}
	return req.WithContext(middleware.WithUser(req.Context(), user))
}

func TestCartCheckoutCreatesOrderFromCookieCart(t *testing.T) {
	svc := &stubCheckout{}
	cartID := existingCartID(t)

	req := customerRequest(`{"notes":"entregar por la tarde"}`)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cartID})
	resp := httptest.NewRecorder()
	CartCheckout(svc, testCookie(), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.cartID != cartID || svc.customer.Email != "compras@clinica.test" {
		t.Fatalf("unexpected call cart=%s customer=%+v", svc.cartID, svc.customer)
	}
	if svc.input.Notes == nil || *svc.input.Notes != "entregar por la tarde" {
		t.Fatalf("notes not forwarded: %+v", svc.input)
	}
}

func TestCartCheckoutWithoutCartIsRejected(t *testing.T) {
	svc := &stubCheckout{}
	resp := httptest.NewRecorder()
	CartCheckout(svc, testCookie(), nil).ServeHTTP(resp, customerRequest(""))

	if resp.Code != http.StatusBadRequest || svc.calls != 0 {
		t.Fatalf("expected 400 without calling checkout, got %d calls=%d", resp.Code, svc.calls)
	}
}

func TestCartCheckoutRequiresUser(t *testing.T) {
	svc := &stubCheckout{}
	req := httptest.NewRequest(http.MethodPost, "/api/customer/checkout", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: existingCartID(t)})
	resp := httptest.NewRecorder()
	CartCheckout(svc, testCookie(), nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
