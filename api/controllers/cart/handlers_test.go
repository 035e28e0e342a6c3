package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	cartsvc "github.com/angelmondragon/medfarma-backend/internal/cart"
	pkgerrors "github.com/angelmondragon/medfarma-backend/pkg/errors"
)

const cookieName = "mf_cart"

type stubCartService struct {
	view       *cartsvc.View
	err        error
	lastCartID string
	lastItem   uuid.UUID
	lastQty    int
	calls      int
}

func (s *stubCartService) record(cartID string) (*cartsvc.View, error) {
	s.calls++
	s.lastCartID = cartID
	return s.view, s.err
}

func (s *stubCartService) Get(ctx context.Context, cartID string) (*cartsvc.View, error) {
	return s.record(cartID)
}

func (s *stubCartService) AddProduct(ctx context.Context, cartID string, productID uuid.UUID) (*cartsvc.View, error) {
	s.lastItem = productID
	return s.record(cartID)
}

func (s *stubCartService) SetQuantity(ctx context.Context, cartID string, itemID uuid.UUID, quantity int) (*cartsvc.View, error) {
	s.lastItem = itemID
	s.lastQty = quantity
	return s.record(cartID)
}

func (s *stubCartService) Remove(ctx context.Context, cartID string, itemID uuid.UUID) (*cartsvc.View, error) {
	s.lastItem = itemID
	return s.record(cartID)
}

func (s *stubCartService) Clear(ctx context.Context, cartID string) (*cartsvc.View, error) {
	return s.record(cartID)
}

func (s *stubCartService) Toggle(ctx context.Context, cartID string) (*cartsvc.View, error) {
	return s.record(cartID)
}

func testCookie() Cookie {
	return Cookie{Name: cookieName}
}

func existingCartID(t *testing.T) string {
	t.Helper()
	id, err := cartsvc.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	return id
}

func withItemParam(req *http.Request, itemID uuid.UUID) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("itemId", itemID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func issuedCookie(resp *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range resp.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func TestCartFetchWithoutCookieReturnsEmptyCart(t *testing.T) {
	svc := &stubCartService{}
	handler := CartFetch(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be called without a cart cookie")
	}
	if issuedCookie(resp) != nil {
		t.Fatalf("fetch must not issue a cart cookie")
	}

	var envelope struct {
		Data cartsvc.View `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Items) != 0 || envelope.Data.TotalItems != 0 {
		t.Fatalf("expected empty cart, got %+v", envelope.Data)
	}
}

func TestCartFetchIgnoresMalformedCookie(t *testing.T) {
	svc := &stubCartService{}
	handler := CartFetch(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: "../../etc"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || svc.calls != 0 {
		t.Fatalf("malformed cookie should behave as no cart; code=%d calls=%d", resp.Code, svc.calls)
	}
}

func TestCartAddItemIssuesCookie(t *testing.T) {
	productID := uuid.New()
	svc := &stubCartService{view: &cartsvc.View{
		Items:      []cartsvc.Item{{ID: productID, Name: "Guantes de nitrilo", Price: decimal.RequireFromString("12.50"), Quantity: 1}},
		IsOpen:     true,
		TotalItems: 1,
		TotalPrice: decimal.RequireFromString("12.50"),
	}}
	handler := CartAddItem(svc, testCookie(), nil)

	body := strings.NewReader(`{"product_id":"` + productID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", body)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	issued := issuedCookie(resp)
	if issued == nil {
		t.Fatal("expected a cart cookie")
	}
	if !issued.HttpOnly || issued.SameSite != http.SameSiteLaxMode {
		t.Fatalf("cart cookie should be HttpOnly and Lax, got %+v", issued)
	}
	if issued.Value != svc.lastCartID {
		t.Fatalf("service got cart %q, cookie carries %q", svc.lastCartID, issued.Value)
	}
	if svc.lastItem != productID {
		t.Fatalf("expected product %s, got %s", productID, svc.lastItem)
	}
}

func TestCartAddItemReusesExistingCookie(t *testing.T) {
	cartID := existingCartID(t)
	svc := &stubCartService{view: cartsvc.Empty()}
	handler := CartAddItem(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`"}`))
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cartID})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if issuedCookie(resp) != nil {
		t.Fatal("existing cart should not get a new cookie")
	}
	if svc.lastCartID != cartID {
		t.Fatalf("expected cart %s, got %s", cartID, svc.lastCartID)
	}
}

func TestCartAddItemRejectsPriceField(t *testing.T) {
	svc := &stubCartService{}
	handler := CartAddItem(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`","price":"0.01"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service should not be called on invalid input")
	}
}

func TestCartAddItemPropagatesNotFound(t *testing.T) {
	svc := &stubCartService{err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	handler := CartAddItem(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", strings.NewReader(`{"product_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestCartSetQuantityPassesItemAndQuantity(t *testing.T) {
	itemID := uuid.New()
	svc := &stubCartService{view: cartsvc.Empty()}
	handler := CartSetQuantity(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/cart/items/"+itemID.String(), strings.NewReader(`{"quantity":0}`))
	req.AddCookie(&http.Cookie{Name: cookieName, Value: existingCartID(t)})
	req = withItemParam(req, itemID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastItem != itemID || svc.lastQty != 0 {
		t.Fatalf("unexpected call item=%s qty=%d", svc.lastItem, svc.lastQty)
	}
}

func TestCartSetQuantityRejectsNegative(t *testing.T) {
	itemID := uuid.New()
	svc := &stubCartService{}
	handler := CartSetQuantity(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/cart/items/"+itemID.String(), strings.NewReader(`{"quantity":-1}`))
	req = withItemParam(req, itemID)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCartRemoveItemRejectsBadItemID(t *testing.T) {
	svc := &stubCartService{}
	handler := CartRemoveItem(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart/items/nope", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("itemId", "nope")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.calls != 0 {
		t.Fatal("service should not be called")
	}
}

func TestCartToggleUsesCookieCart(t *testing.T) {
	cartID := existingCartID(t)
	svc := &stubCartService{view: &cartsvc.View{Items: []cartsvc.Item{}, IsOpen: true}}
	handler := CartToggle(svc, testCookie(), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/cart/toggle", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cartID})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK || svc.lastCartID != cartID {
		t.Fatalf("unexpected toggle result code=%d cart=%s", resp.Code, svc.lastCartID)
	}
}

func TestCartHandlersWithoutService(t *testing.T) {
	handler := CartClear(nil, testCookie(), nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
