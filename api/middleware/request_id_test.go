package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestIDReusesWellFormedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	req.Header.Set(requestIDHeader, "lb-7f3a9c21e0")
	rec := httptest.NewRecorder()

	RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "lb-7f3a9c21e0" {
		t.Fatalf("expected inbound id echoed, got %q", got)
	}
}

func TestRequestIDReplacesUnsafeHeader(t *testing.T) {
	for _, inbound := range []string{"", "short", "id\nlevel=error msg=forged", "id with spaces here"} {
		req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
		req.Header.Set(requestIDHeader, inbound)
		rec := httptest.NewRecorder()

		RequestID(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

		got := rec.Header().Get(requestIDHeader)
		if _, err := uuid.Parse(got); err != nil {
			t.Fatalf("inbound %q: expected a generated uuid, got %q", inbound, got)
		}
	}
}
