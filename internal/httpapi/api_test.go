package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"authgrid.org/internal/auth"
	"authgrid.org/internal/kv"
	"authgrid.org/internal/ratelimit"
)

func newTestAPI(t *testing.T, limiter *ratelimit.Limiter) (*API, *auth.TokenIssuer) {
	t.Helper()
	tokens, err := auth.NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	// Handlers that reach the service are not exercised here; the middleware
	// chain rejects these requests first.
	return New(nil, tokens, limiter, ReadyProbe{}, "test"), tokens
}

func TestHealthzIsPublic(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestProtectedRouteRequiresToken(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/roles", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestProtectedRouteRejectsGarbageToken(t *testing.T) {
	api, _ := newTestAPI(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestGateDeniesWithoutPermission(t *testing.T) {
	api, tokens := newTestAPI(t, nil)
	pair, err := tokens.Mint("user-1", nil, false)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestAdmissionRejectsOverCeiling(t *testing.T) {
	api, tokens := newTestAPI(t, ratelimit.New(kv.NewMemory(), 1))
	pair, err := tokens.Mint("user-1", nil, false)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v1/roles", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(); code != http.StatusForbidden {
		t.Fatalf("first request status = %d, want 403", code)
	}
	if code := do(); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", code)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.c","bogus":1}`))
	rec := httptest.NewRecorder()
	var dst loginRequest
	if err := decodeJSON(rec, req, &dst); err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestDecodeJSONRequiresBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rec := httptest.NewRecorder()
	var dst loginRequest
	if err := decodeJSON(rec, req, &dst); err == nil {
		t.Fatalf("empty body accepted")
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:4242"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("clientIP = %q", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.7" {
		t.Fatalf("clientIP with XFF = %q", ip)
	}
}

func TestQueryIntFallsBack(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=abc&offset=-2", nil)
	if got := queryInt(req, "limit", 50); got != 50 {
		t.Fatalf("limit = %d, want 50", got)
	}
	if got := queryInt(req, "offset", 0); got != 0 {
		t.Fatalf("offset = %d, want 0", got)
	}
	req = httptest.NewRequest(http.MethodGet, "/?limit=10", nil)
	if got := queryInt(req, "limit", 50); got != 10 {
		t.Fatalf("limit = %d, want 10", got)
	}
}
