package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parlakisik/aex-ap2/aex-gateway/internal/config"
)

func TestRouter_RoutesAndStripsVersionPrefix(t *testing.T) {
	var gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := config.Load()
	cfg.ShoppingAgentURL = upstream.URL
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/purchases/purchase_1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("proxied request returned %d", rec.Code)
	}
	if gotPath != "/purchases/purchase_1" {
		t.Errorf("upstream path = %q, want version prefix stripped", gotPath)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := NewRouter(config.Load())

	req := httptest.NewRequest(http.MethodGet, "/v1/nope", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown route returned %d, want 404", rec.Code)
	}
}

func TestRouter_StripsExternalAuthHeaders(t *testing.T) {
	var sawAPIKey, sawAuthz string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAPIKey = r.Header.Get("X-API-Key")
		sawAuthz = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := config.Load()
	cfg.SettlementURL = upstream.URL
	router := NewRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/txn_1", nil)
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if sawAPIKey != "" || sawAuthz != "" {
		t.Error("external auth headers leaked upstream")
	}
}
