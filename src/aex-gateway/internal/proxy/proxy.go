package proxy

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/parlakisik/aex-ap2/aex-gateway/internal/config"
	"github.com/parlakisik/aex-ap2/aex-gateway/internal/middleware"
)

type Router struct {
	routes  map[string]string
	proxies map[string]*httputil.ReverseProxy
}

func NewRouter(cfg *config.Config) *Router {
	routes := map[string]string{
		// Shopping Agent: the user-side purchase state machine.
		"/v1/purchases": cfg.ShoppingAgentURL,

		// Credential Provider: payment-method custody, step-up, receipts.
		"/v1/payment-methods": cfg.CredentialsProviderURL,
		"/v1/step-up":         cfg.CredentialsProviderURL,
		"/v1/receipts":        cfg.CredentialsProviderURL,
		"/v1/register":        cfg.CredentialsProviderURL,

		// Payment Processor: transaction lookup and refunds.
		"/v1/transactions": cfg.SettlementURL,

		// Catalogue and DID registry read surfaces.
		"/v1/skus":   cfg.ProviderRegistryURL,
		"/v1/search": cfg.ProviderRegistryURL,
		"/v1/agents": cfg.TrustBrokerURL,
		"/v1/dids":   cfg.TrustBrokerURL,

		// Participant onboarding / API keys.
		"/v1/tenants": cfg.IdentityURL,
	}

	// The identity service versions its own surface; every other upstream
	// serves these resources at the root, so the gateway-only /v1 prefix is
	// stripped before proxying.
	keepPrefix := map[string]bool{
		"/v1/tenants": true,
	}

	proxies := make(map[string]*httputil.ReverseProxy)
	for prefix, upstream := range routes {
		u, err := url.Parse(upstream)
		if err != nil {
			continue
		}
		proxy := httputil.NewSingleHostReverseProxy(u)
		if !keepPrefix[prefix] {
			orig := proxy.Director
			proxy.Director = func(req *http.Request) {
				orig(req)
				req.URL.Path = strings.TrimPrefix(req.URL.Path, "/v1")
			}
		}
		proxies[prefix] = proxy
	}

	return &Router{
		routes:  routes,
		proxies: proxies,
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	path := req.URL.Path

	// Find matching route
	var matchedPrefix string
	var proxy *httputil.ReverseProxy

	for prefix := range r.routes {
		if strings.HasPrefix(path, prefix) {
			if len(prefix) > len(matchedPrefix) {
				matchedPrefix = prefix
				proxy = r.proxies[prefix]
			}
		}
	}

	if proxy == nil {
		respondError(w, http.StatusNotFound, "endpoint_not_found", "Endpoint not found", req)
		return
	}

	// Add internal headers
	tenantID := middleware.GetTenantID(req.Context())
	requestID := middleware.GetRequestID(req.Context())

	req.Header.Set("X-Tenant-ID", tenantID)
	req.Header.Set("X-Request-ID", requestID)

	// Remove external auth headers (already validated)
	req.Header.Del("X-API-Key")
	req.Header.Del("Authorization")

	// Proxy the request
	proxy.ServeHTTP(w, req)
}

func respondError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":       code,
			"message":    message,
			"request_id": middleware.GetRequestID(r.Context()),
		},
	})
}
