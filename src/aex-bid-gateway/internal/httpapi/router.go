package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/service"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/envelope"
)

// NewRouter builds the Merchant Agent's HTTP surface. All mandate traffic
// arrives over the A2A message endpoint; the audit listing is a plain read
// surface for operators.
func NewRouter(svc *service.Service, audit store.AuditStore, a2a *envelope.Handler, identity *agentidentity.Identity) http.Handler {
	a2a.RegisterHandler(envelope.TypeIntentMandate, svc.HandleIntentMandate)
	a2a.RegisterHandler(envelope.TypePaymentMandate, svc.HandlePaymentMandate)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /a2a/message", a2a.ReceiveHTTP)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())

	mux.HandleFunc("GET /audit", func(w http.ResponseWriter, r *http.Request) {
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}
		entries, err := audit.ListAudit(r.Context(), limit)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "count": len(entries)})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
