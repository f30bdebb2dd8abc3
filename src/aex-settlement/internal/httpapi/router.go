package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/envelope"
)

// NewRouter builds the Payment Processor's HTTP surface: the A2A message
// endpoint, health, the DID document, and the transaction lookup/refund
// REST surface.
func NewRouter(h *Handlers, a2a *envelope.Handler, identity *agentidentity.Identity) http.Handler {
	a2a.RegisterHandler(envelope.TypePaymentMandate, h.HandlePaymentMandate)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /a2a/message", a2a.ReceiveHTTP)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())
	mux.HandleFunc("GET /transactions/{id}", h.GetTransaction)
	mux.HandleFunc("POST /transactions/{id}/refund", h.Refund)

	return mux
}
