package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/internal/agentidentity"
)

// NewRouter builds the Shopping Agent's HTTP surface: one endpoint per
// state-machine step, plus health and the DID document the Payment
// Processor resolves the user-authorization holder key from.
func NewRouter(h *Handlers, identity *agentidentity.Identity) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /purchases", h.CreatePurchase)
	mux.HandleFunc("GET /purchases", h.ListPurchases)
	mux.HandleFunc("GET /purchases/{id}", h.GetPurchase)
	mux.HandleFunc("POST /purchases/{id}/challenges", h.CreateChallenge)
	mux.HandleFunc("POST /purchases/{id}/confirm-intent", h.ConfirmIntent)
	mux.HandleFunc("POST /purchases/{id}/request-carts", h.RequestCarts)
	mux.HandleFunc("POST /purchases/{id}/select-cart", h.SelectCart)
	mux.HandleFunc("POST /purchases/{id}/confirm-cart", h.ConfirmCart)
	mux.HandleFunc("POST /purchases/{id}/choose-method", h.ChooseMethod)
	mux.HandleFunc("POST /purchases/{id}/verify-step-up", h.VerifyStepUp)
	mux.HandleFunc("POST /purchases/{id}/pay", h.Pay)

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())

	return mux
}
