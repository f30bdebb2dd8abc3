package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/service"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
)

// NewRouter builds the Credential Provider's HTTP surface: passkey
// registration, payment-method custody, step-up, attestation and
// credential verification, and receipt intake.
func NewRouter(svc *service.Service, identity *agentidentity.Identity) http.Handler {
	h := NewHandlers(svc)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())

	mux.HandleFunc("POST /register/passkey", h.RegisterPasskey)
	mux.HandleFunc("GET /payment-methods", h.GetPaymentMethods)
	mux.HandleFunc("POST /payment-methods/tokenize", h.Tokenize)
	mux.HandleFunc("POST /payment-methods/initiate-step-up", h.InitiateStepUp)
	mux.HandleFunc("GET /step-up/{sessionID}", h.GetStepUp)
	mux.HandleFunc("POST /step-up/{sessionID}/complete", h.CompleteStepUp)
	mux.HandleFunc("POST /payment-methods/verify-step-up", h.VerifyStepUp)
	mux.HandleFunc("POST /verify/attestation", h.VerifyAttestation)
	mux.HandleFunc("POST /credentials/verify", h.CredentialsVerify)
	mux.HandleFunc("POST /receipts", h.Receipts)

	return mux
}
