package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-merchant/internal/service"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// NewRouter builds the Merchant's HTTP surface: POST /sign/cart (not A2A —
// the Merchant has no signing authority over anything but its own carts,
// so it is reached by plain HTTP+JSON from the Merchant Agent), plus health
// and DID document endpoints.
func NewRouter(svc *service.Service, identity *agentidentity.Identity) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /sign/cart", func(w http.ResponseWriter, r *http.Request) {
		var req service.SignCartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, ap2.ErrInvalidCart(err))
			return
		}

		signed, err := svc.SignCart(r.Context(), req.CartMandate.Contents)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, service.SignCartResponse{
			SignedCartMandate:     *signed,
			MerchantAuthorization: signed.MerchantAuthorization,
		})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal_error"
	msg := err.Error()

	var ap2Err *ap2.Error
	if errors.As(err, &ap2Err) {
		status = ap2Err.HTTPStatus
		kind = ap2Err.Kind
		msg = ap2Err.Message
	}

	slog.Warn("sign_cart_rejected", "error_kind", kind, "error", err)
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": msg})
}
