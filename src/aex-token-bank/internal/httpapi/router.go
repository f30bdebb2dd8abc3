package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/model"
	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/service"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// NewRouter builds the Payment Network's HTTP surface: agent-token
// issuance and verification.
func NewRouter(svc *service.Service, identity *agentidentity.Identity) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("GET /.well-known/did.json", identity.WellKnownHandler())

	mux.HandleFunc("POST /network/tokenize", func(w http.ResponseWriter, r *http.Request) {
		var req model.TokenizeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, ap2.ErrSchemaInvalid(err))
			return
		}
		resp, err := svc.Tokenize(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("POST /network/verify-token", func(w http.ResponseWriter, r *http.Request) {
		var req model.VerifyTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, ap2.ErrSchemaInvalid(err))
			return
		}
		resp, err := svc.VerifyToken(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	})

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

	slog.Warn("payment_network_request_rejected", "error_kind", kind, "error", err)
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": msg})
}
