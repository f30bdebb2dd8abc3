package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/service"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// Handlers contains HTTP handlers for the Credential Provider's REST API.
type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) RegisterPasskey(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterPasskeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	if err := h.svc.RegisterPasskey(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": true})
}

func (h *Handlers) GetPaymentMethods(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, ap2.ErrSchemaInvalid(errors.New("user_id is required")))
		return
	}
	methods, err := h.svc.ListPaymentMethods(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"methods": methods})
}

func (h *Handlers) Tokenize(w http.ResponseWriter, r *http.Request) {
	var req service.TokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	resp, err := h.svc.Tokenize(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) InitiateStepUp(w http.ResponseWriter, r *http.Request) {
	var req service.InitiateStepUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	resp, err := h.svc.InitiateStepUp(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetStepUp(w http.ResponseWriter, r *http.Request) {
	session, err := h.svc.GetStepUp(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handlers) CompleteStepUp(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.CompleteStepUp(r.Context(), r.PathValue("sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) VerifyStepUp(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyStepUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	resp, err := h.svc.VerifyStepUp(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) VerifyAttestation(w http.ResponseWriter, r *http.Request) {
	var req service.VerifyAttestationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	resp, err := h.svc.VerifyAttestation(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) CredentialsVerify(w http.ResponseWriter, r *http.Request) {
	var req service.CredentialsVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	resp, err := h.svc.CredentialsVerify(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Receipts(w http.ResponseWriter, r *http.Request) {
	var req service.ReceiptsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	if err := h.svc.Receipts(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stored": true})
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

	slog.Warn("credentials_provider_request_rejected", "error_kind", kind, "error", err)
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": msg})
}
