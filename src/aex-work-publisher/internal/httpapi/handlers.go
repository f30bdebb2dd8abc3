package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/service"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/store"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// Handlers exposes the purchase state machine as explicit HTTP steps; the
// conversational surface that would drive them is out of scope.
type Handlers struct {
	svc   *service.Service
	store store.PurchaseStore
}

func NewHandlers(svc *service.Service, st store.PurchaseStore) *Handlers {
	return &Handlers{svc: svc, store: st}
}

func (h *Handlers) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req model.CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	purchase, err := h.svc.CreatePurchase(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, purchase)
}

func (h *Handlers) GetPurchase(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.svc.GetPurchase(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) ListPurchases(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, ap2.ErrSchemaInvalid(errors.New("user_id is required")))
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	purchases, err := h.store.ListPurchases(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purchases": purchases, "count": len(purchases)})
}

func (h *Handlers) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.svc.CreateChallenge(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, challenge)
}

type ceremonyRequest struct {
	ChallengeID string                    `json:"challenge_id"`
	Attestation ap2.WebAuthnAssertionJSON `json:"attestation"`
}

func (h *Handlers) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	var req ceremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	purchase, err := h.svc.ConfirmIntent(r.Context(), r.PathValue("id"), req.ChallengeID, req.Attestation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) RequestCarts(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.svc.RequestCartCandidates(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) SelectCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ArtifactID string `json:"artifact_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	purchase, err := h.svc.SelectCart(r.Context(), r.PathValue("id"), req.ArtifactID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) ConfirmCart(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.svc.ConfirmCart(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) ChooseMethod(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentMethodID string `json:"payment_method_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	result, err := h.svc.ChoosePaymentMethod(r.Context(), r.PathValue("id"), req.PaymentMethodID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) VerifyStepUp(w http.ResponseWriter, r *http.Request) {
	purchase, err := h.svc.VerifyStepUp(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) Pay(w http.ResponseWriter, r *http.Request) {
	var req ceremonyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ap2.ErrSchemaInvalid(err))
		return
	}
	purchase, err := h.svc.Pay(r.Context(), r.PathValue("id"), req.ChallengeID, req.Attestation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, purchase)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
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
	var badTransition model.ErrInvalidTransition
	switch {
	case errors.As(err, &ap2Err):
		status = ap2Err.HTTPStatus
		kind = ap2Err.Kind
		msg = ap2Err.Message
	case errors.As(err, &badTransition):
		status = http.StatusConflict
		kind = "invalid_purchase_state"
	case errors.Is(err, store.ErrPurchaseNotFound):
		status = http.StatusNotFound
		kind = "purchase_not_found"
	}

	slog.Warn("purchase_request_rejected", "error_kind", kind, "error", err)
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": msg})
}
