package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/service"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/store"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/envelope"
)

// Handlers bridges the A2A envelope layer and the REST surface to the
// chain validator.
type Handlers struct {
	svc *service.Service
}

func NewHandlers(svc *service.Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandlePaymentMandate is the ap2.mandates.PaymentMandate data handler.
// Validation failures (steps 1-7) are reported inside a PaymentResult with
// status "error" — the envelope exchange itself succeeded, the chain did
// not. Settlement failures (steps 8-9) surface as errors so the sender
// sees a 5xx and knows the outcome is ambiguous.
func (h *Handlers) HandlePaymentMandate(ctx context.Context, env *envelope.Envelope) (string, interface{}, *envelope.ArtifactResponse, error) {
	var payload model.ChainPayload
	if err := json.Unmarshal(env.DataPart.Payload, &payload); err != nil {
		return "", nil, nil, ap2.ErrSchemaInvalid(err)
	}

	result, err := h.svc.ProcessPaymentMandate(ctx, payload)
	if err != nil {
		var ap2Err *ap2.Error
		if errors.As(err, &ap2Err) && ap2Err.HTTPStatus < 500 {
			slog.WarnContext(ctx, "mandate_chain_rejected",
				"message_id", env.Header.MessageID,
				"sender", env.Header.Sender,
				"payment_mandate_id", payload.PaymentMandate.PaymentMandateContents.PaymentMandateID,
				"error_kind", ap2Err.Kind,
			)
			return envelope.TypePaymentResult, model.PaymentResultPayload{
				Status: "error",
				Errors: []string{ap2Err.Kind + ": " + ap2Err.Message},
			}, nil, nil
		}
		return "", nil, nil, err
	}

	return envelope.TypePaymentResult, result, nil, nil
}

// GetTransaction serves GET /transactions/{id}.
func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			writeError(w, &ap2.Error{Kind: "transaction_not_found", Message: "no such transaction", HTTPStatus: http.StatusNotFound})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Refund serves POST /transactions/{id}/refund.
func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Refund(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			writeError(w, &ap2.Error{Kind: "transaction_not_found", Message: "no such transaction", HTTPStatus: http.StatusNotFound})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Health serves GET /health.
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
	if errors.As(err, &ap2Err) {
		status = ap2Err.HTTPStatus
		kind = ap2Err.Kind
		msg = ap2Err.Message
	}

	slog.Warn("settlement_request_rejected", "error_kind", kind, "error", err)
	writeJSON(w, status, map[string]string{"error_kind": kind, "message": msg})
}
