// Package service implements the mandate-chain artefact archive: the
// store of settled chains that would feed a dispute. The archive accepts
// the Payment Processor's fire-and-forget archival events (idempotent on
// transaction_id, since delivery is at-least-once) and tracks each
// bundle's dispute lifecycle.
package service

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/model"
	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/store"
)

type Service struct {
	store      store.ArtifactStore
	settlement *clients.SettlementClient
}

func New(st store.ArtifactStore, settlement *clients.SettlementClient) *Service {
	return &Service{store: st, settlement: settlement}
}

// archiveRequest accepts both the event-publisher webhook envelope and a
// direct artifact POST carrying the full chain.
type archiveRequest struct {
	// Webhook envelope form.
	EventType      string         `json:"event_type,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Source         string         `json:"source,omitempty"`
	PayerID        string         `json:"payer_id,omitempty"`
	Data           map[string]any `json:"data,omitempty"`

	// Direct form.
	TransactionID    string         `json:"transaction_id,omitempty"`
	PaymentMandateID string         `json:"payment_mandate_id,omitempty"`
	CartMandateID    string         `json:"cart_mandate_id,omitempty"`
	PaymentMandate   map[string]any `json:"payment_mandate,omitempty"`
	CartMandate      map[string]any `json:"cart_mandate,omitempty"`
	IntentMandate    map[string]any `json:"intent_mandate,omitempty"`
}

func (s *Service) HandleArchive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req archiveRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	artifact := model.ChainArtifact{
		ArchiveID:        generateID("archive"),
		TransactionID:    req.TransactionID,
		PaymentMandateID: req.PaymentMandateID,
		CartMandateID:    req.CartMandateID,
		PayerID:          req.PayerID,
		PaymentMandate:   req.PaymentMandate,
		CartMandate:      req.CartMandate,
		IntentMandate:    req.IntentMandate,
		Source:           req.Source,
		IdempotencyKey:   req.IdempotencyKey,
		Status:           model.ArtifactStatusStored,
		ArchivedAt:       time.Now().UTC(),
	}
	if req.Data != nil {
		if v, ok := req.Data["transaction_id"].(string); ok {
			artifact.TransactionID = v
		}
		if v, ok := req.Data["payment_mandate_id"].(string); ok {
			artifact.PaymentMandateID = v
		}
		if v, ok := req.Data["cart_mandate_id"].(string); ok {
			artifact.CartMandateID = v
		}
		if v, ok := req.Data["payer_id"].(string); ok {
			artifact.PayerID = v
		}
	}
	if artifact.TransactionID == "" {
		http.Error(w, "transaction_id is required", http.StatusBadRequest)
		return
	}

	stored, err := s.store.Save(ctx, artifact)
	if err != nil {
		slog.ErrorContext(ctx, "artifact archive failed", "transaction_id", artifact.TransactionID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if stored.ArchiveID == artifact.ArchiveID {
		slog.InfoContext(ctx, "chain_archived",
			"archive_id", stored.ArchiveID,
			"transaction_id", stored.TransactionID,
			"payment_mandate_id", stored.PaymentMandateID,
		)
	} else {
		slog.DebugContext(ctx, "chain_archive_duplicate", "transaction_id", artifact.TransactionID)
	}
	writeJSON(w, http.StatusAccepted, stored)
}

func (s *Service) HandleGet(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.store.GetByTransaction(r.Context(), r.PathValue("transactionID"))
	if err != nil {
		if errors.Is(err, store.ErrArtifactNotFound) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (s *Service) HandleList(w http.ResponseWriter, r *http.Request) {
	status := model.ArtifactStatus(strings.ToUpper(r.URL.Query().Get("status")))
	artifacts, err := s.store.List(r.Context(), status, 100)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts, "count": len(artifacts)})
}

func (s *Service) HandleDispute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transactionID := r.PathValue("transactionID")

	var req model.DisputeRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Reason) == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return
	}

	artifact, err := s.store.GetByTransaction(ctx, transactionID)
	if err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	if !model.CanTransition(artifact.Status, model.ArtifactStatusDisputed) {
		http.Error(w, "artifact is not disputable in state "+string(artifact.Status), http.StatusConflict)
		return
	}

	// Cross-check against the processor's transaction of record; a dispute
	// over a transaction settlement does not know about is suspicious in
	// itself, but still recorded.
	if tx, err := s.settlement.GetTransaction(ctx, transactionID); err != nil {
		slog.WarnContext(ctx, "transaction_cross_check_unavailable", "transaction_id", transactionID, "error", err)
	} else if tx.PaymentMandateID != artifact.PaymentMandateID {
		slog.WarnContext(ctx, "transaction_cross_check_mismatch",
			"transaction_id", transactionID,
			"archived_payment_mandate_id", artifact.PaymentMandateID,
			"settled_payment_mandate_id", tx.PaymentMandateID,
		)
	}

	now := time.Now().UTC()
	artifact.Status = model.ArtifactStatusDisputed
	artifact.DisputeReason = req.Reason
	artifact.DisputedAt = &now
	artifact.DisputeNotes = append(artifact.DisputeNotes, model.DisputeNote{
		Author:    req.Author,
		Note:      req.Reason,
		Timestamp: now,
	})

	if err := s.store.Update(ctx, *artifact); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "artifact_disputed", "transaction_id", transactionID, "reason", req.Reason)
	writeJSON(w, http.StatusOK, artifact)
}

func (s *Service) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transactionID := r.PathValue("transactionID")

	var req model.ResolveRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Resolution) == "" {
		http.Error(w, "resolution is required", http.StatusBadRequest)
		return
	}

	artifact, err := s.store.GetByTransaction(ctx, transactionID)
	if err != nil {
		http.Error(w, "artifact not found", http.StatusNotFound)
		return
	}
	if !model.CanTransition(artifact.Status, model.ArtifactStatusResolved) {
		http.Error(w, "artifact is not resolvable in state "+string(artifact.Status), http.StatusConflict)
		return
	}

	now := time.Now().UTC()
	artifact.Status = model.ArtifactStatusResolved
	artifact.ResolvedAt = &now
	artifact.DisputeNotes = append(artifact.DisputeNotes, model.DisputeNote{
		Author:    req.Author,
		Note:      req.Resolution,
		Timestamp: now,
	})

	if err := s.store.Update(ctx, *artifact); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "artifact_resolved", "transaction_id", transactionID)
	writeJSON(w, http.StatusOK, artifact)
}

func decodeJSON(r *http.Request, v any) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}
