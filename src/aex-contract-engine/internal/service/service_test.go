package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/model"
	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/store"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	settlement := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(clients.Transaction{
			TransactionID:    "txn_1",
			PaymentMandateID: "pm_1",
			CartMandateID:    "cart_1",
			Status:           "captured",
		})
	}))
	t.Cleanup(settlement.Close)

	svc := New(store.NewMemoryStore(), clients.NewSettlementClient(settlement.URL))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /artifacts", svc.HandleArchive)
	mux.HandleFunc("GET /artifacts/{transactionID}", svc.HandleGet)
	mux.HandleFunc("POST /artifacts/{transactionID}/dispute", svc.HandleDispute)
	mux.HandleFunc("POST /artifacts/{transactionID}/resolve", svc.HandleResolve)
	return mux
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// webhookEnvelope is the event-publisher delivery shape.
func webhookEnvelope() map[string]any {
	return map[string]any{
		"event_id":        "evt_1",
		"event_type":      "mandate.chain_archived",
		"idempotency_key": "mandate.chain_archived_txn_1",
		"source":          "aex-settlement",
		"payer_id":        "user-123",
		"data": map[string]any{
			"transaction_id":     "txn_1",
			"payment_mandate_id": "pm_1",
			"cart_mandate_id":    "cart_1",
			"payer_id":           "user-123",
		},
	}
}

func TestArchive_FromWebhookEnvelope(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPost, "/artifacts", webhookEnvelope())
	if rec.Code != http.StatusAccepted {
		t.Fatalf("archive returned %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/artifacts/txn_1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get returned %d", rec.Code)
	}
	var artifact model.ChainArtifact
	if err := json.Unmarshal(rec.Body.Bytes(), &artifact); err != nil {
		t.Fatal(err)
	}
	if artifact.Status != model.ArtifactStatusStored {
		t.Errorf("status = %s", artifact.Status)
	}
	if artifact.PaymentMandateID != "pm_1" || artifact.PayerID != "user-123" {
		t.Errorf("artifact fields = %+v", artifact)
	}
}

func TestArchive_IdempotentOnTransactionID(t *testing.T) {
	h := newTestRouter(t)

	first := doJSON(t, h, http.MethodPost, "/artifacts", webhookEnvelope())
	second := doJSON(t, h, http.MethodPost, "/artifacts", webhookEnvelope())

	var a, b model.ChainArtifact
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if a.ArchiveID != b.ArchiveID {
		t.Errorf("retried delivery created a second record: %s vs %s", a.ArchiveID, b.ArchiveID)
	}
}

func TestDisputeLifecycle(t *testing.T) {
	h := newTestRouter(t)
	doJSON(t, h, http.MethodPost, "/artifacts", webhookEnvelope())

	// Resolving an undisputed artifact is refused.
	rec := doJSON(t, h, http.MethodPost, "/artifacts/txn_1/resolve", model.ResolveRequest{Resolution: "nothing to resolve"})
	if rec.Code != http.StatusConflict {
		t.Errorf("resolve before dispute returned %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/artifacts/txn_1/dispute", model.DisputeRequest{Reason: "item never arrived", Author: "user-123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("dispute returned %d: %s", rec.Code, rec.Body)
	}
	var artifact model.ChainArtifact
	if err := json.Unmarshal(rec.Body.Bytes(), &artifact); err != nil {
		t.Fatal(err)
	}
	if artifact.Status != model.ArtifactStatusDisputed || artifact.DisputedAt == nil {
		t.Errorf("dispute not recorded: %+v", artifact)
	}

	// A second dispute on the same artifact is refused.
	rec = doJSON(t, h, http.MethodPost, "/artifacts/txn_1/dispute", model.DisputeRequest{Reason: "again"})
	if rec.Code != http.StatusConflict {
		t.Errorf("double dispute returned %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/artifacts/txn_1/resolve", model.ResolveRequest{Resolution: "refund issued", Author: "ops"})
	if rec.Code != http.StatusOK {
		t.Fatalf("resolve returned %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &artifact); err != nil {
		t.Fatal(err)
	}
	if artifact.Status != model.ArtifactStatusResolved || len(artifact.DisputeNotes) != 2 {
		t.Errorf("resolution not recorded: %+v", artifact)
	}
}

func TestDispute_UnknownTransaction(t *testing.T) {
	h := newTestRouter(t)
	rec := doJSON(t, h, http.MethodPost, "/artifacts/txn_missing/dispute", model.DisputeRequest{Reason: "?"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("dispute on unknown transaction returned %d, want 404", rec.Code)
	}
}
