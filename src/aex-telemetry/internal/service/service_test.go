package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/aex-telemetry/internal/model"
	"github.com/parlakisik/aex-ap2/aex-telemetry/internal/store"
)

func TestHandleIngestEvent_StoredAsLogEntry(t *testing.T) {
	st := store.NewMemoryStore(100, 100)
	svc := New(st)

	body := `{
		"event_id": "evt_abc",
		"event_type": "payment.captured",
		"idempotency_key": "payment.captured_txn_1",
		"timestamp": "` + time.Now().UTC().Format(time.RFC3339) + `",
		"source": "aex-settlement",
		"payer_id": "user-123",
		"data": {"transaction_id": "txn_1", "amount": 8068}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
	rec := httptest.NewRecorder()
	svc.HandleIngestEvent(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body)
	}

	logs, err := st.QueryLogs(model.LogQuery{Service: "aex-settlement"})
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("stored logs = %d, want 1", len(logs))
	}
	if logs[0].Message != "payment.captured" {
		t.Errorf("message = %q", logs[0].Message)
	}
	if logs[0].Fields["transaction_id"] != "txn_1" {
		t.Errorf("fields = %v", logs[0].Fields)
	}
	if logs[0].Fields["payer_id"] != "user-123" {
		t.Errorf("payer_id missing from fields: %v", logs[0].Fields)
	}
}

func TestHandleIngestEvent_RejectsMissingType(t *testing.T) {
	svc := New(store.NewMemoryStore(100, 100))

	req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(`{"event_id":"evt_x"}`))
	rec := httptest.NewRecorder()
	svc.HandleIngestEvent(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ingest without event_type returned %d, want 400", rec.Code)
	}
}
