package events

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNewPublisher(t *testing.T) {
	pub := NewPublisher("test-service")

	if pub == nil {
		t.Fatal("NewPublisher() returned nil")
	}

	if pub.source != "test-service" {
		t.Errorf("NewPublisher() source = %v, want test-service", pub.source)
	}

	if pub.httpClient == nil {
		t.Error("NewPublisher() did not initialize httpClient")
	}

	if pub.endpoints == nil {
		t.Error("NewPublisher() did not initialize endpoints map")
	}
}

func TestPublish_NoWebhook(t *testing.T) {
	pub := NewPublisher("test-service")
	ctx := context.Background()

	data := map[string]any{
		"transaction_id": "txn_abc123",
		"payer_id":       "user-123",
	}

	// Should not error even without webhook registered
	err := pub.Publish(ctx, EventPaymentCaptured, data)
	if err != nil {
		t.Errorf("Publish() without webhook error: %v", err)
	}
}

func TestPublish_WithWebhook(t *testing.T) {
	receivedEvent := false
	var receivedEnvelope Envelope

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedEvent = true

		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Missing Content-Type header")
		}
		if r.Header.Get("X-Event-Type") == "" {
			t.Errorf("Missing X-Event-Type header")
		}
		if r.Header.Get("X-Idempotency-Key") == "" {
			t.Errorf("Missing X-Idempotency-Key header")
		}

		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &receivedEnvelope)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.RegisterEndpoint(EventReceiptIssued, server.URL)

	ctx := context.Background()
	data := map[string]any{
		"transaction_id": "txn_abc123",
		"payer_id":       "user-123",
	}

	err := pub.Publish(ctx, EventReceiptIssued, data)
	if err != nil {
		t.Fatalf("Publish() with webhook error: %v", err)
	}

	if !receivedEvent {
		t.Error("Webhook was not called")
	}

	if receivedEnvelope.EventType != EventReceiptIssued {
		t.Errorf("Envelope EventType = %v, want %v", receivedEnvelope.EventType, EventReceiptIssued)
	}

	if receivedEnvelope.Source != "test-service" {
		t.Errorf("Envelope Source = %v, want test-service", receivedEnvelope.Source)
	}

	if receivedEnvelope.PayerID != "user-123" {
		t.Errorf("Envelope PayerID = %v, want user-123", receivedEnvelope.PayerID)
	}

	if receivedEnvelope.Data["transaction_id"] != "txn_abc123" {
		t.Errorf("Envelope Data transaction_id = %v, want txn_abc123", receivedEnvelope.Data["transaction_id"])
	}
}

func TestPublish_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	// First two attempts fail with 503, the third succeeds.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.initialBackoff = 0
	pub.RegisterEndpoint(EventReceiptIssued, server.URL)

	err := pub.Publish(context.Background(), EventReceiptIssued, map[string]any{
		"transaction_id": "txn_retry",
	})
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if got := calls.Load(); got != 3 {
		t.Errorf("webhook called %d times, want 3", got)
	}
}

func TestPublish_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.initialBackoff = 0
	pub.RegisterEndpoint(EventReceiptIssued, server.URL)

	err := pub.Publish(context.Background(), EventReceiptIssued, map[string]any{
		"transaction_id": "txn_rejected",
	})
	if err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("webhook called %d times, want 1 (4xx must not be retried)", got)
	}
}

func TestPublish_WebhookExhaustedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	pub := NewPublisher("test-service")
	pub.initialBackoff = 0
	pub.RegisterEndpoint(EventReceiptIssued, server.URL)

	// The side-channel never blocks the caller's response path.
	err := pub.Publish(context.Background(), EventReceiptIssued, map[string]any{
		"transaction_id": "txn_fail",
	})
	if err != nil {
		t.Errorf("Publish() should not error when retries are exhausted, got: %v", err)
	}
}

func TestIdempotencyKey_StableAcrossRetries(t *testing.T) {
	data := map[string]any{"transaction_id": "txn_abc123"}

	k1 := idempotencyKey(EventReceiptIssued, data)
	k2 := idempotencyKey(EventReceiptIssued, data)

	if k1 != k2 {
		t.Errorf("idempotencyKey not stable: %q vs %q", k1, k2)
	}
	if k1 != EventReceiptIssued+"_txn_abc123" {
		t.Errorf("idempotencyKey = %q, want transaction-scoped key", k1)
	}
}

func TestPublish_AllEventTypes(t *testing.T) {
	eventTypes := []string{
		EventPaymentCaptured,
		EventPaymentRejected,
		EventReceiptIssued,
		EventIntentConfirmed,
		EventCartSigned,
		EventChainArchived,
		EventStepUpCompleted,
		EventPasskeyRegistered,
	}

	pub := NewPublisher("test-service")
	ctx := context.Background()

	for _, eventType := range eventTypes {
		t.Run(eventType, func(t *testing.T) {
			err := pub.Publish(ctx, eventType, map[string]any{"payment_mandate_id": "pm_test"})
			if err != nil {
				t.Errorf("Publish(%s) error: %v", eventType, err)
			}
		})
	}
}

func TestGenerateEventID(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := generateEventID()

		if id == "" {
			t.Error("generateEventID() returned empty string")
		}

		if len(id) < 5 {
			t.Errorf("generateEventID() returned short ID: %v", id)
		}

		if ids[id] {
			t.Errorf("generateEventID() generated duplicate ID: %v", id)
		}

		ids[id] = true
	}
}
