// Package events delivers side-channel notifications between federation
// services: receipt hand-off to the Credential Provider, settled-chain
// archival, and settlement notifications. Delivery is at-least-once:
// transient failures are retried with exponential backoff, and receivers
// deduplicate on the envelope's idempotency key.
package events

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Publisher delivers events over HTTP webhooks registered per event type.
type Publisher struct {
	source     string
	httpClient *http.Client
	endpoints  map[string]string // eventType -> webhook URL

	maxAttempts    int
	initialBackoff time.Duration
}

// NewPublisher creates an event publisher for the named source service.
func NewPublisher(source string) *Publisher {
	return &Publisher{
		source: source,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		endpoints:      make(map[string]string),
		maxAttempts:    3,
		initialBackoff: 200 * time.Millisecond,
	}
}

// RegisterEndpoint registers a webhook endpoint for an event type.
func (p *Publisher) RegisterEndpoint(eventType, webhookURL string) {
	p.endpoints[eventType] = webhookURL
}

// Publish delivers an event to the registered endpoint for its type. With
// no endpoint registered the event is logged and dropped — every event on
// this channel is advisory; the authorization decision has already been
// made by the time it fires.
func (p *Publisher) Publish(ctx context.Context, eventType string, data map[string]any) error {
	envelope := Envelope{
		EventID:        generateEventID(),
		EventType:      eventType,
		SchemaVersion:  "1.0",
		IdempotencyKey: idempotencyKey(eventType, data),
		Timestamp:      time.Now().UTC(),
		Source:         p.source,
		Data:           data,
	}

	if payerID, ok := data["payer_id"].(string); ok {
		envelope.PayerID = payerID
	}

	slog.InfoContext(ctx, "event_published",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"source", envelope.Source,
	)

	if webhookURL, ok := p.endpoints[eventType]; ok {
		return p.sendWebhook(ctx, webhookURL, envelope)
	}
	return nil
}

// sendWebhook POSTs the envelope, retrying transient failures. A delivery
// that still fails after the last attempt is logged and dropped, never
// surfaced to the caller: the settlement response path does not block on
// the side-channel.
func (p *Publisher) sendWebhook(ctx context.Context, url string, envelope Envelope) error {
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	backoff := p.initialBackoff
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil
			}
			backoff *= 2
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Event-ID", envelope.EventID)
		req.Header.Set("X-Event-Type", envelope.EventType)
		req.Header.Set("X-Idempotency-Key", envelope.IdempotencyKey)

		resp, err := p.httpClient.Do(req)
		if err != nil {
			slog.WarnContext(ctx, "webhook_failed",
				"url", url,
				"event_type", envelope.EventType,
				"attempt", attempt,
				"error", err,
			)
			continue
		}
		resp.Body.Close()

		if resp.StatusCode < 400 {
			return nil
		}
		slog.WarnContext(ctx, "webhook_error",
			"url", url,
			"event_type", envelope.EventType,
			"attempt", attempt,
			"status", resp.StatusCode,
		)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// The receiver understood and refused; retrying the same body
			// cannot succeed.
			return nil
		}
	}
	return nil
}

// idempotencyKey derives a stable key from the event's natural identifier
// so a retried delivery collapses into one record at the receiver.
func idempotencyKey(eventType string, data map[string]any) string {
	if txID, ok := data["transaction_id"].(string); ok && txID != "" {
		return eventType + "_" + txID
	}
	if mandateID, ok := data["payment_mandate_id"].(string); ok && mandateID != "" {
		return eventType + "_" + mandateID
	}
	return fmt.Sprintf("%s_%s", eventType, generateEventID())
}

func generateEventID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return "evt_" + hex.EncodeToString(b[:])
}
