package events

import "time"

// Envelope wraps every event the federation's services emit on their
// side-channels (receipt delivery, settlement notifications, chain
// archival). Receivers deduplicate on IdempotencyKey, which is why
// delivery can be at-least-once.
type Envelope struct {
	EventID        string         `json:"event_id"`
	EventType      string         `json:"event_type"`
	SchemaVersion  string         `json:"schema_version"`
	IdempotencyKey string         `json:"idempotency_key"`
	Timestamp      time.Time      `json:"timestamp"`
	Source         string         `json:"source"`
	PayerID        string         `json:"payer_id,omitempty"`
	Data           map[string]any `json:"data"`
}

// ReceiptData is the payload of payment.receipt_issued, POSTed to the
// Credential Provider's /receipts endpoint after capture. Delivery is
// decoupled from the settlement response path; the Publisher makes up to
// three attempts on transport errors and 5xx responses, then drops it. The
// receiver treats transaction_id as the idempotency key.
type ReceiptData struct {
	TransactionID string    `json:"transaction_id"`
	ReceiptURL    string    `json:"receipt_url"`
	PayerID       string    `json:"payer_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentCapturedData is the payload of payment.captured.
type PaymentCapturedData struct {
	TransactionID    string  `json:"transaction_id"`
	PaymentMandateID string  `json:"payment_mandate_id"`
	CartMandateID    string  `json:"cart_mandate_id"`
	Amount           float64 `json:"amount"`
	Currency         string  `json:"currency"`
	MerchantDID      string  `json:"merchant_did"`
}

// PaymentRejectedData is the payload of payment.rejected — emitted when the
// mandate-chain validator refuses a PaymentMandate before any funds move.
type PaymentRejectedData struct {
	PaymentMandateID string   `json:"payment_mandate_id"`
	ErrorKind        string   `json:"error_kind"`
	Errors           []string `json:"errors,omitempty"`
}

// ChainArchivedData is the payload of mandate.chain_archived — the settled
// chain handed to the artefact archive for any later dispute.
type ChainArchivedData struct {
	TransactionID    string `json:"transaction_id"`
	PaymentMandateID string `json:"payment_mandate_id"`
	CartMandateID    string `json:"cart_mandate_id"`
	ArchiveID        string `json:"archive_id,omitempty"`
}

// StepUpCompletedData is the payload of step_up.completed.
type StepUpCompletedData struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	PaymentMethodID string    `json:"payment_method_id"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Event type constants.
const (
	// Settlement events
	EventPaymentCaptured = "payment.captured"
	EventPaymentRejected = "payment.rejected"
	EventReceiptIssued   = "payment.receipt_issued"

	// Mandate lifecycle events
	EventIntentConfirmed = "mandate.intent_confirmed"
	EventCartSigned      = "mandate.cart_signed"
	EventChainArchived   = "mandate.chain_archived"

	// Credential provider events
	EventStepUpCompleted   = "step_up.completed"
	EventPasskeyRegistered = "passkey.registered"
)
