// Package model holds the Credential Provider's own record shapes: the
// transient step-up and token records the shared ap2 package has no home
// for.
package model

import "time"

// Step-up session statuses.
const (
	StepUpPending   = "pending"
	StepUpCompleted = "completed"
)

// StepUpSession tracks one human-authentication ceremony initiated by
// POST /payment-methods/initiate-step-up.
type StepUpSession struct {
	SessionID          string                 `json:"session_id"`
	UserID             string                 `json:"user_id"`
	PaymentMethodID    string                 `json:"payment_method_id"`
	TransactionContext map[string]interface{} `json:"transaction_context,omitempty"`
	ReturnURL          string                 `json:"return_url"`
	Status             string                 `json:"status"`
	CreatedAt          time.Time              `json:"created_at"`
	ExpiresAt          time.Time              `json:"expires_at"`
}

// TokenRecord is the pm_token record backing POST /payment-methods/tokenize
// and the tokens minted by the step-up/attestation endpoints.
type TokenRecord struct {
	Token           string      `json:"token"`
	UserID          string      `json:"user_id"`
	PaymentMethodID string      `json:"payment_method_id"`
	MethodSnapshot  interface{} `json:"method_snapshot"`
	StepUpCompleted bool        `json:"step_up_completed,omitempty"`
	ExpiresAt       time.Time   `json:"expires_at"`
}

// ReceiptRecord is what POST /receipts appends to receipts[payer_id].
type ReceiptRecord struct {
	TransactionID string    `json:"transaction_id"`
	ReceiptURL    string    `json:"receipt_url"`
	PayerID       string    `json:"payer_id"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
