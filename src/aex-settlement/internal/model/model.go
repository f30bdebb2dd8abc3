// Package model holds the Payment Processor's own wire and persistence
// shapes: the mandate-chain payload it validates, the settlement result it
// returns, and the durable records backing the transactions/mandates/
// receipts tables.
package model

import (
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// ChainPayload is the dataPart payload of an inbound
// ap2.mandates.PaymentMandate envelope: the full chain the validator
// checks. The intent mandate travels with the chain so the processor can
// enforce the merchant allow-list and max-amount constraints; the
// attestation is the WebAuthn assertion whose challenge the KB-JWT nonce
// names.
type ChainPayload struct {
	PaymentMandate ap2.PaymentMandate         `json:"payment_mandate"`
	CartMandate    ap2.CartMandate            `json:"cart_mandate"`
	IntentMandate  *ap2.IntentMandate         `json:"intent_mandate,omitempty"`
	Attestation    *ap2.WebAuthnAssertionJSON `json:"attestation,omitempty"`
	Risk           *ap2.RiskAssessment        `json:"risk,omitempty"`
}

// PaymentResultPayload is the ap2.responses.PaymentResult dataPart payload.
// Amount is the decimal string of the captured total in major units.
type PaymentResultPayload struct {
	TransactionID string   `json:"transaction_id,omitempty"`
	Status        string   `json:"status"`
	ReceiptURL    string   `json:"receipt_url,omitempty"`
	Amount        string   `json:"amount,omitempty"`
	Currency      string   `json:"currency,omitempty"`
	ProductName   string   `json:"product_name,omitempty"`
	Errors        []string `json:"errors,omitempty"`
}

// MandateRecord is the mandates-table row persisted alongside a settled
// transaction: the full chain as received, for dispute artefacts.
type MandateRecord struct {
	PaymentMandateID string              `json:"payment_mandate_id" bson:"_id"`
	CartMandateID    string              `json:"cart_mandate_id" bson:"cart_mandate_id"`
	IntentMandateID  string              `json:"intent_mandate_id,omitempty" bson:"intent_mandate_id,omitempty"`
	PaymentMandate   ap2.PaymentMandate  `json:"payment_mandate" bson:"payment_mandate"`
	CartMandate      ap2.CartMandate     `json:"cart_mandate" bson:"cart_mandate"`
	IntentMandate    *ap2.IntentMandate  `json:"intent_mandate,omitempty" bson:"intent_mandate,omitempty"`
	Risk             *ap2.RiskAssessment `json:"risk,omitempty" bson:"risk,omitempty"`
	ReceivedAt       time.Time           `json:"received_at" bson:"received_at"`
}

// ReceiptRecord is the receipts-table row for a captured transaction.
type ReceiptRecord struct {
	TransactionID string    `json:"transaction_id" bson:"_id"`
	ReceiptURL    string    `json:"receipt_url" bson:"receipt_url"`
	PayerID       string    `json:"payer_id" bson:"payer_id"`
	Amount        float64   `json:"amount" bson:"amount"`
	Currency      string    `json:"currency" bson:"currency"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at"`
}
