// Package envelope implements the A2A message envelope: the signed,
// replay-protected wrapper every federation service uses to exchange AP2
// mandates, requests, and responses over POST /a2a/message.
package envelope

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the envelope schema version this package emits. Inbound
// envelopes are not checked against it.
const SchemaVersion = "0.2"

// AcceptWindow is the maximum tolerated clock skew between a sender's
// header.timestamp and the receiver's clock.
const AcceptWindow = 300 * time.Second

// Header carries routing, freshness, and proof metadata for an envelope.
type Header struct {
	MessageID     string    `json:"message_id"`
	Sender        string    `json:"sender"`    // DID
	Recipient     string    `json:"recipient"` // DID
	Timestamp     time.Time `json:"timestamp"`
	Nonce         string    `json:"nonce"` // 64 hex chars (32 random bytes)
	SchemaVersion string    `json:"schema_version"`
	Proof         Proof     `json:"proof"`
}

// Proof is the detached signature over the envelope minus
// proof.signatureValue.
type Proof struct {
	Algorithm      string    `json:"algorithm"` // "ECDSA", "ES256", or "Ed25519"
	SignatureValue string    `json:"signatureValue"`
	PublicKey      string    `json:"publicKey,omitempty"`
	Kid            string    `json:"kid"` // "did:...#key-N"
	Created        time.Time `json:"created"`
	ProofPurpose   string    `json:"proofPurpose"`
}

// DataPart carries the actual AP2 payload, dispatched by Type.
type DataPart struct {
	Type    string          `json:"type"` // e.g. "ap2.mandates.IntentMandate"
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Envelope is the full signed A2A message.
type Envelope struct {
	Header   Header   `json:"header"`
	DataPart DataPart `json:"dataPart"`
}

// ArtifactResponse is returned by a handler that produces a collection
// result (e.g. several cart candidates) rather than a single value.
type ArtifactResponse struct {
	IsArtifact   bool        `json:"is_artifact"`
	ArtifactName string      `json:"artifact_name"`
	DataTypeKey  string      `json:"data_type_key"`
	ArtifactData interface{} `json:"artifact_data"`
}

// Closed set of dataPart.type strings the federation recognizes.
const (
	TypeIntentMandate  = "ap2.mandates.IntentMandate"
	TypeCartMandate    = "ap2.mandates.CartMandate"
	TypePaymentMandate = "ap2.mandates.PaymentMandate"

	TypeProductSearch  = "ap2.requests.ProductSearch"
	TypeCartRequest    = "ap2.requests.CartRequest"
	TypeCartSelection  = "ap2.requests.CartSelection"

	TypeProductList     = "ap2.responses.ProductList"
	TypeCartCandidates  = "ap2.responses.CartCandidates"
	TypePaymentResult   = "ap2.responses.PaymentResult"
	TypeSignatureResult = "ap2.responses.SignatureResponse"
)
