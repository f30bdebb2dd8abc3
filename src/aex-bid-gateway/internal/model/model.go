// Package model holds the Merchant Agent's own shapes: the product-search
// contract it runs against the SKU registry, the A2A artifact wrapping for
// cart candidates, and the audit trail it keeps of every envelope it
// relays.
package model

import (
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// SearchConstraints is the query the Merchant Agent derives from an
// IntentMandate and sends to the SKU registry.
type SearchConstraints struct {
	Query                 string   `json:"query,omitempty"`
	SKUs                  []string `json:"skus,omitempty"`
	Merchants             []string `json:"merchants,omitempty"`
	MaxPrice              float64  `json:"max_price,omitempty"`
	Currency              string   `json:"currency,omitempty"`
	RequiresRefundability bool     `json:"requires_refundability,omitempty"`
	Limit                 int      `json:"limit,omitempty"`
}

// Item is one purchasable SKU returned by the registry.
type Item struct {
	SKU         string  `json:"sku"`
	Label       string  `json:"label"`
	Brand       string  `json:"brand,omitempty"`
	Currency    string  `json:"currency"`
	UnitPrice   float64 `json:"unit_price"`
	MerchantDID string  `json:"merchant_did"`
	Refundable  bool    `json:"refundable"`
	TrustTier   string  `json:"trust_tier,omitempty"`
}

// ArtifactPart is one part of an A2A artifact; cart candidates use
// kind "data" with the CartMandate data key.
type ArtifactPart struct {
	Kind    string          `json:"kind"`
	DataKey string          `json:"data_key"`
	Data    ap2.CartMandate `json:"data"`
}

// CartArtifact wraps one signed cart candidate for the artifact response.
type CartArtifact struct {
	ArtifactID string         `json:"artifactId"`
	Name       string         `json:"name"`
	Parts      []ArtifactPart `json:"parts"`
}

// AuditEntry records one envelope the Merchant Agent saw or sent. The
// agent has no signing authority over the mandates it relays; the audit
// trail is what it contributes to a dispute.
type AuditEntry struct {
	MessageID string    `json:"message_id" bson:"_id"`
	Direction string    `json:"direction" bson:"direction"` // "inbound" or "outbound"
	Sender    string    `json:"sender" bson:"sender"`
	Recipient string    `json:"recipient" bson:"recipient"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Type      string    `json:"type" bson:"type"`
	Summary   string    `json:"summary" bson:"summary"`
}
