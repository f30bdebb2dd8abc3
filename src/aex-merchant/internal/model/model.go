// Package model holds the Merchant's own catalogue/inventory types —
// everything beyond internal/ap2's mandate shapes that this service needs
// to validate and fulfil a cart before signing it.
package model

import "time"

// SKU is a catalogue line the Merchant can sell. Line items on a cart are
// matched to a SKU by Label (the Merchant Agent and Merchant share a
// catalogue out of band; this package does not define product search).
type SKU struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Currency  string  `json:"currency"`
	UnitPrice float64 `json:"unit_price"`
	Inventory int     `json:"inventory"`
}

// Reservation holds inventory against a cart until it expires or is
// released.
type Reservation struct {
	CartID    string    `json:"cart_id"`
	SKU       string    `json:"sku"`
	Quantity  int       `json:"quantity"`
	ExpiresAt time.Time `json:"expires_at"`
}
