// Package store persists the Merchant's catalogue and inventory
// reservations: an interface with an in-memory default and a MongoDB
// backend for durable deployments.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/parlakisik/aex-ap2/aex-merchant/internal/model"
)

// MerchantStore is the Merchant's catalogue/inventory backend.
type MerchantStore interface {
	GetSKU(ctx context.Context, skuLabel string) (*model.SKU, error)
	Reserve(ctx context.Context, cartID, skuLabel string, quantity int, until time.Time) error
	Release(ctx context.Context, cartID string) error
	EnsureIndexes(ctx context.Context) error
}

// ErrSKUNotFound is returned by GetSKU when no catalogue entry matches.
var ErrSKUNotFound = fmt.Errorf("sku not found")

// ErrInsufficientInventory is returned by Reserve when the SKU has no
// remaining stock to cover the requested quantity.
var ErrInsufficientInventory = fmt.Errorf("insufficient inventory")

// MemoryStore is an in-process MerchantStore, seeded with demo SKUs.
type MemoryStore struct {
	mu           sync.Mutex
	skus         map[string]*model.SKU // by label
	reservations map[string][]model.Reservation
}

// NewMemoryStore creates a MemoryStore pre-seeded with a small demo
// catalogue.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		skus:         make(map[string]*model.SKU),
		reservations: make(map[string][]model.Reservation),
	}
	for _, sku := range []*model.SKU{
		{ID: "sku_shoes_budget", Label: "Red high-top basketball shoes (budget)", Currency: "USD", UnitPrice: 48.00, Inventory: 500},
		{ID: "sku_shoes_standard", Label: "Red high-top basketball shoes (standard)", Currency: "USD", UnitPrice: 68.80, Inventory: 500},
		{ID: "sku_shoes_premium", Label: "Red high-top basketball shoes (premium)", Currency: "USD", UnitPrice: 98.00, Inventory: 200},
		{ID: "sku_headphones", Label: "Noise-cancelling headphones", Currency: "USD", UnitPrice: 129.99, Inventory: 150},
		{ID: "sku_mug", Label: "Mug", Currency: "USD", UnitPrice: 12.00, Inventory: 1000},
	} {
		s.skus[sku.Label] = sku
	}
	return s
}

func (s *MemoryStore) EnsureIndexes(context.Context) error { return nil }

func (s *MemoryStore) GetSKU(_ context.Context, skuLabel string) (*model.SKU, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuLabel]
	if !ok {
		return nil, ErrSKUNotFound
	}
	cp := *sku
	return &cp, nil
}

func (s *MemoryStore) Reserve(_ context.Context, cartID, skuLabel string, quantity int, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuLabel]
	if !ok {
		return ErrSKUNotFound
	}
	if sku.Inventory < quantity {
		return ErrInsufficientInventory
	}
	sku.Inventory -= quantity
	s.reservations[cartID] = append(s.reservations[cartID], model.Reservation{
		CartID: cartID, SKU: skuLabel, Quantity: quantity, ExpiresAt: until,
	})
	return nil
}

// Release returns every reservation held for cartID back to inventory. It
// is idempotent: releasing an unknown or already-released cart is a no-op.
func (s *MemoryStore) Release(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reservations[cartID] {
		if sku, ok := s.skus[r.SKU]; ok {
			sku.Inventory += r.Quantity
		}
	}
	delete(s.reservations, cartID)
	return nil
}
