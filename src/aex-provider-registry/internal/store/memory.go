package store

import (
	"context"
	"sync"
	"time"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/model"
)

// MemoryStore is an in-process Store, seeded with the demo catalogue the
// federation's Merchant sells.
type MemoryStore struct {
	mu   sync.RWMutex
	skus map[string]model.SKU
}

// NewMemoryStore creates a MemoryStore pre-seeded with demo SKUs.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{skus: make(map[string]model.SKU)}
	now := time.Now().UTC()
	merchantDID := "did:ap2:merchant:aex-merchant"
	for _, sku := range []model.SKU{
		{SKUID: "sku_shoes_budget", Label: "Red high-top basketball shoes (budget)", Brand: "CourtLine", Tags: []string{"shoes", "basketball", "red"}, Currency: "USD", UnitPrice: 48.00, MerchantDID: merchantDID, Refundable: true, TrustTier: model.TrustTierTrusted, Status: model.SKUStatusActive},
		{SKUID: "sku_shoes_standard", Label: "Red high-top basketball shoes (standard)", Brand: "CourtLine", Tags: []string{"shoes", "basketball", "red"}, Currency: "USD", UnitPrice: 68.80, MerchantDID: merchantDID, Refundable: true, TrustTier: model.TrustTierTrusted, Status: model.SKUStatusActive},
		{SKUID: "sku_shoes_premium", Label: "Red high-top basketball shoes (premium)", Brand: "CourtLine Pro", Tags: []string{"shoes", "basketball", "red"}, Currency: "USD", UnitPrice: 98.00, MerchantDID: merchantDID, Refundable: true, TrustTier: model.TrustTierTrusted, Status: model.SKUStatusActive},
		{SKUID: "sku_headphones", Label: "Noise-cancelling headphones", Brand: "Hushline", Tags: []string{"audio", "headphones"}, Currency: "USD", UnitPrice: 129.99, MerchantDID: merchantDID, Refundable: true, TrustTier: model.TrustTierVerified, Status: model.SKUStatusActive},
		{SKUID: "sku_mug", Label: "Mug", Tags: []string{"kitchen"}, Currency: "USD", UnitPrice: 12.00, MerchantDID: merchantDID, Refundable: false, TrustTier: model.TrustTierVerified, Status: model.SKUStatusActive},
	} {
		sku.CreatedAt = now
		sku.UpdatedAt = now
		s.skus[sku.SKUID] = sku
	}
	return s
}

func (s *MemoryStore) UpsertSKU(_ context.Context, sku model.SKU) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skus[sku.SKUID] = sku
	return nil
}

func (s *MemoryStore) GetSKU(_ context.Context, skuID string) (model.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return model.SKU{}, ErrSKUNotFound
	}
	return sku, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]model.SKU, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SKU
	for _, sku := range s.skus {
		if sku.Status == model.SKUStatusActive {
			out = append(out, sku)
		}
	}
	return out, nil
}

func (s *MemoryStore) SetStatus(_ context.Context, skuID string, status model.SKUStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sku, ok := s.skus[skuID]
	if !ok {
		return ErrSKUNotFound
	}
	sku.Status = status
	sku.UpdatedAt = time.Now().UTC()
	s.skus[skuID] = sku
	return nil
}

func (s *MemoryStore) Close() error { return nil }
