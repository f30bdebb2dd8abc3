package store

import (
	"context"
	"sort"
	"sync"

	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
)

// MemoryStore is an in-process PurchaseStore.
type MemoryStore struct {
	mu        sync.RWMutex
	purchases map[string]model.Purchase
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{purchases: make(map[string]model.Purchase)}
}

func (s *MemoryStore) SavePurchase(_ context.Context, p model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purchases[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPurchase(_ context.Context, purchaseID string) (model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.purchases[purchaseID]
	if !ok {
		return model.Purchase{}, ErrPurchaseNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdatePurchase(_ context.Context, p model.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.purchases[p.ID]; !ok {
		return ErrPurchaseNotFound
	}
	s.purchases[p.ID] = p
	return nil
}

func (s *MemoryStore) ListPurchases(_ context.Context, userID string, limit int) ([]model.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Purchase
	for _, p := range s.purchases {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
