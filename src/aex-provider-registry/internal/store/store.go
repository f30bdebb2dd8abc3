package store

import (
	"context"
	"errors"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/model"
)

// ErrSKUNotFound is returned when no catalogue entry matches.
var ErrSKUNotFound = errors.New("sku not found")

// Store is the SKU registry's catalogue backend.
type Store interface {
	UpsertSKU(ctx context.Context, sku model.SKU) error
	GetSKU(ctx context.Context, skuID string) (model.SKU, error)
	// ListActive returns every ACTIVE SKU; filtering and ranking happen in
	// the service, where the constraint semantics live.
	ListActive(ctx context.Context) ([]model.SKU, error)
	SetStatus(ctx context.Context, skuID string, status model.SKUStatus) error
	Close() error
}
