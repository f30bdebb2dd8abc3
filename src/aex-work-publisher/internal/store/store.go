package store

import (
	"context"
	"errors"

	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
)

// ErrPurchaseNotFound is returned when no purchase matches.
var ErrPurchaseNotFound = errors.New("purchase not found")

// PurchaseStore persists the Shopping Agent's purchase state machine.
type PurchaseStore interface {
	SavePurchase(ctx context.Context, p model.Purchase) error
	GetPurchase(ctx context.Context, purchaseID string) (model.Purchase, error)
	UpdatePurchase(ctx context.Context, p model.Purchase) error
	ListPurchases(ctx context.Context, userID string, limit int) ([]model.Purchase, error)
	Close() error
}
