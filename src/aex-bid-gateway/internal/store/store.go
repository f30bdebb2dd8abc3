// Package store persists the Merchant Agent's envelope audit trail.
package store

import (
	"context"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/model"
)

// AuditStore records one entry per envelope the Merchant Agent receives or
// sends.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error)
	Close() error
}
