package store

import (
	"context"
	"errors"

	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/model"
)

// ErrArtifactNotFound is returned when no archived chain matches.
var ErrArtifactNotFound = errors.New("artifact not found")

type ArtifactStore interface {
	// Save archives a chain, idempotent on transaction_id: a retried
	// delivery returns the existing record untouched.
	Save(ctx context.Context, a model.ChainArtifact) (model.ChainArtifact, error)
	GetByTransaction(ctx context.Context, transactionID string) (*model.ChainArtifact, error)
	Update(ctx context.Context, a model.ChainArtifact) error
	List(ctx context.Context, status model.ArtifactStatus, limit int) ([]model.ChainArtifact, error)
}
