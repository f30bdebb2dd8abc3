package store

import (
	"context"
	"errors"

	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/model"
)

// ErrAgentNotFound is returned when no registered agent matches a DID.
var ErrAgentNotFound = errors.New("agent not found")

type Store interface {
	UpsertAgent(ctx context.Context, agent model.RegisteredAgent) error
	GetAgent(ctx context.Context, did string) (*model.RegisteredAgent, error)
	ListAgents(ctx context.Context, role string) ([]model.RegisteredAgent, error)
}
