package store

import (
	"context"
	"sort"
	"sync"

	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/model"
)

type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]model.RegisteredAgent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]model.RegisteredAgent)}
}

func (s *MemoryStore) UpsertAgent(_ context.Context, agent model.RegisteredAgent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[agent.DID] = agent
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, did string) (*model.RegisteredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[did]
	if !ok {
		return nil, ErrAgentNotFound
	}
	out := agent
	return &out, nil
}

func (s *MemoryStore) ListAgents(_ context.Context, role string) ([]model.RegisteredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RegisteredAgent
	for _, agent := range s.agents {
		if role != "" && !hasRole(agent.Roles, role) {
			continue
		}
		out = append(out, agent)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DID < out[j].DID })
	return out, nil
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
