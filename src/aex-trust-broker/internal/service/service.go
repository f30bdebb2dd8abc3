// Package service implements the trust broker: the federation's DID
// registry. Agents register their DIDs and verification methods here;
// every other service's DID resolver can fall back to this registry for
// peers outside its static configuration. Revoking a key here is how a
// compromised agent is cut out of the federation without redeploying its
// peers.
package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/model"
	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/store"
)

type Service struct {
	store store.Store
}

func New(st store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.RegisterAgentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.DID, "did:") {
		http.Error(w, "did must be a DID", http.StatusBadRequest)
		return
	}
	if len(req.VerificationMethods) == 0 {
		http.Error(w, "at least one verification method is required", http.StatusBadRequest)
		return
	}
	for _, vm := range req.VerificationMethods {
		if !strings.HasPrefix(vm.KeyID, req.DID+"#") {
			http.Error(w, "verification method id must be a fragment of the agent DID", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(vm.PublicKeyPEM) == "" {
			http.Error(w, "verification method missing publicKeyPem", http.StatusBadRequest)
			return
		}
	}

	now := time.Now().UTC()
	agent := model.RegisteredAgent{
		DID:          req.DID,
		Name:         req.Name,
		Roles:        req.Roles,
		BaseURL:      req.BaseURL,
		Status:       model.AgentStatusActive,
		RegisteredAt: now,
		LastUpdated:  now,
	}
	for _, vm := range req.VerificationMethods {
		vm.Status = model.KeyStatusActive
		vm.AddedAt = now
		agent.VerificationMethods = append(agent.VerificationMethods, vm)
	}

	if existing, err := s.store.GetAgent(ctx, req.DID); err == nil && existing != nil {
		// Re-registration keeps the original registration time; keys are
		// replaced wholesale, which is how a full rotation looks.
		agent.RegisteredAt = existing.RegisteredAt
	}

	if err := s.store.UpsertAgent(ctx, agent); err != nil {
		slog.ErrorContext(ctx, "agent registration failed", "did", req.DID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "agent_registered", "did", agent.DID, "roles", agent.Roles, "keys", len(agent.VerificationMethods))
	writeJSON(w, http.StatusCreated, agent)
}

func (s *Service) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("did"))
	if err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Service) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.store.ListAgents(r.Context(), r.URL.Query().Get("role"))
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": agents, "count": len(agents)})
}

// HandleResolveDID serves /dids/{did}/did.json — the registry-backed
// resolution path peers use for DIDs outside their static maps. Revoked
// methods stay in the document with status REVOKED so resolvers fail
// closed on them.
func (s *Service) HandleResolveDID(w http.ResponseWriter, r *http.Request) {
	agent, err := s.store.GetAgent(r.Context(), r.PathValue("did"))
	if err != nil {
		if errors.Is(err, store.ErrAgentNotFound) {
			http.Error(w, "did not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if agent.Status != model.AgentStatusActive {
		http.Error(w, "agent is not active", http.StatusGone)
		return
	}

	doc := model.DIDDocument{
		ID:                 agent.DID,
		VerificationMethod: agent.VerificationMethods,
	}
	for _, vm := range agent.ActiveKeys() {
		doc.Authentication = append(doc.Authentication, vm.KeyID)
		doc.AssertionMethod = append(doc.AssertionMethod, vm.KeyID)
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Service) HandleAddKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.PathValue("did")

	var req model.AddKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.KeyID, did+"#") {
		http.Error(w, "key id must be a fragment of the agent DID", http.StatusBadRequest)
		return
	}

	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	for _, vm := range agent.VerificationMethods {
		if vm.KeyID == req.KeyID {
			http.Error(w, "key id already registered", http.StatusConflict)
			return
		}
	}

	now := time.Now().UTC()
	agent.VerificationMethods = append(agent.VerificationMethods, model.VerificationMethod{
		KeyID:        req.KeyID,
		Type:         req.Type,
		PublicKeyPEM: req.PublicKeyPEM,
		Status:       model.KeyStatusActive,
		AddedAt:      now,
	})
	agent.LastUpdated = now

	if err := s.store.UpsertAgent(ctx, *agent); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "key_added", "did", did, "key_id", req.KeyID)
	writeJSON(w, http.StatusOK, agent)
}

func (s *Service) HandleRevokeKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.PathValue("did")

	var req model.RevokeKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	agent, err := s.store.GetAgent(ctx, did)
	if err != nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	now := time.Now().UTC()
	found := false
	for i := range agent.VerificationMethods {
		if agent.VerificationMethods[i].KeyID == req.KeyID {
			agent.VerificationMethods[i].Status = model.KeyStatusRevoked
			agent.VerificationMethods[i].RevokedAt = &now
			found = true
		}
	}
	if !found {
		http.Error(w, "key not found", http.StatusNotFound)
		return
	}

	if len(agent.ActiveKeys()) == 0 {
		// An agent with no usable keys cannot authenticate anything.
		agent.Status = model.AgentStatusRevoked
	}
	agent.LastUpdated = now

	if err := s.store.UpsertAgent(ctx, *agent); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	slog.InfoContext(ctx, "key_revoked", "did", did, "key_id", req.KeyID, "agent_status", agent.Status)
	writeJSON(w, http.StatusOK, agent)
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
