// Package service implements the Payment Network: a stateless issuer of
// agent_tokens bound to a verified attestation and a tokenized payment
// method. "Stateless" refers to having no durable ledger of its own — it
// still needs a time-boxed record of tokens it issued so verify-token can
// answer later, which is what the TTL store is for.
package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/aex-ap2/aex-token-bank/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

const agentTokenTTL = 1 * time.Hour

// Service issues and verifies agent_tokens for one named network.
type Service struct {
	tokens      ttlstore.Store
	networkName string
}

func New(tokens ttlstore.Store, networkName string) *Service {
	return &Service{tokens: tokens, networkName: networkName}
}

// Tokenize validates the pm_token's shape, mints an agent_token bound to
// the payment mandate and payment method token, and stores the record for
// the lifetime of the token.
func (s *Service) Tokenize(ctx context.Context, req model.TokenizeRequest) (*model.TokenizeResponse, error) {
	if !validPMTokenFormat(req.PaymentMethodToken) {
		return nil, ap2.ErrNetworkTokenisationFailed(fmt.Errorf("payment_method_token %q is not a recognised pm_token", req.PaymentMethodToken))
	}

	agentToken := ap2.AgentToken{
		Token:               fmt.Sprintf("agent_tok_%s_%s_%s", s.networkName, uuid.New().String()[:8], randURLSafe(24)),
		PaymentMethodTok:    req.PaymentMethodToken,
		PaymentMandateID:    req.PaymentMandate.PaymentMandateContents.PaymentMandateID,
		PayerID:             req.PaymentMandate.PaymentMandateContents.PayerID,
		Amount:              req.PaymentMandate.PaymentMandateContents.PaymentDetailsTotal.Amount,
		NetworkName:         s.networkName,
		AttestationVerified: true,
		ExpiresAt:           time.Now().Add(agentTokenTTL),
		TokenType:           "agent_token",
	}

	raw, err := json.Marshal(agentToken)
	if err != nil {
		return nil, fmt.Errorf("marshal agent_token record: %w", err)
	}
	if err := s.tokens.Put(ctx, agentToken.Token, raw, agentTokenTTL); err != nil {
		return nil, fmt.Errorf("store agent_token: %w", err)
	}

	slog.InfoContext(ctx, "agent_token_issued", "payment_mandate_id", agentToken.PaymentMandateID, "payer_id", agentToken.PayerID, "network", s.networkName)

	return &model.TokenizeResponse{
		AgentToken:  agentToken.Token,
		ExpiresAt:   agentToken.ExpiresAt.Format(time.RFC3339),
		NetworkName: s.networkName,
		TokenType:   agentToken.TokenType,
	}, nil
}

// VerifyToken reports whether agent_token was issued by this network and
// has not expired.
func (s *Service) VerifyToken(ctx context.Context, req model.VerifyTokenRequest) (*model.VerifyTokenResponse, error) {
	_, ok, err := s.tokens.Get(ctx, req.AgentToken)
	if err != nil {
		return nil, err
	}
	return &model.VerifyTokenResponse{Verified: ok}, nil
}

func validPMTokenFormat(token string) bool {
	return strings.HasPrefix(token, "tok_") && len(token) > len("tok_")
}

func randURLSafe(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
