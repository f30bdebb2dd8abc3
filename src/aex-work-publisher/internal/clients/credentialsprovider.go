// Package clients holds the Shopping Agent's outbound HTTP clients: the
// Credential Provider (payment methods, tokens, step-up, attestation
// verification) and the risk engine.
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
)

// CredentialsProviderClient wraps the Credential Provider's REST surface.
type CredentialsProviderClient struct {
	baseURL string
	http    *httpclient.Client
}

func NewCredentialsProviderClient(baseURL string) *CredentialsProviderClient {
	return &CredentialsProviderClient{
		baseURL: baseURL,
		http:    httpclient.NewClient("credentials-provider", 10*time.Second),
	}
}

func (c *CredentialsProviderClient) ListPaymentMethods(ctx context.Context, userID string) ([]ap2.PaymentMethod, error) {
	var resp struct {
		Methods []ap2.PaymentMethod `json:"methods"`
	}
	if err := c.http.GetJSON(ctx, c.baseURL+"/payment-methods?user_id="+userID, &resp); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return resp.Methods, nil
}

// TokenizeResult is the pm_token the Credential Provider mints.
type TokenizeResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *CredentialsProviderClient) Tokenize(ctx context.Context, userID, methodID string) (*TokenizeResult, error) {
	req := map[string]string{"user_id": userID, "payment_method_id": methodID}
	var resp TokenizeResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/payment-methods/tokenize", req, &resp); err != nil {
		return nil, fmt.Errorf("tokenize payment method: %w", err)
	}
	return &resp, nil
}

// StepUpSession is the opened step-up ceremony.
type StepUpSession struct {
	SessionID string    `json:"session_id"`
	StepUpURL string    `json:"step_up_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *CredentialsProviderClient) InitiateStepUp(ctx context.Context, userID, methodID, returnURL string, transactionContext map[string]interface{}) (*StepUpSession, error) {
	req := map[string]interface{}{
		"user_id":             userID,
		"payment_method_id":   methodID,
		"transaction_context": transactionContext,
		"return_url":          returnURL,
	}
	var resp StepUpSession
	if err := c.http.PostJSON(ctx, c.baseURL+"/payment-methods/initiate-step-up", req, &resp); err != nil {
		return nil, fmt.Errorf("initiate step-up: %w", err)
	}
	return &resp, nil
}

// StepUpVerification reports whether a step-up session completed, and the
// token carrying step_up_completed=true when it did.
type StepUpVerification struct {
	Verified      bool               `json:"verified"`
	PaymentMethod *ap2.PaymentMethod `json:"payment_method,omitempty"`
	Token         string             `json:"token,omitempty"`
}

func (c *CredentialsProviderClient) VerifyStepUp(ctx context.Context, sessionID string) (*StepUpVerification, error) {
	req := map[string]string{"session_id": sessionID}
	var resp StepUpVerification
	if err := c.http.PostJSON(ctx, c.baseURL+"/payment-methods/verify-step-up", req, &resp); err != nil {
		return nil, fmt.Errorf("verify step-up: %w", err)
	}
	return &resp, nil
}

// AttestationResult is the Credential Provider's answer to an assertion
// verification, including a network agent_token when the mandate already
// carried a pm_token.
type AttestationResult struct {
	Verified   bool   `json:"verified"`
	Token      string `json:"token,omitempty"`
	AgentToken string `json:"agent_token,omitempty"`
}

func (c *CredentialsProviderClient) VerifyAttestation(ctx context.Context, mandate ap2.PaymentMandate, attestation ap2.WebAuthnAssertionJSON, expectedChallenge string) (*AttestationResult, error) {
	req := map[string]interface{}{
		"payment_mandate":    mandate,
		"attestation":        attestation,
		"expected_challenge": expectedChallenge,
	}
	var resp AttestationResult
	if err := c.http.PostJSON(ctx, c.baseURL+"/verify/attestation", req, &resp); err != nil {
		return nil, fmt.Errorf("verify attestation: %w", err)
	}
	return &resp, nil
}
