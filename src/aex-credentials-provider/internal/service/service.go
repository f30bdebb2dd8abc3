// Package service implements the AP2 Credential Provider: payment-method
// custody, pm_token minting, Step-up ceremonies, WebAuthn attestation
// verification, and the credential-verify/receipts surface the Payment
// Processor calls during settlement.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/model"
	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/store"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

const (
	pmTokenTTL = 15 * time.Minute
	stepUpTTL  = 10 * time.Minute
)

// Service implements the Credential Provider's endpoint contract.
type Service struct {
	creds   store.CredentialStore
	tokens  ttlstore.Store // pm_token -> model.TokenRecord (JSON)
	sessions ttlstore.Store // session_id -> model.StepUpSession (JSON)

	rpID           string
	allowedOrigins []string
	network        *httpclient.Client
	networkURL     string
}

func New(creds store.CredentialStore, tokens, sessions ttlstore.Store, rpID string, allowedOrigins []string, networkURL string) *Service {
	return &Service{
		creds:          creds,
		tokens:         tokens,
		sessions:       sessions,
		rpID:           rpID,
		allowedOrigins: allowedOrigins,
		network:        httpclient.NewClient("payment-network", 10*time.Second),
		networkURL:     networkURL,
	}
}

// RegisterPasskeyRequest is the POST /register/passkey body.
type RegisterPasskeyRequest struct {
	UserID            string `json:"user_id"`
	CredentialID      string `json:"credential_id"`
	AttestationObject string `json:"attestation_object"` // base64url CBOR; carries a COSE key for this demo flow
}

// RegisterPasskey parses the attestation object's embedded COSE key and
// stores the PasskeyCredential. Idempotent on credential_id.
func (s *Service) RegisterPasskey(ctx context.Context, req RegisterPasskeyRequest) error {
	raw, err := base64.RawURLEncoding.DecodeString(req.AttestationObject)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(req.AttestationObject)
		if err != nil {
			return ap2.ErrSchemaInvalid(fmt.Errorf("attestation_object is not valid base64: %w", err))
		}
	}
	// The attestation object itself is a CBOR map {fmt, attStmt, authData};
	// for this flow the COSE public key is the authData's credential public
	// key, which a real implementation extracts per WebAuthn §6.5.2. We
	// accept the COSE key directly as the decoded payload to keep the demo
	// flow self-contained without an attestation-statement verifier.
	if _, err := ap2.DecodeCOSEPublicKey(raw); err != nil {
		return ap2.ErrWebAuthnVerifyFail(fmt.Errorf("attestation_object does not carry a usable COSE key: %w", err))
	}

	cred := ap2.PasskeyCredential{
		CredentialID:  req.CredentialID,
		UserID:        req.UserID,
		PublicKeyCOSE: raw,
		SignCount:     0,
		CreatedAt:     time.Now(),
	}
	if err := s.creds.SavePasskey(ctx, cred); err != nil {
		return fmt.Errorf("save passkey: %w", err)
	}
	slog.InfoContext(ctx, "passkey_registered", "user_id", req.UserID, "credential_id", req.CredentialID)
	return nil
}

// ListPaymentMethods returns a user's methods without tokens or full PANs.
func (s *Service) ListPaymentMethods(ctx context.Context, userID string) ([]ap2.PaymentMethod, error) {
	return s.creds.ListPaymentMethods(ctx, userID)
}

// TokenizeRequest is the POST /payment-methods/tokenize body.
type TokenizeRequest struct {
	UserID          string `json:"user_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

// TokenizeResponse is the POST /payment-methods/tokenize response body.
type TokenizeResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Tokenize mints a pm_token for a payment method the user owns. The token
// is not consumed on use; it stays valid until its TTL expires.
func (s *Service) Tokenize(ctx context.Context, req TokenizeRequest) (*TokenizeResponse, error) {
	method, err := s.creds.GetPaymentMethod(ctx, req.UserID, req.PaymentMethodID)
	if err != nil {
		return nil, ap2.ErrUnknownCredential()
	}

	token := generatePMToken()
	rec := model.TokenRecord{
		Token:           token,
		UserID:          req.UserID,
		PaymentMethodID: req.PaymentMethodID,
		MethodSnapshot:  method,
		ExpiresAt:       time.Now().Add(pmTokenTTL),
	}
	if err := s.putToken(ctx, rec); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "pm_token_minted", "user_id", req.UserID, "payment_method_id", req.PaymentMethodID)
	return &TokenizeResponse{Token: token, ExpiresAt: rec.ExpiresAt}, nil
}

// InitiateStepUpRequest is the POST /payment-methods/initiate-step-up body.
type InitiateStepUpRequest struct {
	UserID             string                 `json:"user_id"`
	PaymentMethodID    string                 `json:"payment_method_id"`
	TransactionContext map[string]interface{} `json:"transaction_context,omitempty"`
	ReturnURL          string                 `json:"return_url"`
}

// InitiateStepUpResponse is the POST /payment-methods/initiate-step-up
// response body.
type InitiateStepUpResponse struct {
	SessionID  string    `json:"session_id"`
	StepUpURL  string    `json:"step_up_url"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// InitiateStepUp opens a pending step-up session.
func (s *Service) InitiateStepUp(ctx context.Context, req InitiateStepUpRequest) (*InitiateStepUpResponse, error) {
	sessionID := "su_" + uuid.New().String()
	session := model.StepUpSession{
		SessionID:          sessionID,
		UserID:             req.UserID,
		PaymentMethodID:    req.PaymentMethodID,
		TransactionContext: req.TransactionContext,
		ReturnURL:          req.ReturnURL,
		Status:             model.StepUpPending,
		CreatedAt:          time.Now(),
		ExpiresAt:          time.Now().Add(stepUpTTL),
	}
	if err := s.putSession(ctx, session); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "step_up_initiated", "session_id", sessionID, "user_id", req.UserID)
	return &InitiateStepUpResponse{
		SessionID: sessionID,
		StepUpURL: "/step-up/" + sessionID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// GetStepUp serves the (out-of-scope) human-authentication surface; here it
// just reports the session's current status.
func (s *Service) GetStepUp(ctx context.Context, sessionID string) (*model.StepUpSession, error) {
	return s.getSession(ctx, sessionID)
}

// CompleteStepUpResponse is the POST /step-up/{session_id}/complete
// response body.
type CompleteStepUpResponse struct {
	Status    string `json:"status"`
	ReturnURL string `json:"return_url"`
	Token     string `json:"token"`
}

// CompleteStepUp marks a session completed and mints a token carrying
// step_up_completed=true.
func (s *Service) CompleteStepUp(ctx context.Context, sessionID string) (*CompleteStepUpResponse, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Status = model.StepUpCompleted
	if err := s.putSession(ctx, *session); err != nil {
		return nil, err
	}

	method, err := s.creds.GetPaymentMethod(ctx, session.UserID, session.PaymentMethodID)
	if err != nil {
		return nil, ap2.ErrUnknownCredential()
	}

	token := generatePMToken()
	rec := model.TokenRecord{
		Token:           token,
		UserID:          session.UserID,
		PaymentMethodID: session.PaymentMethodID,
		MethodSnapshot:  method,
		StepUpCompleted: true,
		ExpiresAt:       time.Now().Add(pmTokenTTL),
	}
	if err := s.putToken(ctx, rec); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "step_up_completed", "session_id", sessionID, "user_id", session.UserID)
	return &CompleteStepUpResponse{Status: session.Status, ReturnURL: session.ReturnURL, Token: token}, nil
}

// VerifyStepUpRequest is the POST /payment-methods/verify-step-up body.
type VerifyStepUpRequest struct {
	SessionID string `json:"session_id"`
}

// VerifyStepUpResponse is the POST /payment-methods/verify-step-up
// response body.
type VerifyStepUpResponse struct {
	Verified      bool              `json:"verified"`
	PaymentMethod *ap2.PaymentMethod `json:"payment_method,omitempty"`
	Token         string            `json:"token,omitempty"`
}

// VerifyStepUp reports whether a step-up session reached completed and has
// not expired.
func (s *Service) VerifyStepUp(ctx context.Context, req VerifyStepUpRequest) (*VerifyStepUpResponse, error) {
	session, err := s.getSession(ctx, req.SessionID)
	if err != nil {
		return &VerifyStepUpResponse{Verified: false}, nil
	}
	if session.Status != model.StepUpCompleted || time.Now().After(session.ExpiresAt) {
		return &VerifyStepUpResponse{Verified: false}, nil
	}
	method, err := s.creds.GetPaymentMethod(ctx, session.UserID, session.PaymentMethodID)
	if err != nil {
		return &VerifyStepUpResponse{Verified: false}, nil
	}
	token := generatePMToken()
	rec := model.TokenRecord{Token: token, UserID: session.UserID, PaymentMethodID: session.PaymentMethodID, MethodSnapshot: method, StepUpCompleted: true, ExpiresAt: time.Now().Add(pmTokenTTL)}
	if err := s.putToken(ctx, rec); err != nil {
		return nil, err
	}
	return &VerifyStepUpResponse{Verified: true, PaymentMethod: method, Token: token}, nil
}

// VerifyAttestationRequest is the POST /verify/attestation body.
type VerifyAttestationRequest struct {
	PaymentMandate    ap2.PaymentMandate            `json:"payment_mandate"`
	Attestation       ap2.WebAuthnAssertionJSON      `json:"attestation"`
	ExpectedChallenge string                         `json:"expected_challenge"`
}

// VerifyAttestationResponse is the POST /verify/attestation response body.
type VerifyAttestationResponse struct {
	Verified   bool   `json:"verified"`
	Token      string `json:"token,omitempty"`
	AgentToken string `json:"agent_token,omitempty"`
}

// VerifyAttestation runs webauthn_verify against the user's stored COSE
// key. If the PaymentMandate already carries a pm_token (the
// PaymentMandate-confirmation ceremony, as opposed to the IntentMandate
// one), it additionally requests an agent_token from the Payment Network.
//
// The same assertion is presented twice per payment: once by the Shopping
// Agent at signing time and once by the Payment Processor during chain
// validation. The counter advances on the first presentation; the second
// presentation of the byte-identical assertion is recognised and accepted
// without re-advancing it. A different assertion with a stale counter
// still fails monotonicity.
func (s *Service) VerifyAttestation(ctx context.Context, req VerifyAttestationRequest) (*VerifyAttestationResponse, error) {
	userID := req.PaymentMandate.PaymentMandateContents.PayerID
	cred, err := s.creds.GetPasskeyByUser(ctx, userID)
	if err != nil {
		return nil, ap2.ErrUnknownCredential()
	}

	assertion, err := req.Attestation.Decode()
	if err != nil {
		return nil, ap2.ErrWebAuthnVerifyFail(err)
	}

	seenKey := "attested:" + cred.CredentialID + ":" + assertionDigest(assertion)
	if _, seen, err := s.tokens.Get(ctx, seenKey); err == nil && seen {
		slog.InfoContext(ctx, "attestation_reverified", "user_id", userID, "credential_id", cred.CredentialID)
		return &VerifyAttestationResponse{Verified: true}, nil
	}

	newCount, err := ap2.WebAuthnVerify(cred, assertion, req.ExpectedChallenge, s.rpID, s.allowedOrigins)
	if err != nil {
		return nil, err
	}
	if err := s.creds.UpdateSignCount(ctx, cred.CredentialID, newCount); err != nil {
		return nil, fmt.Errorf("persist sign_count: %w", err)
	}
	_ = s.tokens.Put(ctx, seenKey, []byte{1}, 10*time.Minute)

	token := generatePMToken()
	resp := &VerifyAttestationResponse{Verified: true, Token: token}

	pmToken, ok := req.PaymentMandate.PaymentMandateContents.PaymentResponse.Details["token"].(string)
	if ok && pmToken != "" {
		agentToken, err := s.requestAgentToken(ctx, pmToken, req.PaymentMandate)
		if err != nil {
			return nil, ap2.ErrNetworkTokenisationFailed(err)
		}
		resp.AgentToken = agentToken
	}

	slog.InfoContext(ctx, "attestation_verified", "user_id", userID, "credential_id", cred.CredentialID, "network_tokenised", resp.AgentToken != "")
	return resp, nil
}

func (s *Service) requestAgentToken(ctx context.Context, pmToken string, mandate ap2.PaymentMandate) (string, error) {
	type tokenizeReq struct {
		PaymentMandate      ap2.PaymentMandate `json:"payment_mandate"`
		PaymentMethodToken  string             `json:"payment_method_token"`
	}
	type tokenizeResp struct {
		AgentToken string `json:"agent_token"`
	}
	var resp tokenizeResp
	err := s.network.PostJSON(ctx, s.networkURL+"/network/tokenize", tokenizeReq{PaymentMandate: mandate, PaymentMethodToken: pmToken}, &resp)
	if err != nil {
		return "", err
	}
	return resp.AgentToken, nil
}

// CredentialsVerifyRequest is the POST /credentials/verify body.
type CredentialsVerifyRequest struct {
	Token   string  `json:"token"`
	PayerID string  `json:"payer_id"`
	Amount  float64 `json:"amount"`
}

// CredentialInfo is the non-sensitive projection returned by
// /credentials/verify.
type CredentialInfo struct {
	PaymentMethodID string `json:"payment_method_id"`
	Type            string `json:"type"`
	Brand           string `json:"brand,omitempty"`
	Last4           string `json:"last4,omitempty"`
	HolderName      string `json:"holder_name,omitempty"`
}

// CredentialsVerifyResponse is the POST /credentials/verify response body.
type CredentialsVerifyResponse struct {
	Verified       bool            `json:"verified"`
	CredentialInfo *CredentialInfo `json:"credential_info,omitempty"`
}

// CredentialsVerify is the check the Payment Processor runs before
// authorizing: token exists, is unexpired, and belongs to payer_id.
func (s *Service) CredentialsVerify(ctx context.Context, req CredentialsVerifyRequest) (*CredentialsVerifyResponse, error) {
	rec, err := s.getToken(ctx, req.Token)
	if err != nil {
		return &CredentialsVerifyResponse{Verified: false}, nil
	}
	if time.Now().After(rec.ExpiresAt) {
		return &CredentialsVerifyResponse{Verified: false}, nil
	}
	if rec.UserID != req.PayerID {
		return &CredentialsVerifyResponse{Verified: false}, nil
	}

	method, err := s.creds.GetPaymentMethod(ctx, rec.UserID, rec.PaymentMethodID)
	if err != nil {
		return &CredentialsVerifyResponse{Verified: false}, nil
	}

	return &CredentialsVerifyResponse{
		Verified: true,
		CredentialInfo: &CredentialInfo{
			PaymentMethodID: method.ID,
			Type:            method.Type,
			Brand:           method.Brand,
			Last4:           method.Last4,
		},
	}, nil
}

// ReceiptsRequest is the POST /receipts body.
type ReceiptsRequest struct {
	TransactionID string    `json:"transaction_id"`
	ReceiptURL    string    `json:"receipt_url"`
	PayerID       string    `json:"payer_id"`
	Amount        float64   `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Receipts appends to receipts[payer_id]; idempotent on transaction_id.
func (s *Service) Receipts(ctx context.Context, req ReceiptsRequest) error {
	return s.creds.AppendReceipt(ctx, req.PayerID, model.ReceiptRecord{
		TransactionID: req.TransactionID,
		ReceiptURL:    req.ReceiptURL,
		PayerID:       req.PayerID,
		Amount:        req.Amount,
		Timestamp:     req.Timestamp,
	})
}

func (s *Service) putToken(ctx context.Context, rec model.TokenRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal token record: %w", err)
	}
	return s.tokens.Put(ctx, rec.Token, raw, pmTokenTTL)
}

func (s *Service) getToken(ctx context.Context, token string) (*model.TokenRecord, error) {
	raw, ok, err := s.tokens.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ap2.ErrTokenExpired()
	}
	var rec model.TokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal token record: %w", err)
	}
	return &rec, nil
}

func (s *Service) putSession(ctx context.Context, session model.StepUpSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal step-up session: %w", err)
	}
	return s.sessions.Put(ctx, session.SessionID, raw, stepUpTTL)
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*model.StepUpSession, error) {
	raw, ok, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ap2.ErrChallengeExpired()
	}
	var session model.StepUpSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal step-up session: %w", err)
	}
	return &session, nil
}

// assertionDigest fingerprints an assertion by its signed material.
func assertionDigest(a ap2.WebAuthnAssertion) string {
	h := sha256.New()
	h.Write(a.AuthenticatorData)
	h.Write(a.ClientDataJSON)
	h.Write(a.Signature)
	return hex.EncodeToString(h.Sum(nil))
}

func generatePMToken() string {
	var b [18]byte
	_, _ = rand.Read(b[:])
	return "tok_" + uuid.New().String()[:8] + "_" + base64.RawURLEncoding.EncodeToString(b[:])
}
