// Package service implements the Shopping Agent's mandate-side state
// machine: collect an intent, confirm it with a passkey ceremony, gather
// signed cart candidates, walk the user's selection through step-up and
// tokenization, sign the user authorization, and send the finished chain
// to the Merchant Agent for settlement.
//
// The conversational surface that produces these calls is out of scope;
// every operation here is an explicit HTTP step.
package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/envelope"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

const (
	defaultIntentTTL = 24 * time.Hour
	challengeTTL     = 60 * time.Second
	userAuthTTL      = 10 * time.Minute
)

// CredentialsProvider is the Credential Provider surface the agent needs.
type CredentialsProvider interface {
	ListPaymentMethods(ctx context.Context, userID string) ([]ap2.PaymentMethod, error)
	Tokenize(ctx context.Context, userID, methodID string) (*clients.TokenizeResult, error)
	InitiateStepUp(ctx context.Context, userID, methodID, returnURL string, transactionContext map[string]interface{}) (*clients.StepUpSession, error)
	VerifyStepUp(ctx context.Context, sessionID string) (*clients.StepUpVerification, error)
	VerifyAttestation(ctx context.Context, mandate ap2.PaymentMandate, attestation ap2.WebAuthnAssertionJSON, expectedChallenge string) (*clients.AttestationResult, error)
}

// RiskEngine scores a payment before it is sent. Advisory only.
type RiskEngine interface {
	Evaluate(ctx context.Context, paymentMandateID string, signals clients.RiskSignals) (*ap2.RiskAssessment, error)
}

// MandateSender sends A2A envelopes; satisfied by *envelope.Handler.
type MandateSender interface {
	Send(ctx context.Context, recipientDID, recipientURL, dataType string, payload interface{}) (*envelope.Envelope, error)
	SendForArtifact(ctx context.Context, recipientDID, recipientURL, dataType string, payload interface{}) (*envelope.ArtifactResult, error)
}

// PeerURLFunc maps a peer DID to the base URL serving its DID document.
type PeerURLFunc func(did string) (string, error)

// Service drives purchases through the state machine.
type Service struct {
	identity   *agentidentity.Identity
	store      store.PurchaseStore
	challenges ttlstore.Store
	cp         CredentialsProvider
	risk       RiskEngine
	sender     MandateSender
	resolver   *didresolver.Resolver
	peerURL    PeerURLFunc

	merchantAgentDID string
	merchantAgentURL string
	cpDID            string
	accountCountry   string
	stepUpReturnURL  string
}

// Config bundles the Service's dependencies.
type Config struct {
	Identity         *agentidentity.Identity
	Store            store.PurchaseStore
	Challenges       ttlstore.Store
	CP               CredentialsProvider
	Risk             RiskEngine
	Sender           MandateSender
	Resolver         *didresolver.Resolver
	PeerURL          PeerURLFunc
	MerchantAgentDID string
	MerchantAgentURL string
	CredentialsDID   string
	AccountCountry   string
	StepUpReturnURL  string
}

func New(cfg Config) *Service {
	return &Service{
		identity:         cfg.Identity,
		store:            cfg.Store,
		challenges:       cfg.Challenges,
		cp:               cfg.CP,
		risk:             cfg.Risk,
		sender:           cfg.Sender,
		resolver:         cfg.Resolver,
		peerURL:          cfg.PeerURL,
		merchantAgentDID: cfg.MerchantAgentDID,
		merchantAgentURL: cfg.MerchantAgentURL,
		cpDID:            cfg.CredentialsDID,
		accountCountry:   cfg.AccountCountry,
		stepUpReturnURL:  cfg.StepUpReturnURL,
	}
}

// CreatePurchase builds the IntentMandate and opens the purchase.
func (s *Service) CreatePurchase(ctx context.Context, req model.CreatePurchaseRequest) (*model.Purchase, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("user_id is required"))
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("description is required"))
	}

	now := time.Now().UTC()
	expiry := now.Add(defaultIntentTTL)
	if req.IntentExpiry != nil {
		expiry = *req.IntentExpiry
	}
	confirmationRequired := true
	if req.CartConfirmationRequired != nil {
		confirmationRequired = *req.CartConfirmationRequired
	}

	purchase := model.Purchase{
		ID:     "purchase_" + uuid.NewString()[:8],
		UserID: req.UserID,
		State:  model.StateInitial,
		Intent: ap2.IntentMandate{
			ID:                           "intent_" + uuid.NewString(),
			UserCartConfirmationRequired: confirmationRequired,
			NaturalLanguageDescription:   req.Description,
			Merchants:                    req.Merchants,
			SKUs:                         req.SKUs,
			RequiresRefundability:        req.RequiresRefundability,
			MaxAmount:                    req.MaxAmount,
			IntentExpiry:                 expiry,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := purchase.Advance(model.StateIntentCollected); err != nil {
		return nil, err
	}
	if err := s.store.SavePurchase(ctx, purchase); err != nil {
		return nil, fmt.Errorf("save purchase: %w", err)
	}

	slog.InfoContext(ctx, "purchase_opened",
		"purchase_id", purchase.ID,
		"user_id", purchase.UserID,
		"intent_id", purchase.Intent.ID,
		"intent_expiry", expiry,
	)
	return &purchase, nil
}

// GetPurchase looks one purchase up.
func (s *Service) GetPurchase(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	p, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type challengeRecord struct {
	PurchaseID string `json:"purchase_id"`
	Challenge  string `json:"challenge"`
}

// CreateChallenge mints a fresh WebAuthn challenge for a purchase's next
// passkey ceremony. Challenges are single-use and expire after a minute.
func (s *Service) CreateChallenge(ctx context.Context, purchaseID string) (*model.ChallengeResponse, error) {
	if _, err := s.store.GetPurchase(ctx, purchaseID); err != nil {
		return nil, err
	}

	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}
	challenge := base64.RawURLEncoding.EncodeToString(raw[:])
	challengeID := "ch_" + uuid.NewString()[:8]

	rec, err := json.Marshal(challengeRecord{PurchaseID: purchaseID, Challenge: challenge})
	if err != nil {
		return nil, err
	}
	if err := s.challenges.Put(ctx, challengeID, rec, challengeTTL); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}

	return &model.ChallengeResponse{
		ChallengeID: challengeID,
		Challenge:   challenge,
		ExpiresAt:   time.Now().Add(challengeTTL),
	}, nil
}

// consumeChallenge redeems a challenge exactly once.
func (s *Service) consumeChallenge(ctx context.Context, purchaseID, challengeID string) (string, error) {
	raw, ok, err := s.challenges.Get(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ap2.ErrChallengeExpired()
	}
	_ = s.challenges.Delete(ctx, challengeID)

	var rec challengeRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", fmt.Errorf("decode challenge record: %w", err)
	}
	if rec.PurchaseID != purchaseID {
		return "", ap2.ErrChallengeExpired()
	}
	return rec.Challenge, nil
}

// ConfirmIntent verifies the user's WebAuthn assertion over a fresh
// challenge, proving a human stood behind the intent.
func (s *Service) ConfirmIntent(ctx context.Context, purchaseID, challengeID string, attestation ap2.WebAuthnAssertionJSON) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	challenge, err := s.consumeChallenge(ctx, purchaseID, challengeID)
	if err != nil {
		return nil, err
	}

	// The intent ceremony carries no pm_token, so the provider only
	// verifies the assertion; no network tokenization happens yet.
	probe := ap2.PaymentMandate{
		PaymentMandateContents: ap2.PaymentMandateContents{PayerID: purchase.UserID},
	}
	result, err := s.cp.VerifyAttestation(ctx, probe, attestation, challenge)
	if err != nil {
		return nil, err
	}
	if !result.Verified {
		return nil, ap2.ErrWebAuthnVerifyFail(fmt.Errorf("credential provider rejected the intent assertion"))
	}

	if err := purchase.Advance(model.StateIntentConfirmed); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "intent_confirmed", "purchase_id", purchase.ID, "intent_id", purchase.Intent.ID)
	return &purchase, nil
}

// RequestCartCandidates sends the IntentMandate to the Merchant Agent and
// stores the signed cart candidates it returns.
func (s *Service) RequestCartCandidates(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.State != model.StateIntentConfirmed {
		return nil, model.ErrInvalidTransition{From: purchase.State, To: model.StateCartOptionsReceived}
	}

	artifact, err := s.sender.SendForArtifact(ctx, s.merchantAgentDID, s.merchantAgentURL, envelope.TypeIntentMandate, purchase.Intent)
	if err != nil {
		return nil, ap2.ErrUpstreamUnavailable(err)
	}
	if artifact.DataTypeKey != envelope.TypeCartCandidates {
		return nil, fmt.Errorf("merchant agent returned %q, want cart candidates", artifact.DataTypeKey)
	}

	var wireArtifacts []struct {
		ArtifactID string `json:"artifactId"`
		Name       string `json:"name"`
		Parts      []struct {
			Kind    string          `json:"kind"`
			DataKey string          `json:"data_key"`
			Data    ap2.CartMandate `json:"data"`
		} `json:"parts"`
	}
	if err := json.Unmarshal(artifact.ArtifactData, &wireArtifacts); err != nil {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("decode cart candidates: %w", err))
	}

	purchase.CartCandidates = nil
	for _, wa := range wireArtifacts {
		for _, part := range wa.Parts {
			if part.Kind != "data" || part.DataKey != ap2.CartMandateDataKey {
				continue
			}
			purchase.CartCandidates = append(purchase.CartCandidates, model.CartCandidate{
				ArtifactID: wa.ArtifactID,
				Name:       wa.Name,
				Cart:       part.Data,
			})
		}
	}
	if len(purchase.CartCandidates) == 0 {
		return nil, ap2.ErrMandateNotFound("cart candidates")
	}

	if err := purchase.Advance(model.StateCartOptionsReceived); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "cart_candidates_received", "purchase_id", purchase.ID, "candidates", len(purchase.CartCandidates))
	return &purchase, nil
}

// SelectCart records the chosen candidate after defensively re-verifying
// its merchant_authorization. When the intent waived per-cart
// confirmation, the purchase advances straight to CartConfirmed.
func (s *Service) SelectCart(ctx context.Context, purchaseID, artifactID string) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}

	var chosen *model.CartCandidate
	for i := range purchase.CartCandidates {
		if purchase.CartCandidates[i].ArtifactID == artifactID {
			chosen = &purchase.CartCandidates[i]
			break
		}
	}
	if chosen == nil {
		return nil, ap2.ErrMandateNotFound("cart candidate " + artifactID)
	}

	// Cheap and catches a broken or tampered relay before any ceremony is
	// spent on it. The Payment Processor's verification stays canonical.
	if err := s.reverifyMerchantAuthorization(ctx, &chosen.Cart); err != nil {
		return nil, err
	}

	if purchase.Intent.MaxAmount != nil {
		total := chosen.Cart.Contents.PaymentRequest.Details.Total.Amount
		if total.Currency == purchase.Intent.MaxAmount.Currency && total.Value > purchase.Intent.MaxAmount.Value {
			slog.WarnContext(ctx, "selected_cart_exceeds_intent_budget",
				"purchase_id", purchase.ID,
				"total", total.Value,
				"max", purchase.Intent.MaxAmount.Value,
			)
		}
	}

	cart := chosen.Cart
	purchase.SelectedCart = &cart
	if err := purchase.Advance(model.StateCartSelected); err != nil {
		return nil, err
	}
	if !cart.Contents.UserCartConfirmationRequired {
		if err := purchase.Advance(model.StateCartConfirmed); err != nil {
			return nil, err
		}
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "cart_selected", "purchase_id", purchase.ID, "cart_id", cart.Contents.ID, "state", purchase.State)
	return &purchase, nil
}

// ConfirmCart is the user's explicit approval of the selected cart.
func (s *Service) ConfirmCart(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if err := purchase.Advance(model.StateCartConfirmed); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ChooseMethodResult reports whether the chosen method demands a step-up
// before tokenization.
type ChooseMethodResult struct {
	Purchase  *model.Purchase        `json:"purchase"`
	StepUp    *clients.StepUpSession `json:"step_up,omitempty"`
}

// ChoosePaymentMethod records the user's method and opens a step-up
// session when the method requires one.
func (s *Service) ChoosePaymentMethod(ctx context.Context, purchaseID, methodID string) (*ChooseMethodResult, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.SelectedCart == nil {
		return nil, ap2.ErrMandateNotFound("selected cart")
	}

	methods, err := s.cp.ListPaymentMethods(ctx, purchase.UserID)
	if err != nil {
		return nil, ap2.ErrUpstreamUnavailable(err)
	}
	var method *ap2.PaymentMethod
	for i := range methods {
		if methods[i].ID == methodID {
			method = &methods[i]
			break
		}
	}
	if method == nil {
		return nil, ap2.ErrUnknownCredential()
	}

	purchase.PaymentMethodID = method.ID
	purchase.MethodType = method.Type
	purchase.MethodBrand = method.Brand
	purchase.RequiresStepUp = method.RequiresStepUp
	purchase.StepUpCompleted = false
	purchase.PMToken = ""

	if err := purchase.Advance(model.StatePaymentMethodChosen); err != nil {
		return nil, err
	}

	result := &ChooseMethodResult{}
	if method.RequiresStepUp {
		session, err := s.cp.InitiateStepUp(ctx, purchase.UserID, method.ID, s.stepUpReturnURL, map[string]interface{}{
			"purchase_id": purchase.ID,
			"amount":      purchase.SelectedCart.Contents.PaymentRequest.Details.Total.Amount.Value,
			"currency":    purchase.SelectedCart.Contents.PaymentRequest.Details.Total.Amount.Currency,
		})
		if err != nil {
			return nil, ap2.ErrUpstreamUnavailable(err)
		}
		purchase.StepUpSessionID = session.SessionID
		if err := purchase.Advance(model.StateStepUpPending); err != nil {
			return nil, err
		}
		result.StepUp = session
	}

	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}
	result.Purchase = &purchase

	slog.InfoContext(ctx, "payment_method_chosen",
		"purchase_id", purchase.ID,
		"payment_method_id", method.ID,
		"requires_step_up", method.RequiresStepUp,
	)
	return result, nil
}

// VerifyStepUp checks with the Credential Provider that the pending
// step-up session completed, keeping its token (which carries
// step_up_completed=true) for the payment.
func (s *Service) VerifyStepUp(ctx context.Context, purchaseID string) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.State != model.StateStepUpPending || purchase.StepUpSessionID == "" {
		return nil, model.ErrInvalidTransition{From: purchase.State, To: model.StatePaymentMethodChosen}
	}

	verification, err := s.cp.VerifyStepUp(ctx, purchase.StepUpSessionID)
	if err != nil {
		return nil, ap2.ErrUpstreamUnavailable(err)
	}
	if !verification.Verified {
		return nil, ap2.ErrChallengeExpired()
	}

	purchase.StepUpCompleted = true
	purchase.PMToken = verification.Token
	if err := purchase.Advance(model.StatePaymentMethodChosen); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "step_up_verified", "purchase_id", purchase.ID, "session_id", purchase.StepUpSessionID)
	return &purchase, nil
}

// Pay signs the user authorization over the cart and payment hashes and
// sends the finished chain to the Merchant Agent, recording the outcome.
func (s *Service) Pay(ctx context.Context, purchaseID, challengeID string, attestation ap2.WebAuthnAssertionJSON) (*model.Purchase, error) {
	purchase, err := s.store.GetPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.State != model.StatePaymentMethodChosen {
		return nil, model.ErrInvalidTransition{From: purchase.State, To: model.StatePaymentMandateSigned}
	}
	if purchase.SelectedCart == nil {
		return nil, ap2.ErrMandateNotFound("selected cart")
	}
	if purchase.RequiresStepUp && !purchase.StepUpCompleted {
		return nil, ap2.ErrWebAuthnVerifyFail(fmt.Errorf("payment method requires a completed step-up"))
	}

	challenge, err := s.consumeChallenge(ctx, purchaseID, challengeID)
	if err != nil {
		return nil, err
	}

	cart := *purchase.SelectedCart

	// A step-up already minted a token carrying step_up_completed=true;
	// otherwise tokenize now.
	pmToken := purchase.PMToken
	tokenExpiry := time.Now().Add(15 * time.Minute)
	if pmToken == "" {
		tok, err := s.cp.Tokenize(ctx, purchase.UserID, purchase.PaymentMethodID)
		if err != nil {
			return nil, ap2.ErrUpstreamUnavailable(err)
		}
		pmToken = tok.Token
		tokenExpiry = tok.ExpiresAt
	}

	paymentResponse := ap2.CreatePaymentResponseFromToken(
		cart.Contents.PaymentRequest.Details.ID,
		purchase.MethodType,
		&ap2.PaymentMethodToken{Token: pmToken, MethodID: purchase.PaymentMethodID, ExpiresAt: tokenExpiry, TokenType: "SINGLE_USE"},
	)
	if addr := cart.Contents.PaymentRequest.ShippingAddress; addr != nil {
		paymentResponse.ShippingAddress = addr
	}

	pm := ap2.GeneratePaymentMandate(&cart, paymentResponse, s.merchantAgentDID, purchase.UserID)

	cartHash, err := ap2.CartHash(cart.Contents)
	if err != nil {
		return nil, fmt.Errorf("hash cart contents: %w", err)
	}
	paymentHash, err := ap2.PaymentHash(pm.PaymentMandateContents)
	if err != nil {
		return nil, fmt.Errorf("hash payment mandate contents: %w", err)
	}

	userAuth, err := ap2.BuildUserAuthorization(
		s.identity.KeyPair.ECDSAKey, s.identity.KeyID,
		s.cpDID, purchase.UserID,
		cartHash, paymentHash,
		challenge, userAuthTTL,
	)
	if err != nil {
		return nil, fmt.Errorf("build user_authorization: %w", err)
	}
	pm.UserAuthorization = userAuth

	// The assertion is verified before anything leaves this agent; the
	// same call obtains the network agent_token bound to it.
	verification, err := s.cp.VerifyAttestation(ctx, *pm, attestation, challenge)
	if err != nil {
		return nil, err
	}
	if !verification.Verified {
		return nil, ap2.ErrWebAuthnVerifyFail(fmt.Errorf("credential provider rejected the payment assertion"))
	}
	purchase.AgentToken = verification.AgentToken

	purchase.Risk = s.assessRisk(ctx, &purchase, cart, pm)
	purchase.PaymentMandate = pm
	if err := purchase.Advance(model.StatePaymentMandateSigned); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"payment_mandate": pm,
		"cart_mandate":    cart,
		"intent_mandate":  purchase.Intent,
		"attestation":     attestation,
	}
	if purchase.Risk != nil {
		payload["risk"] = purchase.Risk
	}

	respEnv, err := s.sender.Send(ctx, s.merchantAgentDID, s.merchantAgentURL, envelope.TypePaymentMandate, payload)
	if err != nil {
		return nil, ap2.ErrUpstreamUnavailable(err)
	}
	if respEnv.DataPart.Type != envelope.TypePaymentResult {
		return nil, fmt.Errorf("merchant agent returned %q, want payment result", respEnv.DataPart.Type)
	}

	var outcome model.PaymentOutcome
	if err := json.Unmarshal(respEnv.DataPart.Payload, &outcome); err != nil {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("decode payment result: %w", err))
	}
	purchase.Result = &outcome

	next := model.StatePaymentSettled
	if outcome.Status != ap2.TransactionCaptured {
		next = model.StateFailed
	}
	if err := purchase.Advance(next); err != nil {
		return nil, err
	}
	if err := s.store.UpdatePurchase(ctx, purchase); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "payment_completed",
		"purchase_id", purchase.ID,
		"payment_mandate_id", pm.PaymentMandateContents.PaymentMandateID,
		"status", outcome.Status,
		"transaction_id", outcome.TransactionID,
	)
	return &purchase, nil
}

// assessRisk flattens the purchase into the eight risk signals and asks
// the risk engine for an assessment. Failures degrade to "no assessment".
func (s *Service) assessRisk(ctx context.Context, purchase *model.Purchase, cart ap2.CartMandate, pm *ap2.PaymentMandate) *ap2.RiskAssessment {
	total := cart.Contents.PaymentRequest.Details.Total.Amount

	merchantDID := merchantDIDFromAuthorization(cart.MerchantAuthorization)
	allowListed := false
	for _, did := range purchase.Intent.Merchants {
		if did == merchantDID {
			allowListed = true
		}
	}

	recent := 0
	if settled, err := s.store.ListPurchases(ctx, purchase.UserID, 0); err == nil {
		cutoff := time.Now().Add(-24 * time.Hour)
		for _, p := range settled {
			if p.State == model.StatePaymentSettled && p.UpdatedAt.After(cutoff) {
				recent++
			}
		}
	}

	shippingCountry := ""
	if addr := cart.Contents.PaymentRequest.ShippingAddress; addr != nil {
		shippingCountry = addr.Country
	}

	maxAmount := 0.0
	if purchase.Intent.MaxAmount != nil {
		maxAmount = purchase.Intent.MaxAmount.Value
	}

	signals := clients.RiskSignals{
		Amount:              total.Value,
		Currency:            total.Currency,
		IntentMaxAmount:     maxAmount,
		MerchantAllowListed: allowListed,
		MerchantDID:         merchantDID,
		CardNotPresent:      purchase.MethodType == "CARD", // agentic flows never swipe a card
		MethodType:          purchase.MethodType,
		MethodBrand:         purchase.MethodBrand,
		RequiresStepUp:      purchase.RequiresStepUp,
		StepUpCompleted:     purchase.StepUpCompleted,
		RecentPurchaseCount: recent,
		ShippingCountry:     shippingCountry,
		AccountCountry:      s.accountCountry,
		LocalHour:           time.Now().Hour(),
		SecondsSinceIntent:  time.Since(purchase.CreatedAt).Seconds(),
		HumanPresent:        purchase.Intent.UserCartConfirmationRequired,
	}

	assessment, err := s.risk.Evaluate(ctx, pm.PaymentMandateContents.PaymentMandateID, signals)
	if err != nil {
		slog.WarnContext(ctx, "risk_evaluation_unavailable", "purchase_id", purchase.ID, "error", err)
		return nil
	}
	return assessment
}

func (s *Service) reverifyMerchantAuthorization(ctx context.Context, cart *ap2.CartMandate) error {
	if cart.MerchantAuthorization == "" {
		return ap2.ErrMerchantAuthInvalid(fmt.Errorf("candidate carries no merchant_authorization"))
	}
	kid, err := ap2.MerchantAuthKid(cart.MerchantAuthorization)
	if err != nil {
		return ap2.ErrMerchantAuthInvalid(err)
	}
	merchantDID := kid
	if idx := strings.LastIndex(kid, "#"); idx > 0 {
		merchantDID = kid[:idx]
	}
	baseURL, err := s.peerURL(merchantDID)
	if err != nil {
		return ap2.ErrDIDResolutionFailed(err)
	}
	pub, err := s.resolver.ResolveKey(ctx, baseURL, kid)
	if err != nil {
		return ap2.ErrDIDResolutionFailed(err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return ap2.ErrMerchantAuthInvalid(fmt.Errorf("merchant key %s is not ECDSA", kid))
	}
	hash, err := ap2.CartHash(cart.Contents)
	if err != nil {
		return err
	}
	_, err = ap2.VerifyMerchantAuthorization(cart.MerchantAuthorization, ecdsaPub, hash)
	return err
}

func merchantDIDFromAuthorization(jws string) string {
	kid, err := ap2.MerchantAuthKid(jws)
	if err != nil {
		return ""
	}
	if idx := strings.LastIndex(kid, "#"); idx > 0 {
		return kid[:idx]
	}
	return kid
}
