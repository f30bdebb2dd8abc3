package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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
	testSelfDID     = "did:ap2:shopper:test"
	testMerchantDID = "did:ap2:merchant:test"
	testAgentDID    = "did:ap2:agent:test"
	testUserID      = "user-123"
)

type fakeCP struct {
	methods        []ap2.PaymentMethod
	tokenizeCalls  int
	stepUpVerified bool
	agentToken     string
}

func (f *fakeCP) ListPaymentMethods(context.Context, string) ([]ap2.PaymentMethod, error) {
	return f.methods, nil
}

func (f *fakeCP) Tokenize(context.Context, string, string) (*clients.TokenizeResult, error) {
	f.tokenizeCalls++
	return &clients.TokenizeResult{Token: "tok_fresh123_abc", ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func (f *fakeCP) InitiateStepUp(context.Context, string, string, string, map[string]interface{}) (*clients.StepUpSession, error) {
	return &clients.StepUpSession{SessionID: "su_1", StepUpURL: "/step-up/su_1", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (f *fakeCP) VerifyStepUp(context.Context, string) (*clients.StepUpVerification, error) {
	if !f.stepUpVerified {
		return &clients.StepUpVerification{Verified: false}, nil
	}
	return &clients.StepUpVerification{Verified: true, Token: "tok_stepup99_xyz"}, nil
}

func (f *fakeCP) VerifyAttestation(_ context.Context, mandate ap2.PaymentMandate, _ ap2.WebAuthnAssertionJSON, _ string) (*clients.AttestationResult, error) {
	result := &clients.AttestationResult{Verified: true, Token: "tok_cred"}
	if tok, ok := mandate.PaymentMandateContents.PaymentResponse.Details["token"].(string); ok && tok != "" {
		result.AgentToken = f.agentToken
	}
	return result, nil
}

type fakeRisk struct{}

func (fakeRisk) Evaluate(context.Context, string, clients.RiskSignals) (*ap2.RiskAssessment, error) {
	return &ap2.RiskAssessment{RiskScore: 12, RiskLevel: "LOW", Recommendation: "APPROVE"}, nil
}

type fakeSender struct {
	merchantKP *ap2.KeyPair
	result     model.PaymentOutcome

	sentPayload json.RawMessage
}

func (f *fakeSender) SendForArtifact(_ context.Context, _, _, dataType string, payload interface{}) (*envelope.ArtifactResult, error) {
	if dataType != envelope.TypeIntentMandate {
		return nil, fmt.Errorf("unexpected data type %q", dataType)
	}

	type part struct {
		Kind    string          `json:"kind"`
		DataKey string          `json:"data_key"`
		Data    ap2.CartMandate `json:"data"`
	}
	type artifact struct {
		ArtifactID string `json:"artifactId"`
		Name       string `json:"name"`
		Parts      []part `json:"parts"`
	}

	var artifacts []artifact
	for i, price := range []float64{5280, 8068, 10780} {
		contents := ap2.CartContents{
			ID:                           fmt.Sprintf("cart_%d", i),
			UserCartConfirmationRequired: true,
			PaymentRequest: ap2.PaymentRequest{
				Details: ap2.PaymentDetailsInit{
					ID: fmt.Sprintf("order_%d", i),
					DisplayItems: []ap2.PaymentItem{
						{Label: "Red high-top basketball shoes", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: price}, RefundPeriod: 30 * 24 * 3600},
					},
					Total: ap2.PaymentItem{Label: "Total", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: price}},
				},
				ShippingAddress: &ap2.ContactAddress{Country: "JP", City: "Tokyo", Recipient: "Test User", AddressLine: []string{"1-1-1"}},
			},
			CartExpiry:   time.Now().Add(15 * time.Minute),
			MerchantName: "Test Shoe Store",
		}
		hash, err := ap2.CartHash(contents)
		if err != nil {
			return nil, err
		}
		auth, err := ap2.BuildMerchantAuthorization(f.merchantKP.ECDSAKey, testMerchantDID, "did:ap2:processor:test", contents.ID, hash, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact{
			ArtifactID: fmt.Sprintf("artifact_%d", i),
			Name:       fmt.Sprintf("candidate %d", i),
			Parts:      []part{{Kind: "data", DataKey: ap2.CartMandateDataKey, Data: ap2.CartMandate{Contents: contents, MerchantAuthorization: auth, Timestamp: time.Now()}}},
		})
	}

	raw, err := json.Marshal(artifacts)
	if err != nil {
		return nil, err
	}
	return &envelope.ArtifactResult{
		IsArtifact:   true,
		ArtifactName: "cart_candidates",
		DataTypeKey:  envelope.TypeCartCandidates,
		ArtifactData: raw,
	}, nil
}

func (f *fakeSender) Send(_ context.Context, _, _, dataType string, payload interface{}) (*envelope.Envelope, error) {
	if dataType != envelope.TypePaymentMandate {
		return nil, fmt.Errorf("unexpected data type %q", dataType)
	}
	f.sentPayload, _ = json.Marshal(payload)

	resultRaw, _ := json.Marshal(f.result)
	return &envelope.Envelope{
		Header:   envelope.Header{Sender: testAgentDID},
		DataPart: envelope.DataPart{Type: envelope.TypePaymentResult, Payload: resultRaw},
	}, nil
}

type fixture struct {
	svc    *Service
	cp     *fakeCP
	sender *fakeSender
	holder *ap2.KeyPair
}

func newFixture(t *testing.T, methods []ap2.PaymentMethod) *fixture {
	t.Helper()

	merchantKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatal(err)
	}
	holderKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatal(err)
	}

	pubPEM, err := merchantKP.PublicKeyPEM()
	if err != nil {
		t.Fatal(err)
	}
	doc := didresolver.Document{
		ID: testMerchantDID,
		VerificationMethod: []didresolver.VerificationMethod{
			{ID: testMerchantDID + "#key-1", Type: "JsonWebKey2020", Controller: testMerchantDID, PublicKeyPEM: string(pubPEM), Status: didresolver.KeyStatusActive},
		},
	}
	merchantSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(merchantSrv.Close)

	cp := &fakeCP{methods: methods, agentToken: "agent_tok_visa_abc123"}
	sender := &fakeSender{
		merchantKP: merchantKP,
		result: model.PaymentOutcome{
			TransactionID: "txn_abc123def456",
			Status:        ap2.TransactionCaptured,
			ReceiptURL:    "http://processor.test/receipts/txn_abc123def456.pdf",
			Amount:        "8068",
			Currency:      "JPY",
		},
	}

	svc := New(Config{
		Identity: &agentidentity.Identity{
			DID:     testSelfDID,
			KeyID:   testSelfDID + "#key-1",
			KeyPair: holderKP,
		},
		Store:      store.NewMemoryStore(),
		Challenges: ttlstore.NewMemoryStore(),
		CP:         cp,
		Risk:       fakeRisk{},
		Sender:     sender,
		Resolver:   didresolver.NewResolver(),
		PeerURL: func(did string) (string, error) {
			if did == testMerchantDID {
				return merchantSrv.URL, nil
			}
			return "", fmt.Errorf("unknown peer %s", did)
		},
		MerchantAgentDID: testAgentDID,
		MerchantAgentURL: "http://agent.test",
		CredentialsDID:   "did:ap2:cp:test",
		AccountCountry:   "JP",
		StepUpReturnURL:  "http://shopper.test/return",
	})

	return &fixture{svc: svc, cp: cp, sender: sender, holder: holderKP}
}

func cardMethod(requiresStepUp bool) []ap2.PaymentMethod {
	return []ap2.PaymentMethod{
		{ID: "pm_visa", Type: "CARD", Brand: "Visa", DisplayName: "Visa ending in 4242", Last4: "4242", IsDefault: true, RequiresStepUp: requiresStepUp},
	}
}

func dummyAttestation() ap2.WebAuthnAssertionJSON {
	var a ap2.WebAuthnAssertionJSON
	a.RawID = "cred-1"
	a.Type = "public-key"
	return a
}

// advanceToMethodChosen drives a purchase through intent, carts, and
// method selection.
func (f *fixture) advanceToMethodChosen(t *testing.T) *model.Purchase {
	t.Helper()
	ctx := context.Background()

	purchase, err := f.svc.CreatePurchase(ctx, model.CreatePurchaseRequest{
		UserID:      testUserID,
		Description: "red high-top basketball shoes",
		MaxAmount:   &ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 50000},
		Merchants:   []string{testMerchantDID},
	})
	if err != nil {
		t.Fatalf("CreatePurchase() error = %v", err)
	}

	challenge, err := f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ConfirmIntent(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation()); err != nil {
		t.Fatalf("ConfirmIntent() error = %v", err)
	}

	purchase, err = f.svc.RequestCartCandidates(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("RequestCartCandidates() error = %v", err)
	}
	if len(purchase.CartCandidates) != 3 {
		t.Fatalf("candidates = %d, want 3", len(purchase.CartCandidates))
	}

	purchase, err = f.svc.SelectCart(ctx, purchase.ID, "artifact_1")
	if err != nil {
		t.Fatalf("SelectCart() error = %v", err)
	}
	if purchase.State != model.StateCartSelected {
		t.Fatalf("state after select = %s", purchase.State)
	}
	purchase, err = f.svc.ConfirmCart(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("ConfirmCart() error = %v", err)
	}

	result, err := f.svc.ChoosePaymentMethod(ctx, purchase.ID, "pm_visa")
	if err != nil {
		t.Fatalf("ChoosePaymentMethod() error = %v", err)
	}
	return result.Purchase
}

func TestPurchase_HappyPath(t *testing.T) {
	f := newFixture(t, cardMethod(false))
	ctx := context.Background()

	purchase := f.advanceToMethodChosen(t)
	if purchase.State != model.StatePaymentMethodChosen {
		t.Fatalf("state = %s", purchase.State)
	}

	challenge, err := f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	purchase, err = f.svc.Pay(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation())
	if err != nil {
		t.Fatalf("Pay() error = %v", err)
	}

	if purchase.State != model.StatePaymentSettled {
		t.Errorf("state = %s, want settled", purchase.State)
	}
	if purchase.Result == nil || purchase.Result.TransactionID != "txn_abc123def456" {
		t.Errorf("result = %+v", purchase.Result)
	}
	if purchase.AgentToken == "" {
		t.Error("agent token was not captured from the attestation ceremony")
	}
	if purchase.Risk == nil || purchase.Risk.Recommendation != "APPROVE" {
		t.Errorf("risk = %+v", purchase.Risk)
	}
	if f.cp.tokenizeCalls != 1 {
		t.Errorf("tokenize calls = %d, want 1", f.cp.tokenizeCalls)
	}

	// The chain the Merchant Agent received must carry a user_authorization
	// that verifies against the holder key and the exact hashes.
	var sent struct {
		PaymentMandate ap2.PaymentMandate `json:"payment_mandate"`
		CartMandate    ap2.CartMandate    `json:"cart_mandate"`
		IntentMandate  ap2.IntentMandate  `json:"intent_mandate"`
	}
	if err := json.Unmarshal(f.sender.sentPayload, &sent); err != nil {
		t.Fatal(err)
	}
	cartHash, err := ap2.CartHash(sent.CartMandate.Contents)
	if err != nil {
		t.Fatal(err)
	}
	paymentHash, err := ap2.PaymentHash(sent.PaymentMandate.PaymentMandateContents)
	if err != nil {
		t.Fatal(err)
	}
	if err := ap2.VerifyUserAuthorization(sent.PaymentMandate.UserAuthorization, &f.holder.ECDSAKey.PublicKey, cartHash, paymentHash); err != nil {
		t.Errorf("user_authorization does not verify: %v", err)
	}
	if sent.PaymentMandate.PaymentMandateContents.PaymentDetailsID != sent.CartMandate.Contents.PaymentRequest.Details.ID {
		t.Error("payment_details_id does not reference the cart")
	}
	if sent.IntentMandate.ID == "" {
		t.Error("intent mandate missing from the chain payload")
	}
}

func TestPurchase_StepUpRequired(t *testing.T) {
	f := newFixture(t, cardMethod(true))
	ctx := context.Background()

	purchase := f.advanceToMethodChosen(t)
	if purchase.State != model.StateStepUpPending {
		t.Fatalf("state = %s, want step-up pending", purchase.State)
	}

	// Paying before the step-up completes must be refused.
	challenge, err := f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Pay(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation()); err == nil {
		t.Fatal("Pay() succeeded with a pending step-up")
	}

	// The session has not completed at the provider either.
	if _, err := f.svc.VerifyStepUp(ctx, purchase.ID); err == nil {
		t.Fatal("VerifyStepUp() succeeded before completion")
	}

	f.cp.stepUpVerified = true
	purchase2, err := f.svc.VerifyStepUp(ctx, purchase.ID)
	if err != nil {
		t.Fatalf("VerifyStepUp() error = %v", err)
	}
	if !purchase2.StepUpCompleted || purchase2.PMToken == "" {
		t.Fatalf("step-up token not recorded: %+v", purchase2)
	}

	challenge, err = f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	purchase2, err = f.svc.Pay(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation())
	if err != nil {
		t.Fatalf("Pay() after step-up error = %v", err)
	}
	if purchase2.State != model.StatePaymentSettled {
		t.Errorf("state = %s", purchase2.State)
	}
	// The step-up token is used; no fresh tokenization happens.
	if f.cp.tokenizeCalls != 0 {
		t.Errorf("tokenize calls = %d, want 0 (step-up token reused)", f.cp.tokenizeCalls)
	}
}

func TestPurchase_OutOfOrderStepRejected(t *testing.T) {
	f := newFixture(t, cardMethod(false))
	ctx := context.Background()

	purchase, err := f.svc.CreatePurchase(ctx, model.CreatePurchaseRequest{
		UserID:      testUserID,
		Description: "anything",
	})
	if err != nil {
		t.Fatal(err)
	}

	// Carts cannot be requested before the intent ceremony.
	if _, err := f.svc.RequestCartCandidates(ctx, purchase.ID); err == nil {
		t.Fatal("RequestCartCandidates() succeeded from INTENT_COLLECTED")
	}
}

func TestPurchase_ChallengeIsSingleUse(t *testing.T) {
	f := newFixture(t, cardMethod(false))
	ctx := context.Background()

	purchase, err := f.svc.CreatePurchase(ctx, model.CreatePurchaseRequest{
		UserID:      testUserID,
		Description: "red high-top basketball shoes",
	})
	if err != nil {
		t.Fatal(err)
	}

	challenge, err := f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.ConfirmIntent(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation()); err != nil {
		t.Fatal(err)
	}

	// A second ceremony on the same challenge must fail, whatever the
	// purchase state.
	_, err = f.svc.ConfirmIntent(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation())
	if err == nil {
		t.Fatal("consumed challenge was accepted again")
	}
}

func TestPurchase_SettlementFailureLandsInFailed(t *testing.T) {
	f := newFixture(t, cardMethod(false))
	f.sender.result = model.PaymentOutcome{
		Status: "error",
		Errors: []string{"amount_exceeds_intent: cart total exceeds the intent's max_amount"},
	}
	ctx := context.Background()

	purchase := f.advanceToMethodChosen(t)
	challenge, err := f.svc.CreateChallenge(ctx, purchase.ID)
	if err != nil {
		t.Fatal(err)
	}
	purchase, err = f.svc.Pay(ctx, purchase.ID, challenge.ChallengeID, dummyAttestation())
	if err != nil {
		t.Fatalf("Pay() error = %v", err)
	}

	if purchase.State != model.StateFailed {
		t.Errorf("state = %s, want failed", purchase.State)
	}
	if purchase.Result == nil || len(purchase.Result.Errors) == 0 {
		t.Errorf("settlement errors not recorded: %+v", purchase.Result)
	}
}

func TestCanTransition_NoPathBackFromTerminalStates(t *testing.T) {
	for _, from := range []model.PurchaseState{model.StatePaymentSettled, model.StateFailed} {
		for _, to := range []model.PurchaseState{
			model.StateInitial, model.StateIntentCollected, model.StatePaymentMandateSigned,
		} {
			if model.CanTransition(from, to) {
				t.Errorf("transition %s -> %s allowed", from, to)
			}
		}
	}
}
