package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/payment"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
)

const (
	testProcessorDID = "did:ap2:processor:test"
	testMerchantDID  = "did:ap2:merchant:test"
	testHolderDID    = "did:ap2:shopper:test"
	testPayerID      = "user-123"
)

type fixture struct {
	svc        *Service
	store      *store.MemoryStore
	merchant   *ap2.KeyPair
	holder     *ap2.KeyPair
	cpRequests chan string
}

// newFixture wires a Service against httptest stand-ins: one server per
// resolvable DID document, and one fake Credential Provider that verifies
// every attestation and credential.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	merchantKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatal(err)
	}
	holderKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatal(err)
	}
	processorKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
	if err != nil {
		t.Fatal(err)
	}

	merchantSrv := newDIDServer(t, testMerchantDID, merchantKP)
	holderSrv := newDIDServer(t, testHolderDID, holderKP)

	cpRequests := make(chan string, 16)
	cpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cpRequests <- r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/verify/attestation":
			fmt.Fprint(w, `{"verified":true,"token":"tok_cred"}`)
		case "/credentials/verify":
			fmt.Fprint(w, `{"verified":true,"credential_info":{"payment_method_id":"pm_demo_visa_4242","type":"CARD","brand":"Visa","last4":"4242"}}`)
		case "/receipts":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(cpSrv.Close)

	peerURL := func(did string) (string, error) {
		switch did {
		case testMerchantDID:
			return merchantSrv.URL, nil
		case testHolderDID:
			return holderSrv.URL, nil
		}
		return "", fmt.Errorf("unknown peer %s", did)
	}

	memStore := store.NewMemoryStore()
	svc := New(Config{
		Identity: &agentidentity.Identity{
			DID:     testProcessorDID,
			KeyID:   testProcessorDID + "#key-1",
			KeyPair: processorKP,
		},
		Store:                  memStore,
		Acquirer:               payment.NewSimulatedAcquirer(),
		Resolver:               didresolver.NewResolver(),
		PeerURL:                peerURL,
		JTILedger:              ttlstore.NewMemoryNonceLedger(),
		CredentialsProviderURL: cpSrv.URL,
		ReceiptBaseURL:         "http://receipts.test",
	})

	return &fixture{
		svc:        svc,
		store:      memStore,
		merchant:   merchantKP,
		holder:     holderKP,
		cpRequests: cpRequests,
	}
}

func newDIDServer(t *testing.T, did string, kp *ap2.KeyPair) *httptest.Server {
	t.Helper()
	pubPEM, err := kp.PublicKeyPEM()
	if err != nil {
		t.Fatal(err)
	}
	doc := didresolver.Document{
		ID: did,
		VerificationMethod: []didresolver.VerificationMethod{
			{
				ID:           did + "#key-1",
				Type:         "JsonWebKey2020",
				Controller:   did,
				PublicKeyPEM: string(pubPEM),
				Status:       didresolver.KeyStatusActive,
			},
		},
		Authentication: []string{did + "#key-1"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type chainOpts struct {
	tamperPrice   bool
	intentMaxJPY  float64
	detailsIDSkew bool
	cartExpired   bool
	noUserAuth    bool
	merchants     []string
}

// buildChain assembles the basketball-shoes chain from the end-to-end
// scenario: subtotal 6880 + tax 688 + shipping 500 = 8068 JPY.
func (f *fixture) buildChain(t *testing.T, opts chainOpts) model.ChainPayload {
	t.Helper()
	now := time.Now()

	merchants := opts.merchants
	if merchants == nil {
		merchants = []string{testMerchantDID}
	}
	maxAmount := opts.intentMaxJPY
	if maxAmount == 0 {
		maxAmount = 50000
	}
	intent := &ap2.IntentMandate{
		ID:                           "intent_shoes_1",
		UserCartConfirmationRequired: true,
		NaturalLanguageDescription:   "red high-top basketball shoes",
		Merchants:                    merchants,
		MaxAmount:                    &ap2.PaymentCurrencyAmount{Currency: "JPY", Value: maxAmount},
		IntentExpiry:                 now.Add(24 * time.Hour),
	}

	cartExpiry := now.Add(15 * time.Minute)
	if opts.cartExpired {
		cartExpiry = now.Add(-1 * time.Minute)
	}
	contents := ap2.CartContents{
		ID:                           "cart_shoes_1",
		UserCartConfirmationRequired: true,
		PaymentRequest: ap2.PaymentRequest{
			MethodData: []ap2.PaymentMethodData{{SupportedMethods: "CARD"}},
			Details: ap2.PaymentDetailsInit{
				ID: "order_shoes_1",
				DisplayItems: []ap2.PaymentItem{
					{Label: "Red high-top basketball shoes", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 6880}, RefundPeriod: 30 * 24 * 3600},
					{Label: "Tax", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 688}},
					{Label: "Shipping", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 500}},
				},
				Total: ap2.PaymentItem{Label: "Total", Amount: ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 8068}},
			},
		},
		CartExpiry:   cartExpiry,
		MerchantName: "Test Shoe Store",
	}

	cartHash, err := ap2.CartHash(contents)
	if err != nil {
		t.Fatal(err)
	}
	auth, err := ap2.BuildMerchantAuthorization(f.merchant.ECDSAKey, testMerchantDID, testProcessorDID, contents.ID, cartHash, 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	cart := ap2.CartMandate{Contents: contents, MerchantAuthorization: auth, Timestamp: now}

	if opts.tamperPrice {
		// Mutated after signing; the merchant never saw this price.
		cart.Contents.PaymentRequest.Details.DisplayItems[0].Amount.Value = 1000
	}

	detailsID := contents.PaymentRequest.Details.ID
	if opts.detailsIDSkew {
		detailsID = "order_someone_elses"
	}
	pmContents := ap2.PaymentMandateContents{
		PaymentMandateID:    "pm_shoes_1",
		PaymentDetailsID:    detailsID,
		PaymentDetailsTotal: contents.PaymentRequest.Details.Total,
		PaymentResponse: ap2.PaymentResponse{
			RequestID:  contents.PaymentRequest.Details.ID,
			MethodName: "CARD",
			Details:    map[string]interface{}{"token": "tok_abc12345_secret"},
		},
		PayerID:       testPayerID,
		MerchantAgent: "did:ap2:agent:test",
		Timestamp:     now,
	}
	pm := ap2.PaymentMandate{PaymentMandateContents: pmContents}

	if !opts.noUserAuth {
		// Hashes are computed over the chain exactly as it will arrive,
		// tampering included, so only the merchant signature can expose the
		// mutation.
		boundCartHash, err := ap2.CartHash(cart.Contents)
		if err != nil {
			t.Fatal(err)
		}
		paymentHash, err := ap2.PaymentHash(pmContents)
		if err != nil {
			t.Fatal(err)
		}
		nonce := base64.RawURLEncoding.EncodeToString([]byte("webauthn-challenge-1"))
		ua, err := ap2.BuildUserAuthorization(f.holder.ECDSAKey, testHolderDID+"#key-1", "did:ap2:cp:test", testPayerID, boundCartHash, paymentHash, nonce, 10*time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		pm.UserAuthorization = ua
	}

	attestation := &ap2.WebAuthnAssertionJSON{RawID: "cred-1", Type: "public-key"}
	attestation.Response.ClientDataJSON = base64.RawURLEncoding.EncodeToString([]byte(`{"type":"webauthn.get"}`))
	attestation.Response.AuthenticatorData = base64.RawURLEncoding.EncodeToString(make([]byte, 37))
	attestation.Response.Signature = base64.RawURLEncoding.EncodeToString([]byte("sig"))

	return model.ChainPayload{
		PaymentMandate: pm,
		CartMandate:    cart,
		IntentMandate:  intent,
		Attestation:    attestation,
	}
}

func errKind(t *testing.T, err error) string {
	t.Helper()
	ap2Err, ok := err.(*ap2.Error)
	if !ok {
		t.Fatalf("expected *ap2.Error, got %T: %v", err, err)
	}
	return ap2Err.Kind
}

func TestProcessPaymentMandate_HappyPath(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{})

	result, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err != nil {
		t.Fatalf("ProcessPaymentMandate() error = %v", err)
	}

	if result.Status != ap2.TransactionCaptured {
		t.Errorf("status = %q, want captured", result.Status)
	}
	if !strings.HasPrefix(result.TransactionID, "txn_") || len(result.TransactionID) != len("txn_")+12 {
		t.Errorf("transaction id %q does not have the txn_<12hex> shape", result.TransactionID)
	}
	if result.Amount != "8068" {
		t.Errorf("amount = %q, want 8068", result.Amount)
	}
	if !strings.Contains(result.ReceiptURL, result.TransactionID) {
		t.Errorf("receipt url %q does not reference the transaction", result.ReceiptURL)
	}
	if result.ProductName != "Red high-top basketball shoes" {
		t.Errorf("product name = %q", result.ProductName)
	}

	tx, err := f.store.GetTransaction(context.Background(), result.TransactionID)
	if err != nil {
		t.Fatalf("transaction not persisted: %v", err)
	}
	if tx.Status != ap2.TransactionCaptured {
		t.Errorf("persisted status = %q, want captured", tx.Status)
	}

	// The receipt side-channel runs detached; wait for the POST.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case path := <-f.cpRequests:
			if path == "/receipts" {
				return
			}
		case <-deadline:
			t.Fatal("receipt was never delivered to the credential provider")
		}
	}
}

func TestProcessPaymentMandate_TamperedCart(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{tamperPrice: true})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("tampered cart was accepted")
	}
	if kind := errKind(t, err); kind != "chain_hash_mismatch" {
		t.Errorf("error kind = %q, want chain_hash_mismatch", kind)
	}
	if _, err := f.store.GetTransactionByMandate(context.Background(), "pm_shoes_1"); err == nil {
		t.Error("transaction row written despite validation failure")
	}
}

func TestProcessPaymentMandate_AmountExceedsIntent(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{intentMaxJPY: 5000})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("over-budget chain was accepted")
	}
	if kind := errKind(t, err); kind != "amount_exceeds_intent" {
		t.Errorf("error kind = %q, want amount_exceeds_intent", kind)
	}
}

func TestProcessPaymentMandate_ReferenceMismatch(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{detailsIDSkew: true})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("mismatched payment_details_id was accepted")
	}
	if kind := errKind(t, err); kind != "reference_mismatch" {
		t.Errorf("error kind = %q, want reference_mismatch", kind)
	}
}

func TestProcessPaymentMandate_MerchantNotAllowed(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{merchants: []string{"did:ap2:merchant:someone-else"}})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("disallowed merchant was accepted")
	}
	if kind := errKind(t, err); kind != "merchant_not_allowed" {
		t.Errorf("error kind = %q, want merchant_not_allowed", kind)
	}
}

func TestProcessPaymentMandate_ExpiredCart(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{cartExpired: true})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("expired cart was accepted")
	}
	if kind := errKind(t, err); kind != "mandate_expired" {
		t.Errorf("error kind = %q, want mandate_expired", kind)
	}
}

func TestProcessPaymentMandate_MissingUserAuthorization(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{noUserAuth: true})

	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("chain without user_authorization was accepted")
	}
	if kind := errKind(t, err); kind != "schema_invalid" {
		t.Errorf("error kind = %q, want schema_invalid", kind)
	}
}

func TestProcessPaymentMandate_JTIReplay(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{})

	if _, err := f.svc.ProcessPaymentMandate(context.Background(), payload); err != nil {
		t.Fatalf("first settlement failed: %v", err)
	}

	// The identical merchant_authorization carries the same jti; the
	// per-processor ledger must refuse it.
	_, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err == nil {
		t.Fatal("replayed merchant_authorization was accepted")
	}
	if kind := errKind(t, err); kind != "replayed_nonce" {
		t.Errorf("error kind = %q, want replayed_nonce", kind)
	}
}

func TestRefund_StateMachine(t *testing.T) {
	f := newFixture(t)
	payload := f.buildChain(t, chainOpts{})

	result, err := f.svc.ProcessPaymentMandate(context.Background(), payload)
	if err != nil {
		t.Fatalf("settlement failed: %v", err)
	}

	tx, err := f.svc.Refund(context.Background(), result.TransactionID)
	if err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	if tx.Status != ap2.TransactionRefunded {
		t.Errorf("status = %q, want refunded", tx.Status)
	}

	// refunded is terminal.
	if _, err := f.svc.Refund(context.Background(), result.TransactionID); err == nil {
		t.Error("second refund was accepted")
	}
}
