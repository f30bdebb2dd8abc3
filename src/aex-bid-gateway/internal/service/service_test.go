package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/model"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/store"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/envelope"
)

const (
	testSelfDID      = "did:ap2:agent:test-gateway"
	testMerchantDID  = "did:ap2:merchant:test"
	testProcessorDID = "did:ap2:processor:test"
)

type fakeProducts struct {
	items []model.Item
	err   error
	got   model.SearchConstraints
}

func (f *fakeProducts) Search(_ context.Context, c model.SearchConstraints) ([]model.Item, error) {
	f.got = c
	return f.items, f.err
}

// fakeSigner signs carts with a real merchant key so the defensive
// re-verification exercises the same code path as production.
type fakeSigner struct {
	kp *ap2.KeyPair
}

func (f *fakeSigner) SignCart(_ context.Context, contents ap2.CartContents) (*ap2.CartMandate, error) {
	hash, err := ap2.CartHash(contents)
	if err != nil {
		return nil, err
	}
	auth, err := ap2.BuildMerchantAuthorization(f.kp.ECDSAKey, testMerchantDID, testProcessorDID, contents.ID, hash, 10*time.Minute)
	if err != nil {
		return nil, err
	}
	return &ap2.CartMandate{Contents: contents, MerchantAuthorization: auth, Timestamp: time.Now()}, nil
}

type fakeRelay struct {
	gotPayload json.RawMessage
	gotType    string
	resp       *envelope.Envelope
	err        error
}

func (f *fakeRelay) Send(_ context.Context, _, _, dataType string, payload interface{}) (*envelope.Envelope, error) {
	f.gotType = dataType
	f.gotPayload, _ = json.Marshal(payload)
	return f.resp, f.err
}

func newTestService(t *testing.T, products *fakeProducts, relay *fakeRelay) (*Service, *store.MemoryStore) {
	t.Helper()

	merchantKP, err := ap2.GenerateKeyPair(ap2.AlgES256)
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

	audit := store.NewMemoryStore()
	svc := New(Config{
		SelfDID:  testSelfDID,
		Products: products,
		Signer:   &fakeSigner{kp: merchantKP},
		Relay:    relay,
		Resolver: didresolver.NewResolver(),
		PeerURL: func(did string) (string, error) {
			if did == testMerchantDID {
				return merchantSrv.URL, nil
			}
			return "", fmt.Errorf("unknown peer %s", did)
		},
		Audit:        audit,
		ProcessorDID: testProcessorDID,
		ProcessorURL: "http://processor.test",
		TaxRate:      0.10,
		ShippingFee:  500,
	})
	return svc, audit
}

func intentEnvelope(t *testing.T, intent ap2.IntentMandate) *envelope.Envelope {
	t.Helper()
	payload, err := json.Marshal(intent)
	if err != nil {
		t.Fatal(err)
	}
	return &envelope.Envelope{
		Header: envelope.Header{
			MessageID: "msg-1",
			Sender:    "did:ap2:shopper:test",
			Recipient: testSelfDID,
			Timestamp: time.Now(),
		},
		DataPart: envelope.DataPart{Type: envelope.TypeIntentMandate, ID: "dp-1", Payload: payload},
	}
}

func testItems() []model.Item {
	return []model.Item{
		{SKU: "sku_budget", Label: "Red high-top basketball shoes (budget)", Currency: "JPY", UnitPrice: 4800, MerchantDID: testMerchantDID, Refundable: true},
		{SKU: "sku_mid_a", Label: "Red high-top basketball shoes (standard)", Currency: "JPY", UnitPrice: 6880, MerchantDID: testMerchantDID, Refundable: true},
		{SKU: "sku_mid_b", Label: "Red high-top basketball shoes (limited)", Currency: "JPY", UnitPrice: 8200, MerchantDID: testMerchantDID, Refundable: true},
		{SKU: "sku_premium", Label: "Red high-top basketball shoes (premium)", Currency: "JPY", UnitPrice: 9800, MerchantDID: testMerchantDID, Refundable: true},
	}
}

func TestHandleIntentMandate_BuildsThreeSignedCandidates(t *testing.T) {
	products := &fakeProducts{items: testItems()}
	svc, audit := newTestService(t, products, &fakeRelay{})

	intent := ap2.IntentMandate{
		ID:                           "intent_1",
		UserCartConfirmationRequired: true,
		NaturalLanguageDescription:   "red high-top basketball shoes",
		Merchants:                    []string{testMerchantDID},
		MaxAmount:                    &ap2.PaymentCurrencyAmount{Currency: "JPY", Value: 50000},
		IntentExpiry:                 time.Now().Add(24 * time.Hour),
	}

	_, _, artifact, err := svc.HandleIntentMandate(context.Background(), intentEnvelope(t, intent))
	if err != nil {
		t.Fatalf("HandleIntentMandate() error = %v", err)
	}
	if artifact == nil || !artifact.IsArtifact {
		t.Fatal("expected an artifact response")
	}
	if artifact.DataTypeKey != envelope.TypeCartCandidates {
		t.Errorf("data_type_key = %q, want %q", artifact.DataTypeKey, envelope.TypeCartCandidates)
	}

	candidates, ok := artifact.ArtifactData.([]model.CartArtifact)
	if !ok {
		t.Fatalf("artifact data is %T, want []model.CartArtifact", artifact.ArtifactData)
	}
	if len(candidates) != 3 {
		t.Fatalf("got %d candidates, want 3", len(candidates))
	}

	for i, want := range []string{"budget", "standard", "premium"} {
		if !strings.HasPrefix(candidates[i].Name, want) {
			t.Errorf("candidate %d name = %q, want %q prefix", i, candidates[i].Name, want)
		}
		if len(candidates[i].Parts) != 1 || candidates[i].Parts[0].DataKey != ap2.CartMandateDataKey {
			t.Errorf("candidate %d parts are not a single CartMandate data part", i)
		}
		cart := candidates[i].Parts[0].Data
		if cart.MerchantAuthorization == "" {
			t.Errorf("candidate %d has no merchant_authorization", i)
		}
		total := cart.Contents.PaymentRequest.Details.Total.Amount.Value
		var sum float64
		for _, item := range cart.Contents.PaymentRequest.Details.DisplayItems {
			sum += item.Amount.Value
		}
		if total != sum {
			t.Errorf("candidate %d total %v != line sum %v", i, total, sum)
		}
	}

	// Cheapest and most expensive items bracket the spread.
	if got := candidates[0].Parts[0].Data.Contents.PaymentRequest.Details.DisplayItems[0].Label; !strings.Contains(got, "budget") {
		t.Errorf("budget candidate item = %q", got)
	}
	if got := candidates[2].Parts[0].Data.Contents.PaymentRequest.Details.DisplayItems[0].Label; !strings.Contains(got, "premium") {
		t.Errorf("premium candidate item = %q", got)
	}

	if products.got.Query != intent.NaturalLanguageDescription {
		t.Errorf("search query = %q", products.got.Query)
	}
	if products.got.MaxPrice != 50000 {
		t.Errorf("search max price = %v", products.got.MaxPrice)
	}

	entries, err := audit.ListAudit(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("audit entries = %d, want inbound + outbound", len(entries))
	}
}

func TestHandleIntentMandate_ExpiredIntent(t *testing.T) {
	svc, _ := newTestService(t, &fakeProducts{items: testItems()}, &fakeRelay{})

	intent := ap2.IntentMandate{
		ID:                         "intent_expired",
		NaturalLanguageDescription: "anything",
		IntentExpiry:               time.Now().Add(-time.Minute),
	}

	_, _, _, err := svc.HandleIntentMandate(context.Background(), intentEnvelope(t, intent))
	if err == nil {
		t.Fatal("expired intent was accepted")
	}
	ap2Err, ok := err.(*ap2.Error)
	if !ok || ap2Err.Kind != "intent_expired" {
		t.Errorf("error = %v, want intent_expired", err)
	}
}

func TestHandleIntentMandate_NoMatches(t *testing.T) {
	svc, _ := newTestService(t, &fakeProducts{items: nil}, &fakeRelay{})

	intent := ap2.IntentMandate{
		ID:                         "intent_nomatch",
		NaturalLanguageDescription: "a product nobody sells",
		IntentExpiry:               time.Now().Add(time.Hour),
	}

	_, _, _, err := svc.HandleIntentMandate(context.Background(), intentEnvelope(t, intent))
	if err == nil {
		t.Fatal("intent with no matching products was accepted")
	}
}

func TestHandlePaymentMandate_RelaysUnchanged(t *testing.T) {
	result := json.RawMessage(`{"transaction_id":"txn_abc123def456","status":"captured","amount":"8068"}`)
	relay := &fakeRelay{
		resp: &envelope.Envelope{
			Header:   envelope.Header{Sender: testProcessorDID},
			DataPart: envelope.DataPart{Type: envelope.TypePaymentResult, Payload: result},
		},
	}
	svc, audit := newTestService(t, &fakeProducts{}, relay)

	chainPayload := json.RawMessage(`{"payment_mandate":{"payment_mandate_contents":{"payment_mandate_id":"pm_1"}},"cart_mandate":{"contents":{"id":"cart_1"}}}`)
	env := &envelope.Envelope{
		Header:   envelope.Header{MessageID: "msg-2", Sender: "did:ap2:shopper:test", Recipient: testSelfDID, Timestamp: time.Now()},
		DataPart: envelope.DataPart{Type: envelope.TypePaymentMandate, ID: "dp-2", Payload: chainPayload},
	}

	respType, payload, artifact, err := svc.HandlePaymentMandate(context.Background(), env)
	if err != nil {
		t.Fatalf("HandlePaymentMandate() error = %v", err)
	}
	if artifact != nil {
		t.Fatal("relay must not return an artifact")
	}
	if respType != envelope.TypePaymentResult {
		t.Errorf("response type = %q", respType)
	}
	if string(payload.(json.RawMessage)) != string(result) {
		t.Errorf("payment result was not passed through unchanged")
	}

	if relay.gotType != envelope.TypePaymentMandate {
		t.Errorf("relayed data type = %q", relay.gotType)
	}
	if string(relay.gotPayload) != string(chainPayload) {
		t.Errorf("relayed payload was modified: %s", relay.gotPayload)
	}

	entries, _ := audit.ListAudit(context.Background(), 0)
	if len(entries) != 2 {
		t.Errorf("audit entries = %d, want 2", len(entries))
	}
}

func TestPickSpread(t *testing.T) {
	items := testItems()
	spread := pickSpread(items)
	if len(spread) != 3 {
		t.Fatalf("spread length = %d", len(spread))
	}
	if spread[0].SKU != "sku_budget" || spread[2].SKU != "sku_premium" {
		t.Errorf("spread does not bracket the price range: %v", spread)
	}

	two := pickSpread(items[:2])
	if len(two) != 2 {
		t.Errorf("short list should be returned as-is, got %d", len(two))
	}
}
