package integration

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

// skipIfNoServices skips the test if the federation is not running.
func skipIfNoServices(t *testing.T, c *Client) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.HealthCheck(ctx, c.urls.ShoppingAgent); err != nil {
		t.Skipf("Services not available: %v (run with docker-compose up)", err)
	}
}

func getTestClient() *Client {
	urls := DefaultLocalURLs()

	overrides := map[string]*string{
		"GATEWAY_URL":              &urls.Gateway,
		"SHOPPING_AGENT_URL":       &urls.ShoppingAgent,
		"MERCHANT_AGENT_URL":       &urls.MerchantAgent,
		"MERCHANT_URL":             &urls.Merchant,
		"CREDENTIALS_PROVIDER_URL": &urls.CredentialsProvider,
		"PAYMENT_NETWORK_URL":      &urls.PaymentNetwork,
		"SETTLEMENT_URL":           &urls.Settlement,
		"PROVIDER_REGISTRY_URL":    &urls.ProviderRegistry,
		"RISK_ENGINE_URL":          &urls.RiskEngine,
		"TRUST_BROKER_URL":         &urls.TrustBroker,
		"IDENTITY_URL":             &urls.Identity,
		"CONTRACT_ENGINE_URL":      &urls.ContractEngine,
		"TELEMETRY_URL":            &urls.Telemetry,
	}
	for env, target := range overrides {
		if u := os.Getenv(env); u != "" {
			*target = u
		}
	}

	return NewClient(urls)
}

type purchaseView struct {
	ID             string `json:"purchase_id"`
	State          string `json:"state"`
	CartCandidates []struct {
		ArtifactID string `json:"artifact_id"`
		Name       string `json:"name"`
		Cart       struct {
			Contents struct {
				PaymentRequest struct {
					Details struct {
						Total struct {
							Amount struct {
								Currency string  `json:"currency"`
								Value    float64 `json:"value"`
							} `json:"amount"`
						} `json:"total"`
					} `json:"details"`
				} `json:"payment_request"`
			} `json:"contents"`
			MerchantAuthorization string `json:"merchant_authorization"`
		} `json:"cart"`
	} `json:"cart_candidates"`
	Result *struct {
		TransactionID string   `json:"transaction_id"`
		Status        string   `json:"status"`
		ReceiptURL    string   `json:"receipt_url"`
		Amount        string   `json:"amount"`
		Errors        []string `json:"errors"`
	} `json:"result"`
}

type challengeView struct {
	ChallengeID string `json:"challenge_id"`
	Challenge   string `json:"challenge"`
}

// registerPasskey enrolls a software passkey for userID at the Credential
// Provider. Idempotent on credential_id.
func registerPasskey(t *testing.T, c *Client, userID string) *SoftwareAuthenticator {
	t.Helper()
	ctx := context.Background()

	auth, err := NewSoftwareAuthenticator("cred_" + userID)
	if err != nil {
		t.Fatal(err)
	}
	attObj, err := auth.AttestationObject()
	if err != nil {
		t.Fatal(err)
	}
	err = c.JSON(ctx, http.MethodPost, c.urls.CredentialsProvider+"/register/passkey", map[string]string{
		"user_id":            userID,
		"credential_id":      auth.CredentialID,
		"attestation_object": attObj,
	}, nil)
	if err != nil {
		t.Fatalf("passkey registration failed: %v", err)
	}
	return auth
}

func ceremony(t *testing.T, c *Client, auth *SoftwareAuthenticator, purchaseID, step string) map[string]any {
	t.Helper()
	ctx := context.Background()

	var ch challengeView
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchaseID+"/challenges", nil, &ch); err != nil {
		t.Fatalf("challenge minting failed before %s: %v", step, err)
	}
	assertion, err := auth.Assert(ch.Challenge)
	if err != nil {
		t.Fatal(err)
	}
	return map[string]any{
		"challenge_id": ch.ChallengeID,
		"attestation":  assertion,
	}
}

// TestEndToEndPurchase drives the full mandate chain: intent -> carts ->
// selection -> tokenization -> payment -> captured transaction + receipt.
func TestEndToEndPurchase(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	userID := fmt.Sprintf("user-e2e-%d", time.Now().UnixNano())
	auth := registerPasskey(t, c, userID)

	// Intent.
	var purchase purchaseView
	err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases", map[string]any{
		"user_id":     userID,
		"description": "red high-top basketball shoes",
		"max_amount":  map[string]any{"currency": "USD", "value": 200},
	}, &purchase)
	if err != nil {
		t.Fatalf("purchase creation failed: %v", err)
	}

	body := ceremony(t, c, auth, purchase.ID, "confirm-intent")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-intent", body, &purchase); err != nil {
		t.Fatalf("intent confirmation failed: %v", err)
	}

	// Cart candidates from the Merchant Agent.
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/request-carts", nil, &purchase); err != nil {
		t.Fatalf("cart request failed: %v", err)
	}
	if len(purchase.CartCandidates) == 0 {
		t.Fatal("no cart candidates returned")
	}
	for _, cand := range purchase.CartCandidates {
		if cand.Cart.MerchantAuthorization == "" {
			t.Fatalf("candidate %s has no merchant_authorization", cand.ArtifactID)
		}
	}

	// Pick the cheapest candidate.
	chosen := purchase.CartCandidates[0]
	for _, cand := range purchase.CartCandidates {
		if cand.Cart.Contents.PaymentRequest.Details.Total.Amount.Value < chosen.Cart.Contents.PaymentRequest.Details.Total.Amount.Value {
			chosen = cand
		}
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/select-cart", map[string]string{"artifact_id": chosen.ArtifactID}, &purchase); err != nil {
		t.Fatalf("cart selection failed: %v", err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-cart", nil, &purchase); err != nil {
		t.Fatalf("cart confirmation failed: %v", err)
	}

	// Default Visa needs no step-up.
	var chooseResult struct {
		Purchase purchaseView `json:"purchase"`
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/choose-method", map[string]string{"payment_method_id": "pm_demo_visa_4242"}, &chooseResult); err != nil {
		t.Fatalf("method selection failed: %v", err)
	}
	if chooseResult.Purchase.State != "PAYMENT_METHOD_CHOSEN" {
		t.Fatalf("state after method choice = %s", chooseResult.Purchase.State)
	}

	// Payment ceremony and settlement.
	body = ceremony(t, c, auth, purchase.ID, "pay")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/pay", body, &purchase); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	if purchase.State != "PAYMENT_SETTLED" {
		t.Fatalf("state = %s, result = %+v", purchase.State, purchase.Result)
	}
	if purchase.Result == nil || purchase.Result.Status != "captured" {
		t.Fatalf("result = %+v", purchase.Result)
	}
	if !strings.HasPrefix(purchase.Result.TransactionID, "txn_") {
		t.Errorf("transaction id = %q", purchase.Result.TransactionID)
	}
	if !strings.Contains(purchase.Result.ReceiptURL, purchase.Result.TransactionID) {
		t.Errorf("receipt url = %q", purchase.Result.ReceiptURL)
	}

	// The Payment Processor has the transaction of record.
	var tx struct {
		Status string `json:"status"`
	}
	if err := c.JSON(ctx, http.MethodGet, c.urls.Settlement+"/transactions/"+purchase.Result.TransactionID, nil, &tx); err != nil {
		t.Fatalf("transaction lookup failed: %v", err)
	}
	if tx.Status != "captured" {
		t.Errorf("settled status = %q", tx.Status)
	}

	// The chain lands in the artefact archive (at-least-once, so poll).
	if err := c.HealthCheck(ctx, c.urls.ContractEngine); err == nil {
		deadline := time.Now().Add(10 * time.Second)
		for {
			err := c.JSON(ctx, http.MethodGet, c.urls.ContractEngine+"/artifacts/"+purchase.Result.TransactionID, nil, nil)
			if err == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Errorf("chain never archived: %v", err)
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
	}
}

// TestAmountExceedsIntent pins the intent budget below every cart total;
// the Payment Processor must refuse the chain and no transaction may
// exist.
func TestAmountExceedsIntent(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	userID := fmt.Sprintf("user-overbudget-%d", time.Now().UnixNano())
	auth := registerPasskey(t, c, userID)

	var purchase purchaseView
	err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases", map[string]any{
		"user_id":     userID,
		"description": "red high-top basketball shoes",
		// Items match under this cap, but tax + shipping push every cart
		// total over it.
		"max_amount": map[string]any{"currency": "USD", "value": 50},
	}, &purchase)
	if err != nil {
		t.Fatalf("purchase creation failed: %v", err)
	}

	body := ceremony(t, c, auth, purchase.ID, "confirm-intent")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-intent", body, &purchase); err != nil {
		t.Fatalf("intent confirmation failed: %v", err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/request-carts", nil, &purchase); err != nil {
		t.Skipf("no cart candidates under the cap: %v", err)
	}

	artifactID := purchase.CartCandidates[0].ArtifactID
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/select-cart", map[string]string{"artifact_id": artifactID}, &purchase); err != nil {
		t.Fatalf("cart selection failed: %v", err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-cart", nil, &purchase); err != nil {
		t.Fatal(err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/choose-method", map[string]string{"payment_method_id": "pm_demo_visa_4242"}, nil); err != nil {
		t.Fatal(err)
	}

	body = ceremony(t, c, auth, purchase.ID, "pay")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/pay", body, &purchase); err != nil {
		t.Fatalf("pay call failed outright: %v", err)
	}

	if purchase.State != "FAILED" {
		t.Fatalf("state = %s, want FAILED", purchase.State)
	}
	if purchase.Result == nil || len(purchase.Result.Errors) == 0 {
		t.Fatalf("no settlement errors recorded: %+v", purchase.Result)
	}
	if !strings.Contains(strings.Join(purchase.Result.Errors, " "), "amount_exceeds_intent") {
		t.Errorf("errors = %v, want amount_exceeds_intent", purchase.Result.Errors)
	}
	if purchase.Result.TransactionID != "" {
		t.Errorf("a transaction was created for a refused chain: %s", purchase.Result.TransactionID)
	}
}
