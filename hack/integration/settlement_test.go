package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// TestRefundStateMachine settles a purchase, refunds it, and checks that
// refunded is terminal.
func TestRefundStateMachine(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	userID := fmt.Sprintf("user-refund-%d", time.Now().UnixNano())
	auth := registerPasskey(t, c, userID)

	var purchase purchaseView
	err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases", map[string]any{
		"user_id":     userID,
		"description": "red high-top basketball shoes",
		"max_amount":  map[string]any{"currency": "USD", "value": 200},
	}, &purchase)
	if err != nil {
		t.Fatal(err)
	}

	body := ceremony(t, c, auth, purchase.ID, "confirm-intent")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-intent", body, &purchase); err != nil {
		t.Fatal(err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/request-carts", nil, &purchase); err != nil {
		t.Fatal(err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/select-cart", map[string]string{"artifact_id": purchase.CartCandidates[0].ArtifactID}, &purchase); err != nil {
		t.Fatal(err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/confirm-cart", nil, &purchase); err != nil {
		t.Fatal(err)
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/choose-method", map[string]string{"payment_method_id": "pm_demo_visa_4242"}, nil); err != nil {
		t.Fatal(err)
	}
	body = ceremony(t, c, auth, purchase.ID, "pay")
	if err := c.JSON(ctx, http.MethodPost, c.urls.ShoppingAgent+"/purchases/"+purchase.ID+"/pay", body, &purchase); err != nil {
		t.Fatal(err)
	}
	if purchase.Result == nil || purchase.Result.Status != "captured" {
		t.Fatalf("settlement did not capture: %+v", purchase.Result)
	}

	txnID := purchase.Result.TransactionID

	var tx struct {
		Status string `json:"status"`
	}
	if err := c.JSON(ctx, http.MethodPost, c.urls.Settlement+"/transactions/"+txnID+"/refund", nil, &tx); err != nil {
		t.Fatalf("refund failed: %v", err)
	}
	if tx.Status != "refunded" {
		t.Errorf("status after refund = %q", tx.Status)
	}

	// refunded is terminal: a second refund is refused.
	if err := c.JSON(ctx, http.MethodPost, c.urls.Settlement+"/transactions/"+txnID+"/refund", nil, nil); err == nil {
		t.Error("double refund accepted")
	}
}

// TestUnknownTransactionLookup checks the not-found surface.
func TestUnknownTransactionLookup(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	err := c.JSON(ctx, http.MethodGet, c.urls.Settlement+"/transactions/txn_does_not_exist", nil, nil)
	if err == nil {
		t.Error("lookup of unknown transaction succeeded")
	}
}
