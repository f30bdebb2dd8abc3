package integration

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestSKURegistrationAndSearch(t *testing.T) {
	c := getTestClient()
	skipIfNoServices(t, c)
	ctx := context.Background()

	skuID := fmt.Sprintf("sku_it_%d", time.Now().UnixNano())
	err := c.JSON(ctx, http.MethodPost, c.urls.ProviderRegistry+"/skus", map[string]any{
		"sku":          skuID,
		"label":        "Integration-test espresso grinder",
		"brand":        "Grindhaus",
		"tags":         []string{"kitchen", "coffee"},
		"currency":     "USD",
		"unit_price":   89.50,
		"merchant_did": "did:ap2:merchant:aex-merchant",
		"refundable":   true,
	}, nil)
	if err != nil {
		t.Fatalf("sku registration failed: %v", err)
	}

	var result struct {
		Items []struct {
			SKU       string  `json:"sku"`
			UnitPrice float64 `json:"unit_price"`
		} `json:"items"`
	}
	err = c.JSON(ctx, http.MethodPost, c.urls.ProviderRegistry+"/search", map[string]any{
		"query": "espresso grinder",
	}, &result)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}

	found := false
	for _, item := range result.Items {
		if item.SKU == skuID {
			found = true
		}
	}
	if !found {
		t.Errorf("registered SKU not returned by search: %+v", result.Items)
	}

	// Price cap excludes it.
	err = c.JSON(ctx, http.MethodPost, c.urls.ProviderRegistry+"/search", map[string]any{
		"query":     "espresso grinder",
		"max_price": 50,
	}, &result)
	if err != nil {
		t.Fatal(err)
	}
	for _, item := range result.Items {
		if item.SKU == skuID {
			t.Error("SKU over the price cap returned")
		}
	}
}
