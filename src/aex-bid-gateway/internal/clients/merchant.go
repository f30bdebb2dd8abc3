package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
)

// MerchantClient solicits cart signatures from the Merchant over its plain
// HTTP /sign/cart endpoint (not A2A; the Merchant signs its own carts and
// nothing else).
type MerchantClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewMerchantClient creates a merchant client for baseURL.
func NewMerchantClient(baseURL string) *MerchantClient {
	return &MerchantClient{
		baseURL: baseURL,
		http:    httpclient.NewClient("merchant", 10*time.Second),
	}
}

// SignCart submits cart contents for signing and returns the signed
// CartMandate carrying merchant_authorization.
func (c *MerchantClient) SignCart(ctx context.Context, contents ap2.CartContents) (*ap2.CartMandate, error) {
	req := map[string]interface{}{
		"cart_mandate": ap2.CartMandate{Contents: contents},
	}
	var resp struct {
		SignedCartMandate ap2.CartMandate `json:"signed_cart_mandate"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/sign/cart", req, &resp); err != nil {
		return nil, fmt.Errorf("sign cart %s: %w", contents.ID, err)
	}
	return &resp.SignedCartMandate, nil
}
