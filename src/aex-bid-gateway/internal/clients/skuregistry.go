// Package clients holds the Merchant Agent's outbound HTTP clients: the
// SKU registry it searches and the Merchant whose signature it solicits.
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/model"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
)

// SKURegistryClient queries the provider registry's product search — the
// ProductSource behind the Merchant Agent's cart building.
type SKURegistryClient struct {
	baseURL string
	http    *httpclient.Client
}

// NewSKURegistryClient creates a registry client for baseURL.
func NewSKURegistryClient(baseURL string) *SKURegistryClient {
	return &SKURegistryClient{
		baseURL: baseURL,
		http:    httpclient.NewClient("provider-registry", 10*time.Second),
	}
}

// Search returns the items matching the given constraints, cheapest first.
func (c *SKURegistryClient) Search(ctx context.Context, constraints model.SearchConstraints) ([]model.Item, error) {
	var resp struct {
		Items []model.Item `json:"items"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/search", constraints, &resp); err != nil {
		return nil, fmt.Errorf("search sku registry: %w", err)
	}
	return resp.Items, nil
}
