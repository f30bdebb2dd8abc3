// Package clients holds the archive's one outbound dependency: the
// Payment Processor, consulted when a dispute opens so the archived chain
// can be cross-checked against the transaction of record.
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/internal/httpclient"
)

// Transaction is the settlement service's transaction projection.
type Transaction struct {
	TransactionID    string  `json:"transaction_id"`
	PaymentMandateID string  `json:"payment_mandate_id"`
	CartMandateID    string  `json:"cart_mandate_id"`
	Status           string  `json:"status"`
	ReceiptURL       string  `json:"receipt_url,omitempty"`
	Amount           Amount  `json:"amount"`
}

type Amount struct {
	Currency string  `json:"currency"`
	Value    float64 `json:"value"`
}

type SettlementClient struct {
	baseURL string
	client  *httpclient.Client
}

func NewSettlementClient(baseURL string) *SettlementClient {
	return &SettlementClient{
		baseURL: baseURL,
		client:  httpclient.NewClient("settlement", 10*time.Second),
	}
}

// GetTransaction fetches the settled transaction an archived chain claims
// to correspond to.
func (c *SettlementClient) GetTransaction(ctx context.Context, transactionID string) (*Transaction, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("settlement URL not configured")
	}
	var tx Transaction
	err := httpclient.NewRequest("GET", c.baseURL).
		Path("/transactions/" + transactionID).
		Context(ctx).
		ExecuteJSON(c.client, &tx)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", transactionID, err)
	}
	return &tx, nil
}
