package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
)

// RiskSignals mirrors the risk engine's eight-signal input shape.
type RiskSignals struct {
	Amount              float64 `json:"amount"`
	Currency            string  `json:"currency"`
	IntentMaxAmount     float64 `json:"intent_max_amount,omitempty"`
	MerchantAllowListed bool    `json:"merchant_allow_listed"`
	MerchantDID         string  `json:"merchant_did,omitempty"`
	CardNotPresent      bool    `json:"card_not_present"`
	MethodType          string  `json:"method_type"`
	MethodBrand         string  `json:"method_brand"`
	RequiresStepUp      bool    `json:"requires_step_up"`
	StepUpCompleted     bool    `json:"step_up_completed"`
	RecentPurchaseCount int     `json:"recent_purchase_count"`
	ShippingCountry     string  `json:"shipping_country,omitempty"`
	AccountCountry      string  `json:"account_country,omitempty"`
	LocalHour           int     `json:"local_hour"`
	SecondsSinceIntent  float64 `json:"seconds_since_intent"`
	HumanPresent        bool    `json:"human_present"`
}

// RiskEngineClient calls the risk engine's evaluate endpoint.
type RiskEngineClient struct {
	baseURL string
	http    *httpclient.Client
}

func NewRiskEngineClient(baseURL string) *RiskEngineClient {
	return &RiskEngineClient{
		baseURL: baseURL,
		http:    httpclient.NewClient("risk-engine", 10*time.Second),
	}
}

// Evaluate scores the signals for a payment mandate. The result is
// advisory; callers treat a failure here as "no assessment", never as a
// reason to block a valid chain.
func (c *RiskEngineClient) Evaluate(ctx context.Context, paymentMandateID string, signals RiskSignals) (*ap2.RiskAssessment, error) {
	req := map[string]interface{}{
		"payment_mandate_id": paymentMandateID,
		"signals":            signals,
	}
	var resp struct {
		Assessment ap2.RiskAssessment `json:"assessment"`
	}
	if err := c.http.PostJSON(ctx, c.baseURL+"/internal/v1/evaluate", req, &resp); err != nil {
		return nil, fmt.Errorf("evaluate risk: %w", err)
	}
	return &resp.Assessment, nil
}
