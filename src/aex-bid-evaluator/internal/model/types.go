// Package model holds the risk engine's wire shapes. The engine is
// deliberately free of mandate types: it receives flattened signals from
// the Shopping Agent and returns an advisory assessment. Nothing here may
// ever gate mandate-chain correctness.
package model

import "time"

// RiskSignals are the eight inputs the score is computed from. The
// Shopping Agent flattens them out of the mandate chain and its own
// session state before a PaymentMandate is sent.
type RiskSignals struct {
	// Amount magnitude.
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	// Intent-constraint fit.
	IntentMaxAmount     float64 `json:"intent_max_amount,omitempty"` // 0 = unconstrained
	MerchantAllowListed bool    `json:"merchant_allow_listed"`
	MerchantDID         string  `json:"merchant_did,omitempty"`

	// Card-not-present.
	CardNotPresent bool `json:"card_not_present"`

	// Payment-method risk.
	MethodType      string `json:"method_type"`  // CARD, BANK, WALLET
	MethodBrand     string `json:"method_brand"` // Visa, Mastercard, Amex, ...
	RequiresStepUp  bool   `json:"requires_step_up"`
	StepUpCompleted bool   `json:"step_up_completed"`

	// Pattern anomaly.
	RecentPurchaseCount int `json:"recent_purchase_count"` // settled purchases in the last 24h

	// Shipping risk.
	ShippingCountry string `json:"shipping_country,omitempty"`
	AccountCountry  string `json:"account_country,omitempty"`

	// Temporal risk.
	LocalHour          int     `json:"local_hour"` // 0-23; -1 when unknown
	SecondsSinceIntent float64 `json:"seconds_since_intent"`

	// Agent involvement.
	HumanPresent bool `json:"human_present"`
}

// EvaluateRequest is the POST /internal/v1/evaluate body.
type EvaluateRequest struct {
	PaymentMandateID string      `json:"payment_mandate_id"`
	Signals          RiskSignals `json:"signals"`
}

// SignalScore is one signal's weighted contribution to the total.
type SignalScore struct {
	Signal string  `json:"signal"`
	Score  float64 `json:"score"`  // 0..1 risk contribution before weighting
	Weight float64 `json:"weight"` // share of the total score
}

// Assessment is the advisory output attached to a PaymentMandate.
type Assessment struct {
	RiskScore       int      `json:"risk_score"` // 0-100
	RiskLevel       string   `json:"risk_level"` // LOW, MEDIUM, HIGH
	FraudIndicators []string `json:"fraud_indicators,omitempty"`
	Recommendation  string   `json:"recommendation"` // APPROVE, REVIEW, DECLINE
}

// RiskEvaluation is the durable record of one scoring run.
type RiskEvaluation struct {
	EvaluationID     string        `json:"evaluation_id" bson:"_id"`
	PaymentMandateID string        `json:"payment_mandate_id" bson:"payment_mandate_id"`
	Signals          RiskSignals   `json:"signals" bson:"signals"`
	SignalScores     []SignalScore `json:"signal_scores" bson:"signal_scores"`
	Assessment       Assessment    `json:"assessment" bson:"assessment"`
	EvaluatedAt      time.Time     `json:"evaluated_at" bson:"evaluated_at"`
}

// Risk levels and recommendations.
const (
	RiskLevelLow    = "LOW"
	RiskLevelMedium = "MEDIUM"
	RiskLevelHigh   = "HIGH"

	RecommendApprove = "APPROVE"
	RecommendReview  = "REVIEW"
	RecommendDecline = "DECLINE"
)
