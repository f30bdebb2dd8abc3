// Package service implements the Shopping Agent's risk engine: a
// deterministic weighted sum over eight signals. The output is advisory —
// the Payment Processor may log it or gate on a configured threshold, but
// mandate-chain validity never depends on it.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/clients"
	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/model"
	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/store"
)

// Signal weights. They sum to 1; the total score is the weighted sum
// scaled to 0-100.
var weights = map[string]float64{
	"amount_magnitude":    0.20,
	"intent_fit":          0.15,
	"card_not_present":    0.10,
	"payment_method_risk": 0.15,
	"pattern_anomaly":     0.15,
	"shipping_risk":       0.10,
	"temporal_risk":       0.05,
	"agent_involvement":   0.10,
}

// Level thresholds on the 0-100 score.
const (
	mediumThreshold = 30
	highThreshold   = 60
)

type Service struct {
	trustBroker *clients.TrustBrokerClient
	store       store.EvaluationStore
}

func New(trustBrokerURL string, st store.EvaluationStore) *Service {
	return &Service{
		trustBroker: clients.NewTrustBrokerClient(trustBrokerURL),
		store:       st,
	}
}

func (s *Service) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req model.EvaluateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.PaymentMandateID = strings.TrimSpace(req.PaymentMandateID)
	if req.PaymentMandateID == "" {
		http.Error(w, "payment_mandate_id is required", http.StatusBadRequest)
		return
	}

	ev := s.Evaluate(ctx, req)
	if err := s.store.Save(ctx, ev); err != nil {
		slog.WarnContext(ctx, "evaluation not persisted", "payment_mandate_id", req.PaymentMandateID, "error", err)
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Service) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	ev, err := s.store.GetLatest(r.Context(), r.PathValue("mandateID"))
	if err != nil || ev == nil {
		http.Error(w, "no evaluation found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Evaluate scores the signals. Same signals in, same assessment out.
func (s *Service) Evaluate(ctx context.Context, req model.EvaluateRequest) model.RiskEvaluation {
	sig := req.Signals

	merchantTrusted := sig.MerchantAllowListed
	if !merchantTrusted && sig.MerchantDID != "" {
		// An unlisted merchant that the trust broker vouches for is less
		// anomalous than a completely unknown one.
		if active, err := s.trustBroker.IsActive(ctx, sig.MerchantDID); err == nil && active {
			merchantTrusted = true
		}
	}

	var indicators []string
	record := func(name string, score float64, indicator string) model.SignalScore {
		if indicator != "" && score > 0.5 {
			indicators = append(indicators, indicator)
		}
		return model.SignalScore{Signal: name, Score: clamp01(score), Weight: weights[name]}
	}

	scores := []model.SignalScore{
		record("amount_magnitude", amountScore(sig.Amount, sig.Currency), "large_transaction_amount"),
		record("intent_fit", intentFitScore(sig, merchantTrusted), "purchase_outside_intent_constraints"),
		record("card_not_present", cnpScore(sig), "card_not_present"),
		record("payment_method_risk", methodScore(sig), "high_risk_payment_method"),
		record("pattern_anomaly", patternScore(sig.RecentPurchaseCount), "unusual_purchase_frequency"),
		record("shipping_risk", shippingScore(sig), "shipping_destination_mismatch"),
		record("temporal_risk", temporalScore(sig), "unusual_transaction_timing"),
		record("agent_involvement", agentScore(sig), "human_not_present"),
	}

	var total float64
	for _, sc := range scores {
		total += sc.Score * sc.Weight
	}
	riskScore := int(math.Round(total * 100))

	level := model.RiskLevelLow
	recommendation := model.RecommendApprove
	switch {
	case riskScore >= highThreshold:
		level = model.RiskLevelHigh
		recommendation = model.RecommendDecline
	case riskScore >= mediumThreshold:
		level = model.RiskLevelMedium
		recommendation = model.RecommendReview
	}

	ev := model.RiskEvaluation{
		EvaluationID:     generateID("riskeval"),
		PaymentMandateID: req.PaymentMandateID,
		Signals:          sig,
		SignalScores:     scores,
		Assessment: model.Assessment{
			RiskScore:       riskScore,
			RiskLevel:       level,
			FraudIndicators: indicators,
			Recommendation:  recommendation,
		},
		EvaluatedAt: time.Now().UTC(),
	}

	slog.InfoContext(ctx, "risk_evaluated",
		"payment_mandate_id", req.PaymentMandateID,
		"risk_score", riskScore,
		"risk_level", level,
		"recommendation", recommendation,
	)
	return ev
}

// amountScore grades the absolute transaction size. Thresholds are in
// rough USD-equivalent major units; zero-decimal currencies get scaled.
func amountScore(amount float64, currency string) float64 {
	normalized := amount
	switch currency {
	case "JPY", "KRW":
		normalized = amount / 100
	}
	switch {
	case normalized <= 0:
		return 1.0
	case normalized < 50:
		return 0.1
	case normalized < 200:
		return 0.3
	case normalized < 1000:
		return 0.6
	default:
		return 0.9
	}
}

// intentFitScore grades how snugly the payment fits the declared intent:
// unconstrained intents and distrusted merchants raise it, headroom under
// the max lowers it.
func intentFitScore(sig model.RiskSignals, merchantTrusted bool) float64 {
	score := 0.0
	if sig.IntentMaxAmount <= 0 {
		score += 0.4
	} else {
		ratio := sig.Amount / sig.IntentMaxAmount
		switch {
		case ratio > 1:
			score += 1.0 // the processor will refuse this anyway
		case ratio > 0.9:
			score += 0.4
		case ratio > 0.5:
			score += 0.2
		}
	}
	if !merchantTrusted {
		score += 0.5
	}
	return score
}

func cnpScore(sig model.RiskSignals) float64 {
	if sig.MethodType != "CARD" {
		return 0.1
	}
	if sig.CardNotPresent {
		return 0.7
	}
	return 0.2
}

func methodScore(sig model.RiskSignals) float64 {
	score := 0.2
	if strings.EqualFold(sig.MethodBrand, "amex") {
		score = 0.4
	}
	if sig.RequiresStepUp {
		if sig.StepUpCompleted {
			// A completed step-up is the strongest method-level signal we
			// can get.
			return 0.1
		}
		return 0.9
	}
	return score
}

func patternScore(recentCount int) float64 {
	switch {
	case recentCount <= 2:
		return 0.1
	case recentCount <= 5:
		return 0.4
	case recentCount <= 10:
		return 0.7
	default:
		return 1.0
	}
}

func shippingScore(sig model.RiskSignals) float64 {
	if sig.ShippingCountry == "" {
		return 0.3 // digital goods or missing address
	}
	if sig.AccountCountry != "" && !strings.EqualFold(sig.ShippingCountry, sig.AccountCountry) {
		return 0.8
	}
	return 0.1
}

func temporalScore(sig model.RiskSignals) float64 {
	score := 0.1
	if sig.LocalHour >= 0 && (sig.LocalHour < 6 || sig.LocalHour >= 23) {
		score += 0.4
	}
	if sig.SecondsSinceIntent > 0 && sig.SecondsSinceIntent < 5 {
		// Intent to payment in under five seconds means nobody reviewed
		// the cart.
		score += 0.5
	}
	return score
}

func agentScore(sig model.RiskSignals) float64 {
	if sig.HumanPresent {
		return 0.1
	}
	return 0.8
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func generateID(prefix string) string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return prefix + "_" + hex.EncodeToString(b[:])
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
