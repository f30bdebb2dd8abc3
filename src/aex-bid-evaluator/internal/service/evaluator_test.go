package service

import (
	"context"
	"testing"

	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/model"
	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/store"
)

func newTestService() *Service {
	// No trust broker configured: unknown merchants stay untrusted.
	return New("", store.NewMemoryEvaluationStore())
}

// lowRiskSignals is the baseline: small in-budget purchase, allow-listed
// merchant, human present, domestic shipping, daytime.
func lowRiskSignals() model.RiskSignals {
	return model.RiskSignals{
		Amount:              25,
		Currency:            "USD",
		IntentMaxAmount:     100,
		MerchantAllowListed: true,
		CardNotPresent:      false,
		MethodType:          "CARD",
		MethodBrand:         "Visa",
		RecentPurchaseCount: 1,
		ShippingCountry:     "US",
		AccountCountry:      "US",
		LocalHour:           14,
		SecondsSinceIntent:  120,
		HumanPresent:        true,
	}
}

func evaluate(t *testing.T, sig model.RiskSignals) model.RiskEvaluation {
	t.Helper()
	svc := newTestService()
	return svc.Evaluate(context.Background(), model.EvaluateRequest{
		PaymentMandateID: "pm_test",
		Signals:          sig,
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	svc := newTestService()
	req := model.EvaluateRequest{PaymentMandateID: "pm_det", Signals: lowRiskSignals()}

	a := svc.Evaluate(context.Background(), req)
	b := svc.Evaluate(context.Background(), req)

	if a.Assessment.RiskScore != b.Assessment.RiskScore {
		t.Errorf("same signals scored differently: %d vs %d", a.Assessment.RiskScore, b.Assessment.RiskScore)
	}
	if a.Assessment.RiskLevel != b.Assessment.RiskLevel {
		t.Errorf("same signals leveled differently: %s vs %s", a.Assessment.RiskLevel, b.Assessment.RiskLevel)
	}
}

func TestEvaluate_LowRiskBaseline(t *testing.T) {
	ev := evaluate(t, lowRiskSignals())

	if ev.Assessment.RiskLevel != model.RiskLevelLow {
		t.Errorf("baseline level = %s (score %d), want LOW", ev.Assessment.RiskLevel, ev.Assessment.RiskScore)
	}
	if ev.Assessment.Recommendation != model.RecommendApprove {
		t.Errorf("baseline recommendation = %s, want APPROVE", ev.Assessment.Recommendation)
	}
	if len(ev.SignalScores) != 8 {
		t.Errorf("signal count = %d, want 8", len(ev.SignalScores))
	}

	var weightSum float64
	for _, sc := range ev.SignalScores {
		weightSum += sc.Weight
		if sc.Score < 0 || sc.Score > 1 {
			t.Errorf("signal %s score %v outside [0,1]", sc.Signal, sc.Score)
		}
	}
	if weightSum < 0.99 || weightSum > 1.01 {
		t.Errorf("weights sum to %v, want 1.0", weightSum)
	}
}

func TestEvaluate_HighRiskStack(t *testing.T) {
	sig := model.RiskSignals{
		Amount:              4800,
		Currency:            "USD",
		IntentMaxAmount:     0, // unconstrained intent
		MerchantAllowListed: false,
		CardNotPresent:      true,
		MethodType:          "CARD",
		MethodBrand:         "Amex",
		RequiresStepUp:      true,
		StepUpCompleted:     false,
		RecentPurchaseCount: 14,
		ShippingCountry:     "BR",
		AccountCountry:      "US",
		LocalHour:           3,
		SecondsSinceIntent:  2,
		HumanPresent:        false,
	}
	ev := evaluate(t, sig)

	if ev.Assessment.RiskLevel != model.RiskLevelHigh {
		t.Errorf("level = %s (score %d), want HIGH", ev.Assessment.RiskLevel, ev.Assessment.RiskScore)
	}
	if ev.Assessment.Recommendation != model.RecommendDecline {
		t.Errorf("recommendation = %s, want DECLINE", ev.Assessment.Recommendation)
	}
	if len(ev.Assessment.FraudIndicators) == 0 {
		t.Error("high-risk stack produced no fraud indicators")
	}
}

func TestEvaluate_StepUpCompletionLowersMethodRisk(t *testing.T) {
	sig := lowRiskSignals()
	sig.RequiresStepUp = true
	sig.StepUpCompleted = false
	pending := evaluate(t, sig)

	sig.StepUpCompleted = true
	completed := evaluate(t, sig)

	if completed.Assessment.RiskScore >= pending.Assessment.RiskScore {
		t.Errorf("completed step-up (%d) should score below pending step-up (%d)",
			completed.Assessment.RiskScore, pending.Assessment.RiskScore)
	}
}

func TestEvaluate_AmountExceedingIntentIsFlagged(t *testing.T) {
	sig := lowRiskSignals()
	sig.Amount = 150
	sig.IntentMaxAmount = 100
	over := evaluate(t, sig)

	base := evaluate(t, lowRiskSignals())
	if over.Assessment.RiskScore <= base.Assessment.RiskScore {
		t.Errorf("over-intent amount (%d) should score above baseline (%d)",
			over.Assessment.RiskScore, base.Assessment.RiskScore)
	}

	found := false
	for _, ind := range over.Assessment.FraudIndicators {
		if ind == "purchase_outside_intent_constraints" {
			found = true
		}
	}
	if !found {
		t.Error("over-intent purchase not named in fraud indicators")
	}
}

func TestEvaluate_ShippingMismatchRaisesScore(t *testing.T) {
	sig := lowRiskSignals()
	sig.ShippingCountry = "NG"
	mismatch := evaluate(t, sig)

	base := evaluate(t, lowRiskSignals())
	if mismatch.Assessment.RiskScore <= base.Assessment.RiskScore {
		t.Errorf("shipping mismatch (%d) should score above baseline (%d)",
			mismatch.Assessment.RiskScore, base.Assessment.RiskScore)
	}
}

func TestEvaluate_ZeroDecimalCurrencyNormalized(t *testing.T) {
	usd := lowRiskSignals()
	usd.Amount = 80
	usd.IntentMaxAmount = 500

	jpy := usd
	jpy.Amount = 8068
	jpy.Currency = "JPY"
	jpy.IntentMaxAmount = 50000

	a := evaluate(t, usd)
	b := evaluate(t, jpy)

	// 8068 JPY is the same order of magnitude as 80 USD; the magnitude
	// signal must not treat it as a four-figure purchase.
	if diff := a.Assessment.RiskScore - b.Assessment.RiskScore; diff > 10 || diff < -10 {
		t.Errorf("currency normalization off: USD score %d vs JPY score %d", a.Assessment.RiskScore, b.Assessment.RiskScore)
	}
}

func TestEvaluate_PersistsLatest(t *testing.T) {
	st := store.NewMemoryEvaluationStore()
	svc := New("", st)

	ev := svc.Evaluate(context.Background(), model.EvaluateRequest{PaymentMandateID: "pm_persist", Signals: lowRiskSignals()})
	if err := st.Save(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetLatest(context.Background(), "pm_persist")
	if err != nil || got == nil {
		t.Fatalf("GetLatest() = %v, %v", got, err)
	}
	if got.EvaluationID != ev.EvaluationID {
		t.Errorf("stored evaluation id mismatch")
	}
}
