// Package model holds the Shopping Agent's purchase state machine: one
// Purchase record walks Initial -> IntentCollected -> ... -> PaymentSettled
// as the mandate chain is assembled and settled.
package model

import (
	"fmt"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// PurchaseState names a stage of the mandate-side flow.
type PurchaseState string

const (
	StateInitial             PurchaseState = "INITIAL"
	StateIntentCollected     PurchaseState = "INTENT_COLLECTED"
	StateIntentConfirmed     PurchaseState = "INTENT_CONFIRMED"
	StateCartOptionsReceived PurchaseState = "CART_OPTIONS_RECEIVED"
	StateCartSelected        PurchaseState = "CART_SELECTED"
	StateCartConfirmed       PurchaseState = "CART_CONFIRMED"
	StatePaymentMethodChosen PurchaseState = "PAYMENT_METHOD_CHOSEN"
	StateStepUpPending       PurchaseState = "STEP_UP_PENDING"
	StatePaymentMandateSigned PurchaseState = "PAYMENT_MANDATE_SIGNED"
	StatePaymentSettled      PurchaseState = "PAYMENT_SETTLED"
	StateFailed              PurchaseState = "FAILED"
)

// transitions is the allowed edge set. Step-up is a detour between
// choosing a method and signing the payment mandate.
var transitions = map[PurchaseState][]PurchaseState{
	StateInitial:             {StateIntentCollected},
	StateIntentCollected:     {StateIntentConfirmed, StateFailed},
	StateIntentConfirmed:     {StateCartOptionsReceived, StateFailed},
	StateCartOptionsReceived: {StateCartSelected, StateFailed},
	StateCartSelected:        {StateCartConfirmed, StateFailed},
	StateCartConfirmed:       {StatePaymentMethodChosen, StateFailed},
	StatePaymentMethodChosen: {StateStepUpPending, StatePaymentMandateSigned, StateFailed},
	StateStepUpPending:       {StatePaymentMethodChosen, StateFailed},
	StatePaymentMandateSigned: {StatePaymentSettled, StateFailed},
}

// CanTransition reports whether from -> to is an allowed edge.
func CanTransition(from, to PurchaseState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned by Purchase.Advance.
type ErrInvalidTransition struct {
	From, To PurchaseState
}

func (e ErrInvalidTransition) Error() string {
	return fmt.Sprintf("purchase cannot move %s -> %s", e.From, e.To)
}

// CartCandidate is one signed cart offered by the Merchant Agent.
type CartCandidate struct {
	ArtifactID string          `json:"artifact_id" bson:"artifact_id" firestore:"artifact_id"`
	Name       string          `json:"name" bson:"name" firestore:"name"`
	Cart       ap2.CartMandate `json:"cart" bson:"cart" firestore:"cart"`
}

// PaymentOutcome is the terminal result recorded on a purchase.
type PaymentOutcome struct {
	TransactionID string   `json:"transaction_id,omitempty" bson:"transaction_id,omitempty" firestore:"transaction_id,omitempty"`
	Status        string   `json:"status" bson:"status" firestore:"status"`
	ReceiptURL    string   `json:"receipt_url,omitempty" bson:"receipt_url,omitempty" firestore:"receipt_url,omitempty"`
	Amount        string   `json:"amount,omitempty" bson:"amount,omitempty" firestore:"amount,omitempty"`
	Currency      string   `json:"currency,omitempty" bson:"currency,omitempty" firestore:"currency,omitempty"`
	ProductName   string   `json:"product_name,omitempty" bson:"product_name,omitempty" firestore:"product_name,omitempty"`
	Errors        []string `json:"errors,omitempty" bson:"errors,omitempty" firestore:"errors,omitempty"`
}

// Purchase is the Shopping Agent's durable record of one mandate-side
// flow.
type Purchase struct {
	ID     string        `json:"purchase_id" bson:"_id" firestore:"purchase_id"`
	UserID string        `json:"user_id" bson:"user_id" firestore:"user_id"`
	State  PurchaseState `json:"state" bson:"state" firestore:"state"`

	Intent         ap2.IntentMandate   `json:"intent" bson:"intent" firestore:"intent"`
	CartCandidates []CartCandidate     `json:"cart_candidates,omitempty" bson:"cart_candidates,omitempty" firestore:"cart_candidates,omitempty"`
	SelectedCart   *ap2.CartMandate    `json:"selected_cart,omitempty" bson:"selected_cart,omitempty" firestore:"selected_cart,omitempty"`
	PaymentMandate *ap2.PaymentMandate `json:"payment_mandate,omitempty" bson:"payment_mandate,omitempty" firestore:"payment_mandate,omitempty"`

	PaymentMethodID string `json:"payment_method_id,omitempty" bson:"payment_method_id,omitempty" firestore:"payment_method_id,omitempty"`
	MethodType      string `json:"method_type,omitempty" bson:"method_type,omitempty" firestore:"method_type,omitempty"`
	MethodBrand     string `json:"method_brand,omitempty" bson:"method_brand,omitempty" firestore:"method_brand,omitempty"`
	RequiresStepUp  bool   `json:"requires_step_up,omitempty" bson:"requires_step_up,omitempty" firestore:"requires_step_up,omitempty"`
	StepUpSessionID string `json:"step_up_session_id,omitempty" bson:"step_up_session_id,omitempty" firestore:"step_up_session_id,omitempty"`
	StepUpCompleted bool   `json:"step_up_completed,omitempty" bson:"step_up_completed,omitempty" firestore:"step_up_completed,omitempty"`
	PMToken         string `json:"-" bson:"pm_token,omitempty" firestore:"pm_token,omitempty"`
	AgentToken      string `json:"-" bson:"agent_token,omitempty" firestore:"agent_token,omitempty"`

	Risk   *ap2.RiskAssessment `json:"risk,omitempty" bson:"risk,omitempty" firestore:"risk,omitempty"`
	Result *PaymentOutcome     `json:"result,omitempty" bson:"result,omitempty" firestore:"result,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at" firestore:"updated_at"`
}

// Advance moves the purchase to state, refusing illegal edges.
func (p *Purchase) Advance(to PurchaseState) error {
	if !CanTransition(p.State, to) {
		return ErrInvalidTransition{From: p.State, To: to}
	}
	p.State = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// CreatePurchaseRequest is the POST /purchases body.
type CreatePurchaseRequest struct {
	UserID                string                     `json:"user_id"`
	Description           string                     `json:"description"`
	MaxAmount             *ap2.PaymentCurrencyAmount `json:"max_amount,omitempty"`
	Merchants             []string                   `json:"merchants,omitempty"`
	SKUs                  []string                   `json:"skus,omitempty"`
	RequiresRefundability bool                       `json:"requires_refundability,omitempty"`
	IntentExpiry          *time.Time                 `json:"intent_expiry,omitempty"`
	CartConfirmationRequired *bool                   `json:"user_cart_confirmation_required,omitempty"`
}

// ChallengeResponse is returned when a WebAuthn ceremony is opened.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Challenge   string    `json:"challenge"` // base64url, what the authenticator signs over
	ExpiresAt   time.Time `json:"expires_at"`
}
