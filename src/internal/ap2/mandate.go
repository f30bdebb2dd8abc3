package ap2

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MandateGenerator builds AP2 mandates on behalf of a merchant, signing
// cart contents with the merchant's ES256 key as it goes.
type MandateGenerator struct {
	merchantKey *ecdsa.PrivateKey
	merchantDID string
}

// NewMandateGenerator creates a mandate generator that signs cart mandates
// as merchantDID using merchantKey.
func NewMandateGenerator(merchantDID string, merchantKey *ecdsa.PrivateKey) *MandateGenerator {
	return &MandateGenerator{merchantKey: merchantKey, merchantDID: merchantDID}
}

// PurchaseInfo is the information needed to generate an intent/cart pair for
// a single line item purchase.
type PurchaseInfo struct {
	OrderID     string
	ConsumerID  string
	MerchantID  string
	Description string
	Amount      float64
	Currency    string
}

// GenerateIntentMandate creates an IntentMandate describing the user's
// purchase intent.
func (g *MandateGenerator) GenerateIntentMandate(info PurchaseInfo, expiresIn time.Duration) *IntentMandate {
	return &IntentMandate{
		ID:                           fmt.Sprintf("intent_%s", uuid.NewString()),
		UserCartConfirmationRequired: true,
		NaturalLanguageDescription:   info.Description,
		Merchants:                    []string{info.MerchantID},
		RequiresRefundability:        false,
		MaxAmount: &PaymentCurrencyAmount{
			Currency: info.Currency,
			Value:    info.Amount,
		},
		IntentExpiry: time.Now().Add(expiresIn),
	}
}

// GenerateCartMandate builds cart contents for info, hashes them under RFC
// 8785 canonicalization, and signs the hash into merchant_authorization.
// processorDID is the Payment Processor's DID; it becomes the JWS audience
// so the processor's step 4d check (aud == self_did) can pass. processorURL
// is only carried as informational payment-method data, never used for
// authorization.
func (g *MandateGenerator) GenerateCartMandate(info PurchaseInfo, intent *IntentMandate, processorDID, processorURL string, expiresIn time.Duration) (*CartMandate, error) {
	now := time.Now()

	contents := CartContents{
		ID:                           fmt.Sprintf("cart_%s", info.OrderID),
		UserCartConfirmationRequired: intent.UserCartConfirmationRequired,
		PaymentRequest: PaymentRequest{
			MethodData: []PaymentMethodData{
				{
					SupportedMethods: "CARD",
					Data:             map[string]interface{}{"payment_processor_url": processorURL},
				},
				{
					SupportedMethods: "AEX_BALANCE",
					Data:             map[string]interface{}{"description": "Pay from account balance"},
				},
			},
			Details: PaymentDetailsInit{
				ID: fmt.Sprintf("order_%s", info.OrderID),
				DisplayItems: []PaymentItem{
					{
						Label:        info.Description,
						Amount:       PaymentCurrencyAmount{Currency: info.Currency, Value: info.Amount},
						RefundPeriod: 30 * 24 * 3600,
					},
				},
				Total: PaymentItem{
					Label:  "Total",
					Amount: PaymentCurrencyAmount{Currency: info.Currency, Value: info.Amount},
				},
			},
			Options: &PaymentOptions{
				RequestPayerEmail: true,
			},
		},
		CartExpiry:   now.Add(expiresIn),
		MerchantName: info.MerchantID,
	}

	if intent.MaxAmount != nil && info.Amount > intent.MaxAmount.Value {
		return nil, ErrAmountExceedsIntent()
	}

	hash, err := CartHash(contents)
	if err != nil {
		return nil, fmt.Errorf("hash cart contents: %w", err)
	}

	auth, err := BuildMerchantAuthorization(g.merchantKey, g.merchantDID, processorDID, contents.ID, hash, 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("build merchant_authorization: %w", err)
	}

	return &CartMandate{
		Contents:              contents,
		MerchantAuthorization: auth,
		Timestamp:             now,
	}, nil
}

// GeneratePaymentMandate builds the payment mandate contents binding a
// signed cart to the user's chosen payment method. The caller (Shopping
// Agent) is responsible for attaching UserAuthorization afterward via
// BuildUserAuthorization.
func GeneratePaymentMandate(cart *CartMandate, paymentResponse PaymentResponse, merchantAgentDID, payerID string) *PaymentMandate {
	now := time.Now()

	contents := PaymentMandateContents{
		PaymentMandateID: fmt.Sprintf("pm_%s", uuid.NewString()),
		PaymentDetailsID: cart.Contents.PaymentRequest.Details.ID,
		PaymentDetailsTotal: PaymentItem{
			Label:        cart.Contents.PaymentRequest.Details.Total.Label,
			Amount:       cart.Contents.PaymentRequest.Details.Total.Amount,
			RefundPeriod: 30 * 24 * 3600,
		},
		PaymentResponse: paymentResponse,
		PayerID:         payerID,
		MerchantAgent:   merchantAgentDID,
		Timestamp:       now,
	}

	return &PaymentMandate{PaymentMandateContents: contents}
}

// ValidateCartMandate checks expiry and the merchant's signature over the
// cart contents' canonical hash.
func ValidateCartMandate(cart *CartMandate, merchantPub *ecdsa.PublicKey) error {
	if cart == nil {
		return fmt.Errorf("cart mandate is nil")
	}
	if time.Now().After(cart.Contents.CartExpiry) {
		return ErrCartExpired()
	}
	if cart.MerchantAuthorization == "" {
		return ErrMerchantAuthInvalid(fmt.Errorf("missing merchant_authorization"))
	}
	hash, err := CartHash(cart.Contents)
	if err != nil {
		return fmt.Errorf("hash cart contents: %w", err)
	}
	if _, err := VerifyMerchantAuthorization(cart.MerchantAuthorization, merchantPub, hash); err != nil {
		return err
	}
	return nil
}

// ValidatePaymentMandate checks the payment mandate's structural invariants
// and its binding to the cart it claims to settle. It does not verify
// UserAuthorization; that is the Payment Processor's job via
// VerifyUserAuthorization, since only it holds both hashes at once.
func ValidatePaymentMandate(mandate *PaymentMandate, cart *CartMandate) error {
	if mandate == nil {
		return fmt.Errorf("payment mandate is nil")
	}
	if mandate.PaymentMandateContents.PaymentMandateID == "" {
		return fmt.Errorf("missing payment_mandate_id")
	}
	if mandate.PaymentMandateContents.PaymentDetailsTotal.Amount.Value <= 0 {
		return fmt.Errorf("invalid payment amount")
	}
	if cart != nil && mandate.PaymentMandateContents.PaymentDetailsID != cart.Contents.PaymentRequest.Details.ID {
		return ErrChainHashMismatch()
	}
	return nil
}

// CreatePaymentResponseFromToken creates a PaymentResponse from a tokenized
// payment method.
func CreatePaymentResponseFromToken(requestID string, methodName string, token *PaymentMethodToken) PaymentResponse {
	return PaymentResponse{
		RequestID:  requestID,
		MethodName: methodName,
		Details: map[string]interface{}{
			"token":      token.Token,
			"token_type": token.TokenType,
			"expires_at": token.ExpiresAt.Format(time.RFC3339),
		},
	}
}

// CreatePaymentResponseFromBalance creates a PaymentResponse for an
// account-balance payment.
func CreatePaymentResponseFromBalance(requestID string, accountID string) PaymentResponse {
	return PaymentResponse{
		RequestID:  requestID,
		MethodName: "AEX_BALANCE",
		Details: map[string]interface{}{
			"account_id":  accountID,
			"method_type": "internal_balance",
		},
	}
}
