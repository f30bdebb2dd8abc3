package ap2

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// PaymentHandler drives a full AP2 mandate-chain flow (intent -> cart ->
// payment -> settlement) for a single purchase. It is the in-process
// choreography used by a combined merchant-agent/shopping-agent deployment
// and by this package's own tests; the distributed services replicate the
// same steps across A2A envelope round trips instead of direct calls.
type PaymentHandler struct {
	generator    *MandateGenerator
	credentials  CredentialsProvider
	holderKey    *ecdsa.PrivateKey
	holderKeyID  string
	processorDID string
	processorURL string
}

// NewPaymentHandler creates an AP2 payment handler that signs carts as
// merchantDID/merchantKey and user authorizations as holderKeyID/holderKey.
func NewPaymentHandler(credentials CredentialsProvider, merchantDID string, merchantKey *ecdsa.PrivateKey, holderKeyID string, holderKey *ecdsa.PrivateKey, processorDID, processorURL string) *PaymentHandler {
	return &PaymentHandler{
		generator:    NewMandateGenerator(merchantDID, merchantKey),
		credentials:  credentials,
		holderKey:    holderKey,
		holderKeyID:  holderKeyID,
		processorDID: processorDID,
		processorURL: processorURL,
	}
}

// ProcessPaymentRequest represents a request to process a payment.
type ProcessPaymentRequest struct {
	OrderID       string  `json:"order_id"`
	ConsumerID    string  `json:"consumer_id"`
	MerchantID    string  `json:"merchant_id"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	PaymentMethod string  `json:"payment_method,omitempty"` // Optional: specific method ID
}

// PaymentResult contains the result of a payment processing run.
type PaymentResult struct {
	Success        bool            `json:"success"`
	Receipt        *PaymentReceipt `json:"receipt,omitempty"`
	IntentMandate  *IntentMandate  `json:"intent_mandate,omitempty"`
	CartMandate    *CartMandate    `json:"cart_mandate,omitempty"`
	PaymentMandate *PaymentMandate `json:"payment_mandate,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
}

// ProcessPayment runs the full AP2 mandate chain for a single purchase.
func (h *PaymentHandler) ProcessPayment(ctx context.Context, req ProcessPaymentRequest) (*PaymentResult, error) {
	slog.InfoContext(ctx, "ap2_payment_started",
		"order_id", req.OrderID,
		"consumer_id", req.ConsumerID,
		"merchant_id", req.MerchantID,
		"amount", req.Amount,
		"currency", req.Currency,
	)

	result := &PaymentResult{}

	info := PurchaseInfo{
		OrderID:     req.OrderID,
		ConsumerID:  req.ConsumerID,
		MerchantID:  req.MerchantID,
		Description: req.Description,
		Amount:      req.Amount,
		Currency:    req.Currency,
	}

	intentMandate := h.generator.GenerateIntentMandate(info, 24*time.Hour)
	result.IntentMandate = intentMandate

	cartMandate, err := h.generator.GenerateCartMandate(info, intentMandate, h.processorDID, h.processorURL, 15*time.Minute)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("failed to generate cart mandate: %v", err)
		return result, nil
	}
	result.CartMandate = cartMandate

	slog.DebugContext(ctx, "cart_mandate_created",
		"cart_id", cartMandate.Contents.ID,
		"merchant", cartMandate.Contents.MerchantName,
		"total", cartMandate.Contents.PaymentRequest.Details.Total.Amount.Value,
	)

	methods, err := h.credentials.GetPaymentMethods(ctx, req.ConsumerID)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("failed to get payment methods: %v", err)
		return result, nil
	}
	if len(methods) == 0 {
		result.Success = false
		result.ErrorMessage = "no payment methods available"
		return result, nil
	}

	selectedMethod := selectPaymentMethod(methods, req.PaymentMethod)
	if selectedMethod == nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("payment method %s not found", req.PaymentMethod)
		return result, nil
	}

	var paymentResponse PaymentResponse
	if selectedMethod.Type == "AEX_BALANCE" {
		paymentResponse = CreatePaymentResponseFromBalance(cartMandate.Contents.PaymentRequest.Details.ID, req.ConsumerID)
	} else {
		token, err := h.credentials.GetPaymentToken(ctx, req.ConsumerID, selectedMethod.ID, !selectedMethod.RequiresStepUp)
		if err != nil {
			result.Success = false
			result.ErrorMessage = fmt.Sprintf("failed to get payment token: %v", err)
			return result, nil
		}
		paymentResponse = CreatePaymentResponseFromToken(cartMandate.Contents.PaymentRequest.Details.ID, selectedMethod.Type, token)
	}

	paymentMandate := GeneratePaymentMandate(cartMandate, paymentResponse, req.MerchantID, req.ConsumerID)

	cartHash, err := CartHash(cartMandate.Contents)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("failed to hash cart: %v", err)
		return result, nil
	}
	paymentHash, err := PaymentHash(paymentMandate.PaymentMandateContents)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("failed to hash payment mandate: %v", err)
		return result, nil
	}
	userAuth, err := BuildUserAuthorization(h.holderKey, h.holderKeyID, req.MerchantID, req.ConsumerID, cartHash, paymentHash, uuid.NewString(), 10*time.Minute)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("failed to build user_authorization: %v", err)
		return result, nil
	}
	paymentMandate.UserAuthorization = userAuth
	result.PaymentMandate = paymentMandate

	slog.DebugContext(ctx, "payment_mandate_created",
		"mandate_id", paymentMandate.PaymentMandateContents.PaymentMandateID,
		"method", paymentResponse.MethodName,
	)

	receipt, err := h.credentials.ProcessPayment(ctx, paymentMandate)
	if err != nil {
		result.Success = false
		result.ErrorMessage = fmt.Sprintf("payment processing failed: %v", err)
		return result, nil
	}

	result.Receipt = receipt
	result.Success = receipt.Status == "SUCCESS"
	if !result.Success {
		result.ErrorMessage = receipt.ErrorMessage
	}

	slog.InfoContext(ctx, "ap2_payment_completed",
		"order_id", req.OrderID,
		"success", result.Success,
		"receipt_id", receipt.ReceiptID,
		"transaction_id", receipt.TransactionID,
		"status", receipt.Status,
	)

	return result, nil
}

func selectPaymentMethod(methods []PaymentMethod, requested string) *PaymentMethod {
	if requested != "" {
		for i := range methods {
			if methods[i].ID == requested {
				return &methods[i]
			}
		}
		return nil
	}
	for i := range methods {
		if methods[i].IsDefault {
			return &methods[i]
		}
	}
	return &methods[0]
}

// GetPaymentMethods returns available payment methods for a user.
func (h *PaymentHandler) GetPaymentMethods(ctx context.Context, userID string) ([]PaymentMethod, error) {
	return h.credentials.GetPaymentMethods(ctx, userID)
}

// ValidateMandates validates the mandate chain for a payment against the
// merchant's public key, without relying on the happy-path values set by
// this package's own ProcessPayment (used by a receiving Payment Processor
// that only ever sees the wire forms).
func ValidateMandates(cart *CartMandate, payment *PaymentMandate, merchantPub *ecdsa.PublicKey) error {
	if err := ValidateCartMandate(cart, merchantPub); err != nil {
		return fmt.Errorf("invalid cart mandate: %w", err)
	}
	if err := ValidatePaymentMandate(payment, cart); err != nil {
		return fmt.Errorf("invalid payment mandate: %w", err)
	}
	return nil
}
