// Package ap2 implements the Agent Payments Protocol (AP2) mandate chain:
// IntentMandate -> CartMandate -> PaymentMandate, their canonical-JSON
// hashing/binding rules, and the cryptographic substrate (signing, sealing,
// JWS, WebAuthn assertion verification) that backs the authorization
// artefacts carried on the mandates.
//
// See: https://github.com/google-agentic-commerce/AP2
package ap2

import (
	"time"
)

// AP2 data-part type strings. The set is closed; the A2A envelope dispatches
// on these exactly.
const (
	IntentMandateDataKey  = "ap2.mandates.IntentMandate"
	CartMandateDataKey    = "ap2.mandates.CartMandate"
	PaymentMandateDataKey = "ap2.mandates.PaymentMandate"

	ProductSearchDataKey = "ap2.requests.ProductSearch"
	CartRequestDataKey   = "ap2.requests.CartRequest"
	CartSelectionDataKey = "ap2.requests.CartSelection"

	ProductListDataKey       = "ap2.responses.ProductList"
	CartCandidatesDataKey    = "ap2.responses.CartCandidates"
	PaymentResultDataKey     = "ap2.responses.PaymentResult"
	SignatureResponseDataKey = "ap2.responses.SignatureResponse"
)

// AP2 roles that agents can perform, advertised on a DID document's
// verification relationships and on the A2A extension params.
const (
	RoleMerchant            = "merchant"
	RoleShopper             = "shopper"
	RoleMerchantAgent       = "merchant-agent"
	RoleCredentialsProvider = "credentials-provider"
	RolePaymentNetwork      = "payment-network"
	RolePaymentProcessor    = "payment-processor"
)

// PaymentCurrencyAmount represents a monetary amount with currency.
// Based on W3C Payment Request API.
type PaymentCurrencyAmount struct {
	Currency string  `json:"currency"` // ISO 4217 currency code (e.g., "USD")
	Value    float64 `json:"value"`    // Monetary value
}

// PaymentItem represents an item for purchase.
// Based on W3C Payment Request API.
type PaymentItem struct {
	Label        string                `json:"label"`                   // Human-readable description
	Amount       PaymentCurrencyAmount `json:"amount"`                  // Monetary amount
	Pending      *bool                 `json:"pending,omitempty"`       // If true, amount is not final
	RefundPeriod int                   `json:"refund_period,omitempty"` // Refund duration in seconds; 0 for tax/shipping
}

// PaymentShippingOption describes a shipping option.
type PaymentShippingOption struct {
	ID       string                `json:"id"`                 // Unique identifier
	Label    string                `json:"label"`              // Human-readable description
	Amount   PaymentCurrencyAmount `json:"amount"`             // Cost of shipping
	Selected bool                  `json:"selected,omitempty"` // If true, this is the default
}

// PaymentOptions specifies what information to collect.
type PaymentOptions struct {
	RequestPayerName  bool   `json:"request_payer_name,omitempty"`
	RequestPayerEmail bool   `json:"request_payer_email,omitempty"`
	RequestPayerPhone bool   `json:"request_payer_phone,omitempty"`
	RequestShipping   bool   `json:"request_shipping,omitempty"`
	ShippingType      string `json:"shipping_type,omitempty"` // "shipping", "delivery", or "pickup"
}

// PaymentMethodData indicates a payment method and associated data.
type PaymentMethodData struct {
	SupportedMethods string                 `json:"supported_methods"` // Payment method identifier (e.g., "CARD")
	Data             map[string]interface{} `json:"data,omitempty"`    // Method-specific details
}

// PaymentDetailsModifier provides details that modify payment based on method.
type PaymentDetailsModifier struct {
	SupportedMethods       string                 `json:"supported_methods"`
	Total                  *PaymentItem           `json:"total,omitempty"`
	AdditionalDisplayItems []PaymentItem          `json:"additional_display_items,omitempty"`
	Data                   map[string]interface{} `json:"data,omitempty"`
}

// PaymentDetailsInit contains the details of the payment being requested.
type PaymentDetailsInit struct {
	ID              string                   `json:"id"`             // Unique identifier
	DisplayItems    []PaymentItem            `json:"display_items"`  // Items to display
	ShippingOptions []PaymentShippingOption  `json:"shipping_options,omitempty"`
	Modifiers       []PaymentDetailsModifier `json:"modifiers,omitempty"`
	Total           PaymentItem              `json:"total"` // Total payment amount
}

// PaymentRequest is a request for payment.
// Based on W3C Payment Request API.
type PaymentRequest struct {
	MethodData      []PaymentMethodData `json:"method_data"`                // Supported payment methods
	Details         PaymentDetailsInit  `json:"details"`                    // Financial details
	Options         *PaymentOptions     `json:"options,omitempty"`          // Collection options
	ShippingAddress *ContactAddress     `json:"shipping_address,omitempty"` // User's shipping address
}

// ContactAddress represents a physical address. AddressLine is ordered and
// never reordered by any hop in the chain.
type ContactAddress struct {
	Country           string   `json:"country,omitempty"`
	AddressLine       []string `json:"address_line,omitempty"`
	Region            string   `json:"region,omitempty"`
	City              string   `json:"city,omitempty"`
	DependentLocality string   `json:"dependent_locality,omitempty"`
	PostalCode        string   `json:"postal_code,omitempty"`
	SortingCode       string   `json:"sorting_code,omitempty"`
	Organization      string   `json:"organization,omitempty"`
	Recipient         string   `json:"recipient,omitempty"`
	Phone             string   `json:"phone,omitempty"`
}

// PaymentResponse indicates a user has chosen a payment method.
type PaymentResponse struct {
	RequestID       string                 `json:"request_id"` // From original PaymentRequest
	MethodName      string                 `json:"method_name"` // Payment method chosen
	Details         map[string]interface{} `json:"details,omitempty"`
	ShippingAddress *ContactAddress        `json:"shipping_address,omitempty"`
	ShippingOption  *PaymentShippingOption `json:"shipping_option,omitempty"`
	PayerName       string                 `json:"payer_name,omitempty"`
	PayerEmail      string                 `json:"payer_email,omitempty"`
	PayerPhone      string                 `json:"payer_phone,omitempty"`
}

// IntentMandate represents the user's purchase intent.
// Used in human-present and human-not-present flows.
type IntentMandate struct {
	ID string `json:"id"`

	// If false, the agent can make purchases without user confirmation
	UserCartConfirmationRequired bool `json:"user_cart_confirmation_required"`

	// Natural language description of the user's intent
	NaturalLanguageDescription string `json:"natural_language_description"`

	// Merchants allowed to fulfill the intent (nil = any merchant)
	Merchants []string `json:"merchants,omitempty"`

	// Specific product SKUs (nil = any SKU)
	SKUs []string `json:"skus,omitempty"`

	// If true, items must be refundable
	RequiresRefundability bool `json:"requires_refundability,omitempty"`

	// MaxAmount constrains any CartMandate/PaymentMandate total derived from
	// this intent. Nil means unconstrained.
	MaxAmount *PaymentCurrencyAmount `json:"max_amount,omitempty"`

	// When the intent mandate expires (ISO 8601 format)
	IntentExpiry time.Time `json:"intent_expiry"`

	// User signature (for human-not-present scenarios)
	UserSignature string `json:"user_signature,omitempty"`
}

// CartContents contains the detailed contents of a cart.
// Signed by the merchant to create a CartMandate.
type CartContents struct {
	ID                           string         `json:"id"`                              // Unique cart identifier
	UserCartConfirmationRequired bool           `json:"user_cart_confirmation_required"` // If true, user must confirm
	PaymentRequest               PaymentRequest `json:"payment_request"`                 // W3C PaymentRequest
	CartExpiry                   time.Time      `json:"cart_expiry"`                     // When cart expires
	MerchantName                 string         `json:"merchant_name"`                   // Name of the merchant
}

// CartMandate is a cart whose contents have been digitally signed by the
// merchant. Serves as a guarantee of items and price for a limited time.
type CartMandate struct {
	Contents CartContents `json:"contents"`

	// MerchantAuthorization is a compact ES256 JWS over the canonical hash of
	// Contents; see BuildMerchantAuthorization / VerifyMerchantAuthorization.
	MerchantAuthorization string `json:"merchant_authorization,omitempty"`

	// Timestamp when mandate was created
	Timestamp time.Time `json:"timestamp"`
}

// PaymentMandateContents contains the data contents of a PaymentMandate.
type PaymentMandateContents struct {
	PaymentMandateID    string          `json:"payment_mandate_id"`    // Unique identifier
	PaymentDetailsID    string          `json:"payment_details_id"`    // From PaymentRequest
	PaymentDetailsTotal PaymentItem     `json:"payment_details_total"` // Total amount
	PaymentResponse     PaymentResponse `json:"payment_response"`      // User's payment choice
	PayerID             string          `json:"payer_id"`              // Shopper DID; resolves the user_authorization holder key
	MerchantAgent       string          `json:"merchant_agent"`        // Merchant agent DID
	Timestamp           time.Time       `json:"timestamp"`             // When mandate was created
}

// PaymentMandate contains the user's instructions & authorization for
// payment. Shared with network/issuer for visibility into agentic
// transactions.
type PaymentMandate struct {
	PaymentMandateContents PaymentMandateContents `json:"payment_mandate_contents"`

	// UserAuthorization is a base64url-encoded SD-JWT-VC-shaped Verifiable
	// Presentation binding cart_hash and payment_hash; see
	// BuildUserAuthorization / VerifyUserAuthorization.
	UserAuthorization string `json:"user_authorization,omitempty"`
}

// PaymentReceipt represents the result of a payment transaction.
type PaymentReceipt struct {
	ReceiptID        string                `json:"receipt_id"`
	PaymentMandateID string                `json:"payment_mandate_id"`
	Status           string                `json:"status"` // "SUCCESS", "FAILED", "PENDING"
	TransactionID    string                `json:"transaction_id,omitempty"`
	Amount           PaymentCurrencyAmount `json:"amount"`
	Timestamp        time.Time             `json:"timestamp"`
	ErrorMessage     string                `json:"error_message,omitempty"`
}

// AP2ExtensionParams defines the A2A extension parameters for AP2.
type AP2ExtensionParams struct {
	Roles []string `json:"roles"` // At least one role required
}

// PaymentMethod represents an available payment method from credentials
// provider. Tokens and PANs are never embedded here.
type PaymentMethod struct {
	ID               string                 `json:"id"`                          // Unique method identifier
	Type             string                 `json:"type"`                        // "CARD", "BANK", "WALLET", "AEX_BALANCE"
	DisplayName      string                 `json:"display_name"`                // e.g., "Visa ending in 4242"
	Last4            string                 `json:"last4,omitempty"`             // Last 4 digits (for cards)
	ExpiryMonth      int                    `json:"expiry_month,omitempty"`      // Card expiry month
	ExpiryYear       int                    `json:"expiry_year,omitempty"`       // Card expiry year
	Brand            string                 `json:"brand,omitempty"`             // e.g., "Visa", "Mastercard"
	IsDefault        bool                   `json:"is_default,omitempty"`        // If this is the default method
	RequiresStepUp   bool                   `json:"requires_step_up,omitempty"`  // Triggers a WebAuthn step-up before token issuance
	SupportedMethods []string               `json:"supported_methods,omitempty"` // Payment method identifiers
	Metadata         map[string]interface{} `json:"metadata,omitempty"`          // Additional data
}

// PaymentMethodToken represents a tokenized payment credential (the
// "pm_token" of the mandate flow).
type PaymentMethodToken struct {
	Token     string    `json:"token"`      // Tokenized credential
	MethodID  string    `json:"method_id"`  // Reference to PaymentMethod
	UserID    string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"` // Token expiration
	TokenType string    `json:"token_type"` // e.g., "SINGLE_USE", "MULTI_USE"
}

// AgentToken is the network-issued token bound to a verified assertion and a
// tokenized payment method.
type AgentToken struct {
	Token               string                `json:"agent_token"`
	PaymentMethodTok    string                `json:"-"`
	PaymentMandateID    string                `json:"-"`
	PayerID             string                `json:"-"`
	Amount              PaymentCurrencyAmount `json:"-"`
	NetworkName         string                `json:"network_name"`
	AttestationVerified bool                  `json:"-"`
	ExpiresAt           time.Time             `json:"expires_at"`
	TokenType           string                `json:"token_type"` // "agent_token"
}

// RiskAssessment is the advisory output of the Shopping Agent's risk-scoring
// engine. The Payment Processor may consult it but never relies on it for
// correctness of the mandate chain.
type RiskAssessment struct {
	RiskScore       int      `json:"risk_score"` // 0-100
	RiskLevel       string   `json:"risk_level"` // LOW, MEDIUM, HIGH
	FraudIndicators []string `json:"fraud_indicators,omitempty"`
	Recommendation  string   `json:"recommendation"` // APPROVE, REVIEW, DECLINE
}

// Transaction is the Payment Processor's durable record of a settled
// mandate chain.
type Transaction struct {
	TransactionID    string                `json:"transaction_id"`
	PaymentMandateID string                `json:"payment_mandate_id"`
	CartMandateID    string                `json:"cart_mandate_id"`
	Amount           PaymentCurrencyAmount `json:"amount"`
	Status           string                `json:"status"` // authorized, captured, failed, refunded
	ReceiptURL       string                `json:"receipt_url,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// Transaction status values.
const (
	TransactionAuthorized = "authorized"
	TransactionCaptured   = "captured"
	TransactionFailed     = "failed"
	TransactionRefunded   = "refunded"
)

// CanTransition reports whether the transaction state machine allows
// from -> to. Only Authorized may become Captured or Failed; only Captured
// may become Refunded. There is no path back to Authorized.
func CanTransition(from, to string) bool {
	switch from {
	case "":
		return to == TransactionAuthorized
	case TransactionAuthorized:
		return to == TransactionCaptured || to == TransactionFailed
	case TransactionCaptured:
		return to == TransactionRefunded
	default:
		return false
	}
}

// PasskeyCredential is the Credential Provider's WebAuthn registration
// record. Counter monotonicity across authentications is enforced by
// WebAuthnVerify.
type PasskeyCredential struct {
	CredentialID  string    `json:"credential_id"`
	UserID        string    `json:"user_id"`
	PublicKeyCOSE []byte    `json:"public_key_cose"`
	SignCount     uint32    `json:"sign_count"`
	Transports    []string  `json:"transports,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
