package ap2

import "fmt"

// Error is a structured error carrying the AP2 error-kind vocabulary used
// across the federation's HTTP and A2A surfaces.
type Error struct {
	Kind       string // machine-readable error kind, e.g. "invalid_signature"
	Message    string
	HTTPStatus int
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind, message string, httpStatus int) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

func wrapErr(kind, message string, httpStatus int, err error) *Error {
	return &Error{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// Envelope / signature error kinds.
var (
	ErrUnsupportedAlgorithm = func() *Error { return newErr("unsupported_algorithm", "signature algorithm not allow-listed", 400) }
	ErrUnknownSender        = func() *Error { return newErr("unknown_sender", "kid does not match sender DID", 400) }
	ErrTimestampWindow      = func() *Error { return newErr("timestamp_out_of_window", "envelope timestamp outside the acceptance window", 400) }
	ErrReplayedNonce        = func() *Error { return newErr("replayed_nonce", "nonce has already been used", 409) }
	ErrDIDResolutionFailed  = func(err error) *Error { return wrapErr("did_resolution_failed", "could not resolve signer DID document", 502, err) }
	ErrInvalidSignature     = func() *Error { return newErr("invalid_signature", "envelope signature verification failed", 401) }
	ErrUnknownDataType      = func() *Error { return newErr("unknown_data_type", "dataPart type is not in the AP2 closed set", 400) }
)

// Mandate-chain error kinds.
var (
	ErrCartExpired          = func() *Error { return newErr("cart_expired", "cart_expiry has passed", 409) }
	ErrIntentExpired        = func() *Error { return newErr("intent_expired", "intent_expiry has passed", 409) }
	ErrChainHashMismatch    = func() *Error { return newErr("chain_hash_mismatch", "mandate chain hash binding broken", 400) }
	ErrMerchantAuthInvalid  = func(err error) *Error { return wrapErr("merchant_authorization_invalid", "merchant_authorization JWS failed verification", 400, err) }
	ErrUserAuthInvalid      = func(err error) *Error { return wrapErr("user_authorization_invalid", "user_authorization VP failed verification", 400, err) }
	ErrAmountExceedsIntent  = func() *Error { return newErr("amount_exceeds_intent", "cart total exceeds the intent's max_amount", 400) }
	ErrMandateNotFound      = func(kind string) *Error { return newErr("mandate_not_found", kind+" not found", 404) }
)

// Crypto substrate error kinds.
var (
	ErrSealOpenFailed     = func(err error) *Error { return wrapErr("seal_open_failed", "authenticated decryption failed", 400, err) }
	ErrWebAuthnVerifyFail = func(err error) *Error { return wrapErr("webauthn_verify_failed", "assertion verification failed", 401, err) }
	ErrCounterNotMonotone = func() *Error { return newErr("webauthn_counter_replay", "signature counter did not increase", 401) }
	ErrOriginMismatch     = func() *Error { return newErr("webauthn_origin_mismatch", "clientData origin not in the relying party allow-list", 401) }
)

// Payment-processor error kinds.
var (
	ErrInvalidTransition = func(from, to string) *Error {
		return newErr("invalid_transaction_transition", fmt.Sprintf("cannot transition %q -> %q", from, to), 409)
	}
	ErrInsufficientFunds = func() *Error { return newErr("insufficient_funds", "balance insufficient for requested amount", 402) }
)

// Merchant error kinds.
var (
	ErrInvalidCart           = func(err error) *Error { return wrapErr("invalid_cart", "cart contents failed validation", 400, err) }
	ErrInsufficientInventory = func(sku string) *Error {
		return newErr("insufficient_inventory", "no inventory remaining for SKU "+sku, 409)
	}
)

// Schema / reference-integrity error kinds.
var (
	ErrSchemaInvalid    = func(err error) *Error { return wrapErr("schema_invalid", "payload did not parse into the expected mandate shape", 400, err) }
	ErrMandateExpired   = func(kind string) *Error { return newErr("mandate_expired", kind+" has expired", 409) }
	ErrReferenceMismatch = func() *Error { return newErr("reference_mismatch", "payment_details_id/currency/total did not match between cart and payment mandates", 400) }
	ErrMerchantNotAllowed = func() *Error { return newErr("merchant_not_allowed", "merchant DID is not in the intent's merchants allow-list", 403) }
)

// Credential/network/downstream error kinds.
var (
	ErrUnknownCredential         = func() *Error { return newErr("unknown_credential", "no credential found for the given identifier", 404) }
	ErrCredentialInvalid         = func() *Error { return newErr("credential_invalid", "credential provider rejected the token", 402) }
	ErrNetworkTokenisationFailed = func(err error) *Error { return wrapErr("network_tokenisation_failed", "payment network declined to issue an agent_token", 502, err) }
	ErrPaymentDeclined           = func(reason string) *Error { return newErr("payment_declined", reason, 402) }
	ErrUpstreamUnavailable       = func(err error) *Error { return wrapErr("upstream_unavailable", "a downstream AP2 service is unreachable", 503, err) }
	ErrChallengeExpired          = func() *Error { return newErr("challenge_expired", "webauthn challenge has expired or was already consumed", 410) }
	ErrTokenExpired              = func() *Error { return newErr("token_expired", "token has expired", 410) }
	ErrConcurrencyFault          = func(err error) *Error { return wrapErr("concurrency_fault", "concurrent mutation conflict", 409, err) }
)
