// Package service implements the Payment Processor's mandate-chain
// validator: the strict, ordered sequence of checks that turns a
// PaymentMandate + CartMandate pair into captured funds, or refuses it
// with no state written at all.
package service

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/payment"
	"github.com/parlakisik/aex-ap2/aex-settlement/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/events"
	"github.com/parlakisik/aex-ap2/internal/httpclient"
	"github.com/parlakisik/aex-ap2/internal/ttlstore"
	"github.com/shopspring/decimal"
)

// PeerURLFunc maps a peer DID to the base URL serving its DID document.
type PeerURLFunc func(did string) (string, error)

// Service validates mandate chains and settles them.
type Service struct {
	identity *agentidentity.Identity
	store    store.TransactionStore
	acquirer payment.Acquirer
	resolver *didresolver.Resolver
	peerURL  PeerURLFunc
	jtis     ttlstore.NonceLedger
	events   *events.Publisher

	cp             *httpclient.Client
	cpURL          string
	receiptBaseURL string

	riskDeclineThreshold int
}

// Config bundles the Service's dependencies.
type Config struct {
	Identity               *agentidentity.Identity
	Store                  store.TransactionStore
	Acquirer               payment.Acquirer
	Resolver               *didresolver.Resolver
	PeerURL                PeerURLFunc
	JTILedger              ttlstore.NonceLedger
	CredentialsProviderURL string
	ContractEngineURL      string
	ReceiptBaseURL         string
	RiskDeclineThreshold   int
}

func New(cfg Config) *Service {
	pub := events.NewPublisher("aex-settlement")
	pub.RegisterEndpoint(events.EventReceiptIssued, cfg.CredentialsProviderURL+"/receipts")
	if cfg.ContractEngineURL != "" {
		pub.RegisterEndpoint(events.EventChainArchived, cfg.ContractEngineURL+"/artifacts")
	}

	return &Service{
		identity:             cfg.Identity,
		store:                cfg.Store,
		acquirer:             cfg.Acquirer,
		resolver:             cfg.Resolver,
		peerURL:              cfg.PeerURL,
		jtis:                 cfg.JTILedger,
		events:               pub,
		cp:                   httpclient.NewClient("credentials-provider", 10*time.Second),
		cpURL:                cfg.CredentialsProviderURL,
		receiptBaseURL:       cfg.ReceiptBaseURL,
		riskDeclineThreshold: cfg.RiskDeclineThreshold,
	}
}

// ProcessPaymentMandate runs the chain-validation sequence in its mandated
// order. The first failing check aborts with no state mutation; only a
// chain that survives every check reaches the acquirer, and the resulting
// transaction row is written in the same unit of work as the capture.
func (s *Service) ProcessPaymentMandate(ctx context.Context, payload model.ChainPayload) (*model.PaymentResultPayload, error) {
	pm := payload.PaymentMandate
	cm := payload.CartMandate
	contents := pm.PaymentMandateContents

	// 1. Schema: both mandates parse and both authorization artefacts are
	// present.
	if contents.PaymentMandateID == "" || cm.Contents.ID == "" {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("mandate ids missing"))
	}
	if pm.UserAuthorization == "" {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("payment_mandate.user_authorization is empty"))
	}
	if cm.MerchantAuthorization == "" {
		return nil, ap2.ErrSchemaInvalid(fmt.Errorf("cart_mandate.merchant_authorization is empty"))
	}

	// 2. Reference integrity: ids, currency, and totals must agree.
	if contents.PaymentDetailsID != cm.Contents.PaymentRequest.Details.ID {
		return nil, ap2.ErrReferenceMismatch()
	}
	cartTotal := cm.Contents.PaymentRequest.Details.Total.Amount
	payTotal := contents.PaymentDetailsTotal.Amount
	if cartTotal.Currency != payTotal.Currency ||
		!decimal.NewFromFloat(cartTotal.Value).Equal(decimal.NewFromFloat(payTotal.Value)) {
		return nil, ap2.ErrReferenceMismatch()
	}

	// 3. Expiry.
	now := time.Now()
	if now.After(cm.Contents.CartExpiry) {
		return nil, ap2.ErrMandateExpired("cart_mandate")
	}
	if payload.IntentMandate != nil && now.After(payload.IntentMandate.IntentExpiry) {
		return nil, ap2.ErrMandateExpired("intent_mandate")
	}

	// 4. merchant_authorization.
	merchantDID, claims, err := s.verifyMerchantAuthorization(ctx, payload)
	if err != nil {
		return nil, err
	}

	// 5. user_authorization.
	if err := s.verifyUserAuthorization(ctx, payload); err != nil {
		return nil, err
	}

	// 6. Amount within the intent's declared max; merchant allow-list
	// again, as defence-in-depth with step 4.
	if intent := payload.IntentMandate; intent != nil {
		if intent.MaxAmount != nil {
			if payTotal.Currency != intent.MaxAmount.Currency ||
				decimal.NewFromFloat(payTotal.Value).GreaterThan(decimal.NewFromFloat(intent.MaxAmount.Value)) {
				return nil, ap2.ErrAmountExceedsIntent()
			}
		}
		if len(intent.Merchants) > 0 && !contains(intent.Merchants, merchantDID) {
			return nil, ap2.ErrMerchantNotAllowed()
		}
	}

	// Advisory risk gate. Never a substitute for any of the checks above.
	if risk := payload.Risk; risk != nil {
		slog.InfoContext(ctx, "risk_assessment_received",
			"payment_mandate_id", contents.PaymentMandateID,
			"risk_score", risk.RiskScore,
			"risk_level", risk.RiskLevel,
			"recommendation", risk.Recommendation,
		)
		if s.riskDeclineThreshold > 0 && risk.RiskScore >= s.riskDeclineThreshold {
			return nil, ap2.ErrPaymentDeclined(fmt.Sprintf("risk score %d at or above decline threshold", risk.RiskScore))
		}
	}

	// 7. Credential verification with the Credential Provider.
	credInfo, err := s.verifyCredential(ctx, contents)
	if err != nil {
		return nil, err
	}

	// 8. Authorize + capture + persist as one unit of work.
	receiptURL := ""
	var tx ap2.Transaction
	err = s.store.Run(ctx, func(w store.TxWriter) error {
		capture, err := s.acquirer.AuthorizeCapture(ctx, payment.AuthorizationRequest{
			PaymentMandateID: contents.PaymentMandateID,
			PayerID:          contents.PayerID,
			MerchantName:     cm.Contents.MerchantName,
			Amount:           payTotal,
			CredentialType:   credInfo.Type,
			Last4:            credInfo.Last4,
		})
		if err != nil {
			return err
		}

		receiptURL = fmt.Sprintf("%s/receipts/%s.pdf", s.receiptBaseURL, capture.TransactionID)
		tx = ap2.Transaction{
			TransactionID:    capture.TransactionID,
			PaymentMandateID: contents.PaymentMandateID,
			CartMandateID:    cm.Contents.ID,
			Amount:           payTotal,
			Status:           ap2.TransactionCaptured,
			ReceiptURL:       receiptURL,
			CreatedAt:        capture.CapturedAt,
		}

		if err := w.SaveMandates(ctx, model.MandateRecord{
			PaymentMandateID: contents.PaymentMandateID,
			CartMandateID:    cm.Contents.ID,
			IntentMandateID:  intentID(payload.IntentMandate),
			PaymentMandate:   pm,
			CartMandate:      cm,
			IntentMandate:    payload.IntentMandate,
			Risk:             payload.Risk,
			ReceivedAt:       now,
		}); err != nil {
			return err
		}
		if err := w.SaveTransaction(ctx, tx); err != nil {
			return err
		}
		return w.SaveReceipt(ctx, model.ReceiptRecord{
			TransactionID: tx.TransactionID,
			ReceiptURL:    receiptURL,
			PayerID:       contents.PayerID,
			Amount:        payTotal.Value,
			Currency:      payTotal.Currency,
			CreatedAt:     tx.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "payment_captured",
		"transaction_id", tx.TransactionID,
		"payment_mandate_id", tx.PaymentMandateID,
		"cart_mandate_id", tx.CartMandateID,
		"amount", payTotal.Value,
		"currency", payTotal.Currency,
		"merchant", merchantDID,
		"jti", claims.ID,
	)

	// 9. Receipt delivery and chain archival are decoupled from the
	// response path: at-least-once, idempotent on transaction_id at the
	// receivers.
	s.deliverSideChannel(tx, contents.PayerID, payTotal)

	// 10. PaymentResult.
	return &model.PaymentResultPayload{
		TransactionID: tx.TransactionID,
		Status:        tx.Status,
		ReceiptURL:    receiptURL,
		Amount:        decimal.NewFromFloat(payTotal.Value).String(),
		Currency:      payTotal.Currency,
		ProductName:   productName(cm.Contents),
	}, nil
}

// verifyMerchantAuthorization runs step 4: parse the JWS header, enforce
// the intent's merchant allow-list, resolve the merchant key, verify the
// signature and the cart-hash binding, then check audience and jti
// freshness.
func (s *Service) verifyMerchantAuthorization(ctx context.Context, payload model.ChainPayload) (string, *ap2.MerchantAuthClaims, error) {
	cm := payload.CartMandate

	kid, err := ap2.MerchantAuthKid(cm.MerchantAuthorization)
	if err != nil {
		return "", nil, ap2.ErrMerchantAuthInvalid(err)
	}
	merchantDID, ok := didFromKid(kid)
	if !ok {
		return "", nil, ap2.ErrMerchantAuthInvalid(fmt.Errorf("kid %q is not a DID URL", kid))
	}

	if intent := payload.IntentMandate; intent != nil && len(intent.Merchants) > 0 && !contains(intent.Merchants, merchantDID) {
		return "", nil, ap2.ErrMerchantNotAllowed()
	}

	merchantPub, err := s.resolveECDSAKey(ctx, merchantDID, kid)
	if err != nil {
		return "", nil, err
	}

	cartHash, err := ap2.CartHash(cm.Contents)
	if err != nil {
		return "", nil, fmt.Errorf("hash cart contents: %w", err)
	}
	claims, err := ap2.VerifyMerchantAuthorization(cm.MerchantAuthorization, merchantPub, cartHash)
	if err != nil {
		return "", nil, err
	}

	audOK := false
	for _, aud := range claims.Audience {
		if aud == s.identity.DID {
			audOK = true
			break
		}
	}
	if !audOK {
		return "", nil, ap2.ErrMerchantAuthInvalid(fmt.Errorf("audience %v does not name this processor", claims.Audience))
	}

	jtiTTL := time.Until(claims.ExpiresAt.Time)
	if jtiTTL <= 0 {
		return "", nil, ap2.ErrMerchantAuthInvalid(fmt.Errorf("authorization expired"))
	}
	fresh, err := s.jtis.CheckAndRecord(ctx, "jti:"+merchantDID, claims.ID, jtiTTL)
	if err != nil {
		return "", nil, fmt.Errorf("jti ledger: %w", err)
	}
	if !fresh {
		return "", nil, ap2.ErrReplayedNonce()
	}

	return merchantDID, claims, nil
}

// verifyUserAuthorization runs step 5: decode the VP, resolve the holder
// key named by the KB-JWT, verify the KB-JWT signature and the
// transaction_data binding against independently computed hashes, then
// have the Credential Provider verify the WebAuthn assertion against the
// user's registered passkey (the provider owns the COSE key and the sign
// counter, and advances the counter atomically on success).
func (s *Service) verifyUserAuthorization(ctx context.Context, payload model.ChainPayload) error {
	pm := payload.PaymentMandate

	info, err := ap2.ParseUserAuthorization(pm.UserAuthorization)
	if err != nil {
		return err
	}
	holderDID, ok := didFromKid(info.HolderKid)
	if !ok {
		return ap2.ErrUserAuthInvalid(fmt.Errorf("kb-jwt kid %q is not a DID URL", info.HolderKid))
	}
	holderPub, err := s.resolveECDSAKey(ctx, holderDID, info.HolderKid)
	if err != nil {
		return ap2.ErrUserAuthInvalid(err)
	}

	cartHash, err := ap2.CartHash(payload.CartMandate.Contents)
	if err != nil {
		return fmt.Errorf("hash cart contents: %w", err)
	}
	paymentHash, err := ap2.PaymentHash(pm.PaymentMandateContents)
	if err != nil {
		return fmt.Errorf("hash payment mandate contents: %w", err)
	}
	if err := ap2.VerifyUserAuthorization(pm.UserAuthorization, holderPub, cartHash, paymentHash); err != nil {
		return err
	}

	if payload.Attestation == nil {
		return ap2.ErrUserAuthInvalid(fmt.Errorf("webauthn assertion missing from chain payload"))
	}

	var resp struct {
		Verified bool `json:"verified"`
	}
	req := map[string]interface{}{
		"payment_mandate":    pm,
		"attestation":        payload.Attestation,
		"expected_challenge": info.Nonce,
	}
	if err := s.cp.PostJSON(ctx, s.cpURL+"/verify/attestation", req, &resp); err != nil {
		return ap2.ErrUserAuthInvalid(fmt.Errorf("attestation verification: %w", err))
	}
	if !resp.Verified {
		return ap2.ErrUserAuthInvalid(fmt.Errorf("credential provider rejected the assertion"))
	}
	return nil
}

// verifyCredential runs step 7 against the Credential Provider.
func (s *Service) verifyCredential(ctx context.Context, contents ap2.PaymentMandateContents) (*credentialInfo, error) {
	token, _ := contents.PaymentResponse.Details["token"].(string)
	if token == "" {
		return nil, ap2.ErrCredentialInvalid()
	}

	var resp struct {
		Verified       bool            `json:"verified"`
		CredentialInfo *credentialInfo `json:"credential_info"`
	}
	req := map[string]interface{}{
		"token":    token,
		"payer_id": contents.PayerID,
		"amount":   contents.PaymentDetailsTotal.Amount.Value,
	}
	if err := s.cp.PostJSON(ctx, s.cpURL+"/credentials/verify", req, &resp); err != nil {
		return nil, ap2.ErrUpstreamUnavailable(err)
	}
	if !resp.Verified {
		return nil, ap2.ErrCredentialInvalid()
	}
	if resp.CredentialInfo == nil {
		resp.CredentialInfo = &credentialInfo{}
	}
	return resp.CredentialInfo, nil
}

type credentialInfo struct {
	PaymentMethodID string `json:"payment_method_id"`
	Type            string `json:"type"`
	Brand           string `json:"brand"`
	Last4           string `json:"last4"`
}

// deliverSideChannel hands the receipt to the Credential Provider and the
// settled chain to the artefact archive. It runs detached from the request
// so the A2A response never waits on it.
func (s *Service) deliverSideChannel(tx ap2.Transaction, payerID string, amount ap2.PaymentCurrencyAmount) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		_ = s.events.Publish(ctx, events.EventReceiptIssued, map[string]any{
			"transaction_id": tx.TransactionID,
			"receipt_url":    tx.ReceiptURL,
			"payer_id":       payerID,
			"amount":         amount.Value,
			"timestamp":      tx.CreatedAt.Format(time.RFC3339),
		})
		_ = s.events.Publish(ctx, events.EventChainArchived, map[string]any{
			"transaction_id":     tx.TransactionID,
			"payment_mandate_id": tx.PaymentMandateID,
			"cart_mandate_id":    tx.CartMandateID,
			"payer_id":           payerID,
		})
	}()
}

// GetTransaction looks up a settled transaction.
func (s *Service) GetTransaction(ctx context.Context, transactionID string) (ap2.Transaction, error) {
	return s.store.GetTransaction(ctx, transactionID)
}

// Refund moves a captured transaction to refunded. The state machine
// refuses everything else.
func (s *Service) Refund(ctx context.Context, transactionID string) (ap2.Transaction, error) {
	tx, err := s.store.UpdateTransactionStatus(ctx, transactionID, ap2.TransactionRefunded)
	if err != nil {
		return ap2.Transaction{}, err
	}
	slog.InfoContext(ctx, "transaction_refunded", "transaction_id", transactionID, "amount", tx.Amount.Value)
	return tx, nil
}

func (s *Service) resolveECDSAKey(ctx context.Context, did, kid string) (*ecdsa.PublicKey, error) {
	baseURL, err := s.peerURL(did)
	if err != nil {
		return nil, ap2.ErrDIDResolutionFailed(err)
	}
	pub, err := s.resolver.ResolveKey(ctx, baseURL, kid)
	if err != nil {
		return nil, ap2.ErrDIDResolutionFailed(err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, ap2.ErrDIDResolutionFailed(fmt.Errorf("key %s is not an ECDSA P-256 key", kid))
	}
	return ecdsaPub, nil
}

func productName(contents ap2.CartContents) string {
	// Tax and shipping lines carry refund_period 0; the first refundable
	// line is the product itself.
	for _, item := range contents.PaymentRequest.Details.DisplayItems {
		if item.RefundPeriod != 0 {
			return item.Label
		}
	}
	if len(contents.PaymentRequest.Details.DisplayItems) > 0 {
		return contents.PaymentRequest.Details.DisplayItems[0].Label
	}
	return ""
}

func intentID(intent *ap2.IntentMandate) string {
	if intent == nil {
		return ""
	}
	return intent.ID
}

func didFromKid(kid string) (string, bool) {
	idx := strings.LastIndex(kid, "#")
	if idx <= 0 {
		return "", false
	}
	if !strings.HasPrefix(kid, "did:") {
		return "", false
	}
	return kid[:idx], true
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
