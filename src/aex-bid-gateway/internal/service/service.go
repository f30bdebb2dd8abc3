// Package service implements the Merchant Agent: the A2A hub that turns an
// IntentMandate into signed cart candidates and relays PaymentMandates to
// the Payment Processor. It holds no signing authority over any mandate it
// handles — the Merchant signs carts, the user authorizes payments, and
// this agent only orchestrates and audits.
package service

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/model"
	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/store"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/didresolver"
	"github.com/parlakisik/aex-ap2/internal/envelope"
)

// ProductSource searches purchasable items for an intent's constraints.
type ProductSource interface {
	Search(ctx context.Context, constraints model.SearchConstraints) ([]model.Item, error)
}

// CartSigner obtains a merchant_authorization over proposed cart contents.
type CartSigner interface {
	SignCart(ctx context.Context, contents ap2.CartContents) (*ap2.CartMandate, error)
}

// PaymentRelay forwards an envelope payload to another agent; satisfied by
// *envelope.Handler.
type PaymentRelay interface {
	Send(ctx context.Context, recipientDID, recipientURL, dataType string, payload interface{}) (*envelope.Envelope, error)
}

// PeerURLFunc maps a peer DID to the base URL serving its DID document.
type PeerURLFunc func(did string) (string, error)

// Service is the Merchant Agent's A2A hub logic.
type Service struct {
	selfDID  string
	products ProductSource
	signer   CartSigner
	relay    PaymentRelay
	resolver *didresolver.Resolver
	peerURL  PeerURLFunc
	audit    store.AuditStore

	processorDID string
	processorURL string

	taxRate     float64
	shippingFee float64
}

// Config bundles the Service's dependencies.
type Config struct {
	SelfDID      string
	Products     ProductSource
	Signer       CartSigner
	Relay        PaymentRelay
	Resolver     *didresolver.Resolver
	PeerURL      PeerURLFunc
	Audit        store.AuditStore
	ProcessorDID string
	ProcessorURL string
	TaxRate      float64
	ShippingFee  float64
}

func New(cfg Config) *Service {
	return &Service{
		selfDID:      cfg.SelfDID,
		products:     cfg.Products,
		signer:       cfg.Signer,
		relay:        cfg.Relay,
		resolver:     cfg.Resolver,
		peerURL:      cfg.PeerURL,
		audit:        cfg.Audit,
		processorDID: cfg.ProcessorDID,
		processorURL: cfg.ProcessorURL,
		taxRate:      cfg.TaxRate,
		shippingFee:  cfg.ShippingFee,
	}
}

// candidateNames label the price spread of the cart candidates.
var candidateNames = []string{"budget", "standard", "premium"}

// HandleIntentMandate is the ap2.mandates.IntentMandate data handler:
// search products within the intent's constraints, build up to three cart
// candidates across the price range, have the Merchant sign each, and
// return them as an A2A artifact collection.
func (s *Service) HandleIntentMandate(ctx context.Context, env *envelope.Envelope) (string, interface{}, *envelope.ArtifactResponse, error) {
	var intent ap2.IntentMandate
	if err := json.Unmarshal(env.DataPart.Payload, &intent); err != nil {
		return "", nil, nil, ap2.ErrSchemaInvalid(err)
	}
	s.recordAudit(ctx, env, "inbound", fmt.Sprintf("intent %s: %s", intent.ID, intent.NaturalLanguageDescription))

	if time.Now().After(intent.IntentExpiry) {
		return "", nil, nil, ap2.ErrIntentExpired()
	}

	constraints := model.SearchConstraints{
		Query:                 intent.NaturalLanguageDescription,
		SKUs:                  intent.SKUs,
		Merchants:             intent.Merchants,
		RequiresRefundability: intent.RequiresRefundability,
		Limit:                 10,
	}
	if intent.MaxAmount != nil {
		constraints.MaxPrice = intent.MaxAmount.Value
		constraints.Currency = intent.MaxAmount.Currency
	}

	items, err := s.products.Search(ctx, constraints)
	if err != nil {
		return "", nil, nil, ap2.ErrUpstreamUnavailable(err)
	}
	if len(items) == 0 {
		return "", nil, nil, ap2.ErrMandateNotFound("no products matching the intent")
	}

	var artifacts []model.CartArtifact
	for i, item := range pickSpread(items) {
		contents := s.buildCartContents(item, intent)
		signed, err := s.signer.SignCart(ctx, contents)
		if err != nil {
			slog.WarnContext(ctx, "cart_signing_failed", "cart_id", contents.ID, "sku", item.SKU, "error", err)
			continue
		}
		if err := s.reverifyMerchantAuthorization(ctx, signed); err != nil {
			// Defence-in-depth: a cart the processor would reject anyway is
			// not worth offering to the user.
			slog.WarnContext(ctx, "merchant_authorization_reverify_failed", "cart_id", contents.ID, "error", err)
			continue
		}

		name := "cart"
		if i < len(candidateNames) {
			name = candidateNames[i]
		}
		artifacts = append(artifacts, model.CartArtifact{
			ArtifactID: "artifact_" + uuid.NewString()[:8],
			Name:       fmt.Sprintf("%s: %s", name, item.Label),
			Parts: []model.ArtifactPart{
				{Kind: "data", DataKey: ap2.CartMandateDataKey, Data: *signed},
			},
		})
	}
	if len(artifacts) == 0 {
		return "", nil, nil, ap2.ErrUpstreamUnavailable(fmt.Errorf("no cart candidate could be signed"))
	}

	s.recordOutbound(ctx, env.Header.Sender, envelope.TypeCartCandidates, fmt.Sprintf("%d cart candidates for intent %s", len(artifacts), intent.ID))

	return "", nil, &envelope.ArtifactResponse{
		IsArtifact:   true,
		ArtifactName: "cart_candidates",
		DataTypeKey:  envelope.TypeCartCandidates,
		ArtifactData: artifacts,
	}, nil
}

// HandlePaymentMandate is the ap2.mandates.PaymentMandate data handler:
// re-sign the payload as this agent and forward it to the Payment
// Processor, returning the PaymentResult unchanged.
func (s *Service) HandlePaymentMandate(ctx context.Context, env *envelope.Envelope) (string, interface{}, *envelope.ArtifactResponse, error) {
	s.recordAudit(ctx, env, "inbound", "payment mandate relay request")

	respEnv, err := s.relay.Send(ctx, s.processorDID, s.processorURL, envelope.TypePaymentMandate, json.RawMessage(env.DataPart.Payload))
	if err != nil {
		return "", nil, nil, ap2.ErrUpstreamUnavailable(err)
	}
	if respEnv.DataPart.Type != envelope.TypePaymentResult {
		return "", nil, nil, fmt.Errorf("processor returned unexpected data type %q", respEnv.DataPart.Type)
	}

	s.recordOutbound(ctx, s.processorDID, envelope.TypePaymentMandate, "relayed payment mandate to processor")

	return envelope.TypePaymentResult, json.RawMessage(respEnv.DataPart.Payload), nil, nil
}

// buildCartContents prices one item into W3C PaymentRequest cart contents:
// the product line plus tax and shipping lines (refund_period 0).
func (s *Service) buildCartContents(item model.Item, intent ap2.IntentMandate) ap2.CartContents {
	tax := round2(item.UnitPrice * s.taxRate)
	total := round2(item.UnitPrice + tax + s.shippingFee)

	refundPeriod := 0
	if item.Refundable {
		refundPeriod = 30 * 24 * 3600
	}

	orderID := uuid.NewString()[:8]
	return ap2.CartContents{
		ID:                           "cart_" + orderID,
		UserCartConfirmationRequired: intent.UserCartConfirmationRequired,
		PaymentRequest: ap2.PaymentRequest{
			MethodData: []ap2.PaymentMethodData{
				{SupportedMethods: "CARD"},
			},
			Details: ap2.PaymentDetailsInit{
				ID: "order_" + orderID,
				DisplayItems: []ap2.PaymentItem{
					{Label: item.Label, Amount: ap2.PaymentCurrencyAmount{Currency: item.Currency, Value: item.UnitPrice}, RefundPeriod: refundPeriod},
					{Label: "Tax", Amount: ap2.PaymentCurrencyAmount{Currency: item.Currency, Value: tax}},
					{Label: "Shipping", Amount: ap2.PaymentCurrencyAmount{Currency: item.Currency, Value: s.shippingFee}},
				},
				Total: ap2.PaymentItem{Label: "Total", Amount: ap2.PaymentCurrencyAmount{Currency: item.Currency, Value: total}},
			},
			Options: &ap2.PaymentOptions{RequestShipping: true},
		},
		CartExpiry:   time.Now().Add(15 * time.Minute),
		MerchantName: item.MerchantDID,
	}
}

// reverifyMerchantAuthorization re-checks the Merchant's JWS before the
// candidate leaves this agent. The Payment Processor's verification remains
// canonical; this only catches a broken signer early.
func (s *Service) reverifyMerchantAuthorization(ctx context.Context, cart *ap2.CartMandate) error {
	kid, err := ap2.MerchantAuthKid(cart.MerchantAuthorization)
	if err != nil {
		return err
	}
	merchantDID := kid
	if idx := strings.LastIndex(kid, "#"); idx > 0 {
		merchantDID = kid[:idx]
	}
	baseURL, err := s.peerURL(merchantDID)
	if err != nil {
		return err
	}
	pub, err := s.resolver.ResolveKey(ctx, baseURL, kid)
	if err != nil {
		return err
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("merchant key %s is not ECDSA", kid)
	}
	hash, err := ap2.CartHash(cart.Contents)
	if err != nil {
		return err
	}
	_, err = ap2.VerifyMerchantAuthorization(cart.MerchantAuthorization, ecdsaPub, hash)
	return err
}

// pickSpread selects up to three items across the price range: cheapest,
// median, and most expensive. The registry returns items cheapest first.
func pickSpread(items []model.Item) []model.Item {
	if len(items) <= 3 {
		return items
	}
	return []model.Item{items[0], items[len(items)/2], items[len(items)-1]}
}

func (s *Service) recordAudit(ctx context.Context, env *envelope.Envelope, direction, summary string) {
	entry := model.AuditEntry{
		MessageID: env.Header.MessageID,
		Direction: direction,
		Sender:    env.Header.Sender,
		Recipient: env.Header.Recipient,
		Timestamp: env.Header.Timestamp,
		Type:      env.DataPart.Type,
		Summary:   summary,
	}
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		slog.WarnContext(ctx, "audit_append_failed", "message_id", entry.MessageID, "error", err)
	}
}

func (s *Service) recordOutbound(ctx context.Context, recipient, dataType, summary string) {
	entry := model.AuditEntry{
		MessageID: uuid.NewString(),
		Direction: "outbound",
		Sender:    s.selfDID,
		Recipient: recipient,
		Timestamp: time.Now().UTC(),
		Type:      dataType,
		Summary:   summary,
	}
	if err := s.audit.AppendAudit(ctx, entry); err != nil {
		slog.WarnContext(ctx, "audit_append_failed", "message_id", entry.MessageID, "error", err)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
