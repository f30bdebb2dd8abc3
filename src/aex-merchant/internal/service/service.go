// Package service implements the Merchant's cart-signing procedure: validate
// a cart's contents, reserve inventory for the line items, and sign the
// merchant_authorization over its canonical hash.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parlakisik/aex-ap2/aex-merchant/internal/store"
	"github.com/parlakisik/aex-ap2/internal/agentidentity"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// Service signs carts on behalf of one merchant identity.
type Service struct {
	identity     *agentidentity.Identity
	processorDID string
	store        store.MerchantStore
}

func New(identity *agentidentity.Identity, processorDID string, st store.MerchantStore) *Service {
	return &Service{identity: identity, processorDID: processorDID, store: st}
}

// SignCartRequest is the POST /sign/cart request body.
type SignCartRequest struct {
	CartMandate ap2.CartMandate `json:"cart_mandate"`
}

// SignCartResponse is the POST /sign/cart response body.
type SignCartResponse struct {
	SignedCartMandate     ap2.CartMandate `json:"signed_cart_mandate"`
	MerchantAuthorization string          `json:"merchant_authorization"`
}

// SignCart validates contents, reserves inventory, and signs
// merchant_authorization over the cart's canonical hash. On any validation
// or inventory failure, reservations already made for this cart are
// released before returning.
func (s *Service) SignCart(ctx context.Context, contents ap2.CartContents) (*ap2.CartMandate, error) {
	if err := s.validate(contents); err != nil {
		return nil, err
	}

	for _, item := range contents.PaymentRequest.Details.DisplayItems {
		err := s.store.Reserve(ctx, contents.ID, item.Label, 1, contents.CartExpiry)
		if err == nil {
			continue
		}
		if err == store.ErrSKUNotFound && item.RefundPeriod == 0 {
			// Tax and shipping adjustment lines are not catalogue entries;
			// nothing to reserve.
			continue
		}
		_ = s.store.Release(ctx, contents.ID)
		if err == store.ErrInsufficientInventory {
			return nil, ap2.ErrInsufficientInventory(item.Label)
		}
		if err == store.ErrSKUNotFound {
			return nil, ap2.ErrInvalidCart(fmt.Errorf("unknown SKU %q", item.Label))
		}
		return nil, fmt.Errorf("reserve inventory: %w", err)
	}

	hash, err := ap2.CartHash(contents)
	if err != nil {
		_ = s.store.Release(ctx, contents.ID)
		return nil, fmt.Errorf("hash cart contents: %w", err)
	}

	auth, err := ap2.BuildMerchantAuthorization(s.identity.KeyPair.ECDSAKey, s.identity.DID, s.processorDID, contents.ID, hash, 10*time.Minute)
	if err != nil {
		_ = s.store.Release(ctx, contents.ID)
		return nil, fmt.Errorf("build merchant_authorization: %w", err)
	}

	slog.InfoContext(ctx, "cart_signed", "cart_id", contents.ID, "merchant", contents.MerchantName, "total", contents.PaymentRequest.Details.Total.Amount.Value)

	return &ap2.CartMandate{
		Contents:              contents,
		MerchantAuthorization: auth,
		Timestamp:             time.Now(),
	}, nil
}

// validate checks the structural invariants a cart must satisfy before it
// may be signed: positive consistent amounts, a future expiry, and a
// plausible shipping address.
func (s *Service) validate(c ap2.CartContents) error {
	if c.ID == "" {
		return ap2.ErrInvalidCart(fmt.Errorf("missing cart id"))
	}
	if !c.CartExpiry.After(time.Now()) {
		return ap2.ErrInvalidCart(fmt.Errorf("cart_expiry is not in the future"))
	}
	if len(c.PaymentRequest.Details.DisplayItems) == 0 {
		return ap2.ErrInvalidCart(fmt.Errorf("cart has no line items"))
	}

	currency := c.PaymentRequest.Details.Total.Amount.Currency
	if currency == "" {
		return ap2.ErrInvalidCart(fmt.Errorf("missing total currency"))
	}
	var sum float64
	for _, item := range c.PaymentRequest.Details.DisplayItems {
		if item.Amount.Value < 0 {
			return ap2.ErrInvalidCart(fmt.Errorf("negative line item amount for %q", item.Label))
		}
		if item.Amount.Currency != currency {
			return ap2.ErrInvalidCart(fmt.Errorf("currency mismatch: %q vs cart total %q", item.Amount.Currency, currency))
		}
		sum += item.Amount.Value
	}
	if c.PaymentRequest.Details.Total.Amount.Value <= 0 {
		return ap2.ErrInvalidCart(fmt.Errorf("total must be positive"))
	}

	if addr := c.PaymentRequest.ShippingAddress; addr != nil {
		if addr.Country == "" {
			return ap2.ErrInvalidCart(fmt.Errorf("shipping address missing country"))
		}
	}

	return nil
}
