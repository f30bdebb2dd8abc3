// Package payment is the Payment Processor's acquirer boundary: the last
// hop that actually moves funds once the mandate chain has been validated.
package payment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// AuthorizationRequest carries what an acquirer needs to place a hold.
type AuthorizationRequest struct {
	PaymentMandateID string
	PayerID          string
	MerchantName     string
	Amount           ap2.PaymentCurrencyAmount
	CredentialType   string // from the credential provider's verify response
	Last4            string
}

// CaptureResult is the acquirer's settlement outcome.
type CaptureResult struct {
	TransactionID string
	AuthorizedAt  time.Time
	CapturedAt    time.Time
}

// Acquirer authorizes and captures a payment. This demo core performs both
// in one call; a production integration splits them across the acquirer's
// auth and capture endpoints with the same request shape.
type Acquirer interface {
	AuthorizeCapture(ctx context.Context, req AuthorizationRequest) (*CaptureResult, error)
}

// SimulatedAcquirer approves everything below its per-transaction limit.
// It stands in for the settlement network, which is out of scope for the
// protocol core.
type SimulatedAcquirer struct {
	// MaxAmount declines transactions above this value in major units.
	// Zero means no limit.
	MaxAmount float64
}

// NewSimulatedAcquirer creates an acquirer with no per-transaction limit.
func NewSimulatedAcquirer() *SimulatedAcquirer {
	return &SimulatedAcquirer{}
}

func (a *SimulatedAcquirer) AuthorizeCapture(ctx context.Context, req AuthorizationRequest) (*CaptureResult, error) {
	if req.Amount.Value <= 0 {
		return nil, ap2.ErrPaymentDeclined("non-positive amount")
	}
	if a.MaxAmount > 0 && req.Amount.Value > a.MaxAmount {
		return nil, ap2.ErrPaymentDeclined(fmt.Sprintf("amount %.2f exceeds acquirer limit", req.Amount.Value))
	}

	now := time.Now().UTC()
	result := &CaptureResult{
		TransactionID: generateTransactionID(),
		AuthorizedAt:  now,
		CapturedAt:    now,
	}

	slog.InfoContext(ctx, "funds_captured",
		"transaction_id", result.TransactionID,
		"payment_mandate_id", req.PaymentMandateID,
		"amount", req.Amount.Value,
		"currency", req.Amount.Currency,
		"merchant", req.MerchantName,
	)
	return result, nil
}

func generateTransactionID() string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return "txn_" + hex.EncodeToString(b[:])
}
