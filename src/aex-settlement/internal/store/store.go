// Package store persists the Payment Processor's transactions, mandate
// artefacts, and receipts. Settlement writes go through Run, a single unit
// of work: either every row from one capture lands, or none do.
package store

import (
	"context"
	"errors"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
)

// ErrTransactionNotFound is returned when no transaction matches.
var ErrTransactionNotFound = errors.New("transaction not found")

// ErrDuplicateMandate is returned when a payment mandate id has already
// been settled.
var ErrDuplicateMandate = errors.New("payment mandate already settled")

// TxWriter receives the writes of one settlement unit of work. None of
// them is visible to readers until Run's callback returns nil.
type TxWriter interface {
	SaveTransaction(ctx context.Context, tx ap2.Transaction) error
	SaveMandates(ctx context.Context, rec model.MandateRecord) error
	SaveReceipt(ctx context.Context, rec model.ReceiptRecord) error
}

// TransactionStore is the Payment Processor's persistence backend.
type TransactionStore interface {
	// Run executes fn as one unit of work. If fn returns an error, every
	// write made through its TxWriter is rolled back.
	Run(ctx context.Context, fn func(TxWriter) error) error

	GetTransaction(ctx context.Context, transactionID string) (ap2.Transaction, error)
	GetTransactionByMandate(ctx context.Context, paymentMandateID string) (ap2.Transaction, error)

	// UpdateTransactionStatus advances the transaction state machine,
	// refusing any transition ap2.CanTransition does not allow.
	UpdateTransactionStatus(ctx context.Context, transactionID, to string) (ap2.Transaction, error)

	Close() error
}
