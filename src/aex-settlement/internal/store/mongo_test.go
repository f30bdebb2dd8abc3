package store

import (
	"context"
	"testing"
	"time"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"github.com/parlakisik/aex-ap2/internal/testutil"
)

// These tests need a local MongoDB (docker-compose) and skip otherwise.

func TestMongoStore_GetAndUpdateStatus(t *testing.T) {
	container := testutil.NewMongoTestContainer(t)
	if container == nil {
		return
	}
	defer container.Cleanup(t)

	st := NewMongoStore(container.Client, container.DBName)
	ctx := context.Background()
	testutil.AssertNoError(t, st.EnsureIndexes(ctx))

	tx := ap2.Transaction{
		TransactionID:    "txn_mongotest01",
		PaymentMandateID: "pm_mongotest01",
		CartMandateID:    "cart_mongotest01",
		Amount:           ap2.PaymentCurrencyAmount{Currency: "USD", Value: 74.80},
		Status:           ap2.TransactionCaptured,
		ReceiptURL:       "http://processor.test/receipts/txn_mongotest01.pdf",
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}

	// Direct inserts, outside a server-side transaction: standalone test
	// Mongo instances don't run replica sets.
	writer := &mongoTx{store: st}
	testutil.AssertNoError(t, writer.SaveTransaction(ctx, tx))
	testutil.AssertNoError(t, writer.SaveMandates(ctx, model.MandateRecord{
		PaymentMandateID: tx.PaymentMandateID,
		CartMandateID:    tx.CartMandateID,
		ReceivedAt:       tx.CreatedAt,
	}))

	got, err := st.GetTransaction(ctx, tx.TransactionID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, tx.Status, got.Status)
	testutil.AssertEqual(t, tx.PaymentMandateID, got.PaymentMandateID)

	byMandate, err := st.GetTransactionByMandate(ctx, tx.PaymentMandateID)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, tx.TransactionID, byMandate.TransactionID)

	refunded, err := st.UpdateTransactionStatus(ctx, tx.TransactionID, ap2.TransactionRefunded)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, ap2.TransactionRefunded, refunded.Status)

	// refunded is terminal.
	_, err = st.UpdateTransactionStatus(ctx, tx.TransactionID, ap2.TransactionCaptured)
	testutil.AssertError(t, err)
}

func TestMongoStore_DuplicateMandateRefused(t *testing.T) {
	container := testutil.NewMongoTestContainer(t)
	if container == nil {
		return
	}
	defer container.Cleanup(t)

	st := NewMongoStore(container.Client, container.DBName)
	ctx := context.Background()

	rec := model.MandateRecord{
		PaymentMandateID: "pm_dup01",
		CartMandateID:    "cart_dup01",
		ReceivedAt:       time.Now().UTC(),
	}
	writer := &mongoTx{store: st}
	testutil.AssertNoError(t, writer.SaveMandates(ctx, rec))

	err := writer.SaveMandates(ctx, rec)
	if err != ErrDuplicateMandate {
		t.Fatalf("duplicate mandate insert returned %v, want ErrDuplicateMandate", err)
	}
}
