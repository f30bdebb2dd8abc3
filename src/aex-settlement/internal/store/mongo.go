package store

import (
	"context"
	"errors"
	"time"

	"github.com/parlakisik/aex-ap2/aex-settlement/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements TransactionStore over MongoDB. Run wraps the
// settlement writes in a server-side multi-document transaction, so a
// downstream failure after authorize+capture rolls every row back.
type MongoStore struct {
	client       *mongo.Client
	transactions *mongo.Collection
	mandates     *mongo.Collection
	receipts     *mongo.Collection
}

// NewMongoStore creates a Mongo-backed store in dbName.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		client:       client,
		transactions: db.Collection("transactions"),
		mandates:     db.Collection("mandates"),
		receipts:     db.Collection("receipts"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.transactions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "payment_mandate_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return err
	}

	_, err = s.mandates.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "cart_mandate_id", Value: 1}},
	})
	if err != nil {
		return err
	}

	_, err = s.receipts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	return err
}

// mongoTx pins every write to the session context so it joins the
// server-side transaction regardless of the context the caller threads
// through.
type mongoTx struct {
	store *MongoStore
	sc    mongo.SessionContext
}

// context joins a write to the session's transaction when one is open.
func (t *mongoTx) context(ctx context.Context) context.Context {
	if t.sc != nil {
		return t.sc
	}
	return ctx
}

func (t *mongoTx) SaveTransaction(ctx context.Context, tx ap2.Transaction) error {
	doc := transactionDoc{
		ID:               tx.TransactionID,
		PaymentMandateID: tx.PaymentMandateID,
		CartMandateID:    tx.CartMandateID,
		Amount:           tx.Amount.Value,
		Currency:         tx.Amount.Currency,
		Status:           tx.Status,
		ReceiptURL:       tx.ReceiptURL,
		CreatedAt:        tx.CreatedAt,
	}
	_, err := t.store.transactions.InsertOne(t.context(ctx), doc)
	return err
}

func (t *mongoTx) SaveMandates(ctx context.Context, rec model.MandateRecord) error {
	_, err := t.store.mandates.InsertOne(t.context(ctx), rec)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateMandate
	}
	return err
}

func (t *mongoTx) SaveReceipt(ctx context.Context, rec model.ReceiptRecord) error {
	_, err := t.store.receipts.InsertOne(t.context(ctx), rec)
	return err
}

func (s *MongoStore) Run(ctx context.Context, fn func(TxWriter) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{store: s, sc: sc})
	})
	return err
}

type transactionDoc struct {
	ID               string    `bson:"_id"`
	PaymentMandateID string    `bson:"payment_mandate_id"`
	CartMandateID    string    `bson:"cart_mandate_id"`
	Amount           float64   `bson:"amount"`
	Currency         string    `bson:"currency"`
	Status           string    `bson:"status"`
	ReceiptURL       string    `bson:"receipt_url,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
}

func (d transactionDoc) toTransaction() ap2.Transaction {
	return ap2.Transaction{
		TransactionID:    d.ID,
		PaymentMandateID: d.PaymentMandateID,
		CartMandateID:    d.CartMandateID,
		Amount:           ap2.PaymentCurrencyAmount{Currency: d.Currency, Value: d.Amount},
		Status:           d.Status,
		ReceiptURL:       d.ReceiptURL,
		CreatedAt:        d.CreatedAt,
	}
}

func (s *MongoStore) GetTransaction(ctx context.Context, transactionID string) (ap2.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc transactionDoc
	err := s.transactions.FindOne(ctx, bson.M{"_id": transactionID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ap2.Transaction{}, ErrTransactionNotFound
		}
		return ap2.Transaction{}, err
	}
	return doc.toTransaction(), nil
}

func (s *MongoStore) GetTransactionByMandate(ctx context.Context, paymentMandateID string) (ap2.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc transactionDoc
	err := s.transactions.FindOne(ctx, bson.M{"payment_mandate_id": paymentMandateID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ap2.Transaction{}, ErrTransactionNotFound
		}
		return ap2.Transaction{}, err
	}
	return doc.toTransaction(), nil
}

func (s *MongoStore) UpdateTransactionStatus(ctx context.Context, transactionID, to string) (ap2.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	current, err := s.GetTransaction(ctx, transactionID)
	if err != nil {
		return ap2.Transaction{}, err
	}
	if !ap2.CanTransition(current.Status, to) {
		return ap2.Transaction{}, ap2.ErrInvalidTransition(current.Status, to)
	}

	// The filter repeats the from-status so a concurrent transition loses
	// cleanly instead of double-applying.
	res, err := s.transactions.UpdateOne(ctx,
		bson.M{"_id": transactionID, "status": current.Status},
		bson.M{"$set": bson.M{"status": to}},
	)
	if err != nil {
		return ap2.Transaction{}, err
	}
	if res.MatchedCount == 0 {
		return ap2.Transaction{}, ap2.ErrConcurrencyFault(errors.New("transaction status changed concurrently"))
	}
	current.Status = to
	return current, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
