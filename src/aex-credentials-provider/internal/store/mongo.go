package store

import (
	"context"
	"time"

	"github.com/parlakisik/aex-ap2/aex-credentials-provider/internal/model"
	"github.com/parlakisik/aex-ap2/internal/ap2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a CredentialStore backed by three collections:
// credential_passkeys, credential_payment_methods, credential_receipts.
type MongoStore struct {
	passkeys       *mongo.Collection
	paymentMethods *mongo.Collection
	receipts       *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		passkeys:       db.Collection("credential_passkeys"),
		paymentMethods: db.Collection("credential_payment_methods"),
		receipts:       db.Collection("credential_receipts"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.passkeys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(false),
	}); err != nil {
		return err
	}
	if _, err := s.paymentMethods.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "id", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.receipts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "payer_id", Value: 1}, {Key: "transaction_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) SavePasskey(ctx context.Context, cred ap2.PasskeyCredential) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.passkeys.ReplaceOne(ctx, bson.M{"credential_id": cred.CredentialID}, cred, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetPasskeyByUser(ctx context.Context, userID string) (*ap2.PasskeyCredential, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var cred ap2.PasskeyCredential
	err := s.passkeys.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cred)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (s *MongoStore) UpdateSignCount(ctx context.Context, credentialID string, newCount uint32) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := s.passkeys.UpdateOne(ctx, bson.M{"credential_id": credentialID}, bson.M{"$set": bson.M{"sign_count": newCount}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) ListPaymentMethods(ctx context.Context, userID string) ([]ap2.PaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cur, err := s.paymentMethods.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []ap2.PaymentMethod
	for cur.Next(ctx) {
		var doc struct {
			ap2.PaymentMethod `bson:",inline"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.PaymentMethod)
	}
	return out, cur.Err()
}

func (s *MongoStore) GetPaymentMethod(ctx context.Context, userID, methodID string) (*ap2.PaymentMethod, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var doc struct {
		ap2.PaymentMethod `bson:",inline"`
	}
	err := s.paymentMethods.FindOne(ctx, bson.M{"user_id": userID, "id": methodID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc.PaymentMethod, nil
}

func (s *MongoStore) AppendReceipt(ctx context.Context, payerID string, rec model.ReceiptRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rec.PayerID = payerID
	_, err := s.receipts.UpdateOne(ctx,
		bson.M{"payer_id": payerID, "transaction_id": rec.TransactionID},
		bson.M{"$setOnInsert": rec},
		options.Update().SetUpsert(true),
	)
	return err
}
