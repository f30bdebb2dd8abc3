package store

import (
	"context"
	"errors"
	"time"

	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Mongo-backed PurchaseStore.
type MongoStore struct {
	client    *mongo.Client
	purchases *mongo.Collection
}

// NewMongoStore creates a Mongo-backed purchase store in dbName.
func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	return &MongoStore{
		client:    client,
		purchases: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.purchases.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "state", Value: 1}}},
	})
	return err
}

func (s *MongoStore) SavePurchase(ctx context.Context, p model.Purchase) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.purchases.InsertOne(ctx, p)
	return err
}

func (s *MongoStore) GetPurchase(ctx context.Context, purchaseID string) (model.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var p model.Purchase
	err := s.purchases.FindOne(ctx, bson.M{"_id": purchaseID}).Decode(&p)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, err
	}
	return p, nil
}

func (s *MongoStore) UpdatePurchase(ctx context.Context, p model.Purchase) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.purchases.ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrPurchaseNotFound
	}
	return nil
}

func (s *MongoStore) ListPurchases(ctx context.Context, userID string, limit int) ([]model.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.purchases.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Purchase
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
