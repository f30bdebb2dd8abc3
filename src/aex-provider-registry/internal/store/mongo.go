package store

import (
	"context"
	"errors"
	"time"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Mongo-backed Store.
type MongoStore struct {
	client *mongo.Client
	skus   *mongo.Collection
}

// NewMongoStore creates a Mongo-backed catalogue in dbName.
func NewMongoStore(client *mongo.Client, dbName, collection string) *MongoStore {
	return &MongoStore{
		client: client,
		skus:   client.Database(dbName).Collection(collection),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.skus.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "merchant_did", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "unit_price", Value: 1}}},
	})
	return err
}

func (s *MongoStore) UpsertSKU(ctx context.Context, sku model.SKU) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.skus.ReplaceOne(ctx, bson.M{"_id": sku.SKUID}, sku, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetSKU(ctx context.Context, skuID string) (model.SKU, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var sku model.SKU
	err := s.skus.FindOne(ctx, bson.M{"_id": skuID}).Decode(&sku)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return model.SKU{}, ErrSKUNotFound
		}
		return model.SKU{}, err
	}
	return sku, nil
}

func (s *MongoStore) ListActive(ctx context.Context) ([]model.SKU, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := s.skus.Find(ctx, bson.M{"status": model.SKUStatusActive}, options.Find().SetSort(bson.D{{Key: "unit_price", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.SKU
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, skuID string, status model.SKUStatus) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.skus.UpdateOne(ctx,
		bson.M{"_id": skuID},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrSKUNotFound
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
