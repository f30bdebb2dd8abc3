package store

import (
	"context"
	"time"

	"github.com/parlakisik/aex-ap2/aex-merchant/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore persists SKUs and reservations in MongoDB, for deployments
// that need catalogue state to survive a restart.
type MongoStore struct {
	skus         *mongo.Collection
	reservations *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	db := client.Database(dbName)
	return &MongoStore{
		skus:         db.Collection("merchant_skus"),
		reservations: db.Collection("merchant_reservations"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.skus.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "label", Value: 1}},
	}); err != nil {
		return err
	}
	_, err := s.reservations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "cart_id", Value: 1}},
	})
	return err
}

func (s *MongoStore) GetSKU(ctx context.Context, skuLabel string) (*model.SKU, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var sku model.SKU
	err := s.skus.FindOne(ctx, bson.M{"label": skuLabel}).Decode(&sku)
	if err == mongo.ErrNoDocuments {
		return nil, ErrSKUNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sku, nil
}

func (s *MongoStore) Reserve(ctx context.Context, cartID, skuLabel string, quantity int, until time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.skus.UpdateOne(ctx,
		bson.M{"label": skuLabel, "inventory": bson.M{"$gte": quantity}},
		bson.M{"$inc": bson.M{"inventory": -quantity}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := s.GetSKU(ctx, skuLabel); err != nil {
			return err
		}
		return ErrInsufficientInventory
	}

	_, err = s.reservations.InsertOne(ctx, model.Reservation{
		CartID: cartID, SKU: skuLabel, Quantity: quantity, ExpiresAt: until,
	})
	return err
}

func (s *MongoStore) Release(ctx context.Context, cartID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cur, err := s.reservations.Find(ctx, bson.M{"cart_id": cartID})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var toRelease []model.Reservation
	for cur.Next(ctx) {
		var r model.Reservation
		if err := cur.Decode(&r); err != nil {
			return err
		}
		toRelease = append(toRelease, r)
	}
	if err := cur.Err(); err != nil {
		return err
	}

	for _, r := range toRelease {
		if _, err := s.skus.UpdateOne(ctx, bson.M{"label": r.SKU}, bson.M{"$inc": bson.M{"inventory": r.Quantity}}); err != nil {
			return err
		}
	}
	_, err = s.reservations.DeleteMany(ctx, bson.M{"cart_id": cartID})
	return err
}
