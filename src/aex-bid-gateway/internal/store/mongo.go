package store

import (
	"context"
	"time"

	"github.com/parlakisik/aex-ap2/aex-bid-gateway/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore is a Mongo-backed AuditStore.
type MongoStore struct {
	client  *mongo.Client
	entries *mongo.Collection
}

// NewMongoStore creates a Mongo-backed audit store in dbName.
func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		client:  client,
		entries: client.Database(dbName).Collection("audit_entries"),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.entries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	return err
}

func (s *MongoStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.entries.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		// Same message relayed twice; the first entry stands.
		return nil
	}
	return err
}

func (s *MongoStore) ListAudit(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.entries.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.AuditEntry
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
