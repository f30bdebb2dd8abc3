package store

import (
	"context"
	"errors"
	"time"

	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	artifacts *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	return &MongoStore{
		artifacts: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.artifacts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "transaction_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "archived_at", Value: -1}}},
	})
	return err
}

func (s *MongoStore) Save(ctx context.Context, a model.ChainArtifact) (model.ChainArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.artifacts.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		existing, getErr := s.GetByTransaction(ctx, a.TransactionID)
		if getErr != nil {
			return model.ChainArtifact{}, getErr
		}
		return *existing, nil
	}
	if err != nil {
		return model.ChainArtifact{}, err
	}
	return a, nil
}

func (s *MongoStore) GetByTransaction(ctx context.Context, transactionID string) (*model.ChainArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var a model.ChainArtifact
	err := s.artifacts.FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrArtifactNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *MongoStore) Update(ctx context.Context, a model.ChainArtifact) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.artifacts.ReplaceOne(ctx, bson.M{"transaction_id": a.TransactionID}, a)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context, status model.ArtifactStatus, limit int) ([]model.ChainArtifact, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "archived_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.artifacts.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.ChainArtifact
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
