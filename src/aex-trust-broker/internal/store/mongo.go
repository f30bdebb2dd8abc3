package store

import (
	"context"
	"errors"
	"time"

	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	agents *mongo.Collection
}

func NewMongoStore(client *mongo.Client, dbName, collName string) *MongoStore {
	return &MongoStore{
		agents: client.Database(dbName).Collection(collName),
	}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.agents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roles", Value: 1}},
	})
	return err
}

func (s *MongoStore) UpsertAgent(ctx context.Context, agent model.RegisteredAgent) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := s.agents.ReplaceOne(ctx, bson.M{"_id": agent.DID}, agent, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) GetAgent(ctx context.Context, did string) (*model.RegisteredAgent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var agent model.RegisteredAgent
	err := s.agents.FindOne(ctx, bson.M{"_id": did}).Decode(&agent)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrAgentNotFound
		}
		return nil, err
	}
	return &agent, nil
}

func (s *MongoStore) ListAgents(ctx context.Context, role string) ([]model.RegisteredAgent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{}
	if role != "" {
		filter["roles"] = role
	}
	cur, err := s.agents.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.RegisteredAgent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
