package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/parlakisik/aex-ap2/aex-work-publisher/internal/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Firestore-backed PurchaseStore, for deployments that
// run the Shopping Agent serverless and want its state machine durable
// without operating a database.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreStore(projectID, collection string) (*FirestoreStore, error) {
	client, err := firestore.NewClient(context.Background(), projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &FirestoreStore{
		client:     client,
		collection: collection,
	}, nil
}

func (s *FirestoreStore) SavePurchase(ctx context.Context, p model.Purchase) error {
	_, err := s.client.Collection(s.collection).Doc(p.ID).Set(ctx, p)
	if err != nil {
		return fmt.Errorf("save purchase: %w", err)
	}
	return nil
}

func (s *FirestoreStore) GetPurchase(ctx context.Context, purchaseID string) (model.Purchase, error) {
	doc, err := s.client.Collection(s.collection).Doc(purchaseID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return model.Purchase{}, ErrPurchaseNotFound
		}
		return model.Purchase{}, fmt.Errorf("get purchase: %w", err)
	}

	var p model.Purchase
	if err := doc.DataTo(&p); err != nil {
		return model.Purchase{}, fmt.Errorf("decode purchase: %w", err)
	}
	return p, nil
}

func (s *FirestoreStore) UpdatePurchase(ctx context.Context, p model.Purchase) error {
	_, err := s.client.Collection(s.collection).Doc(p.ID).Set(ctx, p)
	if err != nil {
		return fmt.Errorf("update purchase: %w", err)
	}
	return nil
}

func (s *FirestoreStore) ListPurchases(ctx context.Context, userID string, limit int) ([]model.Purchase, error) {
	q := s.client.Collection(s.collection).
		Where("user_id", "==", userID).
		OrderBy("created_at", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []model.Purchase
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list purchases: %w", err)
		}
		var p model.Purchase
		if err := doc.DataTo(&p); err != nil {
			return nil, fmt.Errorf("decode purchase: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
