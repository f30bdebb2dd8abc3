package store

import (
	"context"

	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/model"
)

type EvaluationStore interface {
	Save(ctx context.Context, ev model.RiskEvaluation) error
	GetLatest(ctx context.Context, paymentMandateID string) (*model.RiskEvaluation, error)
}
