package services

import (
	"context"
	"fmt"

	"lasso-go/internal/lasso"
	"lasso-go/internal/metrics"
	"lasso-go/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultStore receives completed trials. It is the host side of the handoff:
// the trial itself keeps nothing once the result is passed on.
type ResultStore interface {
	Save(ctx context.Context, participantID string, result lasso.Result) (string, error)
}

// DatabaseResultStore persists results through the repository.
type DatabaseResultStore struct {
	log *zap.Logger
}

func NewDatabaseResultStore(log *zap.Logger) *DatabaseResultStore {
	return &DatabaseResultStore{log: log}
}

// Save stores the result and returns its public ID.
func (s *DatabaseResultStore) Save(ctx context.Context, participantID string, result lasso.Result) (string, error) {
	publicID := uuid.NewString()
	summary := metrics.CalculateClusteringMetrics(participantID, publicID, &result)

	if err := repository.SaveClusteringResultTx(ctx, summary); err != nil {
		return "", fmt.Errorf("failed to save clustering result: %w", err)
	}

	s.log.Info("Clustering result saved",
		zap.String("result_id", publicID),
		zap.String("participant_id", participantID),
		zap.Int("clusters", summary.ClusterCount),
		zap.Int("tries", summary.NumberOfTries),
	)
	return publicID, nil
}
