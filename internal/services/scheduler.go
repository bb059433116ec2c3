package services

import (
	"context"
	"time"

	"lasso-go/internal/repository"

	"go.uber.org/zap"
)

// Scheduler runs the periodic housekeeping of the server.
type Scheduler struct {
	log       *zap.Logger
	trials    *TrialService
	retention time.Duration
	interval  time.Duration
}

// NewScheduler creates a scheduler. A zero retention keeps stored results forever.
func NewScheduler(log *zap.Logger, trials *TrialService, retention time.Duration) *Scheduler {
	return &Scheduler{
		log:       log,
		trials:    trials,
		retention: retention,
		interval:  time.Hour,
	}
}

// Start runs the scheduler in a goroutine until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting housekeeping scheduler...", zap.Duration("retention", s.retention))
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runHousekeeping(ctx)
			}
		}
	}()
}

func (s *Scheduler) runHousekeeping(ctx context.Context) {
	s.log.Debug("Running housekeeping", zap.Int("open_trials", s.trials.Open()))

	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)
	deleted, err := repository.DeleteClusteringResultsBefore(ctx, cutoff)
	if err != nil {
		s.log.Error("Failed to delete expired clustering results", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.log.Info("Deleted expired clustering results", zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	}
}
