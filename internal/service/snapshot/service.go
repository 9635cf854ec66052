package snapshot

import (
	"context"

	"log/slog"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
)

// Service serves aggregated run snapshots. Every request recomputes the
// snapshot from the run's full event log; nothing is cached between calls.
type Service struct {
	events repository.RunEventRepository
	runs   repository.RunRepository
	logger *slog.Logger
}

// New constructs a snapshot service.
func New(events repository.RunEventRepository, runs repository.RunRepository, logger *slog.Logger) Service {
	return Service{events: events, runs: runs, logger: logger}
}

// Snapshot folds the run's complete event log into a RunSnapshot. The run
// must exist; an empty log yields the documented empty snapshot.
func (s Service) Snapshot(ctx context.Context, runID string) (*domain.RunSnapshot, error) {
	if _, err := s.runs.GetRunByID(ctx, runID); err != nil {
		return nil, err
	}
	log, err := s.events.ListAllRunEvents(ctx, runID)
	if err != nil {
		return nil, err
	}
	snap, err := Aggregate(log)
	if err != nil {
		s.logger.Error("aggregation failed", "run_id", runID, "events", len(log), "error", err)
		return nil, err
	}
	return snap, nil
}
