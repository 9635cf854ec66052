package runs

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
)

// ErrPipelineNameRequired rejects run creation without a pipeline name.
var ErrPipelineNameRequired = errors.New("runs: pipeline name required")

// Service manages run records.
type Service struct {
	repo   repository.RunRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a run service.
func New(repo repository.RunRepository, logger *slog.Logger) Service {
	return Service{repo: repo, logger: logger, now: time.Now}
}

// Create registers a new run in the started state.
func (s Service) Create(ctx context.Context, pipelineName string) (*domain.Run, error) {
	pipelineName = strings.TrimSpace(pipelineName)
	if pipelineName == "" {
		return nil, ErrPipelineNameRequired
	}
	run := &domain.Run{
		ID:           uuid.NewString(),
		PipelineName: pipelineName,
		Status:       domain.RunStatusStarted,
		CreatedAt:    s.now().UTC(),
	}
	run.UpdatedAt = run.CreatedAt
	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	s.logger.Info("run created", "run_id", run.ID, "pipeline", run.PipelineName)
	return run, nil
}

// Get fetches one run.
func (s Service) Get(ctx context.Context, runID string) (*domain.Run, error) {
	return s.repo.GetRunByID(ctx, runID)
}

// List returns runs newest first.
func (s Service) List(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListRuns(ctx, limit, offset)
}
