package repository

import (
	"context"
	"time"

	"github.com/splax/runwatch/internal/domain"
)

// RunRepository persists run records.
type RunRepository interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	GetRunByID(ctx context.Context, runID string) (*domain.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]domain.Run, error)
	UpdateRunStatus(ctx context.Context, runID, status string, updatedAt time.Time) error
}

// RunEventRepository stores the append-only event log per run. Insertion
// order is the authoritative processing order for aggregation.
type RunEventRepository interface {
	InsertRunEvent(ctx context.Context, event *domain.RunEvent) error
	ListRunEvents(ctx context.Context, runID string, limit, offset int) ([]domain.RunEvent, error)
	ListAllRunEvents(ctx context.Context, runID string) ([]domain.RunEvent, error)
}
