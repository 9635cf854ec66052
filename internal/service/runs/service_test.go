package runs

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
)

type fakeRunRepo struct {
	created  []*domain.Run
	listArgs []int
}

func (f *fakeRunRepo) CreateRun(_ context.Context, run *domain.Run) error {
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRunRepo) GetRunByID(_ context.Context, runID string) (*domain.Run, error) {
	for _, run := range f.created {
		if run.ID == runID {
			return run, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRunRepo) ListRuns(_ context.Context, limit, offset int) ([]domain.Run, error) {
	f.listArgs = []int{limit, offset}
	return nil, nil
}

func (f *fakeRunRepo) UpdateRunStatus(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func testService(repo *fakeRunRepo) Service {
	svc := New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateRequiresPipelineName(t *testing.T) {
	svc := testService(&fakeRunRepo{})
	if _, err := svc.Create(context.Background(), "   "); err != ErrPipelineNameRequired {
		t.Fatalf("expected ErrPipelineNameRequired, got %v", err)
	}
}

func TestCreateAssignsIdentity(t *testing.T) {
	repo := &fakeRunRepo{}
	svc := testService(repo)

	run, err := svc.Create(context.Background(), "  daily_etl  ")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected generated run id")
	}
	if run.PipelineName != "daily_etl" {
		t.Fatalf("expected trimmed pipeline name, got %q", run.PipelineName)
	}
	if run.Status != domain.RunStatusStarted {
		t.Fatalf("expected started status, got %q", run.Status)
	}
	if !run.CreatedAt.Equal(run.UpdatedAt) {
		t.Fatalf("expected created_at == updated_at, got %v / %v", run.CreatedAt, run.UpdatedAt)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one persisted run, got %d", len(repo.created))
	}
}

func TestGetUnknownRun(t *testing.T) {
	svc := testService(&fakeRunRepo{})
	if _, err := svc.Get(context.Background(), "missing"); err != repository.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDefaultsPaging(t *testing.T) {
	repo := &fakeRunRepo{}
	svc := testService(repo)

	if _, err := svc.List(context.Background(), 0, -1); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if repo.listArgs[0] != 50 || repo.listArgs[1] != 0 {
		t.Fatalf("expected defaulted paging 50/0, got %v", repo.listArgs)
	}
}
