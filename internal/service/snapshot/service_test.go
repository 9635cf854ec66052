package snapshot

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
)

type fakeEventStore struct {
	runs   map[string]*domain.Run
	events map[string][]domain.RunEvent
}

func (f *fakeEventStore) InsertRunEvent(_ context.Context, event *domain.RunEvent) error {
	f.events[event.RunID] = append(f.events[event.RunID], *event)
	return nil
}

func (f *fakeEventStore) ListRunEvents(_ context.Context, runID string, limit, offset int) ([]domain.RunEvent, error) {
	all := f.events[runID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeEventStore) ListAllRunEvents(_ context.Context, runID string) ([]domain.RunEvent, error) {
	return f.events[runID], nil
}

func (f *fakeEventStore) CreateRun(_ context.Context, run *domain.Run) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeEventStore) GetRunByID(_ context.Context, runID string) (*domain.Run, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return run, nil
}

func (f *fakeEventStore) ListRuns(_ context.Context, _, _ int) ([]domain.Run, error) { return nil, nil }

func (f *fakeEventStore) UpdateRunStatus(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		runs:   make(map[string]*domain.Run),
		events: make(map[string][]domain.RunEvent),
	}
}

func testSnapshotService(store *fakeEventStore) Service {
	return New(store, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSnapshotUnknownRun(t *testing.T) {
	svc := testSnapshotService(newFakeEventStore())
	if _, err := svc.Snapshot(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSnapshotEmptyLog(t *testing.T) {
	store := newFakeEventStore()
	store.runs["r1"] = &domain.Run{ID: "r1", PipelineName: "etl"}
	svc := testSnapshotService(store)

	snap, err := svc.Snapshot(context.Background(), "r1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.FirstLogAt != 0 || len(snap.Steps) != 0 || len(snap.GlobalMarkers) != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestSnapshotFoldsStoredEvents(t *testing.T) {
	store := newFakeEventStore()
	store.runs["r1"] = &domain.Run{ID: "r1", PipelineName: "etl"}
	store.events["r1"] = []domain.RunEvent{
		{RunID: "r1", Kind: domain.EventPipelineStart, Timestamp: "10"},
		{RunID: "r1", Kind: domain.EventStepStart, StepKey: "load", Timestamp: "20"},
		{RunID: "r1", Kind: domain.EventStepSuccess, StepKey: "load", Timestamp: "80"},
		{RunID: "r1", Kind: domain.EventPipelineSuccess, Timestamp: "90"},
	}
	svc := testSnapshotService(store)

	snap, err := svc.Snapshot(context.Background(), "r1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.StartedPipelineAt == nil || *snap.StartedPipelineAt != 10 {
		t.Fatalf("unexpected startedPipelineAt: %v", snap.StartedPipelineAt)
	}
	if snap.ExitedAt == nil || *snap.ExitedAt != 90 {
		t.Fatalf("unexpected exitedAt: %v", snap.ExitedAt)
	}
	step := snap.Steps["load"]
	if step == nil || step.State != domain.StepSucceeded {
		t.Fatalf("unexpected step: %+v", step)
	}
}

func TestSnapshotSurfacesAggregationErrors(t *testing.T) {
	store := newFakeEventStore()
	store.runs["r1"] = &domain.Run{ID: "r1", PipelineName: "etl"}
	store.events["r1"] = []domain.RunEvent{
		{RunID: "r1", Kind: domain.EventLogMessage, Timestamp: "garbage"},
	}
	svc := testSnapshotService(store)

	if _, err := svc.Snapshot(context.Background(), "r1"); !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}
}
