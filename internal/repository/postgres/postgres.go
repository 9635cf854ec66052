package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.RunRepository      = (*Repository)(nil)
	_ repository.RunEventRepository = (*Repository)(nil)
)

// CreateRun inserts a run record.
func (r *Repository) CreateRun(ctx context.Context, run *domain.Run) error {
	const query = `INSERT INTO runs (id, pipeline_name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, run.ID, run.PipelineName, run.Status, run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRunByID fetches a run by identifier.
func (r *Repository) GetRunByID(ctx context.Context, runID string) (*domain.Run, error) {
	const query = `SELECT id, pipeline_name, status, created_at, updated_at FROM runs WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, runID)
	var run domain.Run
	if err := row.Scan(&run.ID, &run.PipelineName, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

// ListRuns returns runs newest first.
func (r *Repository) ListRuns(ctx context.Context, limit, offset int) ([]domain.Run, error) {
	const query = `SELECT id, pipeline_name, status, created_at, updated_at FROM runs
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]domain.Run, 0)
	for rows.Next() {
		var run domain.Run
		if err := rows.Scan(&run.ID, &run.PipelineName, &run.Status, &run.CreatedAt, &run.UpdatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// UpdateRunStatus records a run's terminal or intermediate status.
func (r *Repository) UpdateRunStatus(ctx context.Context, runID, status string, updatedAt time.Time) error {
	const query = `UPDATE runs SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, runID, status, updatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// InsertRunEvent appends an event to a run's log. The full event is stored
// as jsonb so aggregation reads back exactly what was ingested; the insert
// id becomes the authoritative ordering.
func (r *Repository) InsertRunEvent(ctx context.Context, event *domain.RunEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	const query = `INSERT INTO run_events (event_id, run_id, kind, event_time, step_key, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	row := r.pool.QueryRow(ctx, query, event.EventID, event.RunID, string(event.Kind), event.Timestamp, event.StepKey, payload, event.CreatedAt)
	return row.Scan(&event.ID)
}

// ListRunEvents returns a page of a run's events in insertion order.
func (r *Repository) ListRunEvents(ctx context.Context, runID string, limit, offset int) ([]domain.RunEvent, error) {
	const query = `SELECT id, payload FROM run_events WHERE run_id = $1
		ORDER BY id ASC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListAllRunEvents returns the complete event log in insertion order.
func (r *Repository) ListAllRunEvents(ctx context.Context, runID string) ([]domain.RunEvent, error) {
	const query = `SELECT id, payload FROM run_events WHERE run_id = $1 ORDER BY id ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.RunEvent, error) {
	events := make([]domain.RunEvent, 0)
	for rows.Next() {
		var (
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var event domain.RunEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", id, err)
		}
		event.ID = id
		events = append(events, event)
	}
	return events, rows.Err()
}
