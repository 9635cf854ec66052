package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/runwatch/internal/domain"
	"github.com/splax/runwatch/internal/repository"
	"github.com/splax/runwatch/internal/ws"
)

// Validation errors surfaced to ingest callers.
var (
	ErrRunIDRequired = errors.New("events: run id required")
	ErrKindRequired  = errors.New("events: event kind required")
)

// Service handles run event persistence and streaming.
type Service struct {
	events repository.RunEventRepository
	runs   repository.RunRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an event service.
func New(events repository.RunEventRepository, runs repository.RunRepository, hub *ws.Hub, logger *slog.Logger) Service {
	return Service{events: events, runs: runs, hub: hub, logger: logger, now: time.Now}
}

// Append stores an event, updates the run's status on terminal pipeline
// events, and broadcasts the stored event to stream subscribers.
func (s Service) Append(ctx context.Context, event domain.RunEvent) (*domain.RunEvent, error) {
	event.RunID = strings.TrimSpace(event.RunID)
	if event.RunID == "" {
		return nil, ErrRunIDRequired
	}
	if event.Kind == "" {
		return nil, ErrKindRequired
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	event.CreatedAt = s.now().UTC()

	if err := s.events.InsertRunEvent(ctx, &event); err != nil {
		return nil, err
	}
	s.recordTerminalStatus(ctx, event)
	s.broadcast(event)
	return &event, nil
}

// List returns a page of a run's events in insertion order.
func (s Service) List(ctx context.Context, runID string, limit, offset int) ([]domain.RunEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.events.ListRunEvents(ctx, runID, limit, offset)
}

// Hub returns the stream hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) recordTerminalStatus(ctx context.Context, event domain.RunEvent) {
	var status string
	switch event.Kind {
	case domain.EventPipelineSuccess:
		status = domain.RunStatusSucceeded
	case domain.EventPipelineFailure, domain.EventPipelineInitFailure:
		status = domain.RunStatusFailed
	default:
		return
	}
	if err := s.runs.UpdateRunStatus(ctx, event.RunID, status, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update run status", "run_id", event.RunID, "status", status, "error", err)
	}
}

func (s Service) broadcast(event domain.RunEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", "error", err)
		return
	}
	s.hub.Broadcast(event.RunID, payload)
}
