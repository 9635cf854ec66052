package snapshot

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/splax/runwatch/internal/domain"
)

// ErrBadTimestamp indicates an event carried a non-numeric timestamp. The
// whole aggregation fails rather than defaulting to zero, which would corrupt
// min/max tracking.
var ErrBadTimestamp = errors.New("snapshot: malformed event timestamp")

// Aggregate folds an ordered batch of run events into a RunSnapshot. The
// fold is pure and recomputes from scratch on every call: supplying a growing
// prefix of the same log yields monotonically widening snapshots. Events are
// processed in slice order, never re-sorted by timestamp; timestamps only
// drive the min/max fields and transition ordering. On any error no partial
// snapshot is returned.
func Aggregate(events []domain.RunEvent) (*domain.RunSnapshot, error) {
	snap := domain.NewRunSnapshot()
	for i := range events {
		if err := apply(snap, &events[i]); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

func apply(snap *domain.RunSnapshot, ev *domain.RunEvent) error {
	ts, err := strconv.ParseInt(ev.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q on %s event", ErrBadTimestamp, ev.Timestamp, ev.Kind)
	}

	// Zero FirstLogAt means no event has been seen yet.
	if snap.FirstLogAt == 0 || ts < snap.FirstLogAt {
		snap.FirstLogAt = ts
	}
	if ts > snap.MostRecentLogAt {
		snap.MostRecentLogAt = ts
	}

	switch ev.Kind {
	case domain.EventPipelineStart:
		snap.StartedPipelineAt = ptr(ts)
	case domain.EventPipelineInitFailure:
		snap.InitFailed = true
		snap.ExitedAt = ptr(ts)
	case domain.EventPipelineSuccess, domain.EventPipelineFailure:
		snap.ExitedAt = ptr(ts)
	case domain.EventProcessStart:
		snap.StartingProcessAt = ptr(ts)
	case domain.EventProcessStarted:
		snap.StartedProcessAt = ptr(ts)
		if ev.ProcessID != nil {
			pid := *ev.ProcessID
			snap.ProcessID = &pid
		}
	}

	if ev.StepKey == "" {
		// Events expected to reference a step but arriving without one fall
		// through here; only engine markers apply at global scope.
		if ev.Kind == domain.EventEngine {
			snap.GlobalMarkers = applyMarkers(snap.GlobalMarkers, ev, ts)
		}
		return nil
	}

	step, ok := snap.Steps[ev.StepKey]
	if !ok {
		step = &domain.StepState{
			State:       domain.StepPreparing,
			Transitions: []domain.Transition{{State: domain.StepPreparing, Time: ts}},
		}
		snap.Steps[ev.StepKey] = step
	}

	switch ev.Kind {
	case domain.EventStepStart:
		recordTransition(step, domain.StepRunning, ts)
		step.Start = ptr(ts)
	case domain.EventStepSuccess:
		recordTransition(step, domain.StepSucceeded, ts)
		step.End = laterOf(step.End, ts)
	case domain.EventStepSkipped:
		recordTransition(step, domain.StepSkipped, ts)
	case domain.EventStepFailure:
		recordTransition(step, domain.StepFailed, ts)
		step.End = laterOf(step.End, ts)
	case domain.EventStepUpForRetry:
		recordTransition(step, domain.StepPreparing, ts)
	case domain.EventStepRestart:
		recordTransition(step, domain.StepRunning, ts)
	case domain.EventStepMaterialization:
		if ev.Materialization != nil {
			display, err := materializationDisplay(*ev.Materialization)
			if err != nil {
				return err
			}
			step.Materializations = append(step.Materializations, display)
		}
	case domain.EventStepExpectation:
		if ev.Expectation != nil {
			result, err := expectationDisplay(*ev.Expectation)
			if err != nil {
				return err
			}
			step.ExpectationResults = append(step.ExpectationResults, result)
		}
	case domain.EventEngine:
		step.Markers = applyMarkers(step.Markers, ev, ts)
	}
	return nil
}

// recordTransition appends the observed transition, restores ascending time
// order, and makes the applied state the step's current state even when the
// re-sort places it before the chronological tail.
func recordTransition(step *domain.StepState, state domain.StepPhase, ts int64) {
	step.Transitions = append(step.Transitions, domain.Transition{State: state, Time: ts})
	sort.SliceStable(step.Transitions, func(i, j int) bool {
		return step.Transitions[i].Time < step.Transitions[j].Time
	})
	step.State = state
}

// applyMarkers treats an engine event's marker fields as open/close
// operations on the given marker list and returns the updated list.
func applyMarkers(markers []domain.Marker, ev *domain.RunEvent, ts int64) []domain.Marker {
	if ev.MarkerStart != nil {
		var idx int
		markers, idx = upsertMarker(markers, *ev.MarkerStart)
		markers[idx].Start = ptr(ts)
	}
	if ev.MarkerEnd != nil {
		var idx int
		markers, idx = upsertMarker(markers, *ev.MarkerEnd)
		markers[idx].End = ptr(ts)
	}
	return markers
}

// upsertMarker finds the first unterminated marker with the given key, or
// prepends a fresh one when none exists. A key therefore accumulates one
// completed marker per start/end pair, and an end with no open counterpart
// still materializes as a start-less marker.
func upsertMarker(markers []domain.Marker, key string) ([]domain.Marker, int) {
	for i := range markers {
		if markers[i].Key == key && markers[i].End == nil {
			return markers, i
		}
	}
	markers = append([]domain.Marker{{Key: key}}, markers...)
	return markers, 0
}

func laterOf(current *int64, ts int64) *int64 {
	if current != nil && *current > ts {
		return current
	}
	return ptr(ts)
}

func ptr(v int64) *int64 {
	return &v
}
