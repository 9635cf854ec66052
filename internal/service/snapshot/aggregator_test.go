package snapshot

import (
	"errors"
	"reflect"
	"testing"

	"github.com/splax/runwatch/internal/domain"
)

func strPtr(s string) *string {
	return &s
}

func stepEvent(kind domain.EventKind, stepKey, ts string) domain.RunEvent {
	return domain.RunEvent{Kind: kind, StepKey: stepKey, Timestamp: ts}
}

func TestAggregateEmptyInput(t *testing.T) {
	snap, err := Aggregate(nil)
	if err != nil {
		t.Fatalf("aggregate returned error: %v", err)
	}
	if snap.FirstLogAt != 0 || snap.MostRecentLogAt != 0 {
		t.Fatalf("expected zero log window, got %d..%d", snap.FirstLogAt, snap.MostRecentLogAt)
	}
	if len(snap.GlobalMarkers) != 0 {
		t.Fatalf("expected no global markers, got %d", len(snap.GlobalMarkers))
	}
	if len(snap.Steps) != 0 {
		t.Fatalf("expected no steps, got %d", len(snap.Steps))
	}
	if snap.StartedPipelineAt != nil || snap.ExitedAt != nil || snap.InitFailed {
		t.Fatalf("expected pristine run-level fields, got %+v", snap)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	events := []domain.RunEvent{
		{Kind: domain.EventPipelineStart, Timestamp: "50"},
		stepEvent(domain.EventStepStart, "transform", "100"),
		{Kind: domain.EventEngine, Timestamp: "120", MarkerStart: strPtr("spinup")},
		stepEvent(domain.EventStepSuccess, "transform", "200"),
		{Kind: domain.EventPipelineSuccess, Timestamp: "250"},
	}

	first, err := Aggregate(events)
	if err != nil {
		t.Fatalf("first aggregate: %v", err)
	}
	second, err := Aggregate(events)
	if err != nil {
		t.Fatalf("second aggregate: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("aggregations differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestLogWindowWidensOverPrefixes(t *testing.T) {
	events := []domain.RunEvent{
		{Kind: domain.EventLogMessage, Timestamp: "300"},
		{Kind: domain.EventLogMessage, Timestamp: "100"},
		{Kind: domain.EventLogMessage, Timestamp: "500"},
	}

	var prevFirst, prevRecent int64
	for k := 1; k <= len(events); k++ {
		snap, err := Aggregate(events[:k])
		if err != nil {
			t.Fatalf("aggregate prefix %d: %v", k, err)
		}
		if k > 1 {
			if snap.FirstLogAt > prevFirst {
				t.Fatalf("firstLogAt regressed at prefix %d: %d -> %d", k, prevFirst, snap.FirstLogAt)
			}
			if snap.MostRecentLogAt < prevRecent {
				t.Fatalf("mostRecentLogAt shrank at prefix %d: %d -> %d", k, prevRecent, snap.MostRecentLogAt)
			}
		}
		prevFirst, prevRecent = snap.FirstLogAt, snap.MostRecentLogAt
	}
	if prevFirst != 100 || prevRecent != 500 {
		t.Fatalf("expected final window 100..500, got %d..%d", prevFirst, prevRecent)
	}
}

func TestStepLifecycle(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		stepEvent(domain.EventStepStart, "A", "100"),
		stepEvent(domain.EventStepSuccess, "A", "200"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	step, ok := snap.Steps["A"]
	if !ok {
		t.Fatal("expected step A to exist")
	}
	if step.State != domain.StepSucceeded {
		t.Fatalf("expected SUCCEEDED, got %s", step.State)
	}
	if step.Start == nil || *step.Start != 100 {
		t.Fatalf("unexpected start: %v", step.Start)
	}
	if step.End == nil || *step.End != 200 {
		t.Fatalf("unexpected end: %v", step.End)
	}
	want := []domain.Transition{
		{State: domain.StepPreparing, Time: 100},
		{State: domain.StepRunning, Time: 100},
		{State: domain.StepSucceeded, Time: 200},
	}
	if !reflect.DeepEqual(step.Transitions, want) {
		t.Fatalf("unexpected transitions: %+v", step.Transitions)
	}
}

func TestTransitionsStaySortedUnderOutOfOrderDelivery(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		stepEvent(domain.EventStepSuccess, "A", "200"),
		stepEvent(domain.EventStepStart, "A", "100"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	step := snap.Steps["A"]
	for i := 1; i < len(step.Transitions); i++ {
		if step.Transitions[i-1].Time > step.Transitions[i].Time {
			t.Fatalf("transitions not sorted: %+v", step.Transitions)
		}
	}
	// The displayed state is the last applied transition, not the
	// chronologically last one.
	if step.State != domain.StepRunning {
		t.Fatalf("expected RUNNING after late start event, got %s", step.State)
	}
}

func TestStepEndNeverRegresses(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		stepEvent(domain.EventStepSuccess, "A", "5"),
		stepEvent(domain.EventStepSuccess, "A", "3"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	step := snap.Steps["A"]
	if step.End == nil || *step.End != 5 {
		t.Fatalf("expected end to stay 5, got %v", step.End)
	}
}

func TestRetryAndRestartTransitions(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		stepEvent(domain.EventStepStart, "A", "10"),
		stepEvent(domain.EventStepFailure, "A", "20"),
		stepEvent(domain.EventStepUpForRetry, "A", "30"),
		stepEvent(domain.EventStepRestart, "A", "40"),
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	step := snap.Steps["A"]
	if step.State != domain.StepRunning {
		t.Fatalf("expected RUNNING after restart, got %s", step.State)
	}
	if step.End == nil || *step.End != 20 {
		t.Fatalf("expected failure end 20 preserved, got %v", step.End)
	}
	if len(step.Transitions) != 5 {
		t.Fatalf("expected 5 transitions, got %+v", step.Transitions)
	}
}

func TestMarkerPairing(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventEngine, Timestamp: "1", MarkerStart: strPtr("A")},
		{Kind: domain.EventEngine, Timestamp: "5", MarkerEnd: strPtr("A")},
		{Kind: domain.EventEngine, Timestamp: "10", MarkerStart: strPtr("A")},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	markers := snap.GlobalMarkers
	if len(markers) != 2 {
		t.Fatalf("expected exactly two markers, got %+v", markers)
	}
	// Newest inserted first.
	open := markers[0]
	if open.Key != "A" || open.Start == nil || *open.Start != 10 || open.End != nil {
		t.Fatalf("unexpected open marker: %+v", open)
	}
	closed := markers[1]
	if closed.Key != "A" || closed.Start == nil || *closed.Start != 1 || closed.End == nil || *closed.End != 5 {
		t.Fatalf("unexpected closed marker: %+v", closed)
	}
}

func TestMarkerEndWithoutStart(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventEngine, Timestamp: "7", MarkerEnd: strPtr("warmup")},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(snap.GlobalMarkers) != 1 {
		t.Fatalf("expected one marker, got %+v", snap.GlobalMarkers)
	}
	marker := snap.GlobalMarkers[0]
	if marker.Start != nil || marker.End == nil || *marker.End != 7 {
		t.Fatalf("expected start-less marker ending at 7, got %+v", marker)
	}
}

func TestEngineEventWithStepScopesMarkersToStep(t *testing.T) {
	ev := domain.RunEvent{Kind: domain.EventEngine, StepKey: "A", Timestamp: "3", MarkerStart: strPtr("resource")}
	snap, err := Aggregate([]domain.RunEvent{ev})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(snap.GlobalMarkers) != 0 {
		t.Fatalf("expected no global markers, got %+v", snap.GlobalMarkers)
	}
	step := snap.Steps["A"]
	if step == nil || len(step.Markers) != 1 || step.Markers[0].Key != "resource" {
		t.Fatalf("expected step-scoped marker, got %+v", step)
	}
	if step.State != domain.StepPreparing {
		t.Fatalf("expected lazily created step in PREPARING, got %s", step.State)
	}
}

func TestInitFailureIsSticky(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventPipelineInitFailure, Timestamp: "10"},
		{Kind: domain.EventPipelineInitFailure, Timestamp: "20"},
		{Kind: domain.EventPipelineStart, Timestamp: "30"},
		{Kind: domain.EventLogMessage, Timestamp: "40"},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if !snap.InitFailed {
		t.Fatal("expected initFailed to remain true")
	}
	if snap.ExitedAt == nil || *snap.ExitedAt != 20 {
		t.Fatalf("expected exitedAt 20, got %v", snap.ExitedAt)
	}
}

func TestProcessEventsRecordTimestampsAndPid(t *testing.T) {
	pid := 4242
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventProcessStart, Timestamp: "100"},
		{Kind: domain.EventProcessStarted, Timestamp: "150", ProcessID: &pid},
		{Kind: domain.EventPipelineStart, Timestamp: "160"},
		{Kind: domain.EventPipelineSuccess, Timestamp: "900"},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if snap.StartingProcessAt == nil || *snap.StartingProcessAt != 100 {
		t.Fatalf("unexpected startingProcessAt: %v", snap.StartingProcessAt)
	}
	if snap.StartedProcessAt == nil || *snap.StartedProcessAt != 150 {
		t.Fatalf("unexpected startedProcessAt: %v", snap.StartedProcessAt)
	}
	if snap.ProcessID == nil || *snap.ProcessID != pid {
		t.Fatalf("unexpected processId: %v", snap.ProcessID)
	}
	if snap.StartedPipelineAt == nil || *snap.StartedPipelineAt != 160 {
		t.Fatalf("unexpected startedPipelineAt: %v", snap.StartedPipelineAt)
	}
	if snap.ExitedAt == nil || *snap.ExitedAt != 900 {
		t.Fatalf("unexpected exitedAt: %v", snap.ExitedAt)
	}
}

func TestMalformedTimestampFailsWholeAggregation(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventLogMessage, Timestamp: "100"},
		{Kind: domain.EventLogMessage, Timestamp: "not-a-number"},
	})
	if err == nil {
		t.Fatal("expected error for malformed timestamp")
	}
	if !errors.Is(err, ErrBadTimestamp) {
		t.Fatalf("expected ErrBadTimestamp, got %v", err)
	}
	if snap != nil {
		t.Fatalf("expected no partial snapshot, got %+v", snap)
	}
}

func TestUnknownKindOnlyWidensLogWindow(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventKind("SOME_FUTURE_EVENT"), Timestamp: "77"},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if snap.FirstLogAt != 77 || snap.MostRecentLogAt != 77 {
		t.Fatalf("expected window 77..77, got %d..%d", snap.FirstLogAt, snap.MostRecentLogAt)
	}
	if len(snap.Steps) != 0 || len(snap.GlobalMarkers) != 0 {
		t.Fatalf("expected no structural changes, got %+v", snap)
	}
}

func TestStepEventWithoutStepKeyIsGlobalScope(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{Kind: domain.EventStepStart, Timestamp: "10"},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	if len(snap.Steps) != 0 {
		t.Fatalf("expected no steps for step event without key, got %+v", snap.Steps)
	}
	if snap.MostRecentLogAt != 10 {
		t.Fatalf("expected timestamp tracking to still apply, got %d", snap.MostRecentLogAt)
	}
}

func TestMaterializationUsesLabelOrFallback(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{
			Kind: domain.EventStepMaterialization, StepKey: "A", Timestamp: "10",
			Materialization: &domain.MaterializationPayload{Label: "users_table"},
		},
		{
			Kind: domain.EventStepMaterialization, StepKey: "A", Timestamp: "20",
			Materialization: &domain.MaterializationPayload{},
		},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	mats := snap.Steps["A"].Materializations
	if len(mats) != 2 {
		t.Fatalf("expected two materializations, got %+v", mats)
	}
	if mats[0].Text != "users_table" || mats[0].Icon != domain.IconLink {
		t.Fatalf("unexpected first materialization: %+v", mats[0])
	}
	if mats[1].Text != "Materialization" {
		t.Fatalf("expected fallback text, got %q", mats[1].Text)
	}
}

func TestExpectationResultsCarryStatusAndIcon(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{
			Kind: domain.EventStepExpectation, StepKey: "A", Timestamp: "10",
			Expectation: &domain.ExpectationPayload{Success: true, Label: "row_count"},
		},
		{
			Kind: domain.EventStepExpectation, StepKey: "A", Timestamp: "20",
			Expectation: &domain.ExpectationPayload{Success: false, Label: "no_nulls"},
		},
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}
	results := snap.Steps["A"].ExpectationResults
	if len(results) != 2 {
		t.Fatalf("expected two expectation results, got %+v", results)
	}
	if results[0].Status != domain.ExpectationPassed || results[0].Icon != domain.IconSuccess {
		t.Fatalf("unexpected passing result: %+v", results[0])
	}
	if results[1].Status != domain.ExpectationFailed || results[1].Icon != domain.IconFailure {
		t.Fatalf("unexpected failing result: %+v", results[1])
	}
	if results[1].Text != "no_nulls" {
		t.Fatalf("unexpected text: %q", results[1].Text)
	}
}

func TestMalformedMetadataFailsAggregation(t *testing.T) {
	snap, err := Aggregate([]domain.RunEvent{
		{
			Kind: domain.EventStepMaterialization, StepKey: "A", Timestamp: "10",
			Materialization: &domain.MaterializationPayload{
				Label: "bad",
				Entries: []domain.MetadataEntry{
					{Type: domain.EntryJSON, Label: "broken", JSONString: "{not json"},
				},
			},
		},
	})
	if err == nil {
		t.Fatal("expected error for malformed metadata JSON")
	}
	var metaErr *MalformedMetadataError
	if !errors.As(err, &metaErr) {
		t.Fatalf("expected MalformedMetadataError, got %v", err)
	}
	if metaErr.Label != "broken" {
		t.Fatalf("unexpected entry label %q", metaErr.Label)
	}
	if snap != nil {
		t.Fatalf("expected no partial snapshot, got %+v", snap)
	}
}
