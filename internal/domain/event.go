package domain

import "time"

// EventKind discriminates run event payloads. The set is closed; kinds not
// listed here are ignored by consumers so the vocabulary can grow without
// breaking older readers.
type EventKind string

const (
	EventPipelineStart       EventKind = "PIPELINE_START"
	EventPipelineSuccess     EventKind = "PIPELINE_SUCCESS"
	EventPipelineFailure     EventKind = "PIPELINE_FAILURE"
	EventPipelineInitFailure EventKind = "PIPELINE_INIT_FAILURE"
	EventProcessStart        EventKind = "PIPELINE_PROCESS_START"
	EventProcessStarted      EventKind = "PIPELINE_PROCESS_STARTED"
	EventStepStart           EventKind = "EXECUTION_STEP_START"
	EventStepSuccess         EventKind = "EXECUTION_STEP_SUCCESS"
	EventStepSkipped         EventKind = "EXECUTION_STEP_SKIPPED"
	EventStepFailure         EventKind = "EXECUTION_STEP_FAILURE"
	EventStepUpForRetry      EventKind = "EXECUTION_STEP_UP_FOR_RETRY"
	EventStepRestart         EventKind = "EXECUTION_STEP_RESTART"
	EventStepMaterialization EventKind = "STEP_MATERIALIZATION"
	EventStepExpectation     EventKind = "STEP_EXPECTATION_RESULT"
	EventEngine              EventKind = "ENGINE_EVENT"
	EventLogMessage          EventKind = "LOG_MESSAGE"
)

// EventError carries failure details attached to failure-class events.
type EventError struct {
	Message string   `json:"message"`
	Stack   []string `json:"stack,omitempty"`
}

// MaterializationPayload describes an artifact a step produced.
type MaterializationPayload struct {
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Entries     []MetadataEntry `json:"entries,omitempty"`
}

// ExpectationPayload describes the outcome of a data quality check a step ran.
type ExpectationPayload struct {
	Success     bool            `json:"success"`
	Label       string          `json:"label"`
	Description string          `json:"description"`
	Entries     []MetadataEntry `json:"entries,omitempty"`
}

// RunEvent is a single entry in a run's append-only event log. Timestamp is
// epoch milliseconds kept as the string the emitter sent; parsing happens at
// aggregation time so malformed values surface there instead of being zeroed.
type RunEvent struct {
	ID              int64                   `json:"id,omitempty"`
	EventID         string                  `json:"event_id,omitempty"`
	RunID           string                  `json:"run_id"`
	Kind            EventKind               `json:"kind"`
	Timestamp       string                  `json:"timestamp"`
	StepKey         string                  `json:"step_key,omitempty"`
	PipelineName    string                  `json:"pipeline_name,omitempty"`
	Level           string                  `json:"level,omitempty"`
	Message         string                  `json:"message,omitempty"`
	Error           *EventError             `json:"error,omitempty"`
	MarkerStart     *string                 `json:"marker_start,omitempty"`
	MarkerEnd       *string                 `json:"marker_end,omitempty"`
	ProcessID       *int                    `json:"process_id,omitempty"`
	Materialization *MaterializationPayload `json:"materialization,omitempty"`
	Expectation     *ExpectationPayload     `json:"expectation_result,omitempty"`
	CreatedAt       time.Time               `json:"created_at,omitempty"`
}
