package domain

// StepPhase labels the most recently observed state of a step. It is a
// recorder of observed transitions, not a validated state machine.
type StepPhase string

const (
	StepPreparing StepPhase = "PREPARING"
	StepRunning   StepPhase = "RUNNING"
	StepSucceeded StepPhase = "SUCCEEDED"
	StepSkipped   StepPhase = "SKIPPED"
	StepFailed    StepPhase = "FAILED"
)

// IconKind selects the icon a presentation layer shows for a display event.
type IconKind string

const (
	IconLink    IconKind = "link"
	IconSuccess IconKind = "success"
	IconFailure IconKind = "failure"
)

// ItemAction selects the interactive affordance for a display item.
type ItemAction string

const (
	ItemActionOpenInTab   ItemAction = "open-in-tab"
	ItemActionCopy        ItemAction = "copy"
	ItemActionShowInModal ItemAction = "show-in-modal"
	ItemActionNone        ItemAction = "none"
)

// ExpectationStatus reports whether an expectation passed.
type ExpectationStatus string

const (
	ExpectationPassed ExpectationStatus = "PASSED"
	ExpectationFailed ExpectationStatus = "FAILED"
)

// DisplayItem is the variant-agnostic projection of a metadata entry. A
// renderer needs nothing beyond these four fields.
type DisplayItem struct {
	Text        string     `json:"text"`
	Action      ItemAction `json:"action"`
	ActionText  string     `json:"action_text"`
	ActionValue string     `json:"action_value"`
}

// DisplayEvent is a renderable record derived from a materialization or
// expectation payload.
type DisplayEvent struct {
	Text  string        `json:"text"`
	Icon  IconKind      `json:"icon"`
	Items []DisplayItem `json:"items"`
}

// ExpectationResult is a display event carrying the pass/fail outcome.
type ExpectationResult struct {
	DisplayEvent
	Status ExpectationStatus `json:"status"`
}

// Transition records one observed state change, stamped with the event's
// timestamp in epoch milliseconds.
type Transition struct {
	State StepPhase `json:"state"`
	Time  int64     `json:"time"`
}

// Marker is a named timed interval. Start or End may be absent when only one
// side of the pair was observed.
type Marker struct {
	Key   string `json:"key"`
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// StepState accumulates everything observed about one step.
// Transitions stays sorted ascending by time; its last applied state is
// mirrored in State. Markers is kept newest-inserted first.
type StepState struct {
	State              StepPhase           `json:"state"`
	Start              *int64              `json:"start,omitempty"`
	End                *int64              `json:"end,omitempty"`
	Transitions        []Transition        `json:"transitions"`
	ExpectationResults []ExpectationResult `json:"expectation_results"`
	Materializations   []DisplayEvent      `json:"materializations"`
	Markers            []Marker            `json:"markers"`
}

// RunSnapshot is the aggregate view of a run reconstructed from its event
// log. Timestamps are epoch milliseconds; pointer fields are unset until the
// corresponding event is seen, while FirstLogAt/MostRecentLogAt start at zero
// and only ever widen.
type RunSnapshot struct {
	FirstLogAt        int64                 `json:"first_log_at"`
	MostRecentLogAt   int64                 `json:"most_recent_log_at"`
	StartingProcessAt *int64                `json:"starting_process_at,omitempty"`
	StartedProcessAt  *int64                `json:"started_process_at,omitempty"`
	StartedPipelineAt *int64                `json:"started_pipeline_at,omitempty"`
	ExitedAt          *int64                `json:"exited_at,omitempty"`
	InitFailed        bool                  `json:"init_failed,omitempty"`
	ProcessID         *int                  `json:"process_id,omitempty"`
	GlobalMarkers     []Marker              `json:"global_markers"`
	Steps             map[string]*StepState `json:"steps"`
}

// NewRunSnapshot returns the documented empty snapshot.
func NewRunSnapshot() *RunSnapshot {
	return &RunSnapshot{
		GlobalMarkers: []Marker{},
		Steps:         make(map[string]*StepState),
	}
}
