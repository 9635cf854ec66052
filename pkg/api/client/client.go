package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the runwatch API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4600"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Run identifies a tracked pipeline execution.
type Run struct {
	ID           string    `json:"id"`
	PipelineName string    `json:"pipeline_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is one entry of a run's event log as the API returns it.
type Event struct {
	ID        int64  `json:"id"`
	EventID   string `json:"event_id"`
	RunID     string `json:"run_id"`
	Kind      string `json:"kind"`
	Timestamp string `json:"timestamp"`
	StepKey   string `json:"step_key"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Marker is a named timed interval within a run or step.
type Marker struct {
	Key   string `json:"key"`
	Start *int64 `json:"start"`
	End   *int64 `json:"end"`
}

// Transition records one observed step state change.
type Transition struct {
	State string `json:"state"`
	Time  int64  `json:"time"`
}

// DisplayItem is a renderable metadata projection.
type DisplayItem struct {
	Text        string `json:"text"`
	Action      string `json:"action"`
	ActionText  string `json:"action_text"`
	ActionValue string `json:"action_value"`
}

// DisplayEvent is a renderable record attached to a step.
type DisplayEvent struct {
	Text  string        `json:"text"`
	Icon  string        `json:"icon"`
	Items []DisplayItem `json:"items"`
}

// ExpectationResult couples a display event with its pass/fail status.
type ExpectationResult struct {
	DisplayEvent
	Status string `json:"status"`
}

// StepState mirrors the API's per-step aggregate.
type StepState struct {
	State              string              `json:"state"`
	Start              *int64              `json:"start"`
	End                *int64              `json:"end"`
	Transitions        []Transition        `json:"transitions"`
	ExpectationResults []ExpectationResult `json:"expectation_results"`
	Materializations   []DisplayEvent      `json:"materializations"`
	Markers            []Marker            `json:"markers"`
}

// Snapshot mirrors the API's aggregated run view.
type Snapshot struct {
	FirstLogAt        int64                 `json:"first_log_at"`
	MostRecentLogAt   int64                 `json:"most_recent_log_at"`
	StartingProcessAt *int64                `json:"starting_process_at"`
	StartedProcessAt  *int64                `json:"started_process_at"`
	StartedPipelineAt *int64                `json:"started_pipeline_at"`
	ExitedAt          *int64                `json:"exited_at"`
	InitFailed        bool                  `json:"init_failed"`
	ProcessID         *int                  `json:"process_id"`
	GlobalMarkers     []Marker              `json:"global_markers"`
	Steps             map[string]*StepState `json:"steps"`
}

// CreateRun registers a new run for the named pipeline.
func (c *Client) CreateRun(ctx context.Context, pipelineName string) (Run, error) {
	body := map[string]string{"pipeline_name": pipelineName}
	var run Run
	if err := c.do(ctx, http.MethodPost, "/runs", body, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// GetRun fetches one run by ID.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var run Run
	if err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID), nil, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (c *Client) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	path := fmt.Sprintf("/runs?limit=%d&offset=%d", limit, offset)
	var runs []Run
	if err := c.do(ctx, http.MethodGet, path, nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListEvents returns a page of a run's event log in insertion order.
func (c *Client) ListEvents(ctx context.Context, runID string, limit, offset int) ([]Event, error) {
	path := fmt.Sprintf("/runs/%s/events?limit=%d&offset=%d", url.PathEscape(runID), limit, offset)
	var events []Event
	if err := c.do(ctx, http.MethodGet, path, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Snapshot fetches the aggregated view of a run.
func (c *Client) Snapshot(ctx context.Context, runID string) (Snapshot, error) {
	var snap Snapshot
	if err := c.do(ctx, http.MethodGet, "/runs/"+url.PathEscape(runID)+"/snapshot", nil, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
