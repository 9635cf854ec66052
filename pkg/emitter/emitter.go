package emitter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
)

// ErrUnauthorized indicates the API rejected the emitter token.
var ErrUnauthorized = errors.New("run event emitter unauthorized")

// ErrInvalidArgument indicates the API rejected the payload with validation errors.
var ErrInvalidArgument = errors.New("run event emitter invalid argument")

// ErrNotFound indicates the API could not locate the referenced run.
var ErrNotFound = errors.New("run event emitter run not found")

// Emitter sends run events to the runwatch API. Pipeline workers hold one
// per process and call Emit once per event, in execution order.
type Emitter struct {
	baseURL string
	token   string
	client  *http.Client
	now     func() time.Time
}

// Event is the wire payload for one run event. Timestamp is epoch
// milliseconds; when zero it is stamped from the emitter's clock.
type Event struct {
	Kind            string          `json:"kind"`
	Timestamp       int64           `json:"-"`
	StepKey         string          `json:"step_key,omitempty"`
	PipelineName    string          `json:"pipeline_name,omitempty"`
	Level           string          `json:"level,omitempty"`
	Message         string          `json:"message,omitempty"`
	MarkerStart     *string         `json:"marker_start,omitempty"`
	MarkerEnd       *string         `json:"marker_end,omitempty"`
	ProcessID       *int            `json:"process_id,omitempty"`
	Error           json.RawMessage `json:"error,omitempty"`
	Materialization json.RawMessage `json:"materialization,omitempty"`
	Expectation     json.RawMessage `json:"expectation_result,omitempty"`
}

// NewEmitter creates an emitter using the provided API base URL and token.
func NewEmitter(baseURL, token string, client *http.Client) (*Emitter, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, errors.New("run event emitter base url required")
	}
	trimmed = strings.TrimRight(trimmed, "/")
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Emitter{
		baseURL: trimmed,
		token:   strings.TrimSpace(token),
		client:  client,
		now:     time.Now,
	}, nil
}

// Emit sends the supplied event to the run's ingestion endpoint.
func (e *Emitter) Emit(ctx context.Context, runID string, event Event) error {
	if e == nil {
		return errors.New("run event emitter not initialised")
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return errors.New("run event emitter requires run id")
	}
	if strings.TrimSpace(event.Kind) == "" {
		return errors.New("run event emitter requires event kind")
	}
	body, err := json.Marshal(e.buildPayload(event))
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/runs/"+runID+"/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build run event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("X-Emitter-Token", e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send run event request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return e.errorForStatus(resp)
	}
	return nil
}

func (e *Emitter) errorForStatus(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrorBodySize)
	buf, _ := io.ReadAll(limited)
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, summary)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, summary)
	default:
		return fmt.Errorf("run event request failed: %s", summary)
	}
}

// buildPayload flattens the event into the API's wire shape; the timestamp
// travels as a millisecond string.
func (e *Emitter) buildPayload(event Event) map[string]any {
	millis := event.Timestamp
	if millis == 0 {
		millis = e.now().UTC().UnixMilli()
	}
	payload := map[string]any{
		"kind":      strings.TrimSpace(event.Kind),
		"timestamp": strconv.FormatInt(millis, 10),
	}
	if v := strings.TrimSpace(event.StepKey); v != "" {
		payload["step_key"] = v
	}
	if v := strings.TrimSpace(event.PipelineName); v != "" {
		payload["pipeline_name"] = v
	}
	if v := strings.TrimSpace(event.Level); v != "" {
		payload["level"] = v
	}
	if v := strings.TrimSpace(event.Message); v != "" {
		payload["message"] = v
	}
	if event.MarkerStart != nil {
		payload["marker_start"] = *event.MarkerStart
	}
	if event.MarkerEnd != nil {
		payload["marker_end"] = *event.MarkerEnd
	}
	if event.ProcessID != nil {
		payload["process_id"] = *event.ProcessID
	}
	if len(event.Error) > 0 {
		payload["error"] = event.Error
	}
	if len(event.Materialization) > 0 {
		payload["materialization"] = event.Materialization
	}
	if len(event.Expectation) > 0 {
		payload["expectation_result"] = event.Expectation
	}
	return payload
}
