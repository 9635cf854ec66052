package domain

import "time"

// Run statuses. A run is marked finished by its terminal pipeline event.
const (
	RunStatusStarted   = "started"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// Run identifies one pipeline execution whose events are collected.
type Run struct {
	ID           string    `json:"id"`
	PipelineName string    `json:"pipeline_name"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
