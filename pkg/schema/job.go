package schema

import "time"

// JobState is the lifecycle state of a job runner (C12) unit of work.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
)

// JobCounters tracks per-kind progress counters, updated as the job runs.
type JobCounters struct {
	Processed       int `json:"processed"`
	Inserted        int `json:"inserted"`
	SkippedExisting int `json:"skipped_existing"`
	Failed          int `json:"failed"`
}

// JobStatus is the full snapshot broadcast to SSE subscribers and returned
// by status polling.
type JobStatus struct {
	JobID        string      `json:"job_id"`
	Kind         string      `json:"kind"`
	State        JobState    `json:"state"`
	Phase        string      `json:"phase,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	Total        *int        `json:"total,omitempty"`
	Counters     JobCounters `json:"counters"`
	Message      string      `json:"message,omitempty"`
	ETAHint      string      `json:"eta_hint,omitempty"`
	ErrorSamples []string    `json:"error_samples,omitempty"`
}

// Retention configures the retention policy evaluated by the retention
// planner and the underlying taxonomy defaults (spec §4.5).
type Retention struct {
	DefaultDays int `json:"default_days"`
}
