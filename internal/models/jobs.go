package models

import "time"

// JobState tracks a job through the report pipeline.
type JobState string

// Job state constants. Complete, Failed and Cancelled are terminal.
const (
	JobPending    JobState = "pending"
	JobIngesting  JobState = "ingesting"
	JobAnalyzing  JobState = "analyzing"
	JobRendering  JobState = "rendering"
	JobAssembling JobState = "assembling"
	JobComplete   JobState = "complete"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobComplete || s == JobFailed || s == JobCancelled
}

// Job represents one end-to-end report request tracked through the pipeline.
type Job struct {
	ID          string        `json:"id"`
	Request     ReportRequest `json:"request"`
	Fingerprint string        `json:"fingerprint"`
	State       JobState      `json:"state"`
	Stage       JobState      `json:"stage,omitempty"` // stage at which a failure occurred
	ReportID    string        `json:"report_id,omitempty"`
	Error       string        `json:"error,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	Attempts    int           `json:"attempts"` // retries consumed in the failing stage
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	DurationMS  int64         `json:"duration_ms,omitempty"`
}

// JobStatus is the externally visible view of a job.
type JobStatus struct {
	ID        string   `json:"id"`
	State     JobState `json:"state"`
	Stage     JobState `json:"stage,omitempty"`
	ReportID  string   `json:"report_id,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorKind string   `json:"error_kind,omitempty"`
}
