package model

import (
	"errors"
	"time"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ParseStatus validates a raw status string against the closed set.
func ParseStatus(raw string) (JobStatus, bool) {
	s := JobStatus(raw)
	switch s {
	case JobPending, JobRunning, JobCompleted, JobFailed:
		return s, true
	}
	return "", false
}

// Terminal reports whether no further transitions are permitted. The legal
// order is pending -> running -> completed/failed; the store's guarded
// updates enforce it.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotReady     = errors.New("result not ready")
	ErrStorage      = errors.New("blob storage failure")
	ErrPersistence  = errors.New("job store failure")
	ErrQueueFull    = errors.New("queue full")

	// ErrConflict is returned by guarded status updates when the stored
	// status no longer matches the expected predecessor.
	ErrConflict = errors.New("status transition conflict")
)

// Job represents one submitted video in the job store.
//
// - InputRef/OutputRef are relative keys in the blob store.
// - OutputRef is set if and only if Status is completed.
// - ErrorDetail is set if and only if Status is failed.
type Job struct {
	ID          string    `json:"job_id"`
	PipelineID  string    `json:"pipeline_id"`
	Status      JobStatus `json:"status"`
	InputRef    string    `json:"input_ref"`
	OutputRef   string    `json:"output_ref,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Metrics holds per-status job counts for the monitoring surface.
type Metrics struct {
	TotalJobs     int64 `json:"total_jobs"`
	PendingJobs   int64 `json:"pending_jobs"`
	RunningJobs   int64 `json:"running_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	FailedJobs    int64 `json:"failed_jobs"`
}
