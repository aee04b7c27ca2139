package model

import "time"

// JobAcceptedResponse is returned when a generation job is enqueued.
type JobAcceptedResponse struct {
	JobID     string    `json:"jobId"`
	Queue     string    `json:"queue"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobStatusResponse is the externally visible view of a queued job.
type JobStatusResponse struct {
	JobID       string     `json:"jobId"`
	Queue       string     `json:"queue"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Retries     int        `json:"retries"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
