package api

import "github.com/pagesmith/pagesmith/pkg/jobs"

// SubmitJobResponse is returned by POST /jobs.
type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatsResponse is returned by GET /jobs.
type StatsResponse struct {
	Stats     jobs.Stats `json:"stats"`
	Timestamp string     `json:"timestamp"`
}

// TaskProjection is one entry of the GET /tasks listing: a job record
// projected to the task shape consumed by the front-end proxy.
type TaskProjection struct {
	TaskID    string `json:"task_id"`
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Progress  int    `json:"progress"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp string     `json:"timestamp"`
	Version   string     `json:"version"`
	Jobs      jobs.Stats `json:"jobs"`
}
