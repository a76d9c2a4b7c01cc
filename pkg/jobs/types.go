// Package jobs holds the in-memory job state index: the single
// authoritative record of every job's progress through the pipeline.
package jobs

import (
	"time"

	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// Status is a job lifecycle state.
type Status string

// Job lifecycle states. Completed and Failed are terminal.
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Brief is the user-supplied input for one job.
type Brief struct {
	Product  string `json:"product" validate:"required"`
	Audience string `json:"audience" validate:"required"`
	Tone     string `json:"tone,omitempty"`
}

// Job is one end-to-end execution of the pipeline for one brief.
// CompletedStages is always a prefix of pipeline.Order.
type Job struct {
	ID              string           `json:"id"`
	Brief           Brief            `json:"brief"`
	Status          Status           `json:"status"`
	CompletedStages []pipeline.Stage `json:"completed_stages"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	Error           string           `json:"error,omitempty"`

	// LastDispatchAt is when the current stage was handed to a worker.
	// Used only by the optional stage deadline sweep.
	LastDispatchAt time.Time `json:"-"`
}

// Clone returns a deep copy safe to hand outside the index.
func (j *Job) Clone() Job {
	out := *j
	out.CompletedStages = make([]pipeline.Stage, len(j.CompletedStages))
	copy(out.CompletedStages, j.CompletedStages)
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// NextStage returns the stage the job is waiting on, or false when all
// stages are complete.
func (j *Job) NextStage() (pipeline.Stage, bool) {
	if len(j.CompletedStages) >= len(pipeline.Order) {
		return "", false
	}
	return pipeline.Order[len(j.CompletedStages)], true
}

// Stats is the count of jobs by status.
type Stats struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// MarkResult reports the outcome of a MarkStageComplete call.
type MarkResult struct {
	// Advanced is true when the stage was newly appended and the job
	// should dispatch the next stage.
	Advanced bool

	// Terminal is true when the job reached a terminal status in this
	// call (completed or failed).
	Terminal bool

	// Status is the job status after the call.
	Status Status
}
