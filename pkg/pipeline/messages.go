package pipeline

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskMessage is the body placed on a stage queue to hand work to a
// worker. The input artifact is referenced by key, never inlined.
type TaskMessage struct {
	JobID      string `json:"job_id"`
	TaskType   Stage  `json:"task_type"`
	PayloadKey string `json:"payload_key"`
	Timestamp  string `json:"timestamp"`
	Source     string `json:"source"`
}

// NewTaskMessage builds a task message for a dispatched stage.
func NewTaskMessage(jobID string, stage Stage, payloadKey, source string) TaskMessage {
	return TaskMessage{
		JobID:      jobID,
		TaskType:   stage,
		PayloadKey: payloadKey,
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Source:     source,
	}
}

// Completion event statuses reported by workers.
const (
	EventStatusSuccess    = "success"
	EventStatusFailure    = "failure"
	EventStatusError      = "error"
	EventStatusInProgress = "in_progress"
)

// EventTypeJobCompleted marks the orchestrator-emitted job-done
// announcement, published on the same events queue as worker completions.
const EventTypeJobCompleted = "job_completed"

// CompletionEvent is a worker-reported stage outcome from the events
// queue. Older workers send the stage under "task" rather than
// "task_type"; both are accepted. ResultKey may be absent — the next
// stage's input is derived from the deterministic key scheme instead.
type CompletionEvent struct {
	JobID     string          `json:"job_id"`
	TaskType  Stage           `json:"task_type"`
	Task      Stage           `json:"task,omitempty"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ResultKey string          `json:"result_key,omitempty"`
	EventType string          `json:"event_type,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Stage returns the stage the event refers to, preferring the current
// "task_type" key over the legacy "task" key.
func (e *CompletionEvent) Stage() Stage {
	if e.TaskType != "" {
		return e.TaskType
	}
	return e.Task
}

// IsAnnouncement reports whether the event is the orchestrator's own
// job_completed announcement rather than a worker completion. Such
// events carry no task_type and must not be treated as stage outcomes.
func (e *CompletionEvent) IsAnnouncement() bool {
	return e.Stage() == "" && e.EventType == EventTypeJobCompleted
}

// ParseCompletionEvent decodes an events-queue message body.
func ParseCompletionEvent(body string) (*CompletionEvent, error) {
	var ev CompletionEvent
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return nil, fmt.Errorf("malformed completion event: %w", err)
	}
	return &ev, nil
}

// JobCompletedEvent is the announcement published when the final stage
// finishes. Distinguished from worker completions by the absence of a
// task_type field.
type JobCompletedEvent struct {
	JobID     string `json:"job_id"`
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
}

// NewJobCompletedEvent builds the job-done announcement for jobID.
func NewJobCompletedEvent(jobID string) JobCompletedEvent {
	return JobCompletedEvent{
		JobID:     jobID,
		EventType: EventTypeJobCompleted,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// SubmissionMessage is the async intake variant of a job submission.
// Either PayloadKey references a brief stored in the blob store, or the
// message inlines the brief fields directly.
type SubmissionMessage struct {
	JobID      string `json:"job_id,omitempty"`
	TaskType   string `json:"task_type,omitempty"`
	PayloadKey string `json:"payload_key,omitempty"`
	Product    string `json:"product,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Tone       string `json:"tone,omitempty"`
}

// ParseSubmissionMessage decodes a submissions-queue message body.
func ParseSubmissionMessage(body string) (*SubmissionMessage, error) {
	var msg SubmissionMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("malformed submission message: %w", err)
	}
	return &msg, nil
}
