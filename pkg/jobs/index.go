package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// Sentinel errors for index operations.
var (
	// ErrDuplicate indicates the job id is already present.
	ErrDuplicate = errors.New("job already exists")

	// ErrUnknownJob indicates the job id is not in the index.
	ErrUnknownJob = errors.New("unknown job")
)

// Index is the in-memory job state index. All operations are atomic
// with respect to one another: the advance/terminal decision inside
// MarkStageComplete happens under the same lock as the state mutation,
// so callers always act on a consistent snapshot.
type Index struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewIndex creates an empty job state index.
func NewIndex() *Index {
	return &Index{jobs: make(map[string]*Job)}
}

// Create inserts a new job in queued status. Fails with ErrDuplicate if
// the id is already present — this is the single point of duplicate
// admission detection for both intake paths.
func (x *Index) Create(id string, brief Brief) (Job, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.jobs[id]; ok {
		return Job{}, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	job := &Job{
		ID:              id,
		Brief:           brief,
		Status:          StatusQueued,
		CompletedStages: []pipeline.Stage{},
		StartedAt:       time.Now(),
	}
	x.jobs[id] = job
	return job.Clone(), nil
}

// Start transitions queued → in_progress. Idempotent when already
// in_progress; a no-op on terminal jobs.
func (x *Index) Start(id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	job, ok := x.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if job.Status == StatusQueued {
		job.Status = StatusInProgress
	}
	return nil
}

// MarkStageComplete records a stage outcome and returns the transition
// decision. Semantics:
//
//   - errMsg non-empty → job fails (terminal), error stored.
//   - stage already completed → duplicate, ignored.
//   - stage is not the next expected one → out-of-order, logged and ignored.
//   - otherwise the stage is appended; covering the full canonical list
//     completes the job (terminal), else the caller should advance.
//
// Calls against a job already in a terminal status are rejected silently.
func (x *Index) MarkStageComplete(id string, stage pipeline.Stage, errMsg string) (MarkResult, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	job, ok := x.jobs[id]
	if !ok {
		return MarkResult{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	if job.Status.Terminal() {
		return MarkResult{Status: job.Status}, nil
	}

	if errMsg != "" {
		now := time.Now()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = errMsg
		return MarkResult{Terminal: true, Status: job.Status}, nil
	}

	for _, done := range job.CompletedStages {
		if done == stage {
			return MarkResult{Status: job.Status}, nil
		}
	}

	next, _ := job.NextStage()
	if stage != next {
		slog.Warn("Out-of-order stage completion ignored",
			"job_id", id, "stage", stage, "expected", next)
		return MarkResult{Status: job.Status}, nil
	}

	job.CompletedStages = append(job.CompletedStages, stage)

	if len(job.CompletedStages) == len(pipeline.Order) {
		now := time.Now()
		job.Status = StatusCompleted
		job.CompletedAt = &now
		return MarkResult{Terminal: true, Status: job.Status}, nil
	}
	return MarkResult{Advanced: true, Status: job.Status}, nil
}

// TouchDispatch records the time the job's current stage was dispatched.
// Feeds the optional stage deadline sweep.
func (x *Index) TouchDispatch(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if job, ok := x.jobs[id]; ok {
		job.LastDispatchAt = time.Now()
	}
}

// Lookup returns a copy of the job record, or false if unknown.
func (x *Index) Lookup(id string) (Job, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	job, ok := x.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.Clone(), true
}

// List returns copies of all job records.
func (x *Index) List() []Job {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]Job, 0, len(x.jobs))
	for _, job := range x.jobs {
		out = append(out, job.Clone())
	}
	return out
}

// Stats returns counts of jobs by status.
func (x *Index) Stats() Stats {
	x.mu.RLock()
	defer x.mu.RUnlock()

	s := Stats{Total: len(x.jobs)}
	for _, job := range x.jobs {
		switch job.Status {
		case StatusQueued:
			s.Queued++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		}
	}
	return s
}

// Reap evicts terminal jobs whose completion is older than maxAge and
// returns the number evicted. Non-terminal jobs are never reaped.
func (x *Index) Reap(maxAge time.Duration) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	for id, job := range x.jobs {
		if job.Status.Terminal() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(x.jobs, id)
			evicted++
		}
	}
	return evicted
}

// FailStale forces in-flight jobs whose current stage has exceeded the
// deadline into failed status. Returns the ids of the jobs failed.
// A zero deadline disables the sweep.
func (x *Index) FailStale(deadline time.Duration) []string {
	if deadline <= 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	cutoff := time.Now().Add(-deadline)
	var failed []string
	for id, job := range x.jobs {
		if job.Status != StatusInProgress {
			continue
		}
		if job.LastDispatchAt.IsZero() || !job.LastDispatchAt.Before(cutoff) {
			continue
		}
		now := time.Now()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = "stage deadline exceeded"
		failed = append(failed, id)
	}
	return failed
}
