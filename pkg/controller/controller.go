// Package controller implements the pipeline state machine. It owns
// admission (create, start, first dispatch) and stage advancement
// (completion → next dispatch, or terminal handling). Both intake paths
// and the events consumer funnel into this one component so there is a
// single authoritative state path.
package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"

	"github.com/pagesmith/pagesmith/pkg/blob"
	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// admitDispatchRetries bounds the backoff on the admission-time dispatch.
const admitDispatchRetries = 3

// BlobGetter fetches a stored JSON artifact by key.
type BlobGetter interface {
	Get(ctx context.Context, key string) (map[string]any, error)
}

// StageDispatcher hands a stage's input to its worker queue.
type StageDispatcher interface {
	Dispatch(ctx context.Context, jobID string, stage pipeline.Stage, input map[string]any) error
}

// QueueSender publishes the job_completed announcement.
type QueueSender interface {
	Send(ctx context.Context, queueURL, body string) error
}

// Controller advances jobs through the canonical stage order.
type Controller struct {
	index      *jobs.Index
	blobs      BlobGetter
	dispatcher StageDispatcher
	queues     QueueSender
	metrics    *metrics.Metrics

	// eventsQueueURL receives the job_completed announcement. The same
	// queue carries worker completions; consumers distinguish the two by
	// the absence of task_type on announcements.
	eventsQueueURL string

	// acceptLegacyKeys enables the hyphenated result-key fallback on reads.
	acceptLegacyKeys bool
}

// New creates a pipeline controller.
func New(index *jobs.Index, blobs BlobGetter, dispatcher StageDispatcher, queues QueueSender, m *metrics.Metrics, eventsQueueURL string, acceptLegacyKeys bool) *Controller {
	return &Controller{
		index:            index,
		blobs:            blobs,
		dispatcher:       dispatcher,
		queues:           queues,
		metrics:          m,
		eventsQueueURL:   eventsQueueURL,
		acceptLegacyKeys: acceptLegacyKeys,
	}
}

// Admit creates the job record and dispatches the first stage. Duplicate
// ids are rejected at the index with jobs.ErrDuplicate; callers surface
// that per their own contract. The research input is the brief enriched
// with the stage's constant instruction text.
func (c *Controller) Admit(ctx context.Context, jobID string, brief jobs.Brief) error {
	if _, err := c.index.Create(jobID, brief); err != nil {
		return err
	}
	if err := c.index.Start(jobID); err != nil {
		return err
	}

	input := map[string]any{
		"product":      brief.Product,
		"audience":     brief.Audience,
		"tone":         brief.Tone,
		"instructions": pipeline.Instructions(pipeline.First()),
	}

	// Dispatch is retried with bounded backoff rather than the whole
	// admission: the job record already exists, so a second Admit call
	// would be rejected as a duplicate.
	dispatchOnce := func() error {
		return c.dispatcher.Dispatch(ctx, jobID, pipeline.First(), input)
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), admitDispatchRetries), ctx)
	if err := backoff.Retry(dispatchOnce, bo); err != nil {
		// The record exists but no stage is in flight. Fail the job so
		// its status reflects reality, the reaper can evict it, and a
		// redelivered submission hitting the duplicate guard is inert.
		if _, markErr := c.index.MarkStageComplete(jobID, pipeline.First(),
			fmt.Sprintf("dispatching first stage: %v", err)); markErr != nil {
			slog.Error("Failed to mark undispatchable job as failed", "job_id", jobID, "error", markErr)
		}
		c.metrics.JobsFailed.Inc()
		return fmt.Errorf("dispatching first stage: %w", err)
	}
	c.index.TouchDispatch(jobID)

	c.metrics.JobsAdmitted.Inc()
	c.metrics.JobsInProgress.Inc()
	c.metrics.StageDispatched.WithLabelValues(string(pipeline.First())).Inc()
	slog.Info("Job admitted", "job_id", jobID, "product", brief.Product)
	return nil
}

// OnStageComplete handles a successful stage completion: it records the
// stage, then either announces job completion or dispatches the next
// stage. Duplicate and out-of-order events leave state untouched. The
// error return signals the events consumer to keep the message for
// redelivery; handled-but-ignored events return nil.
func (c *Controller) OnStageComplete(ctx context.Context, jobID string, stage pipeline.Stage) error {
	res, err := c.index.MarkStageComplete(jobID, stage, "")
	if err != nil {
		return err
	}

	switch {
	case res.Terminal && res.Status == jobs.StatusCompleted:
		c.metrics.JobsCompleted.Inc()
		c.metrics.JobsInProgress.Dec()
		return c.announceCompleted(ctx, jobID)

	case res.Advanced:
		next, ok := pipeline.After(stage)
		if !ok {
			// Advanced on a non-final stage guarantees a successor.
			return fmt.Errorf("no stage after %s", stage)
		}
		input, err := c.buildStageInput(ctx, jobID, stage, next)
		if err != nil {
			return err
		}
		if err := c.dispatcher.Dispatch(ctx, jobID, next, input); err != nil {
			return err
		}
		c.index.TouchDispatch(jobID)
		c.metrics.StageDispatched.WithLabelValues(string(next)).Inc()
		return nil

	default:
		// Duplicate, out-of-order, or already-terminal: nothing to do.
		return nil
	}
}

// OnStageFailed marks the job failed with the worker-reported error.
// Terminal: no dispatch follows, and later events cannot mutate the job.
func (c *Controller) OnStageFailed(jobID string, stage pipeline.Stage, errMsg string) error {
	if errMsg == "" {
		errMsg = fmt.Sprintf("stage %s failed", stage)
	}
	res, err := c.index.MarkStageComplete(jobID, stage, errMsg)
	if err != nil {
		return err
	}
	if res.Terminal {
		c.metrics.JobsFailed.Inc()
		c.metrics.JobsInProgress.Dec()
		slog.Info("Job failed", "job_id", jobID, "stage", stage, "error", errMsg)
	}
	return nil
}

// buildStageInput fetches the previous stage's result artifact and
// combines it with the next stage's constant instruction text. Reads
// fall back to the legacy hyphenated key when enabled.
func (c *Controller) buildStageInput(ctx context.Context, jobID string, prev, next pipeline.Stage) (map[string]any, error) {
	key := pipeline.ResultKey(jobID, prev)
	artifact, err := c.blobs.Get(ctx, key)
	if err != nil && c.acceptLegacyKeys && errors.Is(err, blob.ErrNotFound) {
		legacy := pipeline.LegacyResultKey(jobID, prev)
		if legacy != key {
			artifact, err = c.blobs.Get(ctx, legacy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s result for job %s: %w", prev, jobID, err)
	}

	input := make(map[string]any, len(artifact)+1)
	for k, v := range artifact {
		input[k] = v
	}
	input["instructions"] = pipeline.Instructions(next)
	return input, nil
}

// announceCompleted publishes the job_completed event on the events queue.
func (c *Controller) announceCompleted(ctx context.Context, jobID string) error {
	body, err := json.Marshal(pipeline.NewJobCompletedEvent(jobID))
	if err != nil {
		return fmt.Errorf("encoding job_completed event: %w", err)
	}
	if err := c.queues.Send(ctx, c.eventsQueueURL, string(body)); err != nil {
		return fmt.Errorf("announcing job completion: %w", err)
	}
	slog.Info("Job completed", "job_id", jobID)
	return nil
}
