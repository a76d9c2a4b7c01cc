// Package dispatch hands stage work to workers: it writes the stage
// input artifact to the blob store, then enqueues a task message that
// references it.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

// ErrUnknownStage indicates a dispatch against a stage with no queue.
// This is a programming error, not a runtime condition.
var ErrUnknownStage = errors.New("unknown stage")

// taskSource identifies the orchestrator in task messages.
const taskSource = "orchestrator"

// BlobPutter stores a JSON artifact and returns its key.
type BlobPutter interface {
	Put(ctx context.Context, key string, value any) (string, error)
}

// QueueSender enqueues an opaque message body on a queue.
type QueueSender interface {
	Send(ctx context.Context, queueURL, body string) error
}

// Dispatcher writes stage inputs and enqueues stage task messages.
type Dispatcher struct {
	blobs  BlobPutter
	queues QueueSender

	// stageQueues is the static stage → queue URL map.
	stageQueues map[pipeline.Stage]string
}

// NewDispatcher creates a stage dispatcher.
func NewDispatcher(blobs BlobPutter, queues QueueSender, stageQueues map[pipeline.Stage]string) *Dispatcher {
	return &Dispatcher{blobs: blobs, queues: queues, stageQueues: stageQueues}
}

// Dispatch stores the stage input under "{job_id}/{stage}.json" and then
// sends the task message. The artifact write must complete before the
// send so a worker never sees a dangling key. A send failure after a
// successful write is tolerable: a retry overwrites the artifact with
// identical content, making dispatch idempotent up to blob overwrite.
func (d *Dispatcher) Dispatch(ctx context.Context, jobID string, stage pipeline.Stage, input map[string]any) error {
	queueURL, ok := d.stageQueues[stage]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, stage)
	}

	payloadKey := pipeline.InputKey(jobID, stage)
	if _, err := d.blobs.Put(ctx, payloadKey, input); err != nil {
		return fmt.Errorf("storing input for stage %s: %w", stage, err)
	}

	task := pipeline.NewTaskMessage(jobID, stage, payloadKey, taskSource)
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encoding task message for stage %s: %w", stage, err)
	}

	if err := d.queues.Send(ctx, queueURL, string(body)); err != nil {
		return fmt.Errorf("enqueueing stage %s: %w", stage, err)
	}

	slog.Info("Stage dispatched", "job_id", jobID, "stage", stage, "payload_key", payloadKey)
	return nil
}
