// Package events consumes stage completion events from the events queue
// and drives the pipeline controller. Messages are deleted only after
// successful handling so a crash mid-processing results in redelivery.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pagesmith/pagesmith/pkg/controller"
	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
	"github.com/pagesmith/pagesmith/pkg/pipeline"
	"github.com/pagesmith/pagesmith/pkg/queue"
)

// Receiver is the queue surface the consumer needs.
type Receiver interface {
	Receive(ctx context.Context, queueURL string, max int32, wait time.Duration) ([]queue.Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}

// Consumer long-polls the events queue and applies completions.
type Consumer struct {
	queues   Receiver
	ctrl     *controller.Controller
	metrics  *metrics.Metrics
	queueURL string
	batch    int32
	wait     time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewConsumer creates an events consumer.
func NewConsumer(queues Receiver, ctrl *controller.Controller, m *metrics.Metrics, queueURL string, batch int32, wait time.Duration) *Consumer {
	return &Consumer{
		queues:   queues,
		ctrl:     ctrl,
		metrics:  m,
		queueURL: queueURL,
		batch:    batch,
		wait:     wait,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the consumer to stop, aborts any in-flight long poll,
// and waits for the loop to finish. It is safe to call Stop multiple
// times. In-flight messages that were not deleted remain on the queue
// and are reprocessed after restart.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.cancel != nil {
			c.cancel()
		}
	})
	c.wg.Wait()
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	log := slog.With("consumer", "events")
	log.Info("Events consumer started", "queue", c.queueURL)

	for {
		select {
		case <-c.stopCh:
			log.Info("Events consumer shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, events consumer shutting down")
			return
		default:
			msgs, err := c.queues.Receive(ctx, c.queueURL, c.batch, c.wait)
			if err != nil {
				if ctx.Err() != nil {
					continue // shutting down, the select above exits
				}
				log.Error("Receive failed", "error", err)
				c.sleep(time.Second)
				continue
			}
			for _, msg := range msgs {
				c.handle(ctx, msg)
			}
		}
	}
}

// sleep waits for the given duration or until stop is signalled.
func (c *Consumer) sleep(d time.Duration) {
	select {
	case <-c.stopCh:
	case <-time.After(d):
	}
}

// handle processes one events-queue message. Deletion policy:
//
//   - unparseable (poison) → delete, forward progress wins
//   - in_progress → informational, delete
//   - job_completed announcement → not a stage outcome, delete
//   - success → delete only if the controller handled it; otherwise the
//     message stays for redelivery
//   - failure/error → mark job failed, delete
//   - unknown job → logged, delete
func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	log := slog.With("message_id", msg.ID)

	ev, err := pipeline.ParseCompletionEvent(msg.Body)
	if err != nil {
		log.Warn("Poison message on events queue, deleting", "error", err)
		c.metrics.EventsProcessed.WithLabelValues("poison").Inc()
		c.delete(ctx, msg)
		return
	}

	if ev.IsAnnouncement() {
		c.metrics.EventsProcessed.WithLabelValues("announcement").Inc()
		c.delete(ctx, msg)
		return
	}

	stage := ev.Stage()
	log = log.With("job_id", ev.JobID, "stage", stage, "status", ev.Status)

	switch ev.Status {
	case pipeline.EventStatusInProgress:
		c.metrics.EventsProcessed.WithLabelValues("in_progress").Inc()
		c.delete(ctx, msg)

	case pipeline.EventStatusSuccess:
		if err := c.ctrl.OnStageComplete(ctx, ev.JobID, stage); err != nil {
			if errors.Is(err, jobs.ErrUnknownJob) {
				log.Warn("Completion event for unknown job, discarding")
				c.metrics.EventsProcessed.WithLabelValues("unknown_job").Inc()
				c.delete(ctx, msg)
				return
			}
			log.Error("Stage completion handling failed, leaving message for redelivery", "error", err)
			c.metrics.EventsProcessed.WithLabelValues("retry").Inc()
			return
		}
		c.metrics.EventsProcessed.WithLabelValues("success").Inc()
		c.delete(ctx, msg)

	case pipeline.EventStatusFailure, pipeline.EventStatusError:
		if err := c.ctrl.OnStageFailed(ev.JobID, stage, ev.Error); err != nil {
			if !errors.Is(err, jobs.ErrUnknownJob) {
				log.Error("Stage failure handling failed", "error", err)
			} else {
				log.Warn("Failure event for unknown job, discarding")
			}
		}
		c.metrics.EventsProcessed.WithLabelValues("failure").Inc()
		c.delete(ctx, msg)

	default:
		log.Warn("Completion event with unknown status, deleting")
		c.metrics.EventsProcessed.WithLabelValues("unknown_status").Inc()
		c.delete(ctx, msg)
	}
}

func (c *Consumer) delete(ctx context.Context, msg queue.Message) {
	if err := c.queues.Delete(ctx, c.queueURL, msg.ReceiptHandle); err != nil {
		slog.Warn("Failed to delete events message", "message_id", msg.ID, "error", err)
	}
}
