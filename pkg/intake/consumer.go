package intake

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/queue"
)

// BlobGetter fetches a queue-referenced brief from the blob store.
type BlobGetter interface {
	Get(ctx context.Context, key string) (map[string]any, error)
}

// Receiver is the queue surface the consumer needs.
type Receiver interface {
	Receive(ctx context.Context, queueURL string, max int32, wait time.Duration) ([]queue.Message, error)
	Delete(ctx context.Context, queueURL, receiptHandle string) error
}

// Consumer long-polls the submissions queue and admits jobs through the
// same Admitter as the HTTP path.
type Consumer struct {
	queues   Receiver
	blobs    BlobGetter
	admitter *Admitter
	queueURL string
	batch    int32
	wait     time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewConsumer creates a submissions consumer.
func NewConsumer(queues Receiver, blobs BlobGetter, admitter *Admitter, queueURL string, batch int32, wait time.Duration) *Consumer {
	return &Consumer{
		queues:   queues,
		blobs:    blobs,
		admitter: admitter,
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
// and waits for the loop to finish. It is safe to call Stop multiple times.
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

	log := slog.With("consumer", "submissions")
	log.Info("Submissions consumer started", "queue", c.queueURL)

	for {
		select {
		case <-c.stopCh:
			log.Info("Submissions consumer shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, submissions consumer shutting down")
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

// handle processes one submission. Malformed messages are logged and
// NOT deleted: the queue's dead-letter policy owns repeat offenders.
// Successfully admitted (or duplicate) submissions are deleted.
func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	log := slog.With("message_id", msg.ID)

	sub, err := ParseSubmission(ctx, c.blobs, msg.Body)
	if err != nil {
		// Covers both unparseable bodies and transient blob fetch
		// failures; either way the message stays queued. Redelivery
		// retries the transient case and the DLQ policy owns repeats.
		log.Warn("Submission not processable, leaving on queue", "error", err)
		return
	}

	// Brief fetches from the blob store are the only transient step left
	// on this path; the admission-time dispatch retries internally in
	// the controller. Duplicate and validation failures are permanent.
	if _, err := c.admitter.Admit(ctx, sub.JobID, sub.Brief); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			log.Info("Duplicate submission, deleting", "job_id", sub.JobID)
			c.delete(ctx, msg)
			return
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			log.Warn("Invalid brief in submission, leaving for DLQ policy", "error", verr)
			return
		}
		log.Error("Admission failed, leaving message for redelivery", "error", err)
		return
	}

	log.Info("Submission admitted", "job_id", sub.JobID)
	c.delete(ctx, msg)
}

func (c *Consumer) delete(ctx context.Context, msg queue.Message) {
	if err := c.queues.Delete(ctx, c.queueURL, msg.ReceiptHandle); err != nil {
		slog.Warn("Failed to delete submission message", "message_id", msg.ID, "error", err)
	}
}
