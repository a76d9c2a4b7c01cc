// Package queue provides send, long-poll receive, and delete against
// named SQS queues. Delivery is at-least-once: the adapter never
// acknowledges on behalf of the caller — a message is redelivered until
// the caller deletes it, which is how redelivery-on-crash is achieved.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ErrQueueUnavailable indicates a transport-level failure talking to
// the queue service.
var ErrQueueUnavailable = errors.New("queue unavailable")

// maxReceiveWait is the SQS long-poll ceiling.
const maxReceiveWait = 20 * time.Second

// Message is one received queue message. ReceiptHandle must be passed
// back to Delete to acknowledge processing.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// MessageAPI is the subset of the SQS client used by Client.
type MessageAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Client is the queue adapter. Queues are addressed by URL.
type Client struct {
	api MessageAPI
}

// NewClient creates a queue adapter over the given SQS client.
func NewClient(api MessageAPI) *Client {
	return &Client{api: api}
}

// Send enqueues an opaque message body. At-least-once semantics.
func (c *Client) Send(ctx context.Context, queueURL, body string) error {
	_, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("%w: send to %s: %v", ErrQueueUnavailable, queueURL, err)
	}
	return nil
}

// Receive long-polls the queue for up to wait, returning at most max
// messages. An empty slice means the poll timed out with nothing to do.
func (c *Client) Receive(ctx context.Context, queueURL string, max int32, wait time.Duration) ([]Message, error) {
	if wait > maxReceiveWait {
		wait = maxReceiveWait
	}
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: max,
		WaitTimeSeconds:     int32(wait / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: receive from %s: %v", ErrQueueUnavailable, queueURL, err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Delete acknowledges a message by receipt handle. Idempotent: deleting
// an already-deleted or expired handle is not an error.
func (c *Client) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		var invalid *types.ReceiptHandleIsInvalid
		if errors.As(err, &invalid) {
			return nil
		}
		return fmt.Errorf("%w: delete from %s: %v", ErrQueueUnavailable, queueURL, err)
	}
	return nil
}
