package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMessageAPI is an in-memory queue map behind the SQS client surface.
type fakeMessageAPI struct {
	queues      map[string][]types.Message
	lastReceive *sqs.ReceiveMessageInput
	sendErr     error
	receiveErr  error
	deleteErr   error
	deleted     []string
	seq         int
}

func newFakeMessageAPI() *fakeMessageAPI {
	return &fakeMessageAPI{queues: make(map[string][]types.Message)}
}

func (f *fakeMessageAPI) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.seq++
	url := aws.ToString(params.QueueUrl)
	f.queues[url] = append(f.queues[url], types.Message{
		MessageId:     aws.String(fmt.Sprintf("m%d", f.seq)),
		Body:          params.MessageBody,
		ReceiptHandle: aws.String(fmt.Sprintf("rh%d", f.seq)),
	})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeMessageAPI) ReceiveMessage(_ context.Context, params *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	f.lastReceive = params
	url := aws.ToString(params.QueueUrl)
	n := int(params.MaxNumberOfMessages)
	if n > len(f.queues[url]) {
		n = len(f.queues[url])
	}
	return &sqs.ReceiveMessageOutput{Messages: f.queues[url][:n]}, nil
}

func (f *fakeMessageAPI) DeleteMessage(_ context.Context, params *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

const testURL = "https://sqs.test/q"

func TestSendReceiveDelete(t *testing.T) {
	api := newFakeMessageAPI()
	c := NewClient(api)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, testURL, `{"job_id":"j1"}`))
	require.NoError(t, c.Send(ctx, testURL, `{"job_id":"j2"}`))

	msgs, err := c.Receive(ctx, testURL, 10, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"job_id":"j1"}`, msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)

	require.NoError(t, c.Delete(ctx, testURL, msgs[0].ReceiptHandle))
	assert.Equal(t, []string{msgs[0].ReceiptHandle}, api.deleted)
}

func TestReceiveRespectsMax(t *testing.T) {
	api := newFakeMessageAPI()
	c := NewClient(api)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Send(ctx, testURL, "body"))
	}

	msgs, err := c.Receive(ctx, testURL, 3, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	assert.Equal(t, int32(3), api.lastReceive.MaxNumberOfMessages)
}

// Long-poll waits are clamped to the service ceiling of 20 seconds.
func TestReceiveClampsWait(t *testing.T) {
	api := newFakeMessageAPI()
	c := NewClient(api)

	_, err := c.Receive(context.Background(), testURL, 1, 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(20), api.lastReceive.WaitTimeSeconds)

	_, err = c.Receive(context.Background(), testURL, 1, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(5), api.lastReceive.WaitTimeSeconds)
}

func TestReceiveEmptyQueue(t *testing.T) {
	c := NewClient(newFakeMessageAPI())

	msgs, err := c.Receive(context.Background(), testURL, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// Deleting an expired or already-deleted handle is not an error.
func TestDeleteInvalidHandleIgnored(t *testing.T) {
	api := newFakeMessageAPI()
	api.deleteErr = &types.ReceiptHandleIsInvalid{}
	c := NewClient(api)

	assert.NoError(t, c.Delete(context.Background(), testURL, "expired"))
}

func TestTransportErrorsClassified(t *testing.T) {
	api := newFakeMessageAPI()
	api.sendErr = errors.New("connection refused")
	api.receiveErr = errors.New("connection refused")
	api.deleteErr = errors.New("connection refused")
	c := NewClient(api)
	ctx := context.Background()

	assert.ErrorIs(t, c.Send(ctx, testURL, "body"), ErrQueueUnavailable)

	_, err := c.Receive(ctx, testURL, 1, 0)
	assert.ErrorIs(t, err, ErrQueueUnavailable)

	assert.ErrorIs(t, c.Delete(ctx, testURL, "rh"), ErrQueueUnavailable)
}
