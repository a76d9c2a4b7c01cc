package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/blob"
	"github.com/pagesmith/pagesmith/pkg/controller"
	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
	"github.com/pagesmith/pagesmith/pkg/pipeline"
	"github.com/pagesmith/pagesmith/pkg/queue"
)

const testQueueURL = "https://sqs.test/events"

type fakeReceiver struct {
	mu       sync.Mutex
	messages []queue.Message
	deleted  []string
}

func (f *fakeReceiver) Receive(_ context.Context, _ string, _ int32, _ time.Duration) ([]queue.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages
	f.messages = nil
	return msgs, nil
}

func (f *fakeReceiver) Delete(_ context.Context, _ string, receiptHandle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, receiptHandle)
	return nil
}

func (f *fakeReceiver) deletedHandles() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

type fakeBlobs struct {
	objects map[string]map[string]any
}

func (f *fakeBlobs) Get(_ context.Context, key string) (map[string]any, error) {
	obj, ok := f.objects[key]
	if !ok {
		return nil, blob.ErrNotFound
	}
	return obj, nil
}

type fakeDispatcher struct {
	stages []pipeline.Stage
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, stage pipeline.Stage, _ map[string]any) error {
	f.stages = append(f.stages, stage)
	return nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(_ context.Context, _, body string) error {
	f.sent = append(f.sent, body)
	return nil
}

type fixture struct {
	receiver   *fakeReceiver
	blobs      *fakeBlobs
	dispatcher *fakeDispatcher
	index      *jobs.Index
	consumer   *Consumer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		receiver:   &fakeReceiver{},
		blobs:      &fakeBlobs{objects: make(map[string]map[string]any)},
		dispatcher: &fakeDispatcher{},
		index:      jobs.NewIndex(),
	}
	m := metrics.New()
	ctrl := controller.New(f.index, f.blobs, f.dispatcher, &fakeSender{}, m, testQueueURL, true)
	f.consumer = NewConsumer(f.receiver, ctrl, m, testQueueURL, 10, 0)
	return f
}

func (f *fixture) admit(t *testing.T, jobID string) {
	t.Helper()
	_, err := f.index.Create(jobID, jobs.Brief{Product: "Acme", Audience: "Devs"})
	require.NoError(t, err)
	require.NoError(t, f.index.Start(jobID))
}

func msg(id, body string) queue.Message {
	return queue.Message{ID: id, Body: body, ReceiptHandle: "rh-" + id}
}

func TestHandleSuccessAdvancesAndDeletes(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")
	f.blobs.objects[pipeline.ResultKey("j1", pipeline.StageResearch)] = map[string]any{"findings": "x"}

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task_type":"research","status":"success"}`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
	assert.Equal(t, []pipeline.Stage{pipeline.StageProductManager}, f.dispatcher.stages)
}

// When the next input cannot be built the message is left on the queue
// so redelivery can retry.
func TestHandleSuccessTransientFailureKeepsMessage(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")
	// No result artifact stored: building the next input fails.

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task_type":"research","status":"success"}`))

	assert.Empty(t, f.receiver.deleted)
	assert.Empty(t, f.dispatcher.stages)
}

func TestHandleFailureMarksJobAndDeletes(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task_type":"drawer","status":"failure","error":"render timeout"}`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
	job, _ := f.index.Lookup("j1")
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "render timeout", job.Error)
}

func TestHandleErrorStatusTreatedAsFailure(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task":"coder","status":"error","error":"oom"}`))

	job, _ := f.index.Lookup("j1")
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
}

func TestHandlePoisonMessageDeleted(t *testing.T) {
	f := newFixture(t)

	f.consumer.handle(context.Background(), msg("m1", `{"job_id":`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
}

func TestHandleAnnouncementDeletedWithoutStateChange(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","event_type":"job_completed","status":"success"}`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
	assert.Empty(t, f.dispatcher.stages)
	job, _ := f.index.Lookup("j1")
	assert.Empty(t, job.CompletedStages)
}

func TestHandleInProgressDeleted(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task_type":"research","status":"in_progress"}`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
	assert.Empty(t, f.dispatcher.stages)
}

func TestHandleUnknownJobDiscarded(t *testing.T) {
	f := newFixture(t)

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"ghost","task_type":"research","status":"success"}`))
	f.consumer.handle(context.Background(),
		msg("m2", `{"job_id":"ghost","task_type":"research","status":"failure"}`))

	assert.Equal(t, []string{"rh-m1", "rh-m2"}, f.receiver.deleted)
}

func TestHandleUnknownStatusDeleted(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")

	f.consumer.handle(context.Background(),
		msg("m1", `{"job_id":"j1","task_type":"research","status":"paused"}`))

	assert.Equal(t, []string{"rh-m1"}, f.receiver.deleted)
	job, _ := f.index.Lookup("j1")
	assert.Empty(t, job.CompletedStages)
}

// blockingReceiver holds a long poll open until the context is cancelled.
type blockingReceiver struct{}

func (b *blockingReceiver) Receive(ctx context.Context, _ string, _ int32, _ time.Duration) ([]queue.Message, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (b *blockingReceiver) Delete(context.Context, string, string) error { return nil }

// Stop must abort an in-flight long poll rather than wait out the full
// receive window.
func TestStopAbortsInFlightReceive(t *testing.T) {
	m := metrics.New()
	ctrl := controller.New(jobs.NewIndex(), &fakeBlobs{}, &fakeDispatcher{}, &fakeSender{}, m, testQueueURL, true)
	c := NewConsumer(&blockingReceiver{}, ctrl, m, testQueueURL, 10, 20*time.Second)

	c.Start(context.Background())

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop while a receive was in flight")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)
	f.admit(t, "j1")
	f.blobs.objects[pipeline.ResultKey("j1", pipeline.StageResearch)] = map[string]any{"findings": "x"}
	f.receiver.messages = []queue.Message{
		msg("m1", `{"job_id":"j1","task_type":"research","status":"success"}`),
	}

	f.consumer.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(f.receiver.deletedHandles()) == 1
	}, time.Second, 5*time.Millisecond)

	f.consumer.Stop()
	f.consumer.Stop() // idempotent
}
