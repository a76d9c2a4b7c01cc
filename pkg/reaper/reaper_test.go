package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
	"github.com/pagesmith/pagesmith/pkg/pipeline"
)

func seedIndex(t *testing.T) *jobs.Index {
	t.Helper()
	index := jobs.NewIndex()

	_, err := index.Create("active", jobs.Brief{Product: "Acme", Audience: "Devs"})
	require.NoError(t, err)
	require.NoError(t, index.Start("active"))
	index.TouchDispatch("active")

	_, err = index.Create("done", jobs.Brief{Product: "Acme", Audience: "Devs"})
	require.NoError(t, err)
	_, err = index.MarkStageComplete("done", pipeline.StageResearch, "boom")
	require.NoError(t, err)

	return index
}

func TestSweepEvictsAgedTerminalJobs(t *testing.T) {
	index := seedIndex(t)
	// Negative TTL makes the just-failed job older than the cutoff.
	r := New(index, metrics.New(), time.Hour, -time.Second, 0)

	r.sweep()

	_, ok := index.Lookup("done")
	assert.False(t, ok)
	_, ok = index.Lookup("active")
	assert.True(t, ok)
}

func TestSweepLeavesFreshTerminalJobs(t *testing.T) {
	index := seedIndex(t)
	r := New(index, metrics.New(), time.Hour, 24*time.Hour, 0)

	r.sweep()

	_, ok := index.Lookup("done")
	assert.True(t, ok)
}

// With a stage deadline configured, a stuck job is failed on one sweep
// and evicted once it ages out.
func TestSweepFailsStuckJobs(t *testing.T) {
	index := seedIndex(t)
	r := New(index, metrics.New(), time.Hour, 24*time.Hour, -time.Second)

	r.sweep()

	job, ok := index.Lookup("active")
	require.True(t, ok)
	assert.Equal(t, jobs.StatusFailed, job.Status)
	assert.Equal(t, "stage deadline exceeded", job.Error)
}

func TestSweepZeroDeadlineNeverFails(t *testing.T) {
	index := seedIndex(t)
	r := New(index, metrics.New(), time.Hour, 24*time.Hour, 0)

	r.sweep()

	job, _ := index.Lookup("active")
	assert.Equal(t, jobs.StatusInProgress, job.Status)
}

func TestStartStopLifecycle(t *testing.T) {
	index := seedIndex(t)
	r := New(index, metrics.New(), 5*time.Millisecond, -time.Second, 0)

	r.Start(context.Background())
	require.Eventually(t, func() bool {
		_, ok := index.Lookup("done")
		return !ok
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	r.Stop() // idempotent
}
