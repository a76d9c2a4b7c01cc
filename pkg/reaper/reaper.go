// Package reaper evicts terminal jobs from the in-memory index once
// they age out. Artifacts in the blob store are never touched —
// retention there is external.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagesmith/pagesmith/pkg/jobs"
	"github.com/pagesmith/pagesmith/pkg/metrics"
)

// Reaper periodically sweeps the job index. Non-terminal jobs are never
// evicted; when a stage deadline is configured, jobs stuck past it are
// first forced into failed status so a later sweep can evict them.
type Reaper struct {
	index    *jobs.Index
	metrics  *metrics.Metrics
	interval time.Duration
	ttl      time.Duration

	// stageDeadline forces long-stuck in_progress jobs to failed.
	// Zero disables the staleness sweep.
	stageDeadline time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a reaper.
func New(index *jobs.Index, m *metrics.Metrics, interval, ttl, stageDeadline time.Duration) *Reaper {
	return &Reaper{
		index:         index,
		metrics:       m,
		interval:      interval,
		ttl:           ttl,
		stageDeadline: stageDeadline,
	}
}

// Start launches the background sweep loop.
func (r *Reaper) Start(ctx context.Context) {
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})

	go r.run(ctx)

	slog.Info("Reaper started",
		"interval", r.interval,
		"job_ttl", r.ttl,
		"stage_deadline", r.stageDeadline)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (r *Reaper) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	slog.Info("Reaper stopped")
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	if stale := r.index.FailStale(r.stageDeadline); len(stale) > 0 {
		for range stale {
			r.metrics.JobsFailed.Inc()
			r.metrics.JobsInProgress.Dec()
		}
		slog.Warn("Jobs failed by stage deadline", "count", len(stale), "job_ids", stale)
	}

	if evicted := r.index.Reap(r.ttl); evicted > 0 {
		r.metrics.JobsReaped.Add(float64(evicted))
		slog.Info("Reaped terminal jobs", "count", evicted)
	}
}
