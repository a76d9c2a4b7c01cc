// Package metrics defines the orchestrator's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all orchestrator instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	JobsAdmitted    prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	JobsInProgress  prometheus.Gauge
	StageDispatched *prometheus.CounterVec
	EventsProcessed *prometheus.CounterVec
	JobsReaped      prometheus.Counter
}

// New creates and registers all orchestrator metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		JobsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagesmith_jobs_admitted_total",
			Help: "Number of jobs admitted via HTTP or the submissions queue",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagesmith_jobs_completed_total",
			Help: "Number of jobs that finished all five stages",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagesmith_jobs_failed_total",
			Help: "Number of jobs terminated by a stage failure",
		}),
		JobsInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pagesmith_jobs_in_progress",
			Help: "Jobs currently between admission and a terminal state",
		}),
		StageDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagesmith_stage_dispatched_total",
			Help: "Stage task messages dispatched, by stage",
		}, []string{"stage"}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pagesmith_events_processed_total",
			Help: "Completion events handled, by outcome",
		}, []string{"outcome"}),
		JobsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pagesmith_jobs_reaped_total",
			Help: "Terminal jobs evicted from the in-memory index",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.JobsAdmitted,
		m.JobsCompleted,
		m.JobsFailed,
		m.JobsInProgress,
		m.StageDispatched,
		m.EventsProcessed,
		m.JobsReaped,
	)
	return m
}

// Handler returns the text-format exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
