// ============================================================================
// Action Execution Engine - Metrics
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Purpose: Collect and expose Prometheus metrics for the job lifecycle.
//
// Monitoring Philosophy:
//   RED (Rate, Errors, Duration) for the job pipeline, plus gauges for the
//   USE-style saturation view of each state's backlog.
//
// Metric Categories:
//
//   1. Job Counters - Cumulative, monotonically increasing:
//      - jobs_registered_total
//      - jobs_dispatched_total
//      - jobs_succeeded_total
//      - jobs_failed_total
//      - jobs_revoked_total
//
//   2. Performance Metrics (Histogram):
//      - job_state_transition_seconds: wall time of one Process() call,
//        recorded around the Manager's synchronous entry points.
//
//   3. Status Metrics (Gauge):
//      - jobs_by_state{state=...}: current size of each state-index set,
//        refreshed by the sweeper from Adapter.StateCount.
//
// ============================================================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ChuLiYu/action-engine/pkg/actions"
)

// Collector implements manager.Metrics and exposes a prometheus.Registry
// for internal/httpapi to serve.
type Collector struct {
	registry *prometheus.Registry

	jobsRegistered prometheus.Counter
	jobsDispatched prometheus.Counter
	jobsSucceeded  prometheus.Counter
	jobsFailed     prometheus.Counter
	jobsRevoked    prometheus.Counter

	transitionSeconds prometheus.Histogram
	sweepFound        *prometheus.CounterVec
	jobsByState       *prometheus.GaugeVec
}

// NewCollector builds a Collector with its own registry, so a test run
// never collides with the global default registry another package may
// have registered onto.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		jobsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_registered_total",
			Help: "Total number of jobs registered.",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_dispatched_total",
			Help: "Total number of jobs dispatched to an executor.",
		}),
		jobsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_succeeded_total",
			Help: "Total number of jobs that reached SUCCESS.",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs that reached FAILURE.",
		}),
		jobsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jobs_revoked_total",
			Help: "Total number of jobs that reached REVOKED.",
		}),
		transitionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "job_state_transition_seconds",
			Help:    "Wall time of one synchronous Process() walk.",
			Buckets: prometheus.DefBuckets,
		}),
		sweepFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_jobs_found_total",
			Help: "Total jobs sampled by the sweeper, by source state.",
		}, []string{"state"}),
		jobsByState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jobs_by_state",
			Help: "Current size of each job state's index set.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		c.jobsRegistered,
		c.jobsDispatched,
		c.jobsSucceeded,
		c.jobsFailed,
		c.jobsRevoked,
		c.transitionSeconds,
		c.sweepFound,
		c.jobsByState,
	)
	return c
}

// Registry exposes the collector's Prometheus registry, for
// internal/httpapi to mount at /metrics.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// RecordRegister satisfies manager.Metrics.
func (c *Collector) RecordRegister() { c.jobsRegistered.Inc() }

// RecordTransition satisfies manager.Metrics, bumping the terminal-state
// counters when a transition lands a job in one.
func (c *Collector) RecordTransition(from, to actions.Status) {
	switch to {
	case actions.StatusRunning:
		c.jobsDispatched.Inc()
	case actions.StatusSuccess:
		c.jobsSucceeded.Inc()
	case actions.StatusFailure:
		c.jobsFailed.Inc()
	case actions.StatusRevoked:
		c.jobsRevoked.Inc()
	}
}

// RecordSweepFound satisfies manager.Metrics.
func (c *Collector) RecordSweepFound(state actions.Status, n int) {
	c.sweepFound.WithLabelValues(string(state)).Add(float64(n))
}

// ObserveTransitionDuration records one Process() walk's wall time.
func (c *Collector) ObserveTransitionDuration(seconds float64) {
	c.transitionSeconds.Observe(seconds)
}

// SetStateGauge refreshes jobs_by_state for one status, typically called
// by the sweeper right after a RandomSample/StateCount round.
func (c *Collector) SetStateGauge(state actions.Status, n float64) {
	c.jobsByState.WithLabelValues(string(state)).Set(n)
}
