// Package metrics exposes the job registry and run aggregator as
// Prometheus instrumentation: package-level collectors registered into the
// default registry and served over promhttp.Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aadk/jobflow/internal/jobsvc/domain"
)

var (
	jobsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsvc_jobs_created_total",
			Help: "Total number of jobs created by job_type.",
		},
		[]string{"job_type"},
	)

	jobStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsvc_job_state_transitions_total",
			Help: "Total number of job state transitions by resulting state.",
		},
		[]string{"state"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsvc_events_published_total",
			Help: "Total number of job events published by kind.",
		},
		[]string{"kind"},
	)

	runStreamBufferDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobsvc_run_stream_buffer_depth",
			Help: "Current number of events buffered in the run-stream reorder buffer, summed across active subscriptions.",
		},
	)

	retentionRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobsvc_retention_removed_total",
			Help: "Total number of jobs removed by the retention worker.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		jobsCreatedTotal,
		jobStateTransitionsTotal,
		eventsPublishedTotal,
		runStreamBufferDepth,
		retentionRemovedTotal,
	)
}

// Registry adapts the package-level collectors to registry.Metrics.
type Registry struct{}

// ObserveJobCreated increments the per-job_type creation counter.
func (Registry) ObserveJobCreated(jobType string) {
	jobsCreatedTotal.WithLabelValues(jobType).Inc()
}

// ObserveJobStateChanged increments the per-state transition counter.
func (Registry) ObserveJobStateChanged(state domain.JobState) {
	jobStateTransitionsTotal.WithLabelValues(state.String()).Inc()
}

// ObserveEventPublished increments the per-kind publish counter.
func (Registry) ObserveEventPublished(kind domain.EventKind) {
	eventsPublishedTotal.WithLabelValues(string(kind)).Inc()
}

// AddBufferDepth adjusts the run-stream reorder buffer gauge by delta,
// which may be negative.
func AddBufferDepth(delta int) {
	runStreamBufferDepth.Add(float64(delta))
}

// ObserveRetentionRemoved increments the retention-removed counter by n.
func ObserveRetentionRemoved(n int) {
	retentionRemovedTotal.Add(float64(n))
}

// Handler returns the /metrics HTTP handler that cmd/jobsvc serves.
func Handler() http.Handler {
	return promhttp.Handler()
}
