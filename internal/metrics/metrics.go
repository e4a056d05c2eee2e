// Package metrics holds the Prometheus collectors for the admission path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Admission aggregates the collectors recorded by the controller and the
// status manager. A nil *Admission is valid and records nothing, so tests and
// library embedders don't have to touch the global registry.
type Admission struct {
	checks         *prometheus.CounterVec
	commits        prometheus.Counter
	committedBytes prometheus.Counter
	statusChanges  *prometheus.CounterVec
	checkDuration  prometheus.Histogram
}

// New registers the collectors with the default registry. Call at most once
// per process.
func New() *Admission {
	return &Admission{
		checks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_admission_checks_total",
				Help: "Admission checks by result (allowed, rejected, bypass)",
			},
			[]string{"result"},
		),
		commits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_commits_total",
				Help: "Quota commits applied after dispatch",
			},
		),
		committedBytes: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tollgate_committed_bytes_total",
				Help: "Bytes charged against account windows",
			},
		),
		statusChanges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tollgate_status_changes_total",
				Help: "Administrative status changes by new status",
			},
			[]string{"status"},
		),
		checkDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tollgate_check_duration_seconds",
				Help:    "Latency of the Check phase",
				Buckets: prometheus.ExponentialBuckets(0.000001, 2, 15), // 1µs to 16ms
			},
		),
	}
}

// RecordCheck counts one Check phase outcome.
func (m *Admission) RecordCheck(result string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(result).Inc()
}

// RecordCommit counts one applied commit and the bytes it charged.
func (m *Admission) RecordCommit(size uint32) {
	if m == nil {
		return
	}
	m.commits.Inc()
	m.committedBytes.Add(float64(size))
}

// RecordStatusChange counts one administrative override flip.
func (m *Admission) RecordStatusChange(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// ObserveCheckDuration records the latency of one Check phase in seconds.
func (m *Admission) ObserveCheckDuration(seconds float64) {
	if m == nil {
		return
	}
	m.checkDuration.Observe(seconds)
}
