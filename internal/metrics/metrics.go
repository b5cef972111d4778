// Package metrics exposes Prometheus instruments for targeting runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Trial outcome labels
const (
	OutcomeCompleted = "completed"
	OutcomeSkipped   = "skipped"
)

var (
	// TrialsTotal counts permutation trials by outcome
	TrialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fctarget_trials_total",
		Help: "Permutation trials by outcome",
	}, []string{"outcome"})

	// TrialSkipsTotal counts skipped trials by reason
	TrialSkipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fctarget_trial_skips_total",
		Help: "Skipped permutation trials by reason",
	}, []string{"reason"})

	// TrialDuration tracks the engine time of a single trial
	TrialDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fctarget_trial_duration_seconds",
		Help:    "Duration of one permutation trial",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
	})

	// RunsTotal counts finished runs by status
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fctarget_runs_total",
		Help: "Targeting runs by terminal status",
	}, []string{"status"})

	// RunDuration tracks end-to-end run latency
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fctarget_run_duration_seconds",
		Help:    "Duration of a full targeting run",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
	})

	// LastThreshold records the most recent permutation threshold
	LastThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fctarget_last_threshold",
		Help: "Most recent two-sided |r| threshold",
	})

	// ActiveRuns tracks runs in flight in the API server
	ActiveRuns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fctarget_active_runs",
		Help: "Targeting runs currently executing",
	})
)

// ObserveTrial records a completed trial
func ObserveTrial(seconds float64) {
	TrialsTotal.WithLabelValues(OutcomeCompleted).Inc()
	TrialDuration.Observe(seconds)
}

// ObserveSkip records a skipped trial
func ObserveSkip(reason string) {
	TrialsTotal.WithLabelValues(OutcomeSkipped).Inc()
	TrialSkipsTotal.WithLabelValues(reason).Inc()
}
