// Package telemetry exposes Prometheus metrics and an OpenTelemetry tracer
// for the Pipeline Engine, Group Orchestrator, VCS Adapter, and SDK Runner.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawflow",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Stage run duration in seconds",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
	}, []string{"stage", "status"})

	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawflow",
		Subsystem: "pipeline",
		Name:      "stage_transitions_total",
		Help:      "Total stage transitions by outcome",
	}, []string{"stage", "outcome"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawflow",
		Subsystem: "pipeline",
		Name:      "circuit_breaker_trips_total",
		Help:      "Total circuit-breaker trips by stage kind",
	}, []string{"kind"})

	sdkRunRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawflow",
		Subsystem: "sdkrunner",
		Name:      "run_retries_total",
		Help:      "Total SDK Runner retry attempts by classification",
	}, []string{"retryable"})

	sdkRunTokens = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawflow",
		Subsystem: "sdkrunner",
		Name:      "run_context_tokens",
		Help:      "Context tokens consumed per run",
		Buckets:   []float64{1000, 5000, 10000, 25000, 50000, 100000, 150000, 200000},
	}, []string{"model"})

	vcsOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawflow",
		Subsystem: "vcs",
		Name:      "operations_total",
		Help:      "Total VCS Adapter operations by kind and outcome",
	}, []string{"op", "outcome"})

	vcsDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "clawflow",
		Subsystem: "vcs",
		Name:      "operation_duration_seconds",
		Help:      "Git subprocess duration in seconds by operation",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})

	groupEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "clawflow",
		Subsystem: "orchestrator",
		Name:      "group_events_total",
		Help:      "Total group lifecycle events by action",
	}, []string{"action"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "clawflow",
		Subsystem: "sdkrunner",
		Name:      "active_sessions",
		Help:      "Number of currently active SDK Runner sessions",
	})
)

// RecordStageDuration records how long a stage run took and its outcome.
func RecordStageDuration(stage, status string, durationSec float64) {
	stageDuration.WithLabelValues(stage, status).Observe(durationSec)
}

// RecordStageTransition records a stage transition (advance, reject, restart).
func RecordStageTransition(stage, outcome string) {
	stageTransitions.WithLabelValues(stage, outcome).Inc()
}

// RecordCircuitBreakerTrip records a circuit-breaker trip, labeled by
// whether it was the plan or implementation review counter.
func RecordCircuitBreakerTrip(kind string) {
	circuitBreakerTrips.WithLabelValues(kind).Inc()
}

// RecordSDKRunRetry records one retry attempt, labeled "true"/"false" for
// whether the triggering error was classified retryable.
func RecordSDKRunRetry(retryable bool) {
	label := "false"
	if retryable {
		label = "true"
	}
	sdkRunRetries.WithLabelValues(label).Inc()
}

// RecordSDKRunTokens records the context token usage of one completed run.
func RecordSDKRunTokens(model string, tokens int) {
	sdkRunTokens.WithLabelValues(model).Observe(float64(tokens))
}

// RecordVCSOperation records one VCS Adapter operation outcome and its
// subprocess duration.
func RecordVCSOperation(op, outcome string, durationSec float64) {
	vcsOperations.WithLabelValues(op, outcome).Inc()
	vcsDuration.WithLabelValues(op).Observe(durationSec)
}

// RecordGroupEvent records one group lifecycle transition (launch, pause,
// resume, complete, delete).
func RecordGroupEvent(action string) {
	groupEvents.WithLabelValues(action).Inc()
}

// SessionStarted increments the active-session gauge.
func SessionStarted() { activeSessions.Inc() }

// SessionEnded decrements the active-session gauge.
func SessionEnded() { activeSessions.Dec() }
