// Package metrics exposes Prometheus instrumentation for interpreter steps.
// Collectors are registered on the default registry; hosts that scrape
// promhttp get them for free.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statechart_events_total",
			Help: "A count of processed events by outcome.",
		},
		[]string{"machine", "event", "outcome"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "statechart_step_duration_seconds",
			Help:    "Time spent processing one event to completion.",
			Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1},
		},
		[]string{"machine"},
	)

	interpretersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "statechart_interpreters_active",
			Help: "Number of running interpreters per machine.",
		},
		[]string{"machine"},
	)
)

// Outcome labels for ObserveStep.
const (
	OutcomeTransitioned = "transitioned"
	OutcomeUnmatched    = "unmatched"
	OutcomeDiscarded    = "discarded"
	OutcomeError        = "error"
)

// ObserveStep records one processed event.
func ObserveStep(machine, event, outcome string, d time.Duration) {
	eventsTotal.WithLabelValues(machine, event, outcome).Inc()
	stepDuration.WithLabelValues(machine).Observe(d.Seconds())
}

// InterpreterStarted bumps the running-interpreter gauge.
func InterpreterStarted(machine string) {
	interpretersActive.WithLabelValues(machine).Inc()
}

// InterpreterStopped drops the running-interpreter gauge.
func InterpreterStopped(machine string) {
	interpretersActive.WithLabelValues(machine).Dec()
}
