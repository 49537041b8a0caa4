package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeOK labels analyses that produced a usable decision.
	OutcomeOK = "ok"
	// OutcomeUnknown labels analyses that ended in the unknown state.
	OutcomeUnknown = "unknown"
	// OutcomeViolation labels analyses blocked by the version policy.
	OutcomeViolation = "violation"
)

var (
	analysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pkg_sentinel",
			Name:      "analyses_total",
			Help:      "Total number of analyses handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	analysisDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pkg_sentinel",
			Name:      "analysis_seconds",
			Help:      "End-to-end analysis latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		},
	)

	oracleDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pkg_sentinel",
			Name:      "oracle_seconds",
			Help:      "Per-oracle response time in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4},
		},
		[]string{"oracle"},
	)

	oracleFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pkg_sentinel",
			Name:      "oracle_failures_total",
			Help:      "Total oracle invocations that failed at the oracle boundary.",
		},
		[]string{"oracle"},
	)

	activeAlerts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pkg_sentinel",
			Name:      "active_alerts",
			Help:      "Number of unresolved monitoring alerts.",
		},
	)
)

// Register attaches the engine collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		analysesTotal,
		analysisDurationSeconds,
		oracleDurationSeconds,
		oracleFailuresTotal,
		activeAlerts,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveAnalysis records an analysis duration and outcome label.
func ObserveAnalysis(duration time.Duration, outcome string) {
	analysesTotal.WithLabelValues(outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	analysisDurationSeconds.Observe(duration.Seconds())
}

// ObserveOracle records one oracle invocation.
func ObserveOracle(name string, duration time.Duration, succeeded bool) {
	if duration < 0 {
		duration = 0
	}
	oracleDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
	if !succeeded {
		oracleFailuresTotal.WithLabelValues(name).Inc()
	}
}

// SetActiveAlerts updates the unresolved alert gauge.
func SetActiveAlerts(count int) {
	activeAlerts.Set(float64(count))
}
