// Package metrics holds the prometheus collectors shared by the jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "capowatch"

// ── RPC ────────────────────────────────────────────────────────────────

var (
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "calls_total",
		Help:      "Contract calls and block lookups per network and outcome.",
	}, []string{"network", "status"})

	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "call_duration_seconds",
		Help:      "Latency of RPC calls per network.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"network"})
)

// ── Jobs ───────────────────────────────────────────────────────────────

var (
	JobRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "runs_total",
		Help:      "Scheduled job executions per job and outcome.",
	}, []string{"job", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "job",
		Name:      "duration_seconds",
		Help:      "Duration of scheduled job executions.",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"job"})
)

// ── Oracles ────────────────────────────────────────────────────────────

var (
	OraclesDiscovered = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "oracles",
		Help:      "Oracles found by the last discovery sweep per network.",
	}, []string{"network"})

	OraclePollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "collector",
		Name:      "polls_total",
		Help:      "Oracle polls per oracle and outcome.",
	}, []string{"oracle", "status"})

	OracleUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collector",
		Name:      "utilization_percent",
		Help:      "Share of the growth budget consumed per oracle.",
	}, []string{"oracle", "network"})

	OracleGrowthRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collector",
		Name:      "growth_rate_percent",
		Help:      "Annualised ratio growth since the snapshot per oracle.",
	}, []string{"oracle", "network"})

	OracleCapped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "collector",
		Name:      "capped",
		Help:      "1 when the oracle reports its ratio as capped.",
	}, []string{"oracle", "network"})

	AggregationsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "aggregator",
		Name:      "rows_written_total",
		Help:      "Daily aggregation rows written.",
	})
)

// ── Alerts ─────────────────────────────────────────────────────────────

var (
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "sent_total",
		Help:      "Alerts successfully delivered.",
	}, []string{"type"})

	AlertsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "failed_total",
		Help:      "Alert delivery failures.",
	}, []string{"type"})

	AlertsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "alerts",
		Name:      "deduplicated_total",
		Help:      "Alerts suppressed by the cooldown window.",
	}, []string{"type"})
)

// BoolGauge converts a flag to a gauge value.
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
