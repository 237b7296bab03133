package utils

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ReqCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ReqDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "buddy_http_request_duration_seconds",
			Help: "Request duration seconds",
		},
		[]string{"method", "path"},
	)

	// result: applied | noop | dropped | stale | failed
	ReconcileCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_reconciliations_total",
			Help: "Reconciliation passes by outcome",
		},
		[]string{"result"},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buddy_reconcile_duration_seconds",
			Help:    "Time spent in one reconciliation pass, including persistence",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)

	ActionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_actions_total",
			Help: "Care actions by outcome",
		},
		[]string{"action", "result"},
	)

	AlertCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buddy_alerts_total",
			Help: "Needs-attention alerts emitted",
		},
		[]string{"kind"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "buddy_active_sessions",
			Help: "Open reconciliation sessions",
		},
	)
)

var metricsOnce sync.Once

func InitMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			ReqCount,
			ReqDuration,
			ReconcileCount,
			ReconcileDuration,
			ActionCount,
			AlertCount,
			ActiveSessions,
		)
	})
}
