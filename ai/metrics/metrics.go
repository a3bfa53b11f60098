// Package metrics exposes Prometheus instrumentation for the agent engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts agent requests by resolved route.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Name:      "requests_total",
		Help:      "Total agent requests by route.",
	}, []string{"route"})

	// RetriesTotal counts query repair attempts by route.
	RetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Name:      "retries_total",
		Help:      "Total query repair retries by route.",
	}, []string{"route"})

	// RequestDuration tracks end-to-end request latency by route.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "agent",
		Name:      "request_duration_seconds",
		Help:      "End-to-end agent request duration by route.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"route"})

	// NodeErrors counts node failures by node name.
	NodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "agent",
		Name:      "node_errors_total",
		Help:      "Total node execution errors by node.",
	}, []string{"node"})

	// ActiveStreams gauges concurrently open event streams.
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agent",
		Name:      "active_streams",
		Help:      "Number of concurrently open event streams.",
	})
)
