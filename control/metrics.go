// File: control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the correlation engine. Registered on a
// dedicated registry so embedding applications choose where to expose it.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	CallsIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioloadrpc",
			Name:      "calls_issued_total",
			Help:      "Outbound requests issued, by request type.",
		},
		[]string{"req_type"},
	)

	CallsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioloadrpc",
			Name:      "calls_completed_total",
			Help:      "Continuation invocations, by completion status.",
		},
		[]string{"status"},
	)

	RelaysCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "hioloadrpc",
			Name:      "relays_completed_total",
			Help:      "Original requests completed after a relay fan-out.",
		},
	)

	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hioloadrpc",
			Name:      "liveness_probes_total",
			Help:      "Liveness probes, by result.",
		},
		[]string{"result"},
	)

	PendingCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hioloadrpc",
			Name:      "pending_calls",
			Help:      "Calls currently outstanding in the correlation registry.",
		},
	)

	PoolLeased = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hioloadrpc",
			Name:      "pool_leased_buffers",
			Help:      "Pooled buffers currently leased out.",
		},
	)
)

func init() {
	Registry.MustRegister(CallsIssued, CallsCompleted, RelaysCompleted,
		ProbesTotal, PendingCalls, PoolLeased)
}

// MetricsHandler exposes the engine registry for mounting on an HTTP mux.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
