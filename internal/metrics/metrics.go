// Package metrics holds the Prometheus collectors of the service.
//
// promauto registers every collector with the default registry at package
// init, so importing this package is enough for /metrics (promhttp.Handler)
// to expose them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botnet_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botnet_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// GraphOperationsTotal counts service operations by outcome kind
	// ("ok", "not_found", "transient_store_failure", ...).
	GraphOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botnet_graph_operations_total",
			Help: "Social graph operations by result kind",
		},
		[]string{"op", "result"},
	)

	GraphOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botnet_graph_operation_duration_seconds",
			Help:    "Duration of social graph operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	InvariantViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "botnet_invariant_violations_total",
			Help: "Relationship invariant violations detected by operations",
		},
	)

	// AuditViolations is the violation count of the most recent audit.
	AuditViolations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "botnet_audit_violations",
			Help: "Violations found by the most recent graph audit",
		},
	)

	OutboxPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botnet_outbox_published_total",
			Help: "Outbox events handed to the sink, by result",
		},
		[]string{"result"},
	)
)

// ObserveGraphOp records one finished operation.
func ObserveGraphOp(op, result string, start time.Time) {
	GraphOperationsTotal.WithLabelValues(op, result).Inc()
	GraphOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
