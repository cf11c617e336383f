// Package metrics exposes the Prometheus metrics of the data engine service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dataengine"

// Registry owns the service collectors and the Prometheus registry they are
// registered with. It implements dataengine.Recorder.
type Registry struct {
	registry *prometheus.Registry

	upserts         *prometheus.CounterVec
	deletes         *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	intopicMessages *prometheus.CounterVec
}

// NewRegistry creates a registry with the service metrics and the Go runtime and
// process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		upserts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upserts_total",
				Help:      "Entities upserted, by entity type and outcome (created, updated, unchanged)",
			},
			[]string{"entity_type", "outcome"},
		),

		deletes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deletes_total",
				Help:      "Entities deleted, including cascaded deletes",
			},
			[]string{"entity_type"},
		),

		operationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Failed data engine operations",
			},
			[]string{"operation"},
		),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served, by method and status code",
			},
			[]string{"method", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),

		intopicMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "intopic",
				Name:      "messages_total",
				Help:      "In-topic messages consumed, by event type and status (processed, failed, malformed)",
			},
			[]string{"event_type", "status"},
		),
	}

	r.registry.MustRegister(
		r.upserts,
		r.deletes,
		r.operationErrors,
		r.httpRequests,
		r.httpDuration,
		r.intopicMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// RecordUpsert counts an upserted entity.
func (r *Registry) RecordUpsert(entityType, outcome string) {
	r.upserts.WithLabelValues(entityType, outcome).Inc()
}

// RecordDelete counts a deleted entity.
func (r *Registry) RecordDelete(entityType string) {
	r.deletes.WithLabelValues(entityType).Inc()
}

// RecordError counts a failed operation.
func (r *Registry) RecordError(operation string) {
	r.operationErrors.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest counts a served request and records its duration.
func (r *Registry) ObserveHTTPRequest(method string, status int, duration time.Duration) {
	r.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordMessage counts a consumed in-topic message.
func (r *Registry) RecordMessage(eventType, status string) {
	r.intopicMessages.WithLabelValues(eventType, status).Inc()
}

// Gatherer returns the underlying registry for inspection.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}
