package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds all Prometheus metrics for the application. Each
// collector owns its registry, so tests can build as many as they like.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Graph metrics
	NodesCreated  prometheus.Counter
	NodesDeleted  prometheus.Counter
	EdgesCreated  prometheus.Counter
	EdgesRejected *prometheus.CounterVec

	// Operation metrics
	Operations         *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	StaleCompletions   prometheus.Counter
	OperationsInFlight prometheus.Gauge
	AbsentNodeIntents  *prometheus.CounterVec

	// Canvas metrics
	LiveSurfaces   prometheus.Gauge
	CropOperations *prometheus.CounterVec

	// Asset store metrics
	DBOperations *prometheus.CounterVec
	DBDuration   *prometheus.HistogramVec

	// Infrastructure metrics
	EventsPublished     *prometheus.CounterVec
	TaskPanics          prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector with the given namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		NodesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Total number of nodes created",
		}),
		NodesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_deleted_total",
			Help:      "Total number of nodes deleted",
		}),
		EdgesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_created_total",
			Help:      "Total number of edges created",
		}),
		EdgesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edges_rejected_total",
			Help:      "Edge additions refused by the graph, by reason",
		}, []string{"reason"}),

		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_operations_total",
			Help:      "Asynchronous node operations by kind and outcome",
		}, []string{"kind", "outcome"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_operation_duration_seconds",
			Help:      "Duration of asynchronous node operations",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"kind"}),
		StaleCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_completions_total",
			Help:      "Completions discarded because their node was deleted or superseded",
		}),
		OperationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "node_operations_in_flight",
			Help:      "Asynchronous node operations currently running",
		}),
		AbsentNodeIntents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "absent_node_intents_total",
			Help:      "Editor intents ignored because their node no longer exists",
		}, []string{"intent"}),

		LiveSurfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "canvas_live_surfaces",
			Help:      "Drawing surfaces currently alive",
		}),
		CropOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crop_operations_total",
			Help:      "Crop session operations",
		}, []string{"operation"}),

		DBOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "table", "status"}),
		DBDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Database operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "table"}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events delivered to the event bus",
		}, []string{"event_type"}),
		TaskPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_task_panics_total",
			Help:      "Tasks that panicked inside the worker pool",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.HTTPRequests,
		c.HTTPDuration,
		c.NodesCreated,
		c.NodesDeleted,
		c.EdgesCreated,
		c.EdgesRejected,
		c.Operations,
		c.OperationDuration,
		c.StaleCompletions,
		c.OperationsInFlight,
		c.AbsentNodeIntents,
		c.LiveSurfaces,
		c.CropOperations,
		c.DBOperations,
		c.DBDuration,
		c.EventsPublished,
		c.TaskPanics,
		c.CircuitBreakerState,
	)

	return c
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
