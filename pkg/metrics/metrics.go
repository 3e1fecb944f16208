package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery metrics
var (
	DeliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palomar_delivery_attempts_total",
			Help: "Total number of message delivery attempts",
		},
		[]string{"tier", "status"}, // status: delivered, discarded, route_unavailable, rejected, error
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palomar_delivery_duration_seconds",
			Help:    "Duration of message delivery attempts in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
		[]string{"status"},
	)

	FilterMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palomar_filter_matches_total",
			Help: "Total number of filter rule matches during delivery",
		},
		[]string{"rule"},
	)
)

// Dispatch queue metrics
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "palomar_queue_depth",
			Help: "Number of entries in the dispatch queue by tier",
		},
		[]string{"tier"},
	)

	QueueOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palomar_queue_operations_total",
			Help: "Total number of dispatch queue operations",
		},
		[]string{"operation", "result"}, // operation: enqueue, dequeue, peek; result: success, empty
	)

	QueueOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palomar_queue_operation_duration_seconds",
			Help:    "Duration of dispatch queue operations",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01},
		},
		[]string{"operation"},
	)

	QueueEntryAge = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palomar_queue_entry_age_seconds",
			Help:    "Age of dispatch queue entries when dequeued",
			Buckets: []float64{0.01, 0.1, 1, 5, 10, 30, 60, 300, 600},
		},
	)
)

// Routing metrics
var (
	RouteComputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palomar_route_computations_total",
			Help: "Total number of shortest path computations",
		},
		[]string{"result"}, // result: found, unreachable, unknown_server
	)

	RouteHops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palomar_route_hops",
			Help:    "Number of hops in computed delivery routes",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15},
		},
	)
)

// Directory metrics
var (
	ServersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palomar_servers_total",
			Help: "Total number of registered servers",
		},
	)

	AccountsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "palomar_accounts_total",
			Help: "Total number of registered accounts",
		},
	)
)

// Background worker metrics
var (
	DispatchWorkerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palomar_dispatch_worker_jobs_total",
			Help: "Total number of dispatch worker jobs processed",
		},
		[]string{"result"},
	)

	DispatchWorkerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palomar_dispatch_worker_duration_seconds",
			Help:    "Duration of dispatch worker cycles in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1.0, 5.0},
		},
	)
)
