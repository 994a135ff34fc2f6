package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Solves counts optimization runs by outcome (completed, validation, distance, assembly, unexpected)
	Solves = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "optimization_solves_total", Help: "Optimization runs by outcome."},
		[]string{"outcome"},
	)
	// SolveDuration records wall-clock solve time in seconds
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "optimization_solve_duration_seconds", Help: "Optimization wall-clock duration in seconds.", Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600}},
	)
	// HardScore is the hard score of the last completed solve
	HardScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "optimization_last_hard_score", Help: "Hard score of the last completed solve."},
	)

	// RoutingCalls counts routing service calls by kind (pair, matrix) and status
	RoutingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routing_calls_total", Help: "Routing service calls by kind and status."},
		[]string{"kind", "status"},
	)
	// RateLimitWait records time spent waiting for a routing permit in seconds
	RateLimitWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "routing_rate_limit_wait_seconds", Help: "Time spent waiting for a routing permit.", Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}},
	)
	// DistanceCache counts cache lookups by result (hit, miss)
	DistanceCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "routing_cache_lookups_total", Help: "Distance cache lookups by result."},
		[]string{"result"},
	)

	// EventsPublished counts lifecycle events by type, sink and status
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_published_total", Help: "Lifecycle events by type, sink and status."},
		[]string{"event_type", "sink", "status"},
	)
	// WebhookLatency tracks webhook delivery latencies in milliseconds
	WebhookLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
		[]string{"event_type", "status"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration)
		Registry.MustRegister(Solves, SolveDuration, HardScore)
		Registry.MustRegister(RoutingCalls, RateLimitWait, DistanceCache)
		Registry.MustRegister(EventsPublished, WebhookLatency)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
