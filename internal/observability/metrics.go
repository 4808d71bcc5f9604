package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Broadcast metrics
	SubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "room_subscribers_active",
			Help: "Number of active subscribers per room",
		},
		[]string{"room_id"},
	)

	EventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_events_delivered_total",
			Help: "Total number of events delivered to subscribers",
		},
		[]string{"room_id"},
	)

	// Admission metrics
	AdmissionDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_denials_total",
			Help: "Submissions denied by the admission controller",
		},
		[]string{"reason"},
	)

	// Generation metrics
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "End-to-end latency of one generation request",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	GenerationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "generation_failures_total",
			Help: "Generations that failed mid-stream",
		},
	)
)
