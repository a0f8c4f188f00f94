// Package metrics holds the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts scan attempts by outcome status
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunt_scans_total",
			Help: "Total number of scan attempts by outcome",
		},
		[]string{"status"},
	)

	// PrizeAllocations counts prize allocation attempts by result
	PrizeAllocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunt_prize_allocations_total",
			Help: "Total number of prize allocation attempts by result",
		},
		[]string{"result"},
	)

	// HTTPRequestsTotal counts HTTP requests by route, method and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	// HTTPRequestDuration observes HTTP request latency by route and method
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)
