package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal tracks requests by route pattern and status code
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)

	// httpRequestDuration tracks request latency by route pattern
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cms_http_request_duration_seconds",
			Help:    "HTTP request duration by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// apiErrorsTotal tracks error responses by class
	apiErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_api_errors_total",
			Help: "Total number of API error responses by class",
		},
		[]string{"class"}, // see ErrorClass
	)

	// cacheInvalidationsTotal tracks write-triggered invalidations by family
	cacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_invalidations_total",
			Help: "Total number of cache family invalidations after writes",
		},
		[]string{"family"},
	)
)
