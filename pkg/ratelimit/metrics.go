package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the edge limiter.
var (
	rateLimitRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_rate_limit_requests_total",
		Help: "Total requests checked by the edge rate limiter by result",
	}, []string{"result"}) // "allowed", "rejected"

	rateLimitClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cms_rate_limit_clients",
		Help: "Number of client windows currently tracked by the edge rate limiter",
	})
)
