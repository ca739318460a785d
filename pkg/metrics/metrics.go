// Package metrics exposes the Prometheus registry used by the service.
// All metrics are defined in their respective packages (cache, ratelimit,
// quota, api) with promauto and registered on the default registry.
//
// This package provides the HTTP handler and the metric catalogue.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Gatherer is the Prometheus gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - cms_cache_hits_total{namespace} (Counter): Reads served from the cache
//   - cms_cache_misses_total{namespace} (Counter): Reads computed and stored
//   - cms_cache_bypasses_total{namespace} (Counter): Search reads that skipped the cache
//   - cms_cache_evictions_total{reason} (Counter): Removed entries (expired, delete, invalidate, clear, sweep)
//   - cms_cache_entries (Gauge): Entries held, including not yet purged expired ones
//   - cms_cache_errors_total{operation} (Counter): Failed computes behind the cache
//
// Rate Limit Metrics (pkg/ratelimit):
//   - cms_rate_limit_requests_total{result} (Counter): Checked requests (allowed, rejected)
//   - cms_rate_limit_clients (Gauge): Identities with a tracked window
//
// Quota Metrics (pkg/quota):
//   - cms_quota_requests_total{result} (Counter): Quota decisions (allowed, rejected, bypassed)
//   - cms_quota_store_errors_total{operation} (Counter): Durable store failures (count, increment)
//
// API Metrics (internal/api):
//   - cms_http_requests_total{route, status} (Counter): Requests by chi route pattern
//   - cms_http_request_duration_seconds{route} (Histogram): Request latency
//   - cms_api_errors_total{class} (Counter): Error responses by class
//   - cms_cache_invalidations_total{family} (Counter): Write-triggered invalidations
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(cms_cache_hits_total[5m])) /
//   (sum(rate(cms_cache_hits_total[5m])) + sum(rate(cms_cache_misses_total[5m])))
//
//   # Throttled share of /api traffic
//   rate(cms_rate_limit_requests_total{result="rejected"}[5m]) /
//   rate(cms_rate_limit_requests_total[5m])
//
//   # Quota store failing closed
//   rate(cms_quota_store_errors_total[5m]) > 0
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(cms_http_request_duration_seconds_bucket[5m]))
