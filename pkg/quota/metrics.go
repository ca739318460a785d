package quota

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the daily quota limiter.
var (
	quotaRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_quota_requests_total",
		Help: "Total quota consumption attempts by result",
	}, []string{"result"}) // "allowed", "rejected", "bypassed"

	quotaStoreErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cms_quota_store_errors_total",
		Help: "Total quota store failures by operation",
	}, []string{"operation"}) // "count", "increment"
)
