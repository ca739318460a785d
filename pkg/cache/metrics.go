package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_hits_total",
			Help: "Total number of response cache hits",
		},
		[]string{"namespace"},
	)

	// CacheMisses tracks cache misses by namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_misses_total",
			Help: "Total number of response cache misses",
		},
		[]string{"namespace"},
	)

	// CacheBypasses tracks reads that deliberately skipped the cache
	CacheBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_bypasses_total",
			Help: "Total number of reads served without consulting the cache",
		},
		[]string{"namespace"},
	)

	// CacheEvictions tracks removed entries by reason
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_evictions_total",
			Help: "Total number of cache entries removed",
		},
		[]string{"reason"}, // "expired", "delete", "invalidate", "clear", "sweep"
	)

	// CacheEntries tracks the number of stored entries, including expired
	// entries that have not been purged yet
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cms_cache_entries",
			Help: "Current number of entries held by the response cache",
		},
	)

	// CacheErrors tracks failures of the compute step behind the cache
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cms_cache_errors_total",
			Help: "Total number of cache read-through errors",
		},
		[]string{"operation"}, // "compute"
	)
)
