// Package cache provides the process-local response cache used by the read
// endpoints.
//
// The store keeps pre-serialized payloads with an absolute expiry per entry:
//
// - Lazy expiry: expired entries are purged when read
// - Prefix invalidation: one write evicts every cached variant of a family
// - Optional cancellable background sweep to bound memory
// - Sharded locking so bulk scans never stall unrelated requests
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(cache.DefaultConfig(), logger)
//
//	key := cache.NewKey(cache.NamespaceAnglePodcasts, "categoryId", "42")
//	body, status, err := store.Fetch(ctx, key, cache.DefaultAnglePodcastsTTL,
//		func(ctx context.Context) ([]byte, error) {
//			return json.Marshal(loadPodcasts(ctx, "42"))
//		})
//	if err != nil {
//		return err
//	}
//	cache.WriteJSON(w, status, body) // X-Cache: HIT or MISS
//
// # Invalidation
//
// Write endpoints invalidate the whole family after the write commits:
//
//	store.InvalidatePrefix(cache.FamilyAngle)
//
// Invalidation cannot fail; a write that forgets to invalidate is corrected
// when the TTL runs out.
//
// # Search Reads
//
// Free-text search results are never cached:
//
//	body, status, err := cache.Bypass(ctx, cache.NamespaceAnglePodcasts, compute)
//
// # Metrics
//
//   - cms_cache_hits_total{namespace} - Cache hits
//   - cms_cache_misses_total{namespace} - Cache misses
//   - cms_cache_bypasses_total{namespace} - Reads that skipped the cache
//   - cms_cache_evictions_total{reason} - Removed entries
//   - cms_cache_entries - Entries currently held
//   - cms_cache_errors_total{operation} - Compute failures
//
// # Scope
//
// State lives in process memory only. It is lost on restart and not shared
// between instances; each instance converges within one TTL.
package cache
