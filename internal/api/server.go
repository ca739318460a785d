// Package api wires the edge components into the HTTP surface: the per-IP
// rate limiter in front of /api, the daily quota on the demo action, the
// cache-aware content reads and the invalidating content writes.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/cms-edge/internal/auth"
	"github.com/Sternrassler/cms-edge/internal/content"
	"github.com/Sternrassler/cms-edge/pkg/cache"
	"github.com/Sternrassler/cms-edge/pkg/metrics"
	"github.com/Sternrassler/cms-edge/pkg/quota"
	"github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

// TTLs holds the cache TTL per resource namespace.
type TTLs struct {
	BaselStandards  time.Duration
	BaselChapters   time.Duration
	AngleCategories time.Duration
	AnglePodcasts   time.Duration
	Notifications   time.Duration
}

// DefaultTTLs returns the default TTLs.
func DefaultTTLs() TTLs {
	return TTLs{
		BaselStandards:  cache.DefaultBaselStandardsTTL,
		BaselChapters:   cache.DefaultBaselChaptersTTL,
		AngleCategories: cache.DefaultAngleCategoriesTTL,
		AnglePodcasts:   cache.DefaultAnglePodcastsTTL,
		Notifications:   cache.DefaultNotificationsTTL,
	}
}

// Config holds the server's dependencies. Verifier and Redis are optional:
// without a verifier every caller is anonymous, without Redis the readiness
// check skips it.
type Config struct {
	Cache       *cache.Store
	RateLimiter *ratelimit.Limiter
	Quota       *quota.Limiter
	Content     *content.Repository
	Verifier    *auth.Verifier
	Redis       *redis.Client
	TTLs        TTLs
}

// Server serves the HTTP API.
type Server struct {
	cache       *cache.Store
	rateLimiter *ratelimit.Limiter
	quota       *quota.Limiter
	content     *content.Repository
	verifier    *auth.Verifier
	redis       *redis.Client
	ttls        TTLs
	logger      zerolog.Logger
}

// NewServer creates a server.
func NewServer(cfg Config, logger zerolog.Logger) (*Server, error) {
	switch {
	case cfg.Cache == nil:
		return nil, fmt.Errorf("cache store is required")
	case cfg.RateLimiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case cfg.Quota == nil:
		return nil, fmt.Errorf("quota limiter is required")
	case cfg.Content == nil:
		return nil, fmt.Errorf("content repository is required")
	}
	if cfg.TTLs == (TTLs{}) {
		cfg.TTLs = DefaultTTLs()
	}

	return &Server{
		cache:       cfg.Cache,
		rateLimiter: cfg.RateLimiter,
		quota:       cfg.Quota,
		content:     cfg.Content,
		verifier:    cfg.Verifier,
		redis:       cfg.Redis,
		ttls:        cfg.TTLs,
		logger:      logger,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.RemoteAddrHandler("remote_ip"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request handled")
	}))
	r.Use(metricsMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware)
		if s.verifier != nil {
			r.Use(s.verifier.Middleware)
		}

		r.Post("/count", s.handleCount)
		r.Get("/count/status", s.handleCountStatus)

		r.Get("/angle/categories", s.handleListCategories)
		r.Get("/angle/podcasts", s.handleListPodcasts)
		r.Get("/basel/standards", s.handleListStandards)
		r.Get("/basel/chapters", s.handleListChapters)
		r.With(auth.RequireAuth).Get("/notifications", s.handleListNotifications)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/angle/categories", s.handleCreateCategory)
			r.Put("/angle/categories/{id}", s.handleUpdateCategory)
			r.Delete("/angle/categories/{id}", s.handleDeleteCategory)
			r.Post("/angle/podcasts", s.handleCreatePodcast)
			r.Put("/angle/podcasts/{id}", s.handleUpdatePodcast)
			r.Delete("/angle/podcasts/{id}", s.handleDeletePodcast)
			r.Post("/basel/standards", s.handleCreateStandard)
			r.Put("/basel/standards/{id}", s.handleUpdateStandard)
			r.Delete("/basel/standards/{id}", s.handleDeleteStandard)
			r.Post("/basel/chapters", s.handleCreateChapter)
			r.Post("/notifications", s.handleCreateNotification)

			r.Get("/admin/cache", s.handleCacheStats)
			r.Delete("/admin/cache", s.handleCacheInvalidate)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports 503 when the database or the configured Redis is
// unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	ready := true

	if err := s.content.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		ready = false
	}
	if s.redis != nil {
		checks["redis"] = "ok"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			ready = false
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
		hlog.FromRequest(r).Warn().Interface("checks", checks).Msg("Readiness check failed")
	}
	writeJSON(w, status, map[string]any{"ready": ready, "checks": checks})
}

// metricsMiddleware records request count and latency per chi route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := routePattern(r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the matched chi pattern, or "unmatched" so unknown
// paths do not create unbounded label values.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return "unmatched"
}
