package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/Sternrassler/cms-edge/internal/auth"
	"github.com/Sternrassler/cms-edge/internal/content"
	"github.com/Sternrassler/cms-edge/pkg/cache"
	"github.com/Sternrassler/cms-edge/pkg/quota"
	"github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

// QuotaExhaustedMessage is the error message of a request over the daily quota.
const QuotaExhaustedMessage = "Daily limit reached. Please sign in for unlimited access."

const maxBodyBytes = 1 << 20

// caller builds the quota caller from the client IP and the session claims.
func caller(r *http.Request) quota.Caller {
	return quota.Caller{
		Identity:      ratelimit.ClientIP(r),
		Authenticated: auth.FromContext(r.Context()) != nil,
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return badRequest("Invalid JSON body", err)
	}
	return nil
}

type countRequest struct {
	A *float64 `json:"a"`
	B *float64 `json:"b"`
}

type countResponse struct {
	Success         bool    `json:"success"`
	Result          float64 `json:"result"`
	RemainingClicks *int    `json:"remainingClicks"`
	Unlimited       bool    `json:"unlimited"`
}

type quotaExhaustedResponse struct {
	Error           string `json:"error"`
	RemainingClicks int    `json:"remainingClicks"`
	LimitReached    bool   `json:"limitReached"`
}

// handleCount is the quota-gated demo action. Input is validated before any
// quota is consumed.
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil || req.A == nil || req.B == nil {
		writeError(w, r, badRequest("Please provide valid numbers for A and B", err), "")
		return
	}

	res, err := s.quota.Consume(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, err, "An error occurred while processing your request")
		return
	}

	if !res.Allowed {
		apiErrorsTotal.WithLabelValues(string(ErrorClassQuotaExhausted)).Inc()
		hlog.FromRequest(r).Info().Str("day", res.Day).Msg("Daily quota exhausted")
		w.Header().Set(ratelimit.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(res.ResetIn.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, quotaExhaustedResponse{
			Error:           QuotaExhaustedMessage,
			RemainingClicks: 0,
			LimitReached:    true,
		})
		return
	}

	writeJSON(w, http.StatusOK, countResponse{
		Success:         true,
		Result:          *req.A + *req.B,
		RemainingClicks: res.RemainingClicks(),
		Unlimited:       res.Unlimited,
	})
}

type countStatusResponse struct {
	Unlimited       bool       `json:"unlimited"`
	RemainingClicks *int       `json:"remainingClicks"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	ResetAt         *time.Time `json:"resetAt,omitempty"`
}

func (s *Server) handleCountStatus(w http.ResponseWriter, r *http.Request) {
	c := caller(r)
	res, err := s.quota.Status(r.Context(), c)
	if err != nil {
		writeError(w, r, err, "An error occurred")
		return
	}

	out := countStatusResponse{
		Unlimited:       res.Unlimited,
		RemainingClicks: res.RemainingClicks(),
		IsAuthenticated: c.Authenticated,
	}
	if !res.Unlimited {
		out.ResetAt = &res.ResetAt
	}
	writeJSON(w, http.StatusOK, out)
}

// serveCached writes the result of a read-through fetch with its X-Cache status.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, body []byte, status cache.Status, err error, fallback string) {
	if err != nil {
		writeError(w, r, err, fallback)
		return
	}
	if err := cache.WriteJSON(w, status, body); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("Failed to write response")
	}
}

func marshalAs(name string, v any) ([]byte, error) {
	return json.Marshal(map[string]any{name: v})
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	key := cache.NewKey(cache.NamespaceAngleCategories)
	body, status, err := s.cache.Fetch(r.Context(), key, s.ttls.AngleCategories, func(ctx context.Context) ([]byte, error) {
		categories, err := s.content.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		return marshalAs("categories", categories)
	})
	s.serveCached(w, r, body, status, err, "Failed to fetch categories")
}

// handleListPodcasts caches per category filter; free-text searches bypass
// the cache.
func (s *Server) handleListPodcasts(w http.ResponseWriter, r *http.Request) {
	filter := content.PodcastFilter{
		CategoryID: r.URL.Query().Get("categoryId"),
		Search:     r.URL.Query().Get("search"),
	}
	compute := func(ctx context.Context) ([]byte, error) {
		podcasts, err := s.content.ListPodcasts(ctx, filter)
		if err != nil {
			return nil, err
		}
		return marshalAs("podcasts", podcasts)
	}

	if filter.Search != "" {
		body, status, err := cache.Bypass(r.Context(), cache.NamespaceAnglePodcasts, compute)
		s.serveCached(w, r, body, status, err, "Failed to fetch podcasts")
		return
	}

	key := cache.NewKey(cache.NamespaceAnglePodcasts, "categoryId", filter.CategoryID)
	body, status, err := s.cache.Fetch(r.Context(), key, s.ttls.AnglePodcasts, compute)
	s.serveCached(w, r, body, status, err, "Failed to fetch podcasts")
}

func (s *Server) handleListStandards(w http.ResponseWriter, r *http.Request) {
	key := cache.NewKey(cache.NamespaceBaselStandards)
	body, status, err := s.cache.Fetch(r.Context(), key, s.ttls.BaselStandards, func(ctx context.Context) ([]byte, error) {
		standards, err := s.content.ListStandards(ctx)
		if err != nil {
			return nil, err
		}
		return marshalAs("standards", standards)
	})
	s.serveCached(w, r, body, status, err, "Failed to fetch standards")
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	filter := content.ChapterFilter{
		StandardID:   r.URL.Query().Get("standardId"),
		StandardCode: strings.ToUpper(r.URL.Query().Get("standardCode")),
	}

	key := cache.NewKey(cache.NamespaceBaselChapters,
		"standardId", filter.StandardID,
		"standardCode", filter.StandardCode,
	)
	body, status, err := s.cache.Fetch(r.Context(), key, s.ttls.BaselChapters, func(ctx context.Context) ([]byte, error) {
		chapters, err := s.content.ListChapters(ctx, filter)
		if err != nil {
			return nil, err
		}
		return marshalAs("chapters", chapters)
	})
	s.serveCached(w, r, body, status, err, "Failed to fetch chapters")
}

// handleListNotifications serves the shared notification list. Per-user
// read state is not part of the cached payload.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")

	key := cache.NewKey(cache.NamespaceNotifications, "category", category)
	body, status, err := s.cache.Fetch(r.Context(), key, s.ttls.Notifications, func(ctx context.Context) ([]byte, error) {
		notifications, err := s.content.ListNotifications(ctx, category)
		if err != nil {
			return nil, err
		}
		return marshalAs("notifications", notifications)
	})
	s.serveCached(w, r, body, status, err, "Failed to fetch notifications")
}

// invalidate evicts a resource family after a successful write.
func (s *Server) invalidate(r *http.Request, family string) {
	removed := s.cache.InvalidatePrefix(family)
	cacheInvalidationsTotal.WithLabelValues(family).Inc()
	hlog.FromRequest(r).Debug().Str("family", family).Int("removed", removed).Msg("Cache family invalidated")
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var in content.NewCategory
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	category, err := s.content.CreateCategory(r.Context(), in)
	if err != nil {
		writeError(w, r, err, "Failed to create category")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusCreated, map[string]any{"category": category})
}

func (s *Server) handleCreatePodcast(w http.ResponseWriter, r *http.Request) {
	var in content.NewPodcast
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	podcast, err := s.content.CreatePodcast(r.Context(), in)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			err = &Error{StatusCode: http.StatusNotFound, Class: ErrorClassNotFound, Message: "Category not found", Err: err}
		}
		writeError(w, r, err, "Failed to create podcast")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusCreated, map[string]any{"podcast": podcast})
}

func (s *Server) handleCreateStandard(w http.ResponseWriter, r *http.Request) {
	var in content.NewStandard
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	standard, err := s.content.CreateStandard(r.Context(), in)
	if err != nil {
		writeError(w, r, err, "Failed to create standard")
		return
	}

	s.invalidate(r, cache.FamilyBasel)
	writeJSON(w, http.StatusCreated, map[string]any{"standard": standard})
}

func (s *Server) handleCreateChapter(w http.ResponseWriter, r *http.Request) {
	var in content.NewChapter
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	chapter, err := s.content.CreateChapter(r.Context(), in)
	if err != nil {
		if errors.Is(err, content.ErrNotFound) {
			err = &Error{StatusCode: http.StatusNotFound, Class: ErrorClassNotFound, Message: "Standard not found", Err: err}
		}
		writeError(w, r, err, "Failed to create chapter")
		return
	}

	s.invalidate(r, cache.FamilyBasel)
	writeJSON(w, http.StatusCreated, map[string]any{"chapter": chapter})
}

func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var in content.NewNotification
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	notification, err := s.content.CreateNotification(r.Context(), in)
	if err != nil {
		writeError(w, r, err, "Failed to create notification")
		return
	}

	s.invalidate(r, cache.FamilyNotifications)
	writeJSON(w, http.StatusCreated, map[string]any{"notification": notification})
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var in content.CategoryUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	category, err := s.content.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err, "Failed to update category")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusOK, map[string]any{"category": category})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.content.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "Failed to delete category")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdatePodcast(w http.ResponseWriter, r *http.Request) {
	var in content.PodcastUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	podcast, err := s.content.UpdatePodcast(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err, "Failed to update podcast")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusOK, map[string]any{"podcast": podcast})
}

func (s *Server) handleDeletePodcast(w http.ResponseWriter, r *http.Request) {
	if err := s.content.DeletePodcast(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "Failed to delete podcast")
		return
	}

	s.invalidate(r, cache.FamilyAngle)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleUpdateStandard(w http.ResponseWriter, r *http.Request) {
	var in content.StandardUpdate
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err, "")
		return
	}

	standard, err := s.content.UpdateStandard(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err, "Failed to update standard")
		return
	}

	s.invalidate(r, cache.FamilyBasel)
	writeJSON(w, http.StatusOK, map[string]any{"standard": standard})
}

// handleDeleteStandard also drops the standard's chapters, so the whole
// basel family is evicted.
func (s *Server) handleDeleteStandard(w http.ResponseWriter, r *http.Request) {
	if err := s.content.DeleteStandard(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err, "Failed to delete standard")
		return
	}

	s.invalidate(r, cache.FamilyBasel)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats())
}

// handleCacheInvalidate removes every entry under ?prefix=, or everything
// when the prefix is empty.
func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	if prefix == "" {
		removed := s.cache.Stats().Size
		s.cache.Clear()
		hlog.FromRequest(r).Info().Int("removed", removed).Msg("Cache cleared")
		writeJSON(w, http.StatusOK, map[string]any{"prefix": "", "removed": removed})
		return
	}

	removed := s.cache.InvalidatePrefix(prefix)
	hlog.FromRequest(r).Info().Str("prefix", prefix).Int("removed", removed).Msg("Cache prefix invalidated")
	writeJSON(w, http.StatusOK, map[string]any{"prefix": prefix, "removed": removed})
}

