package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/cms-edge/internal/auth"
	"github.com/Sternrassler/cms-edge/internal/content"
	"github.com/Sternrassler/cms-edge/internal/testutil"
	"github.com/Sternrassler/cms-edge/pkg/cache"
	"github.com/Sternrassler/cms-edge/pkg/quota"
	"github.com/Sternrassler/cms-edge/pkg/ratelimit"
)

const testSecret = "test-secret"

type testEnv struct {
	handler http.Handler
	cache   *cache.Store
	content *content.Repository
	clock   *testutil.Clock
	admin   string
	user    string
}

func newTestEnv(t *testing.T, maxRequests int) *testEnv {
	t.Helper()
	return newTestEnvWithQuotaStore(t, maxRequests, nil)
}

// newTestEnvWithQuotaStore uses quotaStore for the daily quota, or a SQLite
// store on the shared database when it is nil.
func newTestEnvWithQuotaStore(t *testing.T, maxRequests int, quotaStore quota.Store) *testEnv {
	t.Helper()

	clock := testutil.NewClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	logger := zerolog.Nop()
	ctx := context.Background()
	db := testutil.NewSQLiteDB(t)

	store := cache.NewStore(cache.Config{Clock: clock.Now}, logger)

	limiter, err := ratelimit.New(ratelimit.Config{
		MaxRequests: maxRequests,
		Window:      60 * time.Second,
		Clock:       clock.Now,
	}, logger)
	require.NoError(t, err)

	if quotaStore == nil {
		quotaStore, err = quota.NewSQLStore(ctx, db, quota.DialectSQLite)
		require.NoError(t, err)
	}
	quotaLimiter, err := quota.NewLimiter(quotaStore, quota.Config{MaxDaily: 3, Clock: clock.Now}, logger)
	require.NoError(t, err)

	repo, err := content.NewRepository(ctx, db, "sqlite", logger)
	require.NoError(t, err)

	verifier, err := auth.NewVerifier(testSecret, "", logger)
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Cache:       store,
		RateLimiter: limiter,
		Quota:       quotaLimiter,
		Content:     repo,
		Verifier:    verifier,
	}, logger)
	require.NoError(t, err)

	return &testEnv{
		handler: srv.Handler(),
		cache:   store,
		content: repo,
		clock:   clock,
		admin:   testutil.SignToken(t, testSecret, "admin-1", auth.RoleAdmin, time.Hour),
		user:    testutil.SignToken(t, testSecret, "user-1", "user", time.Hour),
	}
}

type request struct {
	method string
	path   string
	body   any
	ip     string
	token  string
}

func (e *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if req.body != nil {
		if raw, ok := req.body.(string); ok {
			body.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&body).Encode(req.body))
		}
	}

	r := httptest.NewRequest(req.method, req.path, &body)
	if req.ip != "" {
		r.Header.Set("X-Forwarded-For", req.ip)
	}
	if req.token != "" {
		r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: req.token})
	}

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	if _, err := NewServer(Config{}, zerolog.Nop()); err == nil {
		t.Error("NewServer() without dependencies should fail")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, 100)

	w := env.do(t, request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", decode(t, w)["status"])
	// Outside /api: not rate limited
	require.Empty(t, w.Header().Get(ratelimit.HeaderLimit))
}

func TestReady(t *testing.T) {
	env := newTestEnv(t, 100)

	w := env.do(t, request{method: http.MethodGet, path: "/ready"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["ready"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, request{method: http.MethodGet, path: "/api/angle/categories"})
	w := env.do(t, request{method: http.MethodGet, path: "/metrics"})

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cms_cache_misses_total")
	require.Contains(t, w.Body.String(), "cms_http_requests_total")
}

// TestScenario_CategoriesCache: MISS, HIT, write invalidates, MISS again.
func TestScenario_CategoriesCache(t *testing.T) {
	env := newTestEnv(t, 100)
	get := request{method: http.MethodGet, path: "/api/angle/categories"}

	w := env.do(t, get)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	env.clock.Advance(10 * time.Second)
	w = env.do(t, get)
	require.Equal(t, "HIT", w.Header().Get(cache.HeaderCache))
	require.Empty(t, decode(t, w)["categories"])

	w = env.do(t, request{
		method: http.MethodPost,
		path:   "/api/angle/categories",
		body:   map[string]any{"name": "Markets"},
		token:  env.admin,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, get)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	categories := decode(t, w)["categories"].([]any)
	require.Len(t, categories, 1)

	// TTL of 5 minutes elapses
	env.clock.Advance(5*time.Minute + time.Second)
	w = env.do(t, get)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
}

func TestPodcasts_CacheKeysAndSearchBypass(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()

	cat, err := env.content.CreateCategory(ctx, content.NewCategory{Name: "A"})
	require.NoError(t, err)
	_, err = env.content.CreatePodcast(ctx, content.NewPodcast{
		Label: "EP1", Title: "Liquidity", Description: "LCR", Date: time.Now(),
		Duration: "10:00", Link: "https://example.com/1", CategoryID: cat.ID,
	})
	require.NoError(t, err)

	byCategory := request{method: http.MethodGet, path: "/api/angle/podcasts?categoryId=" + cat.ID}
	all := request{method: http.MethodGet, path: "/api/angle/podcasts"}

	require.Equal(t, "MISS", env.do(t, byCategory).Header().Get(cache.HeaderCache))
	require.Equal(t, "MISS", env.do(t, all).Header().Get(cache.HeaderCache))
	require.Equal(t, "HIT", env.do(t, byCategory).Header().Get(cache.HeaderCache))

	for i := 0; i < 2; i++ {
		w := env.do(t, request{method: http.MethodGet, path: "/api/angle/podcasts?search=liquid"})
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "BYPASS", w.Header().Get(cache.HeaderCache))
		require.Len(t, decode(t, w)["podcasts"], 1)
	}

	stats := env.cache.Stats()
	require.Equal(t, 2, stats.Size)
	for _, k := range stats.Keys {
		require.NotContains(t, k, "search")
	}
}

func TestCreateCategory_InvalidatesAngleOnly(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, request{method: http.MethodGet, path: "/api/angle/categories"})
	env.do(t, request{method: http.MethodGet, path: "/api/basel/standards"})

	w := env.do(t, request{
		method: http.MethodPost,
		path:   "/api/angle/categories",
		body:   map[string]any{"name": "A"},
		token:  env.admin,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	require.Equal(t, []string{cache.NamespaceBaselStandards}, env.cache.Stats().Keys)
	require.Equal(t, "HIT", env.do(t, request{method: http.MethodGet, path: "/api/basel/standards"}).Header().Get(cache.HeaderCache))
}

func TestWrites_Errors(t *testing.T) {
	env := newTestEnv(t, 100)

	w := env.do(t, request{method: http.MethodPost, path: "/api/basel/standards",
		body: map[string]any{"code": "cre", "name": "Credit Risk"}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)
	standard := decode(t, w)["standard"].(map[string]any)
	require.Equal(t, "CRE", standard["code"])

	tests := []struct {
		name       string
		req        request
		wantStatus int
		wantError  string
	}{
		{
			name:       "anonymous write",
			req:        request{method: http.MethodPost, path: "/api/basel/standards", body: map[string]any{"code": "X", "name": "Y"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "Authentication required",
		},
		{
			name:       "non-admin write",
			req:        request{method: http.MethodPost, path: "/api/basel/standards", body: map[string]any{"code": "X", "name": "Y"}, token: env.user},
			wantStatus: http.StatusForbidden,
			wantError:  "Admin access required",
		},
		{
			name:       "duplicate code",
			req:        request{method: http.MethodPost, path: "/api/basel/standards", body: map[string]any{"code": "CRE", "name": "Again"}, token: env.admin},
			wantStatus: http.StatusConflict,
			wantError:  "a standard with this code already exists",
		},
		{
			name:       "missing name",
			req:        request{method: http.MethodPost, path: "/api/basel/standards", body: map[string]any{"code": "LCR"}, token: env.admin},
			wantStatus: http.StatusBadRequest,
			wantError:  "code and name are required",
		},
		{
			name:       "malformed body",
			req:        request{method: http.MethodPost, path: "/api/angle/categories", body: "{", token: env.admin},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid JSON body",
		},
		{
			name: "podcast with unknown category",
			req: request{method: http.MethodPost, path: "/api/angle/podcasts", token: env.admin, body: map[string]any{
				"label": "EP1", "title": "T", "description": "D", "date": "2024-01-01T00:00:00Z",
				"duration": "1:00", "link": "https://example.com", "categoryId": "nope",
			}},
			wantStatus: http.StatusNotFound,
			wantError:  "Category not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			require.Equal(t, tt.wantError, decode(t, w)["error"])
		})
	}
}

// TestScenario_DailyQuota: 3 actions with 2,1,0 left, then limitReached,
// then a fresh quota on the next UTC day.
func TestScenario_DailyQuota(t *testing.T) {
	env := newTestEnv(t, 100)
	action := request{method: http.MethodPost, path: "/api/count", body: map[string]any{"a": 2, "b": 3}, ip: "1.2.3.4"}

	for _, want := range []float64{2, 1, 0} {
		w := env.do(t, action)
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		require.Equal(t, true, body["success"])
		require.Equal(t, float64(5), body["result"])
		require.Equal(t, want, body["remainingClicks"])
		require.Equal(t, false, body["unlimited"])
	}

	w := env.do(t, action)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	require.Equal(t, QuotaExhaustedMessage, body["error"])
	require.Equal(t, float64(0), body["remainingClicks"])
	require.Equal(t, true, body["limitReached"])
	// 12:00 UTC, twelve hours until the quota day rolls over
	require.Equal(t, "43200", w.Header().Get(ratelimit.HeaderRetryAfter))

	w = env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "1.2.3.4"})
	body = decode(t, w)
	require.Equal(t, float64(0), body["remainingClicks"])
	require.Equal(t, "2024-01-02T00:00:00Z", body["resetAt"])

	// Another IP is unaffected
	w = env.do(t, request{method: http.MethodPost, path: "/api/count", body: map[string]any{"a": 1, "b": 1}, ip: "5.6.7.8"})
	require.Equal(t, http.StatusOK, w.Code)

	env.clock.Set(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	w = env.do(t, action)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode(t, w)["remainingClicks"])
}

func TestCount_Authenticated(t *testing.T) {
	env := newTestEnv(t, 100)

	for i := 0; i < 5; i++ {
		w := env.do(t, request{method: http.MethodPost, path: "/api/count",
			body: map[string]any{"a": 1.5, "b": 1}, ip: "1.2.3.4", token: env.user})
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		require.Equal(t, 2.5, body["result"])
		require.Equal(t, true, body["unlimited"])
		require.Nil(t, body["remainingClicks"])
	}

	w := env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "1.2.3.4", token: env.user})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, true, body["unlimited"])
	require.Equal(t, true, body["isAuthenticated"])
	require.Nil(t, body["remainingClicks"])
	require.NotContains(t, body, "resetAt")

	// Authenticated use did not consume the IP's anonymous quota
	w = env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "1.2.3.4"})
	body = decode(t, w)
	require.Equal(t, float64(3), body["remainingClicks"])
	require.Equal(t, false, body["isAuthenticated"])
}

func TestCount_InvalidInput(t *testing.T) {
	env := newTestEnv(t, 100)

	bodies := []any{
		map[string]any{"a": "1", "b": 2},
		map[string]any{"a": 1},
		map[string]any{"a": nil, "b": 2},
		"not json",
	}

	for _, b := range bodies {
		w := env.do(t, request{method: http.MethodPost, path: "/api/count", body: b, ip: "1.2.3.4"})
		require.Equal(t, http.StatusBadRequest, w.Code)
		require.Equal(t, "Please provide valid numbers for A and B", decode(t, w)["error"])
	}

	// Invalid requests consume no quota
	w := env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "1.2.3.4"})
	require.Equal(t, float64(3), decode(t, w)["remainingClicks"])
}

// TestScenario_RateLimit: the 4th request inside the window is rejected
// before reaching the handler; a new window admits again.
func TestScenario_RateLimit(t *testing.T) {
	env := newTestEnv(t, 3)
	get := request{method: http.MethodGet, path: "/api/angle/categories", ip: "9.9.9.9"}

	for _, want := range []string{"2", "1", "0"} {
		w := env.do(t, get)
		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "3", w.Header().Get(ratelimit.HeaderLimit))
		require.Equal(t, want, w.Header().Get(ratelimit.HeaderRemaining))
	}

	w := env.do(t, get)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get(ratelimit.HeaderRetryAfter))
	require.Equal(t, "0", w.Header().Get(ratelimit.HeaderRemaining))
	require.Equal(t, ratelimit.ThrottledMessage, decode(t, w)["error"])
	require.Empty(t, w.Header().Get(cache.HeaderCache))

	// The quota action is gated too, and a throttled call consumes no quota
	w = env.do(t, request{method: http.MethodPost, path: "/api/count", body: map[string]any{"a": 1, "b": 1}, ip: "9.9.9.9"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	env.clock.Advance(61 * time.Second)
	w = env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "9.9.9.9"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "2", w.Header().Get(ratelimit.HeaderRemaining))
	require.Equal(t, float64(3), decode(t, w)["remainingClicks"])
}

func TestAdminCache(t *testing.T) {
	env := newTestEnv(t, 100)

	env.do(t, request{method: http.MethodGet, path: "/api/angle/categories"})
	env.do(t, request{method: http.MethodGet, path: "/api/angle/podcasts"})
	env.do(t, request{method: http.MethodGet, path: "/api/basel/standards"})

	w := env.do(t, request{method: http.MethodGet, path: "/api/admin/cache"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	w = env.do(t, request{method: http.MethodGet, path: "/api/admin/cache", token: env.user})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, request{method: http.MethodGet, path: "/api/admin/cache", token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	require.Equal(t, float64(3), stats["size"])
	require.Equal(t, []any{"angle:categories", "angle:podcasts", "basel:standards"}, stats["keys"])

	w = env.do(t, request{method: http.MethodDelete, path: "/api/admin/cache?prefix=angle:", token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), decode(t, w)["removed"])
	require.Equal(t, []string{"basel:standards"}, env.cache.Stats().Keys)

	w = env.do(t, request{method: http.MethodDelete, path: "/api/admin/cache", token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decode(t, w)["removed"])
	require.Zero(t, env.cache.Stats().Size)
}

func TestChapters_CachedAndInvalidatedByStandardWrites(t *testing.T) {
	env := newTestEnv(t, 100)

	w := env.do(t, request{method: http.MethodPost, path: "/api/basel/standards",
		body: map[string]any{"code": "CRE", "name": "Credit Risk"}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)
	standardID := decode(t, w)["standard"].(map[string]any)["id"].(string)

	list := request{method: http.MethodGet, path: "/api/basel/chapters?standardCode=cre"}
	require.Equal(t, "MISS", env.do(t, list).Header().Get(cache.HeaderCache))
	// Code is case-normalized before keying
	require.Equal(t, "HIT", env.do(t, request{method: http.MethodGet, path: "/api/basel/chapters?standardCode=CRE"}).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodPost, path: "/api/basel/chapters",
		body: map[string]any{"code": "CRE10", "title": "Definitions", "standardId": standardID}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Len(t, decode(t, w)["chapters"], 1)

	w = env.do(t, request{method: http.MethodPost, path: "/api/basel/chapters",
		body: map[string]any{"code": "X", "title": "Y", "standardId": "missing"}, token: env.admin})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Standard not found", decode(t, w)["error"])
}

func TestNotifications(t *testing.T) {
	env := newTestEnv(t, 100)
	list := request{method: http.MethodGet, path: "/api/notifications", token: env.user}

	w := env.do(t, request{method: http.MethodGet, path: "/api/notifications"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	require.Equal(t, "MISS", env.do(t, list).Header().Get(cache.HeaderCache))
	require.Equal(t, "HIT", env.do(t, list).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodPost, path: "/api/notifications", token: env.admin,
		body: map[string]any{"title": "CRE updated", "description": "d", "category": "Regulation"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Len(t, decode(t, w)["notifications"], 1)

	// 30 second TTL
	env.clock.Advance(31 * time.Second)
	require.Equal(t, "MISS", env.do(t, list).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodPost, path: "/api/notifications", token: env.admin,
		body: map[string]any{"title": "t", "description": "d", "category": "Gossip"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid category. Must be Content, Data, or Regulation", decode(t, w)["error"])
}

type unavailableQuotaStore struct{}

func (unavailableQuotaStore) Count(context.Context, string, string) (int, error) {
	return 0, errors.New("connection refused")
}

func (unavailableQuotaStore) IncrementIfBelow(context.Context, string, string, int) (int, bool, error) {
	return 0, false, errors.New("connection refused")
}

func TestCount_QuotaStoreUnavailable(t *testing.T) {
	env := newTestEnvWithQuotaStore(t, 100, unavailableQuotaStore{})

	w := env.do(t, request{method: http.MethodPost, path: "/api/count", body: map[string]any{"a": 1, "b": 2}, ip: "1.2.3.4"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"error":"An error occurred while processing your request"}`, w.Body.String())

	w = env.do(t, request{method: http.MethodGet, path: "/api/count/status", ip: "1.2.3.4"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Authenticated callers never reach the store
	w = env.do(t, request{method: http.MethodPost, path: "/api/count", body: map[string]any{"a": 1, "b": 2}, ip: "1.2.3.4", token: env.user})
	require.Equal(t, http.StatusOK, w.Code)
}

// TestScenario_CategoryAdmin: renaming and deleting a category each evict the
// cached category list.
func TestScenario_CategoryAdmin(t *testing.T) {
	env := newTestEnv(t, 100)
	list := request{method: http.MethodGet, path: "/api/angle/categories"}

	w := env.do(t, request{method: http.MethodPost, path: "/api/angle/categories",
		body: map[string]any{"name": "Markets"}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["category"].(map[string]any)["id"].(string)

	require.Equal(t, "MISS", env.do(t, list).Header().Get(cache.HeaderCache))
	require.Equal(t, "HIT", env.do(t, list).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodPut, path: "/api/angle/categories/" + id,
		body: map[string]any{"name": "Regulation", "order": 2}, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "Regulation", decode(t, w)["category"].(map[string]any)["name"])

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	categories := decode(t, w)["categories"].([]any)
	require.Len(t, categories, 1)
	require.Equal(t, "Regulation", categories[0].(map[string]any)["name"])

	w = env.do(t, request{method: http.MethodDelete, path: "/api/angle/categories/" + id, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, true, decode(t, w)["success"])

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Empty(t, decode(t, w)["categories"])
}

func TestScenario_PodcastAdmin(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()

	cat, err := env.content.CreateCategory(ctx, content.NewCategory{Name: "A"})
	require.NoError(t, err)
	other, err := env.content.CreateCategory(ctx, content.NewCategory{Name: "B"})
	require.NoError(t, err)
	p, err := env.content.CreatePodcast(ctx, content.NewPodcast{
		Label: "EP1", Title: "Liquidity", Description: "LCR", Date: time.Now(),
		Duration: "10:00", Link: "https://example.com/1", CategoryID: cat.ID,
	})
	require.NoError(t, err)

	list := request{method: http.MethodGet, path: "/api/angle/podcasts"}
	require.Equal(t, "MISS", env.do(t, list).Header().Get(cache.HeaderCache))
	require.Equal(t, "HIT", env.do(t, list).Header().Get(cache.HeaderCache))

	w := env.do(t, request{method: http.MethodPut, path: "/api/angle/podcasts/" + p.ID,
		body: map[string]any{"title": "Funding", "categoryId": other.ID}, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode(t, w)["podcast"].(map[string]any)
	require.Equal(t, "Funding", updated["title"])
	require.Equal(t, "EP1", updated["label"])
	require.Equal(t, other.ID, updated["categoryId"])

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Equal(t, "Funding", decode(t, w)["podcasts"].([]any)[0].(map[string]any)["title"])

	w = env.do(t, request{method: http.MethodDelete, path: "/api/angle/podcasts/" + p.ID, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, list)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Empty(t, decode(t, w)["podcasts"])
}

func TestScenario_StandardAdmin(t *testing.T) {
	env := newTestEnv(t, 100)

	w := env.do(t, request{method: http.MethodPost, path: "/api/basel/standards",
		body: map[string]any{"code": "CRE", "name": "Credit Risk"}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["standard"].(map[string]any)["id"].(string)

	w = env.do(t, request{method: http.MethodPost, path: "/api/basel/chapters",
		body: map[string]any{"code": "CRE10", "title": "Definitions", "standardId": id}, token: env.admin})
	require.Equal(t, http.StatusCreated, w.Code)

	standards := request{method: http.MethodGet, path: "/api/basel/standards"}
	chapters := request{method: http.MethodGet, path: "/api/basel/chapters"}
	require.Equal(t, "MISS", env.do(t, standards).Header().Get(cache.HeaderCache))
	require.Equal(t, "MISS", env.do(t, chapters).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodPut, path: "/api/basel/standards/" + id,
		body: map[string]any{"code": "cr"}, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "CR", decode(t, w)["standard"].(map[string]any)["code"])
	require.Equal(t, "MISS", env.do(t, standards).Header().Get(cache.HeaderCache))

	w = env.do(t, request{method: http.MethodDelete, path: "/api/basel/standards/" + id, token: env.admin})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, standards)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Empty(t, decode(t, w)["standards"])

	w = env.do(t, chapters)
	require.Equal(t, "MISS", w.Header().Get(cache.HeaderCache))
	require.Empty(t, decode(t, w)["chapters"])
}

func TestAdminUpdates_Errors(t *testing.T) {
	env := newTestEnv(t, 100)
	ctx := context.Background()

	markets, err := env.content.CreateCategory(ctx, content.NewCategory{Name: "Markets"})
	require.NoError(t, err)
	_, err = env.content.CreateCategory(ctx, content.NewCategory{Name: "Regulation"})
	require.NoError(t, err)
	_, err = env.content.CreatePodcast(ctx, content.NewPodcast{
		Label: "EP1", Title: "T", Description: "D", Date: time.Now(),
		Duration: "1:00", Link: "https://example.com", CategoryID: markets.ID,
	})
	require.NoError(t, err)
	_, err = env.content.CreateStandard(ctx, content.NewStandard{Code: "CRE", Name: "Credit Risk"})
	require.NoError(t, err)
	lcr, err := env.content.CreateStandard(ctx, content.NewStandard{Code: "LCR", Name: "Liquidity"})
	require.NoError(t, err)

	tests := []struct {
		name       string
		req        request
		wantStatus int
		wantError  string
	}{
		{
			name:       "non-admin delete",
			req:        request{method: http.MethodDelete, path: "/api/angle/categories/" + markets.ID, token: env.user},
			wantStatus: http.StatusForbidden,
			wantError:  "Admin access required",
		},
		{
			name:       "rename to taken name",
			req:        request{method: http.MethodPut, path: "/api/angle/categories/" + markets.ID, body: map[string]any{"name": "Regulation"}, token: env.admin},
			wantStatus: http.StatusConflict,
			wantError:  "a category with this name already exists",
		},
		{
			name:       "rename without name",
			req:        request{method: http.MethodPut, path: "/api/angle/categories/" + markets.ID, body: map[string]any{"order": 1}, token: env.admin},
			wantStatus: http.StatusBadRequest,
			wantError:  "category name is required",
		},
		{
			name:       "delete category with podcasts",
			req:        request{method: http.MethodDelete, path: "/api/angle/categories/" + markets.ID, token: env.admin},
			wantStatus: http.StatusBadRequest,
			wantError:  "cannot delete category with existing podcasts",
		},
		{
			name:       "delete unknown category",
			req:        request{method: http.MethodDelete, path: "/api/angle/categories/nope", token: env.admin},
			wantStatus: http.StatusNotFound,
			wantError:  "category not found",
		},
		{
			name:       "update unknown podcast",
			req:        request{method: http.MethodPut, path: "/api/angle/podcasts/nope", body: map[string]any{"title": "T"}, token: env.admin},
			wantStatus: http.StatusNotFound,
			wantError:  "podcast not found",
		},
		{
			name:       "delete unknown podcast",
			req:        request{method: http.MethodDelete, path: "/api/angle/podcasts/nope", token: env.admin},
			wantStatus: http.StatusNotFound,
			wantError:  "podcast not found",
		},
		{
			name:       "code taken by another standard",
			req:        request{method: http.MethodPut, path: "/api/basel/standards/" + lcr.ID, body: map[string]any{"code": "cre"}, token: env.admin},
			wantStatus: http.StatusConflict,
			wantError:  "a standard with this code already exists",
		},
		{
			name:       "delete unknown standard",
			req:        request{method: http.MethodDelete, path: "/api/basel/standards/nope", token: env.admin},
			wantStatus: http.StatusNotFound,
			wantError:  "standard not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.req)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			require.Equal(t, tt.wantError, decode(t, w)["error"])
		})
	}
}
