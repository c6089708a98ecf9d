package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cmsconsole/internal/api"
	"github.com/charlesng35/cmsconsole/internal/app"
	iauth "github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/internal/cache"
	sharedtestutil "github.com/charlesng35/cmsconsole/internal/database/testutil"
	"github.com/charlesng35/cmsconsole/internal/handlers/testutil"
)

func TestRouterHealthIsPublic(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusOK, w.Code, path)
		require.NotEmpty(t, w.Header().Get("X-Request-ID"), path)
		require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"), path)
	}
}

func TestRouterHealthDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Health.Enabled = false
	})

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "disabled")
}

func TestRouterRequiresBearerToken(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/notifications", "/api/audit-logs", "/api/audit-logs/export"} {
		w := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := env.Request(http.MethodGet, "/api/notifications", nil, "not-a-token")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := testutil.NewEnv(t)

	// Generate one request so the latency histogram has a sample.
	env.Request(http.MethodGet, "/health", nil, "")

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "cmsconsole_api_latency_seconds")
}

func TestRouterMetricsDisabled(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
	})

	w := env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/api/nope", nil, env.Token("admin-1"))
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "NOT_FOUND", testutil.DecodeResponse(t, w).Error.Code)
}

func TestRouterRateLimitPerCaller(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRateLimit(2, time.Minute))
	first := env.Token("editor-1")

	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodGet, "/api/notifications/unread-count", nil, first)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.Request(http.MethodGet, "/api/notifications/unread-count", nil, first)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))

	// Budgets are per caller.
	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, env.Token("editor-2"))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	env := testutil.NewEnv(t, func(cfg *app.Config) {
		cfg.Server.CORSOrigins = []string{"https://admin.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/notifications/read-all", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.True(t, strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "PATCH"))
}

func TestRouterNotificationFlow(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.Token("admin-1")
	editor := env.Token("editor-1")

	w := env.Request(http.MethodPost, "/api/notifications", map[string]any{
		"recipientId": "editor-1",
		"type":        "content",
		"title":       "Review requested",
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, editor)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"count":1}}`, w.Body.String())

	w = env.Request(http.MethodPatch, "/api/notifications/read-all", nil, editor)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/notifications/unread-count", nil, editor)
	require.JSONEq(t, `{"success":true,"data":{"count":0}}`, w.Body.String())

	w = env.Request(http.MethodDelete, "/api/notifications", nil, editor)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"success":true,"data":{"deletedCount":1}}`, w.Body.String())
}

func TestNewRouterValidatesDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())
	cfg := testutil.NewConfig(t)

	svc, err := api.BuildServices(db, cfg, cache.NewDatabaseStore(db))
	require.NoError(t, err)
	require.True(t, svc.Notifications.Counter().Cached())

	verifier, err := iauth.NewTokenVerifier(cfg.Auth.VerifierConfig())
	require.NoError(t, err)

	_, err = api.NewRouter(api.RouterDeps{Verifier: verifier, Services: svc})
	require.Error(t, err)
	_, err = api.NewRouter(api.RouterDeps{Config: cfg, Services: svc})
	require.Error(t, err)
	_, err = api.NewRouter(api.RouterDeps{Config: cfg, Verifier: verifier})
	require.Error(t, err)

	// Health and rate limiting are optional.
	router, err := api.NewRouter(api.RouterDeps{Config: cfg, Verifier: verifier, Services: svc})
	require.NoError(t, err)
	require.NotNil(t, router)
}

func TestBuildServicesWithoutStore(t *testing.T) {
	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	svc, err := api.BuildServices(db, testutil.NewConfig(t), nil)
	require.NoError(t, err)
	require.False(t, svc.Notifications.Counter().Cached())

	_, err = api.BuildServices(nil, testutil.NewConfig(t), nil)
	require.Error(t, err)
}
