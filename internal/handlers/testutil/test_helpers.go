package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/api"
	"github.com/charlesng35/cmsconsole/internal/app"
	iauth "github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/internal/cache"
	sharedtestutil "github.com/charlesng35/cmsconsole/internal/database/testutil"
	"github.com/charlesng35/cmsconsole/internal/middleware"
	"github.com/charlesng35/cmsconsole/internal/monitoring"
	"github.com/charlesng35/cmsconsole/internal/monitoring/checks"
	"github.com/charlesng35/cmsconsole/pkg/response"
)

const testSecret = "test-suite-super-secret-key-32-bytes!!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Config   *app.Config
	Router   *gin.Engine
	Verifier *iauth.TokenVerifier
	Services *api.Services
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables rate limiting with the given budget.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// WithoutUnreadCache serves unread counts straight from the database.
func WithoutUnreadCache() EnvOption {
	return func(cfg *app.Config) {
		cfg.Notifications.UnreadCache.Enabled = false
	}
}

// NewConfig returns the configuration used by NewEnv.
func NewConfig(t *testing.T) *app.Config {
	t.Helper()
	return &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: testSecret,
				Issuer: "test-suite",
				Leeway: time.Second,
			},
		},
		Notifications: app.NotificationConfig{
			UnreadCache: app.UnreadCacheConfig{Enabled: true, TTL: time.Minute},
		},
		Audit: app.AuditConfig{
			Export: app.ExportConfig{StagingDir: t.TempDir(), MaxRows: 1000, BatchSize: 2},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true, Timeout: time.Second},
		},
		API: app.APIConfig{DefaultPageSize: 20, MaxPageSize: 100},
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := NewConfig(t)
	for _, opt := range opts {
		opt(cfg)
	}

	verifier, err := iauth.NewTokenVerifier(cfg.Auth.VerifierConfig())
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)
	svc, err := api.BuildServices(db, cfg, store)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
	health.RegisterReadiness(checks.Database(db))

	rateStore := middleware.NewMemoryRateStore()
	t.Cleanup(rateStore.Close)

	router, err := api.NewRouter(api.RouterDeps{
		Config:    cfg,
		Verifier:  verifier,
		Services:  svc,
		Health:    health,
		RateStore: rateStore,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Config:   cfg,
		Router:   router,
		Verifier: verifier,
		Services: svc,
	}
}

// Token issues a bearer token for userID.
func (e *Env) Token(userID string) string {
	e.T.Helper()
	token, err := e.Verifier.Issue(iauth.Identity{UserID: userID, Role: "admin"}, time.Hour)
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
