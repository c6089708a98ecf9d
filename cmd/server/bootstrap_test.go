package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/cmsconsole/internal/app"
	"github.com/charlesng35/cmsconsole/internal/app/maintenance"
	"github.com/charlesng35/cmsconsole/internal/middleware"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()

	dir := t.TempDir()
	cfg, err := app.LoadConfig(dir)
	require.NoError(t, err)

	cfg.Database.Path = filepath.Join(dir, "data", "console.sqlite")
	cfg.Audit.Export.StagingDir = filepath.Join(dir, "staging")
	cfg.Audit.Snapshot.Enabled = true
	cfg.Audit.Snapshot.Dir = filepath.Join(dir, "snapshots")

	_, err = app.ApplyRuntimeDefaults(cfg)
	require.NoError(t, err)
	return cfg
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := testConfig(t)

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Redis)
	require.IsType(t, &middleware.MemoryRateStore{}, stack.RateStore)
	require.Equal(t, []string{
		maintenance.JobCachePurge,
		maintenance.JobStagingSweep,
		maintenance.JobLedgerSnapshot,
	}, stack.Scheduler.Jobs())

	// The startup run already recorded one pass per job.
	for _, job := range stack.Tracker.Jobs() {
		require.EqualValues(t, 1, job.TotalRuns, job.Job)
		require.Zero(t, job.Failures, job.LastError)
	}

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"component":"database"`)
	require.Contains(t, w.Body.String(), `"component":"maintenance"`)

	w = httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notifications", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBootstrapRuntimeUsesRedisWhenReachable(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Address = srv.Addr()
	cfg.Notifications.UnreadCache.Enabled = true

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.NotNil(t, stack.Redis)
	require.True(t, stack.Services.Notifications.Counter().Cached())

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"component":"redis"`)
}

func TestBootstrapRuntimeFallsBackWhenRedisDown(t *testing.T) {
	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := testConfig(t)
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Address = addr
	cfg.Cache.Redis.Timeout = 200 * time.Millisecond
	cfg.Notifications.UnreadCache.Enabled = true

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Redis)
	// Counts are then cached in the database store.
	require.True(t, stack.Services.Notifications.Counter().Cached())
}

func TestBootstrapRuntimeRejectsBadSnapshotFormat(t *testing.T) {
	cfg := testConfig(t)
	cfg.Audit.Snapshot.Format = "xml"

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestBootstrapRuntimeWithoutMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance.Enabled = false
	cfg.Monitoring.Health.Enabled = false

	stack, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), zap.NewNop()) })

	require.Nil(t, stack.Scheduler)
	require.Nil(t, stack.Health)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}
