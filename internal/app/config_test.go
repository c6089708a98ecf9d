package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/internal/services"
)

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig("testdata")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Server.LogLevel)
	require.Equal(t, []string{"https://admin.example.com"}, cfg.Server.CORSOrigins)
	require.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)
	require.Equal(t, 5433, cfg.Database.Postgres.Port)
	require.Equal(t, "require", cfg.Database.Postgres.Options["sslmode"])

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis://cache.example.com:6380/2", cfg.Cache.Redis.URL)
	require.Equal(t, 5*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, time.Minute, cfg.Auth.JWT.Leeway)

	require.True(t, cfg.Notifications.UnreadCache.Enabled)
	require.Equal(t, 45*time.Second, cfg.Notifications.UnreadCache.TTL)

	require.Equal(t, int64(5000), cfg.Audit.Export.MaxRows)
	require.Equal(t, 250, cfg.Audit.Export.BatchSize)
	require.True(t, cfg.Audit.Snapshot.Enabled)
	require.Equal(t, "0 2 * * *", cfg.Audit.Snapshot.Schedule)
	require.Equal(t, "csv", cfg.Audit.Snapshot.Format)

	require.True(t, cfg.Maintenance.Enabled)
	require.Equal(t, "@every 5m", cfg.Maintenance.CachePurge)
	require.Equal(t, "@hourly", cfg.Maintenance.StagingSweep)
	require.Equal(t, 30*time.Minute, cfg.Maintenance.StagingMaxAge)

	require.Equal(t, 25, cfg.API.DefaultPageSize)
	require.Equal(t, 50, cfg.API.MaxPageSize)
	require.True(t, cfg.RateLimit.Enabled)
	require.Equal(t, 120, cfg.RateLimit.Requests)
	require.Equal(t, 30*time.Second, cfg.RateLimit.Window)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.False(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "cmsconsole", cfg.Auth.JWT.Issuer)
	require.Empty(t, cfg.Auth.JWT.Secret)
	require.Equal(t, 20, cfg.API.DefaultPageSize)
	require.Equal(t, 100, cfg.API.MaxPageSize)
	require.Equal(t, int64(1000000), cfg.Audit.Export.MaxRows)
	require.False(t, cfg.Audit.Snapshot.Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CMSCONSOLE_AUTH_JWT_SECRET", "from-env")
	t.Setenv("CMSCONSOLE_CACHE_REDIS_ENABLED", "true")
	t.Setenv("CMSCONSOLE_API_MAX_PAGE_SIZE", "40")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.Auth.JWT.Secret)
	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, 40, cfg.API.MaxPageSize)
}

func TestAuthConfigAdapter(t *testing.T) {
	cfg := AuthConfig{JWT: JWTSettings{
		Secret:   " secret ",
		Issuer:   "issuer",
		Audience: "console",
		Leeway:   time.Second,
	}}

	require.Equal(t, auth.VerifierConfig{
		Secret:   "secret",
		Issuer:   "issuer",
		Audience: "console",
		Leeway:   time.Second,
	}, cfg.VerifierConfig())
}

func TestServiceConfigAdapters(t *testing.T) {
	limits := APIConfig{DefaultPageSize: 10, MaxPageSize: 30}.PageLimits()
	require.Equal(t, services.PageLimits{Default: 10, Max: 30}, limits)

	opts := ExportConfig{StagingDir: " /tmp/x ", MaxRows: 7, BatchSize: 3}.ExportOptions()
	require.Equal(t, services.ExportOptions{StagingDir: "/tmp/x", MaxRows: 7, BatchSize: 3}, opts)
}

func TestDatabaseConnectionConfig(t *testing.T) {
	sqlite := DatabaseConfig{Path: " ./data/db.sqlite "}.ConnectionConfig()
	require.Equal(t, "sqlite", sqlite.Driver)
	require.Equal(t, "./data/db.sqlite", sqlite.Path)
	require.Empty(t, sqlite.Host)

	pg := DatabaseConfig{
		Driver:   "PostgreSQL",
		Postgres: DBAuthConfig{Host: "db", Port: 5432, Database: "cms", Username: "u", Password: "p"},
	}.ConnectionConfig()
	require.Equal(t, "postgres", pg.Driver)
	require.Equal(t, "db", pg.Host)
	require.Equal(t, "cms", pg.Name)
	require.Equal(t, "p", pg.Password)

	my := DatabaseConfig{Driver: "mysql", MySQL: DBAuthConfig{Host: "mysql", Port: 3306}}.ConnectionConfig()
	require.Equal(t, "mysql", my.Host)
	require.Equal(t, 3306, my.Port)

	unknown := DatabaseConfig{Driver: "oracle"}.ConnectionConfig()
	require.Equal(t, "oracle", unknown.Driver)
}

func TestRedisClientConfig(t *testing.T) {
	cfg := CacheConfig{Redis: RedisCacheConfig{URL: " redis://localhost:6379/1 ", Address: "ignored:1", DB: 3}}
	client := cfg.RedisClientConfig()
	require.Equal(t, "redis://localhost:6379/1", client.URL)
	require.Equal(t, 3, client.DB)
}
