package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the console backend.
type Config struct {
	Server        ServerConfig       `mapstructure:"server"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Cache         CacheConfig        `mapstructure:"cache"`
	Auth          AuthConfig         `mapstructure:"auth"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Audit         AuditConfig        `mapstructure:"audit"`
	Maintenance   MaintenanceConfig  `mapstructure:"maintenance"`
	Monitoring    MonitoringConfig   `mapstructure:"monitoring"`
	API           APIConfig          `mapstructure:"api"`
	RateLimit     RateLimitConfig    `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	Postgres        DBAuthConfig  `mapstructure:"postgres"`
	MySQL           DBAuthConfig  `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Database string            `mapstructure:"database"`
	Username string            `mapstructure:"username"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// CacheConfig describes cache backends.
type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options. URL takes precedence over Address.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	URL      string        `mapstructure:"url"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures caller identity settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures bearer token verification.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// NotificationConfig configures the notification inbox.
type NotificationConfig struct {
	UnreadCache UnreadCacheConfig `mapstructure:"unread_cache"`
}

// UnreadCacheConfig toggles caching of per-recipient unread counts.
type UnreadCacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// AuditConfig configures the audit ledger.
type AuditConfig struct {
	Export   ExportConfig   `mapstructure:"export"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
}

// ExportConfig bounds ledger exports.
type ExportConfig struct {
	StagingDir string `mapstructure:"staging_dir"`
	MaxRows    int64  `mapstructure:"max_rows"`
	BatchSize  int    `mapstructure:"batch_size"`
}

// SnapshotConfig enables the scheduled export of the previous day's ledger.
type SnapshotConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
	Dir      string `mapstructure:"dir"`
	Format   string `mapstructure:"format"`
}

// MaintenanceConfig schedules background housekeeping.
type MaintenanceConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CachePurge      string        `mapstructure:"cache_purge_schedule"`
	StagingSweep    string        `mapstructure:"staging_sweep_schedule"`
	StagingMaxAge   time.Duration `mapstructure:"staging_max_age"`
	HealthStaleness time.Duration `mapstructure:"health_staleness"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// APIConfig bounds list endpoints.
type APIConfig struct {
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// RateLimitConfig limits requests per client and route.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("CMSCONSOLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

// Keys without a default are invisible to AutomaticEnv during Unmarshal, so every
// key that may come from the environment is listed here.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/cmsconsole.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 0)
	v.SetDefault("database.max_idle_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "0s")
	for _, driver := range []string{"postgres", "mysql"} {
		v.SetDefault("database."+driver+".host", "")
		v.SetDefault("database."+driver+".port", 0)
		v.SetDefault("database."+driver+".database", "")
		v.SetDefault("database."+driver+".username", "")
		v.SetDefault("database."+driver+".password", "")
	}

	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.url", "")
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.username", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "cmsconsole")
	v.SetDefault("auth.jwt.audience", "")
	v.SetDefault("auth.jwt.leeway", "30s")

	v.SetDefault("notifications.unread_cache.enabled", false)
	v.SetDefault("notifications.unread_cache.ttl", "30s")

	v.SetDefault("audit.export.staging_dir", "")
	v.SetDefault("audit.export.max_rows", 1000000)
	v.SetDefault("audit.export.batch_size", 500)
	v.SetDefault("audit.snapshot.enabled", false)
	v.SetDefault("audit.snapshot.schedule", "15 0 * * *")
	v.SetDefault("audit.snapshot.dir", "./data/snapshots")
	v.SetDefault("audit.snapshot.format", "json")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.cache_purge_schedule", "@every 10m")
	v.SetDefault("maintenance.staging_sweep_schedule", "@hourly")
	v.SetDefault("maintenance.staging_max_age", "1h")
	v.SetDefault("maintenance.health_staleness", "26h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
	v.SetDefault("monitoring.health_check.timeout", "2s")

	v.SetDefault("api.default_page_size", 20)
	v.SetDefault("api.max_page_size", 100)

	v.SetDefault("ratelimit.enabled", true)
	v.SetDefault("ratelimit.requests", 300)
	v.SetDefault("ratelimit.window", "1m")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
