package app

import (
	"strings"

	"github.com/charlesng35/cmsconsole/internal/database"
	"github.com/charlesng35/cmsconsole/internal/services"
)

// PageLimits converts the API section into list query bounds.
func (c APIConfig) PageLimits() services.PageLimits {
	return services.PageLimits{Default: c.DefaultPageSize, Max: c.MaxPageSize}
}

// ExportOptions converts the export section into export service options.
func (c ExportConfig) ExportOptions() services.ExportOptions {
	return services.ExportOptions{
		StagingDir: strings.TrimSpace(c.StagingDir),
		MaxRows:    c.MaxRows,
		BatchSize:  c.BatchSize,
	}
}

// ConnectionConfig converts the database section into the database package representation.
func (c DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:            strings.TrimSpace(c.Path),
		DSN:             strings.TrimSpace(c.DSN),
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite":
		cfg.Driver = "sqlite"
		return cfg
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		host = c.Postgres
	case "mysql":
		host = c.MySQL
	default:
		// Unknown drivers surface as an error from database.Open.
		return cfg
	}

	cfg.Host = strings.TrimSpace(host.Host)
	cfg.Port = host.Port
	cfg.Name = strings.TrimSpace(host.Database)
	cfg.User = strings.TrimSpace(host.Username)
	cfg.Password = host.Password
	cfg.Options = host.Options
	return cfg
}
