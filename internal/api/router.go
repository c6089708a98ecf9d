package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charlesng35/cmsconsole/internal/app"
	iauth "github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/internal/handlers"
	"github.com/charlesng35/cmsconsole/internal/middleware"
	"github.com/charlesng35/cmsconsole/internal/monitoring"
)

// RouterDeps carries the collaborators the HTTP surface is built from.
// Health and RateStore are optional.
type RouterDeps struct {
	Config    *app.Config
	Verifier  *iauth.TokenVerifier
	Services  *Services
	Health    *monitoring.HealthManager
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the routes.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	cfg := deps.Config
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Verifier == nil {
		return nil, fmt.Errorf("token verifier must be provided")
	}
	svc := deps.Services
	if svc == nil || svc.Notifications == nil || svc.Audit == nil || svc.Recorder == nil || svc.Exports == nil {
		return nil, fmt.Errorf("services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORSOrigins...))

	registerHealthRoutes(r, cfg, deps.Health)

	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))
	if cfg.RateLimit.Enabled {
		// Runs after Auth so callers are keyed by user id.
		api.Use(middleware.RateLimit(deps.RateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}

	registerNotificationRoutes(api, handlers.NewNotificationHandler(svc.Notifications))
	registerAuditRoutes(api, handlers.NewAuditHandler(svc.Audit, svc.Recorder, svc.Exports))

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
