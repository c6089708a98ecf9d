package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/api"
	"github.com/charlesng35/cmsconsole/internal/app"
	"github.com/charlesng35/cmsconsole/internal/app/maintenance"
	iauth "github.com/charlesng35/cmsconsole/internal/auth"
	"github.com/charlesng35/cmsconsole/internal/cache"
	"github.com/charlesng35/cmsconsole/internal/database"
	"github.com/charlesng35/cmsconsole/internal/middleware"
	"github.com/charlesng35/cmsconsole/internal/monitoring"
	"github.com/charlesng35/cmsconsole/internal/monitoring/checks"
	"github.com/charlesng35/cmsconsole/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Services  *api.Services
	Tracker   *monitoring.JobTracker
	Health    *monitoring.HealthManager
	Scheduler *maintenance.Scheduler
	RateStore middleware.RateStore
	Router    *gin.Engine

	memoryRates *middleware.MemoryRateStore
}

// bootstrapRuntime initialises the database, caches, services, background jobs and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisStore(cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; falling back to database-backed cache", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected")
		}
	}

	var sharedStore cache.Store = dbStore
	if stack.Redis != nil {
		sharedStore = stack.Redis
	}

	stack.Services, err = api.BuildServices(stack.DB, cfg, sharedStore)
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	verifier, err := iauth.NewTokenVerifier(cfg.Auth.VerifierConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token verifier: %w", err)
	}

	stack.Tracker = monitoring.NewJobTracker()
	if cfg.Maintenance.Enabled {
		if err := stack.startMaintenance(ctx, cfg, dbStore, log); err != nil {
			return nil, err
		}
	}

	if cfg.Monitoring.Health.Enabled {
		stack.Health = monitoring.NewHealthManager(cfg.Monitoring.Health.Timeout)
		stack.Health.RegisterLiveness(monitoring.NewCheck("process", func(context.Context) monitoring.ProbeResult {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		}))
		stack.Health.RegisterReadiness(checks.Database(stack.DB))
		if stack.Redis != nil {
			stack.Health.RegisterReadiness(checks.Redis(stack.Redis))
		}
		if cfg.Maintenance.Enabled {
			stack.Health.RegisterReadiness(checks.Maintenance(stack.Tracker, cfg.Maintenance.HealthStaleness))
		}
	}

	switch {
	case stack.Redis != nil:
		stack.RateStore = middleware.NewCacheRateStore(stack.Redis)
	case cfg.Database.ConnectionConfig().Driver == "sqlite":
		// A single SQLite file serves one process; keep counters off the write path.
		stack.memoryRates = middleware.NewMemoryRateStore()
		stack.RateStore = stack.memoryRates
	default:
		stack.RateStore = middleware.NewCacheRateStore(dbStore)
	}

	stack.Router, err = api.NewRouter(api.RouterDeps{
		Config:    cfg,
		Verifier:  verifier,
		Services:  stack.Services,
		Health:    stack.Health,
		RateStore: stack.RateStore,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func (s *runtimeStack) startMaintenance(ctx context.Context, cfg *app.Config, dbStore *cache.DatabaseStore, log *zap.Logger) error {
	s.Scheduler = maintenance.NewScheduler(maintenance.WithTracker(s.Tracker))

	jobs := []maintenance.Job{
		maintenance.CachePurgeJob(dbStore, cfg.Maintenance.CachePurge),
		maintenance.StagingSweepJob(s.Services.Exports, cfg.Maintenance.StagingSweep, cfg.Maintenance.StagingMaxAge),
	}
	if snapshot := cfg.Audit.Snapshot; snapshot.Enabled {
		job, err := maintenance.LedgerSnapshotJob(s.Services.Exports, maintenance.SnapshotSettings{
			Schedule: snapshot.Schedule,
			Dir:      snapshot.Dir,
			Format:   snapshot.Format,
		})
		if err != nil {
			return fmt.Errorf("configure ledger snapshot: %w", err)
		}
		jobs = append(jobs, job)
	}

	for _, job := range jobs {
		if err := s.Scheduler.Add(job); err != nil {
			return fmt.Errorf("schedule maintenance job: %w", err)
		}
	}

	// Catch up on anything missed while the server was down.
	if err := s.Scheduler.RunOnce(ctx); err != nil {
		log.Warn("startup maintenance run failed", zap.Error(err))
	}

	if err := s.Scheduler.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	log.Info("maintenance jobs scheduled", zap.Strings("jobs", s.Scheduler.Jobs()))
	return nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		stopCtx := s.Scheduler.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.memoryRates != nil {
		s.memoryRates.Close()
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.WithModule("database").Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
