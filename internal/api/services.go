package api

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/cmsconsole/internal/app"
	"github.com/charlesng35/cmsconsole/internal/cache"
	"github.com/charlesng35/cmsconsole/internal/services"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Notifications *services.NotificationService
	Audit         *services.AuditService
	Recorder      *services.Recorder
	Exports       *services.ExportService
}

// BuildServices wires the domain services against db. store backs the unread
// count cache and may be nil, in which case counts always come from the database.
func BuildServices(db *gorm.DB, cfg *app.Config, store cache.Store) (*Services, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	var counterStore cache.Store
	if cfg.Notifications.UnreadCache.Enabled {
		counterStore = store
	}
	counter, err := services.NewUnreadCounter(db, counterStore, cfg.Notifications.UnreadCache.TTL)
	if err != nil {
		return nil, err
	}

	notifications, err := services.NewNotificationService(db, counter)
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	limits := cfg.API.PageLimits()
	notifications.SetPageLimits(limits)
	audit.SetPageLimits(limits)

	recorder, err := services.NewRecorder(audit, notifications)
	if err != nil {
		return nil, err
	}
	exports, err := services.NewExportService(db, cfg.Audit.Export.ExportOptions())
	if err != nil {
		return nil, err
	}

	return &Services{
		Notifications: notifications,
		Audit:         audit,
		Recorder:      recorder,
		Exports:       exports,
	}, nil
}
