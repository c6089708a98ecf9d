package maintenance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/cmsconsole/internal/cache"
	"github.com/charlesng35/cmsconsole/internal/services"
	"github.com/charlesng35/cmsconsole/pkg/logger"
)

const (
	JobCachePurge     = "cache_purge"
	JobStagingSweep   = "export_staging_sweep"
	JobLedgerSnapshot = "ledger_snapshot"
)

// CachePurgeJob deletes expired rows from the database-backed cache.
func CachePurgeJob(store *cache.DatabaseStore, schedule string) Job {
	return Job{
		Name:     JobCachePurge,
		Schedule: schedule,
		Run: func(ctx context.Context, now time.Time) error {
			removed, err := store.PurgeExpired(ctx, now)
			if err != nil {
				return err
			}
			if removed > 0 {
				logger.WithModule("maintenance").Debug("purged cache entries", zap.Int64("removed", removed))
			}
			return nil
		},
	}
}

// StagingSweepJob removes export staging files left behind by crashed requests.
func StagingSweepJob(exports *services.ExportService, schedule string, maxAge time.Duration) Job {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return Job{
		Name:     JobStagingSweep,
		Schedule: schedule,
		Run: func(_ context.Context, now time.Time) error {
			removed, err := exports.SweepStaging(now, maxAge)
			if removed > 0 {
				logger.WithModule("maintenance").Info("removed stale export staging files", zap.Int("removed", removed))
			}
			return err
		},
	}
}

// SnapshotSettings places daily ledger snapshots.
type SnapshotSettings struct {
	Schedule string
	Dir      string
	Format   string
}

// SnapshotPath returns the file holding the snapshot of day (UTC).
func SnapshotPath(dir string, day time.Time, format services.ExportFormat) string {
	return filepath.Join(dir, fmt.Sprintf("audit-logs-%s.%s", day.UTC().Format("2006-01-02"), format))
}

// LedgerSnapshotJob exports the previous UTC day of the ledger. An existing
// snapshot is left untouched, so a run at startup only fills in a missed day.
func LedgerSnapshotJob(exports *services.ExportService, settings SnapshotSettings) (Job, error) {
	format, err := services.ParseExportFormat(settings.Format)
	if err != nil {
		return Job{}, err
	}
	if settings.Dir == "" {
		return Job{}, errors.New("maintenance: snapshot directory is required")
	}

	return Job{
		Name:     JobLedgerSnapshot,
		Schedule: settings.Schedule,
		Run: func(ctx context.Context, now time.Time) error {
			today := now.UTC().Truncate(24 * time.Hour)
			from := today.Add(-24 * time.Hour)
			to := today.Add(-time.Nanosecond)

			dest := SnapshotPath(settings.Dir, from, format)
			if _, err := os.Stat(dest); err == nil {
				return nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			rows, err := exports.ExportFile(ctx, services.ExportRequest{
				Filter: services.AuditFilter{Dates: services.DateRange{From: &from, To: &to}},
				Format: format,
			}, dest)
			if err != nil {
				return err
			}
			logger.WithModule("maintenance").Info("ledger snapshot written",
				zap.String("path", dest),
				zap.Int64("rows", rows),
			)
			return nil
		},
	}, nil
}
