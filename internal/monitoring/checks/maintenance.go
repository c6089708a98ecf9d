package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/cmsconsole/internal/monitoring"
)

const defaultMaintenanceMaxAge = 26 * time.Hour

// Maintenance reports repeated job failures as down and jobs that have not run
// within maxAge as degraded. Jobs awaiting their first run are fine.
func Maintenance(tracker *monitoring.JobTracker, maxAge time.Duration) monitoring.Check {
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		jobs := tracker.Jobs()
		if len(jobs) == 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "no maintenance jobs registered"}
		}

		now := time.Now()
		status := monitoring.StatusUp
		var problems []string
		for _, job := range jobs {
			switch {
			case job.TotalRuns == 0:
				continue
			case job.ConsecutiveFailures > 1:
				status = monitoring.StatusDown
				problems = append(problems, job.Job+": "+job.LastError)
			case job.ConsecutiveFailures == 1:
				if status == monitoring.StatusUp {
					status = monitoring.StatusDegraded
				}
				problems = append(problems, job.Job+": "+job.LastError)
			case now.Sub(job.LastRunAt) > maxAge:
				if status == monitoring.StatusUp {
					status = monitoring.StatusDegraded
				}
				problems = append(problems, job.Job+": last run "+job.LastRunAt.Format(time.RFC3339))
			}
		}

		return monitoring.ProbeResult{Status: status, Details: strings.Join(problems, "; ")}
	})
}
