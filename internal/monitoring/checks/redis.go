package checks

import (
	"context"
	"time"

	"github.com/charlesng35/cmsconsole/internal/monitoring"
)

// RedisPinger is satisfied by the Redis cache store.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the shared cache. A nil client means the cache is not configured,
// which is reported as up since the service falls back to the database.
func Redis(client RedisPinger) monitoring.Check {
	return monitoring.NewCheck("redis", func(ctx context.Context) monitoring.ProbeResult {
		if client == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "redis disabled"}
		}

		start := time.Now()
		if err := client.Ping(ctx); err != nil {
			// Callers fall back to the database, so an unreachable cache only degrades.
			result := monitoring.ResultFromError("redis", err, time.Since(start))
			result.Status = monitoring.StatusDegraded
			return result
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
