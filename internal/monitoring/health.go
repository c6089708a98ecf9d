package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ProbeStatus encodes the outcome of a health probe.
type ProbeStatus string

const (
	StatusUp       ProbeStatus = "up"
	StatusDegraded ProbeStatus = "degraded"
	StatusDown     ProbeStatus = "down"
)

func (s ProbeStatus) rank() int {
	switch s {
	case StatusUp:
		return 0
	case StatusDegraded:
		return 1
	default:
		return 2
	}
}

// worse returns whichever of a and b is less healthy.
func worse(a, b ProbeStatus) ProbeStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// ProbeResult captures a single dependency check outcome.
type ProbeResult struct {
	Component string        `json:"component"`
	Status    ProbeStatus   `json:"status"`
	Details   string        `json:"details,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// HealthReport aggregates probe results for a liveness or readiness evaluation.
type HealthReport struct {
	Success   bool          `json:"success"`
	Status    ProbeStatus   `json:"status"`
	Checks    []ProbeResult `json:"checks"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// Check is a named dependency probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) ProbeResult
}

// NewCheck builds a check. A nil fn always reports down.
func NewCheck(name string, fn func(ctx context.Context) ProbeResult) Check {
	if fn == nil {
		fn = func(context.Context) ProbeResult {
			return ProbeResult{Status: StatusDown, Details: "probe not implemented"}
		}
	}
	return Check{Name: name, Run: fn}
}

// HealthManager runs liveness and readiness probes. Probes of one evaluation run
// concurrently, each bounded by the manager timeout.
type HealthManager struct {
	mu        sync.RWMutex
	liveness  []Check
	readiness []Check
	timeout   time.Duration
	now       func() time.Time
}

const defaultProbeTimeout = 5 * time.Second

// NewHealthManager constructs an empty manager. A non-positive timeout uses 5s.
func NewHealthManager(timeout time.Duration) *HealthManager {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	return &HealthManager{timeout: timeout, now: time.Now}
}

// RegisterLiveness appends a liveness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterLiveness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.liveness = append(m.liveness, check)
	m.mu.Unlock()
}

// RegisterReadiness appends a readiness probe. Unnamed checks are ignored.
func (m *HealthManager) RegisterReadiness(check Check) {
	if check.Name == "" {
		return
	}
	m.mu.Lock()
	m.readiness = append(m.readiness, check)
	m.mu.Unlock()
}

// EvaluateLiveness reports whether the process is able to serve at all.
func (m *HealthManager) EvaluateLiveness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.liveness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

// EvaluateReadiness reports whether the dependencies needed for traffic are reachable.
func (m *HealthManager) EvaluateReadiness(ctx context.Context) HealthReport {
	m.mu.RLock()
	checks := append([]Check(nil), m.readiness...)
	m.mu.RUnlock()
	return m.evaluate(ctx, checks)
}

func (m *HealthManager) evaluate(ctx context.Context, checks []Check) HealthReport {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]ProbeResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = runCheck(probeCtx, check)
		}(i, check)
	}
	wg.Wait()

	report := HealthReport{Status: StatusUp, Checks: results, CheckedAt: m.now().UTC()}
	for _, result := range results {
		report.Status = worse(report.Status, result.Status)
	}
	report.Success = report.Status == StatusUp
	return report
}

func runCheck(ctx context.Context, check Check) (result ProbeResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = ProbeResult{Status: StatusDown, Details: fmt.Sprint(rec)}
		}
		if result.Status == "" {
			result.Status = StatusDown
		}
		if result.Duration <= 0 {
			result.Duration = time.Since(start)
		}
		result.Component = check.Name
	}()
	return check.Run(ctx)
}

// ResultFromError converts a probe error into a result. Timeouts count as degraded.
func ResultFromError(component string, err error, duration time.Duration) ProbeResult {
	if duration < 0 {
		duration = 0
	}
	result := ProbeResult{Component: component, Status: StatusUp, Duration: duration}
	if err == nil {
		return result
	}

	result.Status = StatusDown
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		result.Status = StatusDegraded
	}
	result.Details = err.Error()
	return result
}
