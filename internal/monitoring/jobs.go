package monitoring

import (
	"sort"
	"sync"
	"time"

	"github.com/charlesng35/cmsconsole/pkg/metrics"
)

// JobSummary describes the run history of one background job.
type JobSummary struct {
	Job                 string        `json:"job"`
	TotalRuns           uint64        `json:"totalRuns"`
	Failures            uint64        `json:"failures"`
	ConsecutiveFailures uint64        `json:"consecutiveFailures"`
	LastRunAt           time.Time     `json:"lastRunAt"`
	LastDuration        time.Duration `json:"lastDuration"`
	LastError           string        `json:"lastError,omitempty"`
}

// JobTracker records maintenance job outcomes for health reporting and metrics.
type JobTracker struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

// NewJobTracker constructs an empty tracker.
func NewJobTracker() *JobTracker {
	return &JobTracker{jobs: make(map[string]*JobSummary), now: time.Now}
}

// Register makes a job visible before its first run.
func (t *JobTracker) Register(job string) {
	if t == nil || job == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job]; !ok {
		t.jobs[job] = &JobSummary{Job: job}
	}
}

// RecordRun stores the outcome of a job execution.
func (t *JobTracker) RecordRun(job string, err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()

	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	summary, ok := t.jobs[job]
	if !ok {
		summary = &JobSummary{Job: job}
		t.jobs[job] = summary
	}
	summary.TotalRuns++
	summary.LastRunAt = t.now().UTC()
	summary.LastDuration = duration
	if err != nil {
		summary.Failures++
		summary.ConsecutiveFailures++
		summary.LastError = err.Error()
		return
	}
	summary.ConsecutiveFailures = 0
	summary.LastError = ""
}

// Jobs returns a copy of every job summary sorted by name.
func (t *JobTracker) Jobs() []JobSummary {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]JobSummary, 0, len(t.jobs))
	for _, summary := range t.jobs {
		out = append(out, *summary)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}
