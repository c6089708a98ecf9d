package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/cmsconsole/internal/monitoring"
	"github.com/charlesng35/cmsconsole/pkg/logger"
)

const defaultJobTimeout = 10 * time.Minute

// Job is a named unit of background work run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context, now time.Time) error
}

// Scheduler runs maintenance jobs and reports their outcome to a JobTracker.
type Scheduler struct {
	cron    *cron.Cron
	tracker *monitoring.JobTracker
	now     func() time.Time
	timeout time.Duration
	log     *zap.Logger
	jobs    []Job
	started bool
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock passed to jobs.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTracker records job runs for health reporting.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(s *Scheduler) {
		s.tracker = tracker
	}
}

// WithJobTimeout bounds each job execution.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewScheduler constructs an idle scheduler. Jobs are added with Add.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		now:     time.Now,
		timeout: defaultJobTimeout,
		log:     logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Add registers a job. Jobs without a name or a Run func are rejected.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("maintenance: job requires a name and a run func")
	}
	if s.started {
		return fmt.Errorf("maintenance: cannot add %s after start", job.Name)
	}
	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("maintenance: %s schedule %q: %w", job.Name, job.Schedule, err)
	}
	s.jobs = append(s.jobs, job)
	s.tracker.Register(job.Name)
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, job := range s.jobs {
		names[i] = job.Name
	}
	return names
}

// Start schedules every registered job and launches the cron loop.
func (s *Scheduler) Start() error {
	if s.started || len(s.jobs) == 0 {
		return nil
	}
	for _, job := range s.jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Schedule, func() {
			_ = s.run(context.Background(), job)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", job.Name, err)
		}
	}
	s.cron.Start()
	s.started = true
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.cron.Stop()
}

// RunOnce executes every job sequentially and returns the combined errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, job := range s.jobs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, s.run(ctx, job))
	}
	return errs
}

func (s *Scheduler) run(ctx context.Context, job Job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("maintenance: %s panicked: %v", job.Name, rec)
		}
		s.tracker.RecordRun(job.Name, err, time.Since(start))
		if err != nil {
			s.log.Warn("maintenance job failed", zap.String("job", job.Name), zap.Error(err))
			err = fmt.Errorf("%s: %w", job.Name, err)
			return
		}
		s.log.Debug("maintenance job finished", zap.String("job", job.Name), zap.Duration("duration", time.Since(start)))
	}()

	return job.Run(ctx, s.now())
}
