package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

// jobTimeout bounds a single run of any of the three background jobs,
// so a stuck SQLite query or queue dial doesn't block the next tick
// indefinitely.
const jobTimeout = 2 * time.Minute

// Deps wires the scheduler's outbound collaborators.
type Deps struct {
	Constraints ConstraintSweeper
	Repos       RepoLister
	Counts      ConstraintCounter
	Feedback    FeedbackCounter
	Reindex     ReindexSource
	Queue       Enqueuer
	IndexQueue  string
	Metrics     *metrics.Registry
	Logger      logging.Logger
	Clock       func() time.Time
}

// Scheduler runs the three cron-driven background jobs described in
// SchedulerConfig against a single robfig/cron/v3 instance.
type Scheduler struct {
	cron *cron.Cron
	deps Deps
}

// New builds a Scheduler and registers all three jobs. Cron
// expressions are configuration (SchedulerConfig), never hardcoded.
func New(cfg config.SchedulerConfig, deps Deps) (*Scheduler, error) {
	if deps.IndexQueue == "" {
		deps.IndexQueue = "indexing"
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	s := &Scheduler{cron: cron.New(), deps: deps}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context)
	}{
		{"constraint_sweep", cfg.ConstraintSweepCron, s.sweepExpiredConstraints},
		{"metric_aggregation", cfg.MetricAggregationCron, s.aggregateMetrics},
		{"periodic_reindex", cfg.PeriodicReindexCron, s.triggerPeriodicReindex},
	}

	for _, job := range jobs {
		if job.spec == "" {
			return nil, fmt.Errorf("scheduler: %s cron expression is empty", job.name)
		}
		run := job.run
		name := job.name
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(name, run) }); err != nil {
			return nil, fmt.Errorf("scheduler: register %s job: %w", job.name, err)
		}
	}

	return s, nil
}

// runJob recovers from a panicking job body and bounds its runtime,
// so one misbehaving job never takes the whole scheduler process down.
func (s *Scheduler) runJob(name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logError(fmt.Sprintf("scheduler: %s job panicked", name), fmt.Errorf("%v", r), nil)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	fn(ctx)
}

// Start begins running registered jobs on their own goroutine. It
// returns immediately; call Stop to drain in-flight runs.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron scheduler and blocks until any in-flight job
// finishes, up to the caller's context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) logWarn(msg string, fields logging.Fields) {
	if s.deps.Logger != nil {
		s.deps.Logger.Warn(msg, fields)
	}
}

func (s *Scheduler) logInfo(msg string, fields logging.Fields) {
	if s.deps.Logger != nil {
		s.deps.Logger.Info(msg, fields)
	}
}

func (s *Scheduler) logError(msg string, err error, fields logging.Fields) {
	if s.deps.Logger != nil {
		s.deps.Logger.Error(msg, err, fields)
	}
}
