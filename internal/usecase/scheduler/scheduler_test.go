package scheduler

import (
	"context"
	"testing"

	"github.com/aegisreview/aegis/internal/config"
)

func validConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		ConstraintSweepCron:   "0 * * * *",
		MetricAggregationCron: "*/15 * * * *",
		PeriodicReindexCron:   "0 3 * * *",
	}
}

func TestNewRegistersAllThreeJobs(t *testing.T) {
	s, err := New(validConfig(), Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.cron.Entries()) != 3 {
		t.Fatalf("got %d entries, want 3", len(s.cron.Entries()))
	}
}

func TestNewRejectsEmptyCronExpression(t *testing.T) {
	cfg := validConfig()
	cfg.MetricAggregationCron = ""
	if _, err := New(cfg, Deps{}); err == nil {
		t.Fatal("expected an error for an empty cron expression")
	}
}

func TestNewRejectsMalformedCronExpression(t *testing.T) {
	cfg := validConfig()
	cfg.ConstraintSweepCron = "not a cron expression"
	if _, err := New(cfg, Deps{}); err == nil {
		t.Fatal("expected an error for a malformed cron expression")
	}
}

func TestRunJobRecoversFromPanic(t *testing.T) {
	s, err := New(validConfig(), Deps{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// runJob must swallow the panic itself; a panic escaping here would
	// fail the test via the runtime rather than a plain assertion.
	s.runJob("boom", func(ctx context.Context) { panic("job exploded") })
}
