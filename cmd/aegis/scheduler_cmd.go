package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegisreview/aegis/internal/adapter/queue"
	"github.com/aegisreview/aegis/internal/adapter/store/sqlite"
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/usecase/scheduler"
)

func newSchedulerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the cron-driven background jobs: constraint sweep, metric aggregation, periodic re-index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fatalf("load config: %w", err)
			}
			return runScheduler(cmd.Context(), cfg)
		},
	}
}

func runScheduler(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Observability.Logging)
	reg := buildMetrics(cfg.Observability.Metrics)

	if !cfg.Store.Enabled {
		return fatalf("scheduler: store.enabled is required for the constraint sweep and metric aggregation jobs")
	}
	dataStore, err := sqlite.NewStore(cfg.Store.Path)
	if err != nil {
		return fatalf("open store: %w", err)
	}
	defer dataStore.Close()

	broker, err := queue.Dial(ctx, cfg.Queue)
	if err != nil {
		return fatalf("dial queue: %w", err)
	}
	defer broker.Close()

	s, err := scheduler.New(cfg.Scheduler, scheduler.Deps{
		Constraints: dataStore,
		Repos:       dataStore,
		Counts:      dataStore,
		Feedback:    dataStore,
		Reindex:     broker.Results(),
		Queue:       broker,
		IndexQueue:  queue.Indexing,
		Metrics:     reg,
		Logger:      logger,
	})
	if err != nil {
		return fatalf("build scheduler: %w", err)
	}

	s.Start()
	logger.Info("scheduler: started", nil)

	<-ctx.Done()
	return s.Stop(context.Background())
}
