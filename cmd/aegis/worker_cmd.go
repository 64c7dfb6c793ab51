package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisreview/aegis/internal/adapter/git"
	"github.com/aegisreview/aegis/internal/adapter/queue"
	"github.com/aegisreview/aegis/internal/adapter/store/sqlite"
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/redaction"
	"github.com/aegisreview/aegis/internal/store"
	"github.com/aegisreview/aegis/internal/usecase/degradation"
	"github.com/aegisreview/aegis/internal/usecase/indexer"
	"github.com/aegisreview/aegis/internal/usecase/orchestrator"
)

func newWorkerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the durable consumers that drive the review and indexing pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fatalf("load config: %w", err)
			}
			return runWorker(cmd.Context(), cfg)
		},
	}
}

// breakerKnowledgeStore wraps a store.KnowledgeStore's retrieval call
// through the degradation Manager's breaker, falling back to an empty
// match set (no RAG context) rather than failing the review when the
// knowledge plane is unhealthy, per spec.md §4.8.
type breakerKnowledgeStore struct {
	inner store.KnowledgeStore
	mgr   *degradation.Manager
}

func (b breakerKnowledgeStore) QuerySimilar(ctx context.Context, repoID string, embedding []float32, topK int) ([]store.ScoredChunk, error) {
	return degradation.Execute(ctx, b.mgr, degradation.DependencyKnowledge, []store.ScoredChunk(nil), func(ctx context.Context) ([]store.ScoredChunk, error) {
		return b.inner.QuerySimilar(ctx, repoID, embedding, topK)
	}), nil
}

// breakerConstraintStore is breakerKnowledgeStore's counterpart for the
// learned-constraint plane, falling back to no suppressions applied.
type breakerConstraintStore struct {
	inner store.ConstraintStore
	mgr   *degradation.Manager
}

func (b breakerConstraintStore) QuerySimilarConstraints(ctx context.Context, repoID string, embedding []float32, threshold float64) ([]store.ScoredConstraint, error) {
	return degradation.Execute(ctx, b.mgr, degradation.DependencyConstraint, []store.ScoredConstraint(nil), func(ctx context.Context) ([]store.ScoredConstraint, error) {
		return b.inner.QuerySimilarConstraints(ctx, repoID, embedding, threshold)
	}), nil
}

func runWorker(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Observability.Logging)
	reg := buildMetrics(cfg.Observability.Metrics)

	platforms, err := buildPlatforms(cfg.Platforms)
	if err != nil {
		return err
	}

	if !cfg.Store.Enabled {
		return fatalf("worker: store.enabled is required, the review and indexing pipelines cannot run without a knowledge/constraint backend")
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

	controller := degradation.NewController()
	breakerMgr := degradation.NewManager(controller, cfg.Degradation, logger)
	prober := degradation.NewProber(controller, 0)
	prober.Register(degradation.DependencyKnowledge, func(ctx context.Context) error {
		_, err := dataStore.CountChunks(ctx, "")
		return err
	})
	prober.Register(degradation.DependencyConstraint, func(ctx context.Context) error {
		_, err := dataStore.CountActive(ctx, "", time.Now())
		return err
	})
	go prober.Run(ctx)

	embed := buildEmbedder(cfg.RAG, cfg.Providers, cfg.HTTP)
	redactor := redaction.NewEngine()
	provider := buildLLMProvider(cfg.Providers, cfg.HTTP)

	orchDeps := orchestrator.Deps{
		Platforms:    platforms,
		Provider:     provider,
		Embedder:     embed,
		Knowledge:    breakerKnowledgeStore{inner: dataStore, mgr: breakerMgr},
		Constraints:  breakerConstraintStore{inner: dataStore, mgr: breakerMgr},
		Redactor:     redactor,
		Health:       controller,
		Fingerprints: broker.Results(),
		Results:      broker.Results(),
		Logger:       logger,
		Metrics:      reg,
	}
	orch := orchestrator.New(orchDeps, orchestrator.DefaultOptions())

	cloneTimeout := parseDurationOr(cfg.Indexer.CloneTimeout, 0)
	idx := indexer.New(git.GitCloner{}, embed, redactor, dataStore, indexer.Options{
		ChunkSizeChars:    cfg.Indexer.ChunkSizeChars,
		ChunkOverlapChars: cfg.Indexer.ChunkOverlapChars,
		MaxFileSizeBytes:  cfg.Indexer.MaxFileSizeBytes,
		CloneTimeout:      cloneTimeout,
	})

	reviewHandler := func(ctx context.Context, task domain.ReviewTask) error {
		_, err := orch.Review(ctx, task.TaskID, task.Metadata, task.Config)
		return err
	}
	indexHandler := func(ctx context.Context, task domain.ReviewTask) error {
		if task.Indexing == nil {
			return fatalf("indexing task %s carries no indexing request", task.TaskID)
		}
		_, err := idx.Run(ctx, *task.Indexing, func(progress domain.IndexingProgress) {
			_ = broker.Results().PutIndexProgress(ctx, task.Indexing.RepoID, task.TaskID, progress)
		})
		return err
	}

	workers := []*queue.Worker{
		{Queue: queue.CodeReview, Broker: broker, Handler: reviewHandler, Logger: logger, Metrics: reg, MaxTasksPerChild: cfg.Queue.MaxTasksPerChild},
		{Queue: queue.Indexing, Broker: broker, Handler: indexHandler, Logger: logger, Metrics: reg, MaxTasksPerChild: cfg.Queue.MaxTasksPerChild},
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		if err := w.Start(ctx); err != nil {
			return fatalf("start %s worker: %w", w.Queue, err)
		}
		wg.Add(1)
		go func(w *queue.Worker) {
			defer wg.Done()
			// Run returns nil both on ctx cancellation and once
			// MaxTasksPerChild is reached; in the latter case this
			// goroutine exits and relies on an external process
			// supervisor to restart the whole `aegis worker` process,
			// matching Worker's documented bounded-memory-growth design.
			if err := w.Run(ctx); err != nil {
				logger.Error("worker: run loop exited", err, logging.Fields{"queue": w.Queue})
			}
		}(w)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}
