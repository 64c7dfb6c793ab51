package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aegisreview/aegis/internal/adapter/gateway"
	"github.com/aegisreview/aegis/internal/adapter/queue"
	"github.com/aegisreview/aegis/internal/adapter/store/sqlite"
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/usecase/feedback"
	"github.com/aegisreview/aegis/internal/usecase/skip"
)

func newGatewayCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the ingress HTTP server: webhooks, feedback, indexing triggers, task status, MCP manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fatalf("load config: %w", err)
			}
			return runGateway(cmd.Context(), cfg)
		},
	}
}

// feedbackAdapter satisfies gateway.FeedbackProcessor by translating
// the wire-level gateway.FeedbackRequest into the usecase's own
// Request type; the two shapes carry identical fields but are
// distinct named types, so a direct method value can't be passed.
type feedbackAdapter struct {
	proc *feedback.Processor
}

func (a feedbackAdapter) Process(ctx context.Context, req gateway.FeedbackRequest) (domain.FeedbackRecord, error) {
	return a.proc.Process(ctx, feedback.Request{
		RepoID:            req.RepoID,
		ReviewID:          req.ReviewID,
		CommentID:         req.CommentID,
		UserID:            req.UserID,
		Action:            req.Action,
		Reason:            req.Reason,
		CommentType:       req.CommentType,
		DeveloperComment:  req.DeveloperComment,
		FinalCodeSnapshot: req.FinalCodeSnapshot,
		TraceID:           req.TraceID,
	})
}

// skipAwareQueue wraps an Enqueuer and silently drops a review task
// whose PR title carries a skip-review trigger, rather than teaching
// the gateway's webhook handler itself about commit-message
// conventions. Grounded on the teacher's usecase/skip.ContainsSkipTrigger.
type skipAwareQueue struct {
	inner  gateway.Enqueuer
	logger logging.Logger
}

func (q skipAwareQueue) Enqueue(ctx context.Context, queueName string, task domain.ReviewTask) error {
	if queueName == queue.CodeReview && skip.ContainsSkipTrigger(task.Metadata.Title) {
		q.logger.Info("gateway: skip-review trigger found, dropping task", logging.Fields{
			"repo_id": task.Metadata.RepoID, "pr_number": task.Metadata.PRNumber,
		})
		return nil
	}
	return q.inner.Enqueue(ctx, queueName, task)
}

func runGateway(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger(cfg.Observability.Logging)
	reg := buildMetrics(cfg.Observability.Metrics)

	platforms, err := buildPlatforms(cfg.Platforms)
	if err != nil {
		return err
	}

	var dataStore *sqlite.Store
	if cfg.Store.Enabled {
		dataStore, err = sqlite.NewStore(cfg.Store.Path)
		if err != nil {
			return fatalf("open store: %w", err)
		}
		defer dataStore.Close()
	}

	broker, err := queue.Dial(ctx, cfg.Queue)
	if err != nil {
		return fatalf("dial queue: %w", err)
	}
	defer broker.Close()

	var embed = buildEmbedder(cfg.RAG, cfg.Providers, cfg.HTTP)
	feedbackDeps := feedback.Deps{Metrics: reg}
	if dataStore != nil {
		feedbackDeps.Constraints = dataStore
		feedbackDeps.Feedback = dataStore
		feedbackDeps.Embedder = embed
	}
	feedbackProc := feedback.New(feedbackDeps)

	deps := gateway.Deps{
		Platforms:   platforms,
		Secrets:     webhookSecrets(cfg.Platforms),
		Queue:       skipAwareQueue{inner: broker, logger: logger},
		Results:     broker.Results(),
		Deliveries:  broker.Results(),
		Reindex:     broker.Results(),
		Feedback:    feedbackAdapter{proc: feedbackProc},
		Manifest:    buildManifest(cfg.MCP),
		Metrics:     reg,
		Logger:      logger,
		ReviewQueue: queue.CodeReview,
		IndexQueue:  queue.Indexing,
	}
	opts := gateway.DefaultOptions()
	if cfg.Gateway.WebhookMaxBodyBytes > 0 {
		opts.WebhookMaxBodyBytes = cfg.Gateway.WebhookMaxBodyBytes
	}
	opts.RequireSignature = cfg.Gateway.RequireSignature

	server := gateway.New(deps, opts)

	addr := cfg.Gateway.Addr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway: listening", logging.Fields{"addr": addr})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
