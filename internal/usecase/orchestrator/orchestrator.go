package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisreview/aegis/internal/adapter/embedder"
	"github.com/aegisreview/aegis/internal/adapter/llm"
	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
	"github.com/aegisreview/aegis/internal/store"
	"strings"
)

// defaultInterCommentDelay is the minimum spacing between provider
// calls, per spec.md §4.3(5), skipped when the adapter reports
// batched-post support.
const defaultInterCommentDelay = 1500 * time.Millisecond

const defaultMaxFileWorkers = 4

// Deps captures the orchestrator's outbound dependencies.
type Deps struct {
	Platforms    platform.Registry
	Provider     llm.Provider
	Embedder     Embedder
	Knowledge    KnowledgeStore
	Constraints  ConstraintStore
	Redactor     Redactor         // optional
	Health       HealthGate       // optional
	Fingerprints FingerprintIndex // optional
	Results      TaskResultGetter // optional, required to resolve a fingerprint hit
	Logger       logging.Logger   // optional
	Metrics      *metrics.Registry // optional
	SeedGenerator SeedFunc        // optional, defaults to sha256-derived
	Clock        Clock            // optional, defaults to time.Now
}

// Options configures thresholds and limits the orchestrator applies.
type Options struct {
	RAGSimilarityThreshold  float64
	RLHFSimilarityThreshold float64
	InterCommentDelay       time.Duration
	IgnoredSuffixes         []string
	MaxFileWorkers          int
}

// DefaultOptions returns spec.md's documented defaults.
func DefaultOptions() Options {
	return Options{
		RAGSimilarityThreshold:  0.75,
		RLHFSimilarityThreshold: 0.8,
		InterCommentDelay:       defaultInterCommentDelay,
		MaxFileWorkers:          defaultMaxFileWorkers,
	}
}

// Orchestrator implements the per-task review workflow (C9).
type Orchestrator struct {
	deps Deps
	opts Options
}

// New wires an Orchestrator. Zero-value Options fields fall back to
// DefaultOptions' values.
func New(deps Deps, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.RAGSimilarityThreshold == 0 {
		opts.RAGSimilarityThreshold = defaults.RAGSimilarityThreshold
	}
	if opts.RLHFSimilarityThreshold == 0 {
		opts.RLHFSimilarityThreshold = defaults.RLHFSimilarityThreshold
	}
	if opts.InterCommentDelay == 0 {
		opts.InterCommentDelay = defaults.InterCommentDelay
	}
	if opts.MaxFileWorkers <= 0 {
		opts.MaxFileWorkers = defaults.MaxFileWorkers
	}
	if deps.SeedGenerator == nil {
		deps.SeedGenerator = defaultSeedFunc
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{deps: deps, opts: opts}
}

func defaultSeedFunc(repoID, headSHA string) uint64 {
	sum := sha256.Sum256([]byte(repoID + "|" + headSHA))
	return binary.BigEndian.Uint64(sum[:8])
}

// fileResult is one file block's contribution to the aggregate review.
type fileResult struct {
	comments []domain.ReviewComment
	ragUsed  bool
	ragCount int
	suppressed int
	tokensUsed int
	err      error
}

// Review executes the full per-task workflow described in spec.md
// §4.3: acquire the diff, review it file-by-file (RAG + RLHF + LLM),
// assemble a ReviewResponse, and post it back through the platform
// adapter. taskID is used only to key the idempotency fingerprint
// index; it is not otherwise interpreted.
func (o *Orchestrator) Review(ctx context.Context, taskID string, meta domain.PRMetadata, cfg domain.ReviewConfig) (domain.ReviewResponse, error) {
	fingerprint := domain.TaskFingerprint(meta.RepoID, meta.HeadSHA, domain.ConfigHash(cfg))

	if resp, ok := o.priorReview(ctx, fingerprint, taskID); ok {
		return resp, nil
	}

	adapter, ok := o.deps.Platforms.For(meta.Platform)
	if !ok {
		return domain.ReviewResponse{}, platformerrors.New(platformerrors.KindValidation, "orchestrator", fmt.Sprintf("no adapter registered for platform %q", meta.Platform))
	}

	blocks, err := adapter.GetDiff(ctx, meta)
	if err != nil {
		return domain.ReviewResponse{}, platformerrors.Wrap(platformerrors.KindTransient, "orchestrator", "fetch diff", err)
	}

	seed := o.deps.SeedGenerator(meta.RepoID, meta.HeadSHA)
	response, err := o.reviewBlocks(ctx, meta, cfg, blocks, seed)
	if err != nil {
		return domain.ReviewResponse{}, err
	}

	if err := adapter.PostReview(ctx, meta, response); err != nil {
		return domain.ReviewResponse{}, platformerrors.Wrap(platformerrors.KindTransient, "orchestrator", "post review", err)
	}

	if o.deps.Fingerprints != nil {
		if err := o.deps.Fingerprints.PutFingerprint(ctx, fingerprint, taskID); err != nil && o.deps.Logger != nil {
			o.deps.Logger.Warn("failed to record review fingerprint", logging.Fields{"error": err.Error(), "task_id": taskID})
		}
	}

	return response, nil
}

// priorReview short-circuits a retried task that already produced a
// posted review for the same idempotency fingerprint, rather than
// posting a duplicate (spec.md §4.3(4): "no duplicate noise on
// retry"). Returns ok=false on any miss or lookup failure, letting the
// caller proceed with a normal review.
func (o *Orchestrator) priorReview(ctx context.Context, fingerprint, taskID string) (domain.ReviewResponse, bool) {
	if o.deps.Fingerprints == nil || o.deps.Results == nil {
		return domain.ReviewResponse{}, false
	}
	priorTaskID, err := o.deps.Fingerprints.GetFingerprint(ctx, fingerprint)
	if err != nil || priorTaskID == "" || priorTaskID == taskID {
		return domain.ReviewResponse{}, false
	}
	priorTask, err := o.deps.Results.Get(ctx, priorTaskID)
	if err != nil || priorTask.Result == nil {
		return domain.ReviewResponse{}, false
	}
	if o.deps.Logger != nil {
		o.deps.Logger.Info("short-circuiting duplicate review", logging.Fields{"fingerprint": fingerprint, "prior_task_id": priorTaskID})
	}
	return *priorTask.Result, true
}

// reviewBlocks runs the bounded-concurrency per-file review loop and
// assembles the final ReviewResponse.
func (o *Orchestrator) reviewBlocks(ctx context.Context, meta domain.PRMetadata, cfg domain.ReviewConfig, blocks []string, seed uint64) (domain.ReviewResponse, error) {
	type indexed struct {
		idx   int
		block string
		path  string
	}

	var jobs []indexed
	for i, block := range blocks {
		path := extractFilePath(block)
		if matchesIgnoredSuffix(path, o.opts.IgnoredSuffixes) {
			continue
		}
		jobs = append(jobs, indexed{idx: i, block: block, path: path})
	}

	results := make([]fileResult, len(jobs))
	sem := make(chan struct{}, o.opts.MaxFileWorkers)
	var wg sync.WaitGroup

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, job indexed) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fileResult{err: fmt.Errorf("panic reviewing %s: %v", job.path, r)}
				}
			}()
			results[i] = o.reviewFile(ctx, meta, cfg, job.path, job.block, seed)
		}(i, job)
	}
	wg.Wait()

	var allComments []domain.ReviewComment
	var stats domain.ReviewStats
	var firstErr error
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		allComments = append(allComments, r.comments...)
		if r.ragUsed {
			stats.RAGContextUsed = true
			stats.RAGMatchesFound += r.ragCount
		}
		stats.RLHFConstraintsApplied += r.suppressed
		stats.TokensUsed += r.tokensUsed
	}
	if firstErr != nil {
		return domain.ReviewResponse{}, platformerrors.Wrap(platformerrors.KindTransient, "orchestrator", "per-file review failed", firstErr)
	}

	threshold := cfg.SeverityThreshold
	if threshold == "" {
		threshold = domain.SeverityLow
	}
	kept := make([]domain.ReviewComment, 0, len(allComments))
	for _, c := range allComments {
		if domain.MeetsThreshold(c.Severity, threshold) {
			kept = append(kept, c)
			stats.Tally(c.Severity)
		}
	}

	summary := fmt.Sprintf("Reviewed %d file(s), %d issue(s) reported.", len(jobs), len(kept))
	return domain.ReviewResponse{
		ReviewID: uuid.NewString(),
		Summary:  summary,
		Comments: kept,
		Stats:    stats,
	}, nil
}

// reviewFile runs steps 2a-2d of spec.md §4.3 for a single diff block:
// RAG retrieval, RLHF suppression lookup, LLM invocation, and
// suppression application. Severity filtering happens in the caller
// once all files have reported.
func (o *Orchestrator) reviewFile(ctx context.Context, meta domain.PRMetadata, cfg domain.ReviewConfig, filePath, block string, seed uint64) fileResult {
	query := embedder.TrimForQuery(block)

	var queryEmbedding []float32
	var haveEmbedding bool
	var ragCitations []string
	ragUsed := false
	ragCount := 0

	allowRAG := cfg.UseRAGContext && o.deps.Knowledge != nil && o.deps.Embedder != nil && (o.deps.Health == nil || o.deps.Health.AllowRAG())
	if allowRAG {
		vecs, err := o.deps.Embedder.Embed(ctx, []string{query})
		if err != nil || len(vecs) != 1 {
			o.logWarn("RAG embed failed, continuing without context", err, filePath)
		} else {
			queryEmbedding = vecs[0]
			haveEmbedding = true
			topK := cfg.MaxContextMatches
			if topK <= 0 {
				topK = 10
			}
			scored, err := o.deps.Knowledge.QuerySimilar(ctx, meta.RepoID, queryEmbedding, topK)
			if err != nil {
				o.logWarn("RAG retrieval failed, continuing without context", err, filePath)
			} else {
				for _, s := range scored {
					if s.Score < o.opts.RAGSimilarityThreshold {
						continue
					}
					ragCitations = append(ragCitations, formatCitation(s.Chunk))
				}
				ragUsed = true
				ragCount = len(ragCitations)
				if o.deps.Metrics != nil {
					o.deps.Metrics.RAGMatchesFound.Observe(float64(ragCount))
				}
			}
		}
	}

	var suppressionHints []string
	var constraintMatches []store.ScoredConstraint

	allowRLHF := cfg.ApplyLearnedSuppressions && o.deps.Constraints != nil && o.deps.Embedder != nil && (o.deps.Health == nil || o.deps.Health.AllowRLHF())
	if allowRLHF {
		if !haveEmbedding {
			vecs, err := o.deps.Embedder.Embed(ctx, []string{query})
			if err != nil || len(vecs) != 1 {
				o.logWarn("RLHF embed failed, continuing without suppression", err, filePath)
			} else {
				queryEmbedding = vecs[0]
				haveEmbedding = true
			}
		}
		if haveEmbedding {
			scored, err := o.deps.Constraints.QuerySimilarConstraints(ctx, meta.RepoID, queryEmbedding, o.opts.RLHFSimilarityThreshold)
			if err != nil {
				o.logWarn("RLHF retrieval failed, continuing without suppression", err, filePath)
			} else {
				constraintMatches = scored
				for _, s := range scored {
					suppressionHints = append(suppressionHints, formatSuppressionHint(s.Constraint))
				}
			}
		}
	}

	prompt, err := BuildPrompt(filePath, block, ragCitations, suppressionHints, personaInstructions(cfg.Personas))
	if err != nil {
		return fileResult{err: fmt.Errorf("build prompt for %s: %w", filePath, err)}
	}

	if o.deps.Redactor != nil {
		redacted, _, err := o.deps.Redactor.Redact(prompt)
		if err != nil {
			return fileResult{err: fmt.Errorf("redact prompt for %s: %w", filePath, err)}
		}
		prompt = redacted
	}

	result, err := o.deps.Provider.Review(ctx, llm.ReviewRequest{Prompt: prompt, Seed: seed, MaxTokens: defaultMaxTokens})
	if o.deps.Metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		o.deps.Metrics.LLMRequests.WithLabelValues(result.ProviderName, outcome).Inc()
	}
	if err != nil {
		return fileResult{err: fmt.Errorf("llm review of %s: %w", filePath, err)}
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.LLMTokensUsed.WithLabelValues(result.ProviderName).Add(float64(result.Usage.TokensIn + result.Usage.TokensOut))
	}

	comments := result.Comments
	suppressed := 0
	if len(constraintMatches) > 0 {
		comments, suppressed = applySuppressions(comments, constraintMatches)
		if suppressed > 0 && o.deps.Metrics != nil {
			o.deps.Metrics.SuppressionsUsed.WithLabelValues(meta.RepoID).Add(float64(suppressed))
		}
	}

	if o.opts.InterCommentDelay > 0 {
		select {
		case <-time.After(o.opts.InterCommentDelay):
		case <-ctx.Done():
		}
	}

	return fileResult{
		comments:   comments,
		ragUsed:    ragUsed,
		ragCount:   ragCount,
		suppressed: suppressed,
		tokensUsed: result.Usage.TokensIn + result.Usage.TokensOut,
	}
}

// personaInstructions renders a task's configured personas into a
// single instructions string appended to the prompt. An empty list
// yields no extra instructions.
func personaInstructions(personas []string) string {
	if len(personas) == 0 {
		return ""
	}
	return "Review from the following perspective(s): " + strings.Join(personas, ", ") + "."
}

func (o *Orchestrator) logWarn(msg string, err error, filePath string) {
	if o.deps.Logger == nil {
		return
	}
	fields := logging.Fields{"file": filePath}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.deps.Logger.Warn(msg, fields)
}
