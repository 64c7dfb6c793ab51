package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisreview/aegis/internal/adapter/llm"
	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/store"
)

const sampleDiff = "diff --git a/pkg/foo.go b/pkg/foo.go\n--- a/pkg/foo.go\n+++ b/pkg/foo.go\n@@ -1 +1 @@\n-old\n+new\n"

type stubAdapter struct {
	blocks     []string
	diffErr    error
	postErr    error
	posted     []domain.ReviewResponse
	postCalled int
}

func (s *stubAdapter) ParseWebhook(eventType string, payload []byte) (domain.PRMetadata, error) {
	return domain.PRMetadata{}, nil
}

func (s *stubAdapter) GetDiff(ctx context.Context, metadata domain.PRMetadata) ([]string, error) {
	if s.diffErr != nil {
		return nil, s.diffErr
	}
	return s.blocks, nil
}

func (s *stubAdapter) PostReview(ctx context.Context, metadata domain.PRMetadata, review domain.ReviewResponse) error {
	s.postCalled++
	s.posted = append(s.posted, review)
	return s.postErr
}

func (s *stubAdapter) VerifySignature(body []byte, headerValue, secret string) bool { return true }

type stubProvider struct {
	result  llm.ReviewResult
	err     error
	callCnt int
}

func (p *stubProvider) Review(ctx context.Context, req llm.ReviewRequest) (llm.ReviewResult, error) {
	p.callCnt++
	if p.err != nil {
		return llm.ReviewResult{}, p.err
	}
	return p.result, nil
}

func (p *stubProvider) EstimateTokens(text string) int { return len(text) / 4 }

type stubEmbedder struct {
	dim int
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dim)
	}
	return out, nil
}

type stubKnowledge struct {
	chunks []store.ScoredChunk
	err    error
}

func (k *stubKnowledge) QuerySimilar(ctx context.Context, repoID string, embedding []float32, topK int) ([]store.ScoredChunk, error) {
	if k.err != nil {
		return nil, k.err
	}
	return k.chunks, nil
}

type stubConstraints struct {
	matches []store.ScoredConstraint
	err     error
}

func (c *stubConstraints) QuerySimilarConstraints(ctx context.Context, repoID string, embedding []float32, threshold float64) ([]store.ScoredConstraint, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.matches, nil
}

type stubFingerprints struct {
	store map[string]string
}

func newStubFingerprints() *stubFingerprints { return &stubFingerprints{store: map[string]string{}} }

func (f *stubFingerprints) GetFingerprint(ctx context.Context, fingerprint string) (string, error) {
	v, ok := f.store[fingerprint]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (f *stubFingerprints) PutFingerprint(ctx context.Context, fingerprint, taskID string) error {
	f.store[fingerprint] = taskID
	return nil
}

type stubResults struct {
	tasks map[string]domain.ReviewTask
}

func (r *stubResults) Get(ctx context.Context, taskID string) (domain.ReviewTask, error) {
	t, ok := r.tasks[taskID]
	if !ok {
		return domain.ReviewTask{}, errors.New("not found")
	}
	return t, nil
}

func basicMeta() domain.PRMetadata {
	return domain.PRMetadata{RepoID: "repo-1", HeadSHA: "deadbeef", Platform: domain.PlatformGitHub}
}

func TestReviewPostsCommentsAboveSeverityThreshold(t *testing.T) {
	adapter := &stubAdapter{blocks: []string{sampleDiff}}
	provider := &stubProvider{result: llm.ReviewResult{
		ProviderName: "static",
		Comments: []domain.ReviewComment{
			{FilePath: "pkg/foo.go", Type: "bug", Severity: domain.SeverityHigh, Message: "nil deref"},
			{FilePath: "pkg/foo.go", Type: "nit", Severity: domain.SeverityNit, Message: "spacing"},
		},
	}}

	o := New(Deps{
		Platforms: platform.Registry{domain.PlatformGitHub: adapter},
		Provider:  provider,
	}, Options{MaxFileWorkers: 2, InterCommentDelay: time.Nanosecond})

	cfg := domain.DefaultReviewConfig()
	cfg.SeverityThreshold = domain.SeverityMedium
	cfg.UseRAGContext = false
	cfg.ApplyLearnedSuppressions = false

	resp, err := o.Review(context.Background(), "task-1", basicMeta(), cfg)
	require.NoError(t, err)
	require.Len(t, resp.Comments, 1)
	assert.Equal(t, "nil deref", resp.Comments[0].Message)
	assert.Equal(t, 1, resp.Stats.TotalIssues)
	assert.Equal(t, 1, adapter.postCalled)
}

func TestReviewAppliesRAGCitationsAndRLHFSuppression(t *testing.T) {
	adapter := &stubAdapter{blocks: []string{sampleDiff}}
	provider := &stubProvider{result: llm.ReviewResult{
		Comments: []domain.ReviewComment{
			{FilePath: "pkg/foo.go", Type: "style", Severity: domain.SeverityLow, Message: "use gofmt"},
		},
	}}
	knowledge := &stubKnowledge{chunks: []store.ScoredChunk{
		{Chunk: domain.KnowledgeChunk{FilePath: "pkg/bar.go", Metadata: domain.ChunkMetadata{LineNumber: 3}}, Score: 0.9},
	}}
	constraints := &stubConstraints{matches: []store.ScoredConstraint{
		{Constraint: domain.LearnedConstraint{ViolationReason: "style"}, Score: 0.85},
	}}

	o := New(Deps{
		Platforms:   platform.Registry{domain.PlatformGitHub: adapter},
		Provider:    provider,
		Embedder:    &stubEmbedder{dim: 4},
		Knowledge:   knowledge,
		Constraints: constraints,
	}, Options{MaxFileWorkers: 2, InterCommentDelay: time.Nanosecond})

	cfg := domain.DefaultReviewConfig()
	resp, err := o.Review(context.Background(), "task-1", basicMeta(), cfg)
	require.NoError(t, err)
	assert.Empty(t, resp.Comments, "the single comment should have been suppressed")
	assert.True(t, resp.Stats.RAGContextUsed)
	assert.Equal(t, 1, resp.Stats.RAGMatchesFound)
	assert.Equal(t, 1, resp.Stats.RLHFConstraintsApplied)
}

func TestReviewShortCircuitsOnMatchingFingerprint(t *testing.T) {
	adapter := &stubAdapter{blocks: []string{sampleDiff}}
	provider := &stubProvider{}
	meta := basicMeta()
	cfg := domain.DefaultReviewConfig()
	fingerprint := domain.TaskFingerprint(meta.RepoID, meta.HeadSHA, domain.ConfigHash(cfg))

	fingerprints := newStubFingerprints()
	fingerprints.store[fingerprint] = "prior-task"
	priorResponse := domain.ReviewResponse{ReviewID: "prior-review", Summary: "prior"}
	results := &stubResults{tasks: map[string]domain.ReviewTask{
		"prior-task": {TaskID: "prior-task", Result: &priorResponse},
	}}

	o := New(Deps{
		Platforms:    platform.Registry{domain.PlatformGitHub: adapter},
		Provider:     provider,
		Fingerprints: fingerprints,
		Results:      results,
	}, Options{})

	resp, err := o.Review(context.Background(), "new-task", meta, cfg)
	require.NoError(t, err)
	assert.Equal(t, "prior-review", resp.ReviewID)
	assert.Equal(t, 0, adapter.postCalled, "a short-circuited review must not be re-posted")
	assert.Equal(t, 0, provider.callCnt, "the LLM must not be invoked on a fingerprint hit")
}

func TestReviewSkipsIgnoredFileSuffixes(t *testing.T) {
	lockBlock := "diff --git a/go.sum b/go.sum\n--- a/go.sum\n+++ b/go.sum\n@@ -1 +1 @@\n-a\n+b\n"
	adapter := &stubAdapter{blocks: []string{sampleDiff, lockBlock}}
	provider := &stubProvider{result: llm.ReviewResult{Comments: nil}}

	o := New(Deps{
		Platforms: platform.Registry{domain.PlatformGitHub: adapter},
		Provider:  provider,
	}, Options{IgnoredSuffixes: []string{"go.sum"}, MaxFileWorkers: 2, InterCommentDelay: time.Nanosecond})

	cfg := domain.DefaultReviewConfig()
	cfg.UseRAGContext = false
	cfg.ApplyLearnedSuppressions = false
	_, err := o.Review(context.Background(), "task-1", basicMeta(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, provider.callCnt, "go.sum block should have been filtered before reaching the LLM")
}

func TestReviewReturnsErrorWhenNoAdapterRegistered(t *testing.T) {
	o := New(Deps{Platforms: platform.Registry{}, Provider: &stubProvider{}}, Options{})
	_, err := o.Review(context.Background(), "task-1", basicMeta(), domain.DefaultReviewConfig())
	require.Error(t, err)
}

func TestReviewPropagatesDiffFetchError(t *testing.T) {
	adapter := &stubAdapter{diffErr: errors.New("boom")}
	o := New(Deps{
		Platforms: platform.Registry{domain.PlatformGitHub: adapter},
		Provider:  &stubProvider{},
	}, Options{})
	_, err := o.Review(context.Background(), "task-1", basicMeta(), domain.DefaultReviewConfig())
	require.Error(t, err)
}

func TestReviewContinuesWithoutContextWhenEmbedderFails(t *testing.T) {
	adapter := &stubAdapter{blocks: []string{sampleDiff}}
	provider := &stubProvider{result: llm.ReviewResult{
		Comments: []domain.ReviewComment{
			{FilePath: "pkg/foo.go", Type: "bug", Severity: domain.SeverityHigh, Message: "nil deref"},
		},
	}}
	o := New(Deps{
		Platforms: platform.Registry{domain.PlatformGitHub: adapter},
		Provider:  provider,
		Embedder:  &stubEmbedder{err: errors.New("embedder down")},
		Knowledge: &stubKnowledge{},
	}, Options{InterCommentDelay: time.Nanosecond})

	cfg := domain.DefaultReviewConfig()
	resp, err := o.Review(context.Background(), "task-1", basicMeta(), cfg)
	require.NoError(t, err)
	require.Len(t, resp.Comments, 1)
	assert.False(t, resp.Stats.RAGContextUsed)
}
