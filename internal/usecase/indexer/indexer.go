// Package indexer implements the repository indexer (C8): the
// clone -> walk -> chunk -> redact -> embed -> store pipeline that
// populates the RAG knowledge base, reporting progress through the
// same task-result backend (C7) code review tasks use.
package indexer

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/redaction"
)

// Cloner abstracts the shallow, token-authenticated clone of a
// repository branch into a scoped temporary directory.
type Cloner interface {
	Clone(ctx context.Context, url, branch, token, destDir string) error
}

// Embedder abstracts the embedding service. A single-text call isolates
// a failure to the one chunk that failed, matching the "skip and count,
// don't fail the job" rule.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Redactor abstracts secret detection/redaction.
type Redactor interface {
	Redact(input string) (string, []redaction.Match, error)
}

// Store abstracts the knowledge store's write path.
type Store interface {
	UpsertChunks(ctx context.Context, repoID string, chunks []domain.KnowledgeChunk) error
}

// ProgressReporter is invoked after every stage transition so the
// caller (the indexing queue worker) can persist it to the task result
// backend. Implementations must not block the pipeline for long.
type ProgressReporter func(domain.IndexingProgress)

// Options tunes the chunking/walk parameters; zero values fall back to
// the package defaults.
type Options struct {
	ChunkSizeChars    int
	ChunkOverlapChars int
	MaxFileSizeBytes  int64
	CloneTimeout      time.Duration
}

// Indexer runs the full indexing pipeline for one repository branch.
type Indexer struct {
	Cloner   Cloner
	Embedder Embedder
	Redactor Redactor
	Store    Store
	Options  Options

	// mkTempDir is overridable in tests; defaults to os.MkdirTemp.
	mkTempDir func(dir, pattern string) (string, error)
}

// New constructs an Indexer with the given collaborators.
func New(cloner Cloner, embedder Embedder, redactor Redactor, store Store, opts Options) *Indexer {
	return &Indexer{
		Cloner:    cloner,
		Embedder:  embedder,
		Redactor:  redactor,
		Store:     store,
		Options:   opts,
		mkTempDir: os.MkdirTemp,
	}
}

// Run executes clone -> walk -> chunk -> redact -> embed -> store for
// req, invoking report after every stage transition. It always returns
// the final IndexingProgress, even on failure (Stage == StageFailed,
// ErrorMessage populated), so callers can persist a terminal record
// without also having to inspect the returned error.
func (ix *Indexer) Run(ctx context.Context, req domain.IndexingRequest, report ProgressReporter) (domain.IndexingProgress, error) {
	if report == nil {
		report = func(domain.IndexingProgress) {}
	}

	progress := domain.IndexingProgress{Stage: domain.StageQueued}
	report(progress)

	fail := func(err error) (domain.IndexingProgress, error) {
		progress.Stage = domain.StageFailed
		progress.ErrorMessage = err.Error()
		report(progress)
		return progress, err
	}

	workDir, err := ix.mkTmp()
	if err != nil {
		return fail(fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(workDir)

	progress.Stage = domain.StageCloning
	report(progress)

	cloneCtx := ctx
	if ix.Options.CloneTimeout > 0 {
		var cancel context.CancelFunc
		cloneCtx, cancel = context.WithTimeout(ctx, ix.Options.CloneTimeout)
		defer cancel()
	}
	if err := ix.Cloner.Clone(cloneCtx, req.GitURL, req.Branch, req.AccessToken, workDir); err != nil {
		return fail(fmt.Errorf("clone: %w", err))
	}

	progress.Stage = domain.StageScanning
	files, err := walkRepo(workDir, ix.Options.MaxFileSizeBytes)
	if err != nil {
		return fail(fmt.Errorf("walk repository: %w", err))
	}
	progress.TotalFiles = len(files)
	progress.Percentage = 10
	report(progress)

	progress.Stage = domain.StageChunking
	report(progress)

	chunks := make([]domain.KnowledgeChunk, 0, len(files))
	secretsFound := map[string]int{}
	now := time.Now().UTC()

	for i, f := range files {
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			return fail(fmt.Errorf("read %s: %w", f.RelPath, err))
		}

		for _, raw := range chunkContent(string(content), ix.Options.ChunkSizeChars, ix.Options.ChunkOverlapChars) {
			redacted, matches, err := ix.Redactor.Redact(raw.Content)
			if err != nil {
				return fail(fmt.Errorf("redact %s#%d: %w", f.RelPath, raw.Index, err))
			}
			for _, m := range matches {
				secretsFound[string(m.SecretType)]++
			}

			chunks = append(chunks, domain.KnowledgeChunk{
				ID:         uuid.NewString(),
				RepoID:     req.RepoID,
				FilePath:   f.RelPath,
				ChunkIndex: raw.Index,
				Content:    redacted,
				Metadata: domain.ChunkMetadata{
					Branch:   req.Branch,
					FileSize: f.SizeByte,
				},
				CreatedAt: now,
			})
		}

		progress.FilesProcessed = i + 1
		progress.Percentage = 10 + domain.Percent(progress.FilesProcessed, progress.TotalFiles)*0.4
		report(progress)
	}
	progress.SecretsFound = secretsFound

	progress.Stage = domain.StageSecretScanning
	report(progress)

	progress.Stage = domain.StageGeneratingEmbeddings
	report(progress)

	stored := make([]domain.KnowledgeChunk, 0, len(chunks))
	for i, c := range chunks {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		vectors, err := ix.Embedder.Embed(ctx, []string{c.Content})
		if err != nil || len(vectors) != 1 {
			// Embedder failure on one chunk is skipped and counted, not fatal.
			continue
		}
		c.Embedding = vectors[0]
		stored = append(stored, c)

		progress.Percentage = 50 + domain.Percent(i+1, len(chunks))*0.4
		report(progress)
	}

	progress.Stage = domain.StageStoring
	report(progress)

	if len(stored) > 0 {
		if err := ix.Store.UpsertChunks(ctx, req.RepoID, stored); err != nil {
			return fail(fmt.Errorf("store chunks: %w", err))
		}
	}
	progress.ChunksIndexed = len(stored)

	progress.Stage = domain.StageCompleted
	progress.Percentage = 100
	report(progress)

	return progress, nil
}

func (ix *Indexer) mkTmp() (string, error) {
	mk := ix.mkTempDir
	if mk == nil {
		mk = os.MkdirTemp
	}
	return mk("", "aegis-index-*")
}
