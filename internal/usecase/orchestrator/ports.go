// Package orchestrator implements the review orchestrator (C9): the
// per-task workflow that turns a PRMetadata + ReviewConfig into a
// posted ReviewResponse by fanning out over the diff's per-file
// blocks, consulting the knowledge store (RAG) and constraint store
// (RLHF) for each, invoking the LLM, and assembling the result.
package orchestrator

import (
	"context"
	"time"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/redaction"
	"github.com/aegisreview/aegis/internal/store"
)

// Embedder is the narrow slice of the C2 port the orchestrator needs:
// a single query embed per diff block.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// KnowledgeStore is the narrow slice of the C3 port the orchestrator
// needs for RAG retrieval.
type KnowledgeStore interface {
	QuerySimilar(ctx context.Context, repoID string, embedding []float32, topK int) ([]store.ScoredChunk, error)
}

// ConstraintStore is the narrow slice of the C4 port the orchestrator
// needs for RLHF suppression.
type ConstraintStore interface {
	QuerySimilarConstraints(ctx context.Context, repoID string, embedding []float32, threshold float64) ([]store.ScoredConstraint, error)
}

// Redactor scrubs secrets out of diff content before it leaves the
// process boundary toward a third-party LLM. Optional: a nil Redactor
// skips this step.
type Redactor interface {
	Redact(input string) (string, []redaction.Match, error)
}

// HealthGate lets the degradation controller (C12) tell the
// orchestrator whether the RAG and RLHF planes are currently healthy
// enough to consult. A nil HealthGate means both are always allowed
// (the FULL level).
type HealthGate interface {
	AllowRAG() bool
	AllowRLHF() bool
}

// FingerprintIndex records which task produced the externally visible
// review for a given idempotency fingerprint, so a retried task with
// the same (repo_id, head_sha, review_config_hash) can short-circuit
// instead of posting a duplicate review.
type FingerprintIndex interface {
	GetFingerprint(ctx context.Context, fingerprint string) (taskID string, err error)
	PutFingerprint(ctx context.Context, fingerprint, taskID string) error
}

// TaskResultGetter looks up a previously completed task's stored
// result, used to resolve a fingerprint hit into the prior
// ReviewResponse to short-circuit with.
type TaskResultGetter interface {
	Get(ctx context.Context, taskID string) (domain.ReviewTask, error)
}

// SeedFunc generates a deterministic per-review seed so repeated runs
// over the same scope produce comparable LLM output.
type SeedFunc func(repoID, headSHA string) uint64

// Clock is overridable in tests; defaults to time.Now.
type Clock func() time.Time
