// Package gateway implements the ingress HTTP server (C11): the
// webhook, feedback, repository-indexing, task-status, MCP manifest,
// and metrics endpoints that front the async review pipeline. It is
// grounded on the mux.Router/middleware/health-check idiom of the
// pack's Mattermost plugin example, since the teacher repo is a CLI
// with no HTTP server of its own.
package gateway

import (
	"context"

	"github.com/aegisreview/aegis/internal/domain"
)

// Enqueuer puts a review or indexing task onto a named queue for async
// processing by a worker (C7).
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, task domain.ReviewTask) error
}

// TaskGetter is the O(1) GET /tasks/{id} backend.
type TaskGetter interface {
	Get(ctx context.Context, taskID string) (domain.ReviewTask, error)
}

// DeliveryStore deduplicates webhook deliveries so a forge's at-least-
// once redelivery doesn't enqueue the same event twice. Namespaced
// under the same fingerprint keyspace the orchestrator uses for
// review-idempotency, just with a "delivery:" prefixed key, rather
// than opening a fourth KV bucket for one more entry kind.
type DeliveryStore interface {
	GetFingerprint(ctx context.Context, fingerprint string) (string, error)
	PutFingerprint(ctx context.Context, fingerprint, taskID string) error
}

// FeedbackProcessor is the C10 use case the /feedback endpoint
// dispatches to.
type FeedbackProcessor interface {
	Process(ctx context.Context, req FeedbackRequest) (domain.FeedbackRecord, error)
}

// ReindexRegistrar records a repo's standing indexing request so the
// scheduler's periodic re-index job (C13) can replay it without the
// caller resubmitting credentials on every run. Optional: nil means
// periodic re-indexing is never registered for requests that pass
// through this gateway.
type ReindexRegistrar interface {
	PutReindexRequest(ctx context.Context, req domain.IndexingRequest) error
}
