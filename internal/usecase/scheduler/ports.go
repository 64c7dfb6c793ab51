// Package scheduler implements the three cron-driven background jobs
// (C13): the expired-constraint sweep, per-repo metric aggregation,
// and the periodic re-index trigger. It is grounded on robfig/cron/v3,
// already part of the dependency set, even though no example repo in
// the retrieved pack exercises it directly — the library's own
// cron.New/AddFunc/Start idiom is unambiguous enough to ground against
// directly; see DESIGN.md for the full reasoning.
package scheduler

import (
	"context"
	"time"

	"github.com/aegisreview/aegis/internal/domain"
)

// ConstraintSweeper removes learned constraints past their expiry.
type ConstraintSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// RepoLister enumerates every repo the store currently holds data for.
type RepoLister interface {
	ListRepoIDs(ctx context.Context) ([]string, error)
}

// ConstraintCounter reports how many unexpired constraints a repo has.
type ConstraintCounter interface {
	CountActive(ctx context.Context, repoID string, now time.Time) (int, error)
}

// FeedbackCounter reports a repo's feedback volume over a trailing
// window, the input to the false-positive-reduction gauge.
type FeedbackCounter interface {
	CountFeedbackSince(ctx context.Context, repoID string, since time.Time) (total, rejected int, err error)
}

// ReindexSource lists the repos registered for periodic re-indexing.
type ReindexSource interface {
	ListReindexRequests(ctx context.Context) ([]domain.IndexingRequest, error)
}

// Enqueuer puts a task onto a named queue for async processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, task domain.ReviewTask) error
}
