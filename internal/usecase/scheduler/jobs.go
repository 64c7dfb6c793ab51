package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
)

// falsePositiveWindow mirrors the trailing window the feedback
// processor uses for its own gauge refresh (usecase/feedback), so the
// scheduler's periodic recompute agrees with the one an incoming
// /feedback submission triggers inline.
const falsePositiveWindow = 30 * 24 * time.Hour

// sweepExpiredConstraints removes every learned constraint whose
// expiry has passed, per spec.md §4.4's retention rule.
func (s *Scheduler) sweepExpiredConstraints(ctx context.Context) {
	if s.deps.Constraints == nil {
		return
	}
	now := s.deps.Clock()
	n, err := s.deps.Constraints.DeleteExpired(ctx, now)
	if err != nil {
		s.logError("scheduler: expired constraint sweep failed", err, nil)
		return
	}
	if n > 0 {
		s.logInfo("scheduler: swept expired constraints", logging.Fields{"count": n})
	}
}

// aggregateMetrics recomputes the constraint_count and
// false_positive_reduction_ratio gauges for every repo the store
// currently holds data for, so dashboards stay current for repos that
// haven't submitted feedback recently enough to trigger an inline
// refresh (usecase/feedback.Processor.updateFalsePositiveGauge).
func (s *Scheduler) aggregateMetrics(ctx context.Context) {
	if s.deps.Repos == nil || s.deps.Metrics == nil {
		return
	}
	repoIDs, err := s.deps.Repos.ListRepoIDs(ctx)
	if err != nil {
		s.logError("scheduler: list repo ids failed", err, nil)
		return
	}

	now := s.deps.Clock()
	since := now.Add(-falsePositiveWindow)

	for _, repoID := range repoIDs {
		if s.deps.Counts != nil {
			count, err := s.deps.Counts.CountActive(ctx, repoID, now)
			if err != nil {
				s.logWarn("scheduler: count active constraints failed", logging.Fields{"repo_id": repoID, "error": err.Error()})
			} else {
				s.deps.Metrics.ConstraintCount.WithLabelValues(repoID).Set(float64(count))
			}
		}

		if s.deps.Feedback != nil {
			total, rejected, err := s.deps.Feedback.CountFeedbackSince(ctx, repoID, since)
			if err != nil {
				s.logWarn("scheduler: count feedback since failed", logging.Fields{"repo_id": repoID, "error": err.Error()})
				continue
			}
			ratio := 0.0
			if total > 0 {
				ratio = float64(rejected) / float64(total)
			}
			s.deps.Metrics.FalsePositiveReduction.WithLabelValues(repoID).Set(ratio)
		}
	}
}

// triggerPeriodicReindex enqueues a fresh indexing task for every repo
// registered for nightly re-indexing (IndexingRequest.PeriodicReindex
// set true on a prior POST /repositories/{repo_id}/index call).
func (s *Scheduler) triggerPeriodicReindex(ctx context.Context) {
	if s.deps.Reindex == nil || s.deps.Queue == nil {
		return
	}
	requests, err := s.deps.Reindex.ListReindexRequests(ctx)
	if err != nil {
		s.logError("scheduler: list periodic reindex requests failed", err, nil)
		return
	}

	for _, req := range requests {
		reqCopy := req
		task := domain.ReviewTask{
			TaskID:    uuid.NewString(),
			Status:    domain.ReviewStatusQueued,
			TraceID:   uuid.NewString(),
			CreatedAt: s.deps.Clock(),
			Indexing:  &reqCopy,
		}
		if err := s.deps.Queue.Enqueue(ctx, s.deps.IndexQueue, task); err != nil {
			s.logWarn("scheduler: enqueue periodic reindex failed", logging.Fields{"repo_id": req.RepoID, "error": err.Error()})
			continue
		}
		s.logInfo("scheduler: triggered periodic reindex", logging.Fields{"repo_id": req.RepoID, "task_id": task.TaskID})
	}
}
