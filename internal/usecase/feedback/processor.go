package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

// constraintSimilarityThreshold is the cosine threshold used when
// searching for an existing constraint to reinforce, per spec.md §4.6.
const constraintSimilarityThreshold = 0.7

// coldStartConfidence is the confidence score assigned to a brand new
// constraint.
const coldStartConfidence = 0.5

// constraintExpiry is how long a newly created constraint remains
// eligible for suppression before C4's expiry sweep removes it.
const constraintExpiry = 90 * 24 * time.Hour

// falsePositiveWindow is the trailing window the false-positive-
// reduction gauge is computed over.
const falsePositiveWindow = 30 * 24 * time.Hour

const maxDeveloperCommentLen = 1000

// Request is the raw developer feedback submission before it is turned
// into a FeedbackRecord.
type Request struct {
	RepoID    string
	ReviewID  string
	CommentID string
	UserID    string
	Action    domain.FeedbackAction
	Reason    domain.FeedbackReason
	// CommentType is the rejected ReviewComment's category
	// (security/bug/performance/style/nit), supplied by the caller that
	// already holds the posted review. It seeds the new constraint's
	// ViolationReason so a later review's suppression lookup (which
	// matches on ReviewComment.Type, see usecase/orchestrator/suppress.go)
	// can find it. Falls back to Reason when the caller doesn't have it.
	CommentType       string
	DeveloperComment  string
	FinalCodeSnapshot string
	TraceID           string
}

// Deps captures the processor's outbound dependencies.
type Deps struct {
	Constraints ConstraintStore
	Feedback    FeedbackLog
	Embedder    Embedder // optional; required only to act on rejections
	Metrics     *metrics.Registry
	Clock       Clock
}

// Processor implements the feedback processor (C10).
type Processor struct {
	deps Deps
}

// New wires a Processor.
func New(deps Deps) *Processor {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Processor{deps: deps}
}

func validate(req Request) error {
	if req.CommentID == "" {
		return platformerrors.New(platformerrors.KindValidation, "feedback", "comment_id is required")
	}
	switch req.Action {
	case domain.FeedbackAccepted, domain.FeedbackRejected, domain.FeedbackModified:
	default:
		return platformerrors.New(platformerrors.KindValidation, "feedback", fmt.Sprintf("unknown action %q", req.Action))
	}
	if req.Action == domain.FeedbackRejected && req.Reason == "" {
		return platformerrors.New(platformerrors.KindValidation, "feedback", "reason is required when action is rejected")
	}
	if l := len(req.DeveloperComment); l < 1 || l > maxDeveloperCommentLen {
		return platformerrors.New(platformerrors.KindValidation, "feedback", fmt.Sprintf("developer_comment must be 1..%d characters, got %d", maxDeveloperCommentLen, l))
	}
	return nil
}

// Process validates, records, and — for a rejected comment — folds the
// submission into the constraint store, per spec.md §4.6's five-step
// processor workflow.
func (p *Processor) Process(ctx context.Context, req Request) (domain.FeedbackRecord, error) {
	if err := validate(req); err != nil {
		return domain.FeedbackRecord{}, err
	}

	now := p.deps.Clock()
	record := domain.FeedbackRecord{
		ID:                uuid.NewString(),
		RepoID:            req.RepoID,
		ReviewID:          req.ReviewID,
		CommentID:         req.CommentID,
		UserID:            req.UserID,
		Action:            req.Action,
		Reason:            string(req.Reason),
		DeveloperComment:  req.DeveloperComment,
		FinalCodeSnapshot: req.FinalCodeSnapshot,
		TraceID:           req.TraceID,
		CreatedAt:         now,
	}

	if err := p.deps.Feedback.RecordFeedback(ctx, record); err != nil {
		return domain.FeedbackRecord{}, platformerrors.Wrap(platformerrors.KindTransient, "feedback", "record feedback", err)
	}

	if p.deps.Metrics != nil {
		p.deps.Metrics.FeedbackSubmitted.WithLabelValues(string(req.Action)).Inc()
	}

	if req.Action == domain.FeedbackRejected {
		if err := p.learnFromRejection(ctx, req, now); err != nil {
			return record, err
		}
	}

	// Best-effort: the feedback record is already durably stored even if
	// the gauge refresh fails.
	_ = p.updateFalsePositiveGauge(ctx, req.RepoID, now)

	return record, nil
}

// learnFromRejection embeds the rejected comment's final code state and
// either reinforces an existing similar constraint or creates a new
// one, per spec.md §4.6(4).
func (p *Processor) learnFromRejection(ctx context.Context, req Request, now time.Time) error {
	if p.deps.Constraints == nil || p.deps.Embedder == nil || req.FinalCodeSnapshot == "" {
		return nil
	}

	vecs, err := p.deps.Embedder.Embed(ctx, []string{req.FinalCodeSnapshot})
	if err != nil || len(vecs) != 1 {
		return platformerrors.Wrap(platformerrors.KindTransient, "feedback", "embed final code snapshot", err)
	}
	embedding := vecs[0]

	matches, err := p.deps.Constraints.QuerySimilarConstraints(ctx, req.RepoID, embedding, constraintSimilarityThreshold)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "feedback", "query similar constraints", err)
	}

	if len(matches) > 0 {
		if _, err := p.deps.Constraints.ReinforceConstraint(ctx, matches[0].Constraint.ID); err != nil {
			return platformerrors.Wrap(platformerrors.KindTransient, "feedback", "reinforce constraint", err)
		}
		return nil
	}

	violationReason := req.CommentType
	if violationReason == "" {
		violationReason = string(req.Reason)
	}

	expiresAt := now.Add(constraintExpiry)
	constraint := domain.LearnedConstraint{
		ID:              uuid.NewString(),
		RepoID:          req.RepoID,
		ViolationReason: violationReason,
		CodePattern:     req.FinalCodeSnapshot,
		UserReason:      req.DeveloperComment,
		Embedding:       embedding,
		ConfidenceScore: coldStartConfidence,
		ExpiresAt:       &expiresAt,
		CreatedAt:       now,
		Version:         1,
	}
	if _, err := p.deps.Constraints.SaveConstraint(ctx, constraint); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "feedback", "save constraint", err)
	}
	return nil
}

// updateFalsePositiveGauge recomputes rejected/total over the trailing
// 30-day window for repoID and publishes it, per spec.md §4.6(5).
func (p *Processor) updateFalsePositiveGauge(ctx context.Context, repoID string, now time.Time) error {
	if p.deps.Metrics == nil || repoID == "" {
		return nil
	}
	total, rejected, err := p.deps.Feedback.CountFeedbackSince(ctx, repoID, now.Add(-falsePositiveWindow))
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, "feedback", "count feedback since", err)
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(rejected) / float64(total)
	}
	p.deps.Metrics.FalsePositiveReduction.WithLabelValues(repoID).Set(ratio)
	return nil
}
