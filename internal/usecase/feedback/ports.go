// Package feedback implements the feedback processor (C10): it turns
// a developer's disposition on a review comment into a FeedbackRecord,
// and — when the comment was rejected as a false positive — a new or
// reinforced constraint in the learned-constraint store (C4).
package feedback

import (
	"context"
	"time"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/store"
)

// Embedder is the narrow slice of the C2 port the processor needs: one
// embedding call over a rejected comment's final code snapshot.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ConstraintStore is the slice of the C4 port the processor mutates.
type ConstraintStore interface {
	SaveConstraint(ctx context.Context, c domain.LearnedConstraint) (domain.LearnedConstraint, error)
	QuerySimilarConstraints(ctx context.Context, repoID string, embedding []float32, threshold float64) ([]store.ScoredConstraint, error)
	ReinforceConstraint(ctx context.Context, id string) (domain.LearnedConstraint, error)
}

// FeedbackLog is the slice of the C5 port the processor appends to and
// reads back from to compute the 30-day false-positive ratio.
type FeedbackLog interface {
	RecordFeedback(ctx context.Context, f domain.FeedbackRecord) error
	GetFeedbackByReview(ctx context.Context, reviewID string) ([]domain.FeedbackRecord, error)
	CountFeedbackSince(ctx context.Context, repoID string, since time.Time) (total, rejected int, err error)
}

// Clock is overridable in tests; defaults to time.Now.
type Clock func() time.Time
