package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/store"
)

func TestApplySuppressionsRemovesMatchingComment(t *testing.T) {
	comments := []domain.ReviewComment{
		{Type: "style", Message: "use gofmt"},
		{Type: "bug", Message: "nil deref"},
	}
	matches := []store.ScoredConstraint{
		{Constraint: domain.LearnedConstraint{ViolationReason: "style"}, Score: 0.9},
	}
	kept, suppressed := applySuppressions(comments, matches)
	assert.Equal(t, 1, suppressed)
	assert.Len(t, kept, 1)
	assert.Equal(t, "bug", kept[0].Type)
}

func TestApplySuppressionsIsCaseInsensitive(t *testing.T) {
	comments := []domain.ReviewComment{{Type: "Style", Message: "x"}}
	matches := []store.ScoredConstraint{
		{Constraint: domain.LearnedConstraint{ViolationReason: "STYLE"}},
	}
	kept, suppressed := applySuppressions(comments, matches)
	assert.Equal(t, 1, suppressed)
	assert.Empty(t, kept)
}

func TestApplySuppressionsConsumesAtMostOneCommentPerConstraint(t *testing.T) {
	comments := []domain.ReviewComment{
		{Type: "style", Message: "a"},
		{Type: "style", Message: "b"},
	}
	matches := []store.ScoredConstraint{
		{Constraint: domain.LearnedConstraint{ViolationReason: "style"}},
	}
	kept, suppressed := applySuppressions(comments, matches)
	assert.Equal(t, 1, suppressed)
	assert.Len(t, kept, 1)
}

func TestApplySuppressionsIgnoresEmptyViolationReason(t *testing.T) {
	comments := []domain.ReviewComment{{Type: "style", Message: "a"}}
	matches := []store.ScoredConstraint{
		{Constraint: domain.LearnedConstraint{ViolationReason: ""}},
	}
	kept, suppressed := applySuppressions(comments, matches)
	assert.Equal(t, 0, suppressed)
	assert.Len(t, kept, 1)
}

func TestApplySuppressionsNoMatchesKeepsAllComments(t *testing.T) {
	comments := []domain.ReviewComment{{Type: "bug", Message: "a"}}
	kept, suppressed := applySuppressions(comments, nil)
	assert.Equal(t, 0, suppressed)
	assert.Len(t, kept, 1)
}
