package orchestrator

import (
	"strings"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/store"
)

// applySuppressions removes at most one comment per matched constraint,
// per spec.md §4.6 ("each returned constraint suppresses at most one
// LLM comment whose matching fingerprint — the violation_reason —
// aligns"). A comment's type is treated as its fingerprint's
// violation-reason component: the LLM is prompted to use the same
// category vocabulary (security/bug/performance/style/nit) the learned
// constraints are recorded under, so equality (case-insensitive) is
// the matching rule.
func applySuppressions(comments []domain.ReviewComment, matches []store.ScoredConstraint) (kept []domain.ReviewComment, suppressed int) {
	consumed := make([]bool, len(comments))
	for _, m := range matches {
		reason := strings.ToLower(strings.TrimSpace(m.Constraint.ViolationReason))
		if reason == "" {
			continue
		}
		for i, c := range comments {
			if consumed[i] {
				continue
			}
			if strings.ToLower(c.Type) == reason {
				consumed[i] = true
				suppressed++
				break
			}
		}
	}

	kept = make([]domain.ReviewComment, 0, len(comments)-suppressed)
	for i, c := range comments {
		if !consumed[i] {
			kept = append(kept, c)
		}
	}
	return kept, suppressed
}
