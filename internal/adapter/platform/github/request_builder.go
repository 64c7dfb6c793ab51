package github

import (
	"fmt"
	"strings"

	"github.com/aegisreview/aegis/internal/domain"
)

// buildInlineComments converts positioned review comments to GitHub
// review comments. Only comments with a valid Position are included;
// the rest are expected to already be summarized in the review body.
func buildInlineComments(comments []positionedComment) []InlineComment {
	var out []InlineComment
	for _, pc := range comments {
		if !pc.inDiff() {
			continue
		}
		out = append(out, InlineComment{
			Path:     pc.Comment.FilePath,
			Position: *pc.Position,
			Body:     formatCommentBody(pc.Comment),
		})
	}
	return out
}

// formatCommentBody renders a review comment as GitHub-flavored
// Markdown for an inline PR comment.
func formatCommentBody(c domain.ReviewComment) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "**%s** | **%s**\n\n", strings.ToUpper(c.Severity), c.Type)
	sb.WriteString(c.Message)
	sb.WriteString("\n")

	if c.Suggestion != "" {
		sb.WriteString("\n**Suggestion:** ")
		sb.WriteString(c.Suggestion)
		sb.WriteString("\n")
	}
	if c.FixPatch != "" {
		sb.WriteString("\n```suggestion\n")
		sb.WriteString(c.FixPatch)
		sb.WriteString("\n```\n")
	}
	if len(c.Citations) > 0 {
		sb.WriteString("\n<sub>Related: ")
		sb.WriteString(strings.Join(c.Citations, ", "))
		sb.WriteString("</sub>\n")
	}

	return sb.String()
}

// determineReviewEvent chooses the review action from the in-diff
// comments' severities: no comments approves, any high/critical
// requests changes, anything else is a plain comment.
func determineReviewEvent(comments []positionedComment) ReviewEvent {
	var inDiff []positionedComment
	for _, pc := range comments {
		if pc.inDiff() {
			inDiff = append(inDiff, pc)
		}
	}

	if len(inDiff) == 0 {
		return EventApprove
	}
	for _, pc := range inDiff {
		if pc.Comment.Severity == domain.SeverityHigh || pc.Comment.Severity == domain.SeverityCritical {
			return EventRequestChanges
		}
	}
	return EventComment
}

// buildSummaryBody renders the review's overall summary plus any
// comments that could not be anchored to a diff position.
func buildSummaryBody(review domain.ReviewResponse, comments []positionedComment) string {
	var sb strings.Builder
	sb.WriteString(review.Summary)

	var unanchored []positionedComment
	for _, pc := range comments {
		if !pc.inDiff() {
			unanchored = append(unanchored, pc)
		}
	}
	if len(unanchored) == 0 {
		return sb.String()
	}

	sb.WriteString("\n\n---\n**Additional findings outside the diff:**\n\n")
	for _, pc := range unanchored {
		fmt.Fprintf(&sb, "- `%s`: %s\n", pc.Comment.FilePath, pc.Comment.Message)
	}
	return sb.String()
}
