package github

import (
	"regexp"
	"strings"

	"github.com/aegisreview/aegis/internal/diff"
	"github.com/aegisreview/aegis/internal/domain"
)

// positionedComment wraps a domain.ReviewComment with its GitHub diff
// position. nil means the comment's line is not part of the diff and
// cannot receive an inline comment (it is folded into the summary
// instead).
type positionedComment struct {
	Comment  domain.ReviewComment
	Position *int
}

func (pc positionedComment) inDiff() bool { return pc.Position != nil }

var plusPlusPlusPath = regexp.MustCompile(`(?m)^\+\+\+ b/(.+)$`)

// filePathFromDiffBlock extracts the new-side file path from a unified
// diff block's "+++ b/<path>" header line.
func filePathFromDiffBlock(block string) string {
	m := plusPlusPlusPath.FindStringSubmatch(block)
	if len(m) != 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// mapComments enriches review comments with their position in the diff
// blocks fetched for this PR, so they can be posted as inline review
// comments rather than folded into the summary.
func mapComments(comments []domain.ReviewComment, diffBlocks []string) []positionedComment {
	if len(comments) == 0 {
		return nil
	}

	parsed := make(map[string]diff.ParsedDiff, len(diffBlocks))
	for _, block := range diffBlocks {
		path := filePathFromDiffBlock(block)
		if path == "" {
			continue
		}
		pd, err := diff.Parse(block)
		if err != nil {
			continue
		}
		parsed[path] = pd
	}

	result := make([]positionedComment, len(comments))
	for i, c := range comments {
		pc := positionedComment{Comment: c}
		if pd, ok := parsed[c.FilePath]; ok {
			pc.Position = pd.FindPosition(c.LineStart)
		}
		result[i] = pc
	}
	return result
}
