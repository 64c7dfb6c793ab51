package orchestrator

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/aegisreview/aegis/internal/domain"
)

// defaultMaxTokens bounds LLM output per file block. Kept modest (file
// blocks, not whole-diff prompts, are being reviewed one at a time).
const defaultMaxTokens = 8000

// promptData is the data available to the prompt template.
type promptData struct {
	FilePath           string
	Diff               string
	RAGCitations       []string
	SuppressionHints   []string
	CustomInstructions string
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are an expert software engineer performing a code review on a single file's changes.
Report only genuine issues; do not invent line numbers or quote code you cannot see below.

## File: {{.FilePath}}

{{.Diff}}

{{if .RAGCitations}}
## Related Context (retrieved from this repository's knowledge base)
{{range .RAGCitations}}- {{.}}
{{end}}{{end}}
{{if .SuppressionHints}}
## Previously Rejected Feedback (do not re-raise these kinds of issues for this repository)
{{range .SuppressionHints}}- {{.}}
{{end}}{{end}}
{{if .CustomInstructions}}
## Review Instructions
{{.CustomInstructions}}
{{end}}

## Required Output Format

Respond with a JSON object matching this exact schema:

` + "```" + `json
{
  "summary": "one sentence describing what this file's changes do",
  "comments": [
    {
      "file_path": "{{.FilePath}}",
      "line_start": 42,
      "line_end": 42,
      "type": "security|bug|performance|style|nit",
      "severity": "critical|high|medium|low|nit",
      "message": "clear description of the issue",
      "suggestion": "actionable fix",
      "confidence_score": 0.9
    }
  ]
}
` + "```" + `

If there are no issues, return {"summary": "No issues found.", "comments": []}.`))

// BuildPrompt renders the per-file review prompt: the diff block
// itself, any RAG citations, any RLHF suppression hints, and the
// task's custom instructions.
func BuildPrompt(filePath, diffBlock string, ragCitations, suppressionHints []string, customInstructions string) (string, error) {
	var buf bytes.Buffer
	data := promptData{
		FilePath:           filePath,
		Diff:               diffBlock,
		RAGCitations:       ragCitations,
		SuppressionHints:   suppressionHints,
		CustomInstructions: customInstructions,
	}
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// formatCitation renders a RAG match as a citation string per
// spec.md's "See <file>:<line>" / "See PR #<n>" convention.
func formatCitation(chunk domain.KnowledgeChunk) string {
	if chunk.Metadata.PRNumber > 0 {
		return fmt.Sprintf("See PR #%d", chunk.Metadata.PRNumber)
	}
	if chunk.Metadata.LineNumber > 0 {
		return fmt.Sprintf("See %s:%d", chunk.FilePath, chunk.Metadata.LineNumber)
	}
	return fmt.Sprintf("See %s", chunk.FilePath)
}

// formatSuppressionHint renders a learned constraint as a prompt hint
// so the LLM is discouraged from re-raising feedback a developer has
// already rejected for this repository.
func formatSuppressionHint(c domain.LearnedConstraint) string {
	reason := strings.TrimSpace(c.UserReason)
	if reason == "" {
		return fmt.Sprintf("issues of type %q similar to: %s", c.ViolationReason, c.CodePattern)
	}
	return fmt.Sprintf("issues of type %q similar to: %s (developer noted: %s)", c.ViolationReason, c.CodePattern, reason)
}
