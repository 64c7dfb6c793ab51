package llm

import (
	"context"

	"github.com/aegisreview/aegis/internal/domain"
)

// ReviewRequest is the provider-agnostic input to a single LLM review
// call: one rendered prompt, a determinism seed, and a token budget.
// Building the prompt itself (diff + RAG context + learned-constraint
// context) is the orchestrator's (C9) job, not the provider's.
type ReviewRequest struct {
	Prompt    string
	Seed      uint64
	MaxTokens int
}

// ReviewResult is the provider-agnostic output of a single LLM review
// call, tagged with which provider/model produced it so the
// orchestrator can merge results from multiple providers and attribute
// cost/token usage per call.
type ReviewResult struct {
	ProviderName string
	ModelName    string
	Summary      string
	Comments     []domain.ReviewComment
	Usage        UsageMetadata
}

// Provider is the port every LLM backend (openai, anthropic, gemini,
// ollama, static) implements. The orchestrator depends on this
// interface only, never on a concrete backend package.
type Provider interface {
	Review(ctx context.Context, req ReviewRequest) (ReviewResult, error)
	EstimateTokens(text string) int
}
