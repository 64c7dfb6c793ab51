package static

import (
	"context"

	"github.com/aegisreview/aegis/internal/adapter/llm"
	"github.com/aegisreview/aegis/internal/domain"
)

const providerName = "static"

// Provider implements the llm.Provider port with a fixed, deterministic
// response. Useful for local development and tests without network access.
type Provider struct {
	model string
}

// NewProvider constructs a static Provider.
func NewProvider(model string) *Provider {
	return &Provider{
		model: model,
	}
}

// Review returns a static, pre-determined review.
func (p *Provider) Review(ctx context.Context, req llm.ReviewRequest) (llm.ReviewResult, error) {
	comment := domain.ReviewComment{
		ID:              "static-1",
		FilePath:        "internal/adapter/llm/static/provider.go",
		LineStart:       1,
		LineEnd:         5,
		Type:            "style",
		Severity:        "low",
		Message:         "This is a static finding.",
		Suggestion:      "No suggestion.",
		ConfidenceScore: 1.0,
	}

	return llm.ReviewResult{
		ProviderName: providerName,
		ModelName:    p.model,
		Summary:      "This is a static review from a mock provider.",
		Comments:     []domain.ReviewComment{comment},
	}, nil
}

// EstimateTokens returns an estimated token count for budget planning.
func (p *Provider) EstimateTokens(text string) int {
	return llm.EstimateTokens(text)
}
