package ollama

import (
	"context"
	"fmt"

	"github.com/aegisreview/aegis/internal/adapter/llm"
)

const providerName = "ollama"

// Client abstracts the Ollama HTTP client behaviour we need.
type Client interface {
	CreateReview(ctx context.Context, req Request) (llm.ProviderResponse, error)
}

// Request represents the outbound payload for the Ollama provider.
type Request struct {
	Model     string
	Prompt    string
	Seed      uint64
	MaxTokens int
}

// Provider implements the llm.Provider port against a local Ollama server.
type Provider struct {
	model  string
	client Client
}

// NewProvider constructs a Provider for the supplied model.
func NewProvider(model string, client Client) *Provider {
	return &Provider{
		model:  model,
		client: client,
	}
}

// Review sends the prompt to Ollama and translates the response.
func (p *Provider) Review(ctx context.Context, req llm.ReviewRequest) (llm.ReviewResult, error) {
	if p.client == nil {
		return llm.ReviewResult{}, fmt.Errorf("ollama client missing")
	}

	response, err := p.client.CreateReview(ctx, Request{
		Model:     p.model,
		Prompt:    req.Prompt,
		Seed:      req.Seed,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return llm.ReviewResult{}, err
	}

	return llm.ReviewResult{
		ProviderName: providerName,
		ModelName:    response.Model,
		Summary:      response.Summary,
		Comments:     response.Comments,
		Usage:        response.Usage,
	}, nil
}

// EstimateTokens returns an estimated token count for budget planning.
func (p *Provider) EstimateTokens(text string) int {
	return llm.EstimateTokens(text)
}
