package main

import (
	"time"

	"github.com/aegisreview/aegis/internal/adapter/embedder"
	openaiEmbed "github.com/aegisreview/aegis/internal/adapter/embedder/openai"
	"github.com/aegisreview/aegis/internal/adapter/llm"
	"github.com/aegisreview/aegis/internal/adapter/llm/anthropic"
	"github.com/aegisreview/aegis/internal/adapter/llm/gemini"
	"github.com/aegisreview/aegis/internal/adapter/llm/ollama"
	"github.com/aegisreview/aegis/internal/adapter/llm/openai"
	"github.com/aegisreview/aegis/internal/adapter/llm/static"
	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/adapter/platform/gitea"
	"github.com/aegisreview/aegis/internal/adapter/platform/github"
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

func buildLogger(cfg config.LoggingConfig) logging.Logger {
	return logging.New(logging.ParseLevel(cfg.Level), logging.ParseFormat(cfg.Format))
}

func buildMetrics(cfg config.MetricsConfig) *metrics.Registry {
	if !cfg.Enabled {
		return nil
	}
	return metrics.New()
}

// buildPlatforms wires the GitHub and Gitea forge adapters named in
// cfg, skipping a forge whose API token is empty (it is never a valid
// target for GetDiff/PostReview even if a webhook secret is set).
func buildPlatforms(cfg config.PlatformsConfig) (platform.Registry, error) {
	reg := platform.Registry{}
	if cfg.GitHub.APIToken != "" {
		reg[domain.PlatformGitHub] = github.New(cfg.GitHub.APIToken)
	}
	if cfg.Gitea.APIToken != "" {
		adapter, err := gitea.New(cfg.Gitea.BaseURL, cfg.Gitea.APIToken)
		if err != nil {
			return nil, fatalf("build gitea adapter: %w", err)
		}
		reg[domain.PlatformGitea] = adapter
	}
	return reg, nil
}

func webhookSecrets(cfg config.PlatformsConfig) map[string]string {
	return map[string]string{
		domain.PlatformGitHub: cfg.GitHub.WebhookSecret,
		domain.PlatformGitea:  cfg.Gitea.WebhookSecret,
	}
}

// buildLLMProvider selects the first enabled, credentialed provider in
// openai/anthropic/gemini/ollama priority order, falling back to the
// deterministic static provider (used in demos and the test suite) so
// the worker always has something to wire, mirroring the teacher's
// "fall back to the static client if no API key is configured" posture.
func buildLLMProvider(providers map[string]config.ProviderConfig, httpCfg config.HTTPConfig) llm.Provider {
	if pc, ok := providers["openai"]; ok && pc.Enabled && pc.APIKey != "" {
		client := openai.NewHTTPClient(pc.APIKey, pc.Model, pc, httpCfg)
		return openai.NewProvider(pc.Model, client)
	}
	if pc, ok := providers["anthropic"]; ok && pc.Enabled && pc.APIKey != "" {
		client := anthropic.NewHTTPClient(pc.APIKey, pc.Model)
		return anthropic.NewProvider(pc.Model, client)
	}
	if pc, ok := providers["gemini"]; ok && pc.Enabled && pc.APIKey != "" {
		client := gemini.NewHTTPClient(pc.APIKey, pc.Model, pc, httpCfg)
		return gemini.NewProvider(pc.Model, client)
	}
	if pc, ok := providers["ollama"]; ok && pc.Enabled {
		// Ollama needs no credential; the provider entry's APIKey field
		// doubles as the local server's base URL when set.
		baseURL := pc.APIKey
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		client := ollama.NewHTTPClient(baseURL, pc.Model, pc, httpCfg)
		return ollama.NewProvider(pc.Model, client)
	}
	return static.NewProvider("static")
}

// buildEmbedder wires the embedder named by cfg.EmbeddingProvider,
// looking up its credentials from the same Providers map the review
// LLM client uses.
func buildEmbedder(cfg config.RAGConfig, providers map[string]config.ProviderConfig, httpCfg config.HTTPConfig) embedder.Embedder {
	providerName := cfg.EmbeddingProvider
	if providerName == "" {
		providerName = "openai"
	}
	pc := providers[providerName]
	dimensions := cfg.EmbeddingDimensions
	if dimensions == 0 {
		dimensions = 1536
	}
	client := openaiEmbed.New(pc.APIKey, cfg.EmbeddingModel, dimensions, pc, httpCfg)
	if cfg.EmbeddingBaseURL != "" {
		client.SetBaseURL(cfg.EmbeddingBaseURL)
	}
	return client
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
