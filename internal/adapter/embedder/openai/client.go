// Package openai implements embedder.Embedder against OpenAI's
// /v1/embeddings endpoint, reusing the retry, timeout, and error
// taxonomy built for the chat-completion client in
// internal/adapter/llm/openai, since both are the same family of
// "one JSON POST per call, retried with backoff" HTTP client.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aegisreview/aegis/internal/adapter/embedder"
	llmhttp "github.com/aegisreview/aegis/internal/adapter/llm/http"
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/platform/logging"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultTimeout = 30 * time.Second
)

var _ embedder.Embedder = (*Client)(nil)

// Client is an HTTP client for OpenAI's embeddings API.
type Client struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	timeout    time.Duration
	retryConf  llmhttp.RetryConfig
	client     *http.Client

	logger  logging.Logger
	metrics *metrics.Registry
}

// New builds an embedder.Embedder client. model and dimensions come
// from config.RAGConfig.EmbeddingModel/EmbeddingDimensions; apiKey and
// retry/timeout overrides come from providerCfg, the entry in
// Config.Providers named by config.RAGConfig.EmbeddingProvider.
func New(apiKey, model string, dimensions int, providerCfg config.ProviderConfig, httpCfg config.HTTPConfig) *Client {
	timeout := llmhttp.ParseTimeout(providerCfg.Timeout, httpCfg.Timeout, defaultTimeout)
	return &Client{
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		baseURL:    defaultBaseURL,
		timeout:    timeout,
		retryConf:  llmhttp.BuildRetryConfig(providerCfg, httpCfg),
		client:     &http.Client{Timeout: timeout},
	}
}

// SetBaseURL overrides the API base URL (self-hosted or
// OpenAI-compatible endpoints, and tests).
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

// SetLogger attaches a structured logger.
func (c *Client) SetLogger(logger logging.Logger) { c.logger = logger }

// SetMetrics attaches the shared metrics registry.
func (c *Client) SetMetrics(m *metrics.Registry) { c.metrics = m }

// Dimensions reports the fixed vector length this client produces.
func (c *Client) Dimensions() int { return c.dimensions }

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed requests vectors for every text in one batched round trip.
// The provider returns results tagged by index, not necessarily in
// input order, so the response is re-sorted before returning.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	if c.metrics != nil {
		c.metrics.LLMRequests.WithLabelValues("embedder", "attempt").Inc()
	}

	reqBody := embeddingRequest{Model: c.model, Input: texts}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	url := c.baseURL + "/v1/embeddings"
	var result embeddingResponse
	operation := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
		if err != nil {
			return fmt.Errorf("build embedding request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return llmhttp.NewTimeoutError("embedder", "request timed out")
			}
			return llmhttp.NewTimeoutError("embedder", err.Error())
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read embedding response: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return handleErrorResponse(resp.StatusCode, body)
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("parse embedding response: %w", err)
		}
		if len(result.Data) == 0 {
			return fmt.Errorf("no embeddings in response")
		}
		return nil
	}

	err = llmhttp.RetryWithBackoff(ctx, operation, c.retryConf)
	duration := time.Since(start)

	if err != nil {
		if c.metrics != nil {
			c.metrics.LLMRequests.WithLabelValues("embedder", "error").Inc()
		}
		if c.logger != nil {
			c.logger.Error("embedding request failed", err, logging.Fields{"model": c.model, "batch_size": len(texts)})
		}
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			continue
		}
		if c.dimensions > 0 && len(d.Embedding) != c.dimensions {
			return nil, embedder.ErrDimensionMismatch
		}
		vectors[d.Index] = d.Embedding
	}

	if c.metrics != nil {
		c.metrics.LLMRequests.WithLabelValues("embedder", "success").Inc()
		c.metrics.LLMTokensUsed.WithLabelValues("embedder").Add(float64(result.Usage.TotalTokens))
	}
	if c.logger != nil {
		c.logger.Debug("embedding batch complete", logging.Fields{
			"model": c.model, "batch_size": len(texts), "duration_ms": duration.Milliseconds(),
		})
	}

	return vectors, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	message := fmt.Sprintf("HTTP %d", statusCode)
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	} else if len(body) > 0 && len(body) < 200 {
		message = string(body)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return llmhttp.NewAuthenticationError("embedder", message)
	case http.StatusTooManyRequests:
		return llmhttp.NewRateLimitError("embedder", message)
	case http.StatusBadRequest:
		return llmhttp.NewInvalidRequestError("embedder", message)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return llmhttp.NewServiceUnavailableError("embedder", message)
	default:
		return &llmhttp.Error{
			Type:       llmhttp.ErrTypeUnknown,
			Message:    message,
			StatusCode: statusCode,
			Retryable:  false,
			Provider:   "embedder",
		}
	}
}
