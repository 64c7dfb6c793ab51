package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	llmhttp "github.com/aegisreview/aegis/internal/adapter/llm/http"
)

const (
	defaultBaseURL = "https://api.github.com"
	defaultTimeout = 30 * time.Second
)

// httpClient is a thin wrapper around the GitHub REST API for the
// operations the platform adapter needs: fetching PR diffs and posting
// reviews or tracking issues.
type httpClient struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retryConf  llmhttp.RetryConfig
}

func newHTTPClient(token string) *httpClient {
	return &httpClient{
		token:      token,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		retryConf:  llmhttp.DefaultRetryConfig(),
	}
}

func (c *httpClient) setBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

func (c *httpClient) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, http.Header, error) {
	var respBody []byte
	var respHeader http.Header

	err := llmhttp.RetryWithBackoff(ctx, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, reqErr := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if reqErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: reqErr.Error(), Provider: componentName}
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, callErr := c.httpClient.Do(req)
		if callErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeTimeout, Message: callErr.Error(), Retryable: true, Provider: componentName}
		}
		defer resp.Body.Close()

		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return &llmhttp.Error{Type: llmhttp.ErrTypeUnknown, Message: readErr.Error(), Provider: componentName}
		}

		if resp.StatusCode >= 400 {
			return mapHTTPError(resp.StatusCode, bodyBytes)
		}

		respBody = bodyBytes
		respHeader = resp.Header
		return nil
	}, c.retryConf)

	return respBody, respHeader, err
}

// createReview posts a pull request review with inline comments.
func (c *httpClient) createReview(ctx context.Context, owner, repo string, pullNumber int, req CreateReviewRequest) (*CreateReviewResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal review request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/reviews",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), pullNumber)

	body, _, err := c.do(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return nil, err
	}

	var out CreateReviewResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}
	return &out, nil
}

// createIssue posts a tracking issue (used for push-event reviews,
// which have no pull request to attach inline comments to).
func (c *httpClient) createIssue(ctx context.Context, owner, repo string, req CreateIssueRequest) (*CreateIssueResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal issue request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/repos/%s/%s/issues", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))

	body, _, err := c.do(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return nil, err
	}

	var out CreateIssueResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &out, nil
}

// pullRequestDiffBlocks fetches per-file unified diff blocks for a PR
// via the pulls/{number}/files endpoint.
func (c *httpClient) pullRequestDiffBlocks(ctx context.Context, owner, repo string, pullNumber int) ([]string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/pulls/%d/files?per_page=100",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), pullNumber)

	body, _, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	var files []pullRequestFilesEntry
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("parse pull request files response: %w", err)
	}
	return diffBlocksFromFiles(files), nil
}

// pushDiffBlocks fetches per-file unified diff blocks between two SHAs
// via the compare endpoint, used for push events.
func (c *httpClient) pushDiffBlocks(ctx context.Context, owner, repo, base, head string) ([]string, error) {
	apiURL := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(base), url.PathEscape(head))

	body, _, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	var cmp compareResponse
	if err := json.Unmarshal(body, &cmp); err != nil {
		return nil, fmt.Errorf("parse compare response: %w", err)
	}

	entries := make([]pullRequestFilesEntry, len(cmp.Files))
	for i, f := range cmp.Files {
		entries[i] = pullRequestFilesEntry{Filename: f.Filename, Status: f.Status, Patch: f.Patch}
	}
	return diffBlocksFromFiles(entries), nil
}

// diffBlocksFromFiles renders each changed file's patch as a standalone
// unified-diff block carrying the "+++ b/<path>" header the mapper
// relies on to associate comments with the right file.
func diffBlocksFromFiles(files []pullRequestFilesEntry) []string {
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		blocks = append(blocks, fmt.Sprintf("diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n%s",
			f.Filename, f.Filename, f.Filename, f.Filename, f.Patch))
	}
	return blocks
}
