// Package github implements the platform.Adapter port (C6) against the
// GitHub REST and webhook APIs: HMAC-SHA256 signature verification
// grounded on nickmisasi-mattermost-plugin-cursor's
// verifyWebhookSignature, and PR review / tracking-issue posting
// grounded on the teacher's internal/adapter/github PR-reviews client.
package github

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

var (
	errShortSHA         = stderrors.New("sha shorter than 40 characters")
	errUnsupportedEvent = platform.ErrUnsupportedEvent
)

// trackingIssueLabel is applied to tracking issues opened for
// push-event reviews, since they have no PR to attach a native review to.
const trackingIssueLabel = "aegis-review"

// Adapter implements platform.Adapter for GitHub.
type Adapter struct {
	client *httpClient
}

var _ platform.Adapter = (*Adapter)(nil)

// New constructs a GitHub platform adapter authenticating with token
// (a personal access token or a GitHub App installation token).
func New(token string) *Adapter {
	return &Adapter{client: newHTTPClient(token)}
}

// SetBaseURL overrides the API base URL (for testing against a fake
// server).
func (a *Adapter) SetBaseURL(u string) { a.client.setBaseURL(u) }

// VerifySignature validates GitHub's X-Hub-Signature-256 header.
func (a *Adapter) VerifySignature(body []byte, headerValue, secret string) bool {
	return platform.VerifyHMACSHA256([]byte(secret), headerValue, body)
}

// GetDiff fetches per-file diff blocks: the PR files endpoint for pull
// requests, the commit-compare endpoint for push events.
func (a *Adapter) GetDiff(ctx context.Context, metadata domain.PRMetadata) ([]string, error) {
	owner, repo, err := splitRepoID(metadata.RepoID)
	if err != nil {
		return nil, err
	}

	if metadata.Source == domain.SourceWebhook && metadata.PRNumber > 1 {
		return a.client.pullRequestDiffBlocks(ctx, owner, repo, metadata.PRNumber)
	}
	// Push events (PRNumber == 1 by convention) and anything else
	// lacking a real PR number fall back to the compare endpoint.
	if metadata.BaseSHA != "" && metadata.HeadSHA != "" && metadata.PRNumber <= 1 {
		return a.client.pushDiffBlocks(ctx, owner, repo, metadata.BaseSHA, metadata.HeadSHA)
	}
	return a.client.pullRequestDiffBlocks(ctx, owner, repo, metadata.PRNumber)
}

// PostReview publishes the review: a native PR review with inline
// comments when metadata describes a real pull request, a tracking
// issue otherwise (push events have no PR to review).
func (a *Adapter) PostReview(ctx context.Context, metadata domain.PRMetadata, review domain.ReviewResponse) error {
	owner, repo, err := splitRepoID(metadata.RepoID)
	if err != nil {
		return err
	}

	diffBlocks, err := a.GetDiff(ctx, metadata)
	if err != nil {
		return err
	}
	positioned := mapComments(review.Comments, diffBlocks)

	if metadata.PRNumber > 1 {
		_, err := a.client.createReview(ctx, owner, repo, metadata.PRNumber, CreateReviewRequest{
			CommitID: metadata.HeadSHA,
			Event:    determineReviewEvent(positioned),
			Body:     buildSummaryBody(review, positioned),
			Comments: buildInlineComments(positioned),
		})
		return err
	}

	_, err = a.client.createIssue(ctx, owner, repo, CreateIssueRequest{
		Title:  fmt.Sprintf("Automated review: %s", metadata.Title),
		Body:   buildSummaryBody(review, positioned),
		Labels: []string{trackingIssueLabel},
	})
	return err
}

// splitRepoID splits a "owner/repo" repo_id into its two parts.
func splitRepoID(repoID string) (owner, repo string, err error) {
	parts := strings.SplitN(repoID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", platformerrors.New(platformerrors.KindValidation, componentName, "repo_id must be \"owner/repo\": "+repoID)
	}
	return parts[0], parts[1], nil
}
