// Package gitea implements the platform.Adapter port (C6) against a
// Gitea instance, using code.gitea.io/sdk/gitea for review and issue
// posting and the same HMAC-SHA256 signature scheme as GitHub (Gitea
// is deliberately GitHub-webhook-compatible).
package gitea

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	sdk "code.gitea.io/sdk/gitea"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

const componentName = "platform.gitea"

const trackingIssueLabel = "aegis-review"

var (
	errShortSHA         = stderrors.New("sha shorter than 40 characters")
	errUnsupportedEvent = platform.ErrUnsupportedEvent
)

// Adapter implements platform.Adapter for a Gitea instance.
type Adapter struct {
	baseURL string
	token   string
	client  *sdk.Client
	http    *http.Client
}

var _ platform.Adapter = (*Adapter)(nil)

// New constructs a Gitea platform adapter against the instance at
// baseURL, authenticating with token.
func New(baseURL, token string) (*Adapter, error) {
	client, err := sdk.NewClient(baseURL, sdk.SetToken(token))
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, componentName, "construct gitea client", err)
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), token: token, client: client, http: &http.Client{}}, nil
}

// VerifySignature validates Gitea's X-Gitea-Signature / X-Hub-Signature-256 header.
func (a *Adapter) VerifySignature(body []byte, headerValue, secret string) bool {
	return platform.VerifyHMACSHA256([]byte(secret), headerValue, body)
}

// GetDiff fetches per-file unified diff blocks: the pull request diff
// for PRs, the raw commit diff endpoint for push events.
func (a *Adapter) GetDiff(ctx context.Context, metadata domain.PRMetadata) ([]string, error) {
	owner, repo, err := splitRepoID(metadata.RepoID)
	if err != nil {
		return nil, err
	}

	if metadata.PRNumber > 1 {
		raw, _, err := a.client.GetPullRequestDiff(owner, repo, int64(metadata.PRNumber))
		if err != nil {
			return nil, platformerrors.Wrap(platformerrors.KindTransient, componentName, "fetch pull request diff", err)
		}
		return splitUnifiedDiff(raw), nil
	}

	raw, err := a.getCommitDiff(ctx, owner, repo, metadata.HeadSHA)
	if err != nil {
		return nil, err
	}
	return splitUnifiedDiff(raw), nil
}

// getCommitDiff fetches the raw unified diff for a single commit via
// Gitea's commit diff media endpoint (no typed SDK helper exists for
// this, unlike pull request diffs).
func (a *Adapter) getCommitDiff(ctx context.Context, owner, repo, sha string) ([]byte, error) {
	url := fmt.Sprintf("%s/api/v1/repos/%s/%s/git/commits/%s.diff", a.baseURL, owner, repo, sha)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindPermanent, componentName, "build commit diff request", err)
	}
	req.Header.Set("Authorization", "token "+a.token)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransient, componentName, "fetch commit diff", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, platformerrors.New(platformerrors.KindTransient, componentName, fmt.Sprintf("commit diff request failed: HTTP %d", resp.StatusCode))
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransient, componentName, "read commit diff body", err)
	}
	return buf.Bytes(), nil
}

// PostReview publishes the review: a native PR review with inline
// comments for pull requests, a tracking issue for push events.
func (a *Adapter) PostReview(ctx context.Context, metadata domain.PRMetadata, review domain.ReviewResponse) error {
	owner, repo, err := splitRepoID(metadata.RepoID)
	if err != nil {
		return err
	}

	if metadata.PRNumber > 1 {
		_, _, err := a.client.CreateReview(owner, repo, int64(metadata.PRNumber), sdk.CreateReviewOptions{
			State:    determineReviewState(review.Comments),
			Body:     review.Summary,
			CommitID: metadata.HeadSHA,
			Comments: buildReviewComments(review.Comments),
		})
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindTransient, componentName, "create review", err)
		}
		return nil
	}

	_, _, err = a.client.CreateIssue(owner, repo, sdk.CreateIssueOption{
		Title: fmt.Sprintf("Automated review: %s", metadata.Title),
		Body:  buildPushSummary(review),
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindTransient, componentName, "create tracking issue", err)
	}
	return nil
}

func splitRepoID(repoID string) (owner, repo string, err error) {
	parts := strings.SplitN(repoID, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", platformerrors.New(platformerrors.KindValidation, componentName, "repo_id must be \"owner/repo\": "+repoID)
	}
	return parts[0], parts[1], nil
}

// splitUnifiedDiff breaks a multi-file unified diff into one block per
// file, each starting at its "diff --git" header.
func splitUnifiedDiff(raw []byte) []string {
	text := string(raw)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var blocks []string
	var current []string
	for _, line := range lines {
		if strings.HasPrefix(line, "diff --git ") && len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, strings.Join(current, "\n"))
	}
	return blocks
}

// buildReviewComments converts review comments into Gitea review
// comments. Unlike GitHub's diff-position scheme, Gitea's review API
// addresses comments by the file's actual new-side line number, so no
// diff-position mapping is needed.
func buildReviewComments(comments []domain.ReviewComment) []sdk.CreateReviewCommentOptions {
	out := make([]sdk.CreateReviewCommentOptions, 0, len(comments))
	for _, c := range comments {
		out = append(out, sdk.CreateReviewCommentOptions{
			Path:       c.FilePath,
			Body:       formatCommentBody(c),
			NewLineNum: int64(c.LineStart),
		})
	}
	return out
}

func formatCommentBody(c domain.ReviewComment) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** | **%s**\n\n", strings.ToUpper(c.Severity), c.Type)
	sb.WriteString(c.Message)
	if c.Suggestion != "" {
		sb.WriteString("\n\n**Suggestion:** ")
		sb.WriteString(c.Suggestion)
	}
	return sb.String()
}

func buildPushSummary(review domain.ReviewResponse) string {
	var sb strings.Builder
	sb.WriteString(review.Summary)
	if len(review.Comments) == 0 {
		return sb.String()
	}
	sb.WriteString("\n\n---\n")
	for _, c := range review.Comments {
		fmt.Fprintf(&sb, "- `%s:%d`: %s\n", c.FilePath, c.LineStart, c.Message)
	}
	return sb.String()
}

// determineReviewState chooses the review action from the comments'
// severities: no comments approves, any high/critical requests
// changes, anything else is a plain comment.
func determineReviewState(comments []domain.ReviewComment) sdk.ReviewStateType {
	if len(comments) == 0 {
		return sdk.ReviewStateApproved
	}
	for _, c := range comments {
		if c.Severity == domain.SeverityHigh || c.Severity == domain.SeverityCritical {
			return sdk.ReviewStateRequestChanges
		}
	}
	return sdk.ReviewStateComment
}
