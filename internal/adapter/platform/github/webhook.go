package github

import (
	"encoding/json"
	"strings"

	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

// Event type header values (X-GitHub-Event) recognized by ParseWebhook.
const (
	EventPullRequest = "pull_request"
	EventPush        = "push"
)

// minSHALength is the shortest accepted commit SHA; a payload's hex
// SHA is truncated to ShaLength if longer.
const (
	minSHALength = 40
	shaLength    = 40
)

// pullRequestPayload is the subset of GitHub's pull_request webhook
// payload the adapter needs.
type pullRequestPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Head   struct {
			SHA string `json:"sha"`
		} `json:"head"`
		Base struct {
			SHA string `json:"sha"`
		} `json:"base"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// pushPayload is the subset of GitHub's push webhook payload the
// adapter needs.
type pushPayload struct {
	After      string `json:"after"`
	Before     string `json:"before"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Pusher struct {
		Name string `json:"name"`
	} `json:"pusher"`
	HeadCommit struct {
		Message string `json:"message"`
	} `json:"head_commit"`
	Commits []struct {
		Message string `json:"message"`
	} `json:"commits"`
}

// ParseWebhook normalizes a GitHub pull_request or push webhook payload
// into a PRMetadata. Any other event type is rejected with
// platform.ErrUnsupportedEvent (wrapped by the caller).
func (a *Adapter) ParseWebhook(eventType string, payload []byte) (domain.PRMetadata, error) {
	switch eventType {
	case EventPullRequest:
		return parsePullRequestEvent(payload)
	case EventPush:
		return parsePushEvent(payload)
	default:
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName,
			"unsupported event type "+eventType, errUnsupportedEvent)
	}
}

func parsePullRequestEvent(payload []byte) (domain.PRMetadata, error) {
	var evt pullRequestPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "malformed pull_request payload", err)
	}

	repoID := evt.Repository.FullName
	headSHA, err := normalizeSHA(evt.PullRequest.Head.SHA)
	if err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "invalid head sha", err)
	}
	baseSHA, err := normalizeSHA(evt.PullRequest.Base.SHA)
	if err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "invalid base sha", err)
	}
	if repoID == "" {
		return domain.PRMetadata{}, platformerrors.New(platformerrors.KindValidation, componentName, "missing repository identity")
	}

	return domain.PRMetadata{
		RepoID:   repoID,
		PRNumber: evt.PullRequest.Number,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   evt.PullRequest.User.Login,
		Platform: domain.PlatformGitHub,
		Title:    evt.PullRequest.Title,
		Source:   domain.SourceWebhook,
	}, nil
}

func parsePushEvent(payload []byte) (domain.PRMetadata, error) {
	var evt pushPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "malformed push payload", err)
	}

	repoID := evt.Repository.FullName
	if repoID == "" {
		return domain.PRMetadata{}, platformerrors.New(platformerrors.KindValidation, componentName, "missing repository identity")
	}

	headSHA, err := normalizeSHA(evt.After)
	if err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "invalid head sha", err)
	}
	baseSHA, err := normalizeSHA(evt.Before)
	if err != nil {
		baseSHA = headSHA
	}

	title := firstCommitMessage(evt)

	return domain.PRMetadata{
		RepoID: repoID,
		// Push events carry no PR number; the convention is 1.
		PRNumber: 1,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   evt.Pusher.Name,
		Platform: domain.PlatformGitHub,
		Title:    title,
		Source:   domain.SourceWebhook,
	}, nil
}

func firstCommitMessage(evt pushPayload) string {
	if evt.HeadCommit.Message != "" {
		return firstLine(evt.HeadCommit.Message)
	}
	if len(evt.Commits) > 0 {
		return firstLine(evt.Commits[0].Message)
	}
	return ""
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

// normalizeSHA validates a commit SHA has at least 40 characters and
// truncates any excess to exactly 40, per spec.
func normalizeSHA(sha string) (string, error) {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if len(sha) < minSHALength {
		return "", errShortSHA
	}
	return sha[:shaLength], nil
}
