package gitea

import (
	"encoding/json"
	"strings"

	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
)

// Event type header values (X-Gitea-Event) recognized by ParseWebhook.
// Gitea's webhook payload shapes mirror GitHub's closely enough that
// the same field layout is reused here.
const (
	EventPullRequest = "pull_request"
	EventPush        = "push"
)

const (
	minSHALength = 40
	shaLength    = 40
)

type pullRequestPayload struct {
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Head   struct {
			Sha string `json:"sha"`
		} `json:"head"`
		Base struct {
			Sha string `json:"sha"`
		} `json:"base"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

type pushPayload struct {
	After      string `json:"after"`
	Before     string `json:"before"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Pusher struct {
		Login string `json:"login"`
	} `json:"pusher"`
	Commits []struct {
		Message string `json:"message"`
	} `json:"commits"`
}

// ParseWebhook normalizes a Gitea pull_request or push webhook payload
// into a PRMetadata, mirroring the GitHub adapter's normalization
// rules exactly (Gitea's webhook payloads are intentionally
// GitHub-compatible).
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
	if repoID == "" {
		return domain.PRMetadata{}, platformerrors.New(platformerrors.KindValidation, componentName, "missing repository identity")
	}
	headSHA, err := normalizeSHA(evt.PullRequest.Head.Sha)
	if err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "invalid head sha", err)
	}
	baseSHA, err := normalizeSHA(evt.PullRequest.Base.Sha)
	if err != nil {
		return domain.PRMetadata{}, platformerrors.Wrap(platformerrors.KindValidation, componentName, "invalid base sha", err)
	}

	return domain.PRMetadata{
		RepoID:   repoID,
		PRNumber: evt.PullRequest.Number,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   evt.PullRequest.User.Login,
		Platform: domain.PlatformGitea,
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

	title := ""
	if len(evt.Commits) > 0 {
		title = firstLine(evt.Commits[0].Message)
	}

	return domain.PRMetadata{
		RepoID:   repoID,
		PRNumber: 1,
		BaseSHA:  baseSHA,
		HeadSHA:  headSHA,
		Author:   evt.Pusher.Login,
		Platform: domain.PlatformGitea,
		Title:    title,
		Source:   domain.SourceWebhook,
	}, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func normalizeSHA(sha string) (string, error) {
	sha = strings.ToLower(strings.TrimSpace(sha))
	if len(sha) < minSHALength {
		return "", errShortSHA
	}
	return sha[:shaLength], nil
}
