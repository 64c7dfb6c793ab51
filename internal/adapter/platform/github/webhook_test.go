package github_test

import (
	"testing"

	"github.com/aegisreview/aegis/internal/adapter/platform/github"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWebhookPullRequest(t *testing.T) {
	a := github.New("token")
	payload := []byte(`{
		"action": "opened",
		"pull_request": {
			"number": 42,
			"title": "Fix the thing",
			"head": {"sha": "` + strRepeat("a", 40) + `"},
			"base": {"sha": "` + strRepeat("b", 40) + `"},
			"user": {"login": "octocat"}
		},
		"repository": {"full_name": "octocat/test-repo"}
	}`)

	meta, err := a.ParseWebhook(github.EventPullRequest, payload)
	require.NoError(t, err)
	assert.Equal(t, "octocat/test-repo", meta.RepoID)
	assert.Equal(t, 42, meta.PRNumber)
	assert.Equal(t, strRepeat("a", 40), meta.HeadSHA)
	assert.Equal(t, strRepeat("b", 40), meta.BaseSHA)
	assert.Equal(t, "octocat", meta.Author)
	assert.Equal(t, domain.PlatformGitHub, meta.Platform)
	assert.Equal(t, domain.SourceWebhook, meta.Source)
}

func TestParseWebhookPushNormalization(t *testing.T) {
	a := github.New("token")
	payload := []byte(`{
		"after": "` + strRepeat("c", 40) + `",
		"before": "` + strRepeat("d", 40) + `",
		"repository": {"full_name": "octocat/test-repo"},
		"pusher": {"name": "octocat"},
		"head_commit": {"message": "Add new feature\n\nlonger body"}
	}`)

	meta, err := a.ParseWebhook(github.EventPush, payload)
	require.NoError(t, err)
	assert.Equal(t, "octocat/test-repo", meta.RepoID)
	assert.Equal(t, 1, meta.PRNumber)
	assert.Equal(t, strRepeat("c", 40), meta.HeadSHA)
	assert.Equal(t, "Add new feature", meta.Title)
}

func TestParseWebhookTruncatesOverlongSHA(t *testing.T) {
	a := github.New("token")
	overlong := strRepeat("a", 40) + "extra"
	payload := []byte(`{
		"pull_request": {"number": 1, "head": {"sha": "` + overlong + `"}, "base": {"sha": "` + strRepeat("b", 40) + `"}},
		"repository": {"full_name": "o/r"}
	}`)

	meta, err := a.ParseWebhook(github.EventPullRequest, payload)
	require.NoError(t, err)
	assert.Equal(t, strRepeat("a", 40), meta.HeadSHA)
}

func TestParseWebhookRejectsShortSHA(t *testing.T) {
	a := github.New("token")
	payload := []byte(`{
		"pull_request": {"number": 1, "head": {"sha": "abc"}, "base": {"sha": "` + strRepeat("b", 40) + `"}},
		"repository": {"full_name": "o/r"}
	}`)

	_, err := a.ParseWebhook(github.EventPullRequest, payload)
	assert.Error(t, err)
}

func TestParseWebhookRejectsMissingRepoID(t *testing.T) {
	a := github.New("token")
	payload := []byte(`{"pull_request": {"number": 1, "head": {"sha": "` + strRepeat("a", 40) + `"}, "base": {"sha": "` + strRepeat("b", 40) + `"}}}`)

	_, err := a.ParseWebhook(github.EventPullRequest, payload)
	assert.Error(t, err)
}

func TestParseWebhookRejectsUnsupportedEvent(t *testing.T) {
	a := github.New("token")
	_, err := a.ParseWebhook("star", []byte(`{}`))
	assert.Error(t, err)
}

func strRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}
