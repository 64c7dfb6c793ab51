package github_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aegisreview/aegis/internal/adapter/platform/github"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValidSignature(t *testing.T) {
	a := github.New("token")
	body := []byte(`{"hello":"world"}`)
	sig := signBody("s3cret", body)

	assert.True(t, a.VerifySignature(body, sig, "s3cret"))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	a := github.New("token")
	body := []byte(`{"hello":"world"}`)
	sig := signBody("s3cret", body)

	assert.False(t, a.VerifySignature([]byte(`{"hello":"tampered"}`), sig, "s3cret"))
}

func TestVerifySignatureDisabledWhenSecretEmpty(t *testing.T) {
	a := github.New("token")
	assert.True(t, a.VerifySignature([]byte("anything"), "garbage", ""))
}

func TestGetDiffUsesPullRequestFilesEndpointForPRs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/octocat/test-repo/pulls/42/files", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{
			{"filename": "auth.go", "status": "modified", "patch": "@@ -1,1 +1,2 @@\n-old\n+new\n+more"},
		})
	}))
	defer server.Close()

	a := github.New("token")
	a.SetBaseURL(server.URL)

	blocks, err := a.GetDiff(context.Background(), domain.PRMetadata{
		RepoID: "octocat/test-repo", PRNumber: 42, Source: domain.SourceWebhook,
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "+++ b/auth.go")
}

func TestGetDiffUsesCompareEndpointForPushEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/repos/octocat/test-repo/compare/")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]string{
				{"filename": "main.go", "status": "modified", "patch": "@@ -1,1 +1,1 @@\n-a\n+b"},
			},
		})
	}))
	defer server.Close()

	a := github.New("token")
	a.SetBaseURL(server.URL)

	blocks, err := a.GetDiff(context.Background(), domain.PRMetadata{
		RepoID: "octocat/test-repo", PRNumber: 1, BaseSHA: strRepeat("a", 40), HeadSHA: strRepeat("b", 40), Source: domain.SourceWebhook,
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0], "+++ b/main.go")
}

func TestPostReviewCreatesNativeReviewForPullRequests(t *testing.T) {
	var reviewRequest github.CreateReviewRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode([]map[string]string{
				{"filename": "auth.go", "status": "modified", "patch": "@@ -1,3 +1,3 @@\n line1\n-old\n+new"},
			})
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reviewRequest))
		json.NewEncoder(w).Encode(github.CreateReviewResponse{ID: 1, State: "COMMENTED"})
	}))
	defer server.Close()

	a := github.New("token")
	a.SetBaseURL(server.URL)

	meta := domain.PRMetadata{RepoID: "octocat/test-repo", PRNumber: 7, HeadSHA: strRepeat("a", 40), Source: domain.SourceWebhook}
	review := domain.ReviewResponse{
		Summary: "Looks mostly fine.",
		Comments: []domain.ReviewComment{
			{FilePath: "auth.go", LineStart: 2, Type: "bug", Severity: domain.SeverityHigh, Message: "off by one"},
		},
	}

	err := a.PostReview(context.Background(), meta, review)
	require.NoError(t, err)
	assert.Equal(t, github.EventRequestChanges, reviewRequest.Event)
	require.Len(t, reviewRequest.Comments, 1)
	assert.Equal(t, "auth.go", reviewRequest.Comments[0].Path)
}

func TestPostReviewCreatesTrackingIssueForPushEvents(t *testing.T) {
	var issueRequest github.CreateIssueRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(map[string]any{"files": []map[string]string{}})
			return
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&issueRequest))
		json.NewEncoder(w).Encode(github.CreateIssueResponse{Number: 9})
	}))
	defer server.Close()

	a := github.New("token")
	a.SetBaseURL(server.URL)

	meta := domain.PRMetadata{
		RepoID: "octocat/test-repo", PRNumber: 1, Title: "Add new feature",
		BaseSHA: strRepeat("a", 40), HeadSHA: strRepeat("b", 40), Source: domain.SourceWebhook,
	}
	review := domain.ReviewResponse{Summary: "No issues found."}

	err := a.PostReview(context.Background(), meta, review)
	require.NoError(t, err)
	assert.Contains(t, issueRequest.Title, "Add new feature")
	assert.Contains(t, issueRequest.Labels, "aegis-review")
}
