package gitea

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	sdk "code.gitea.io/sdk/gitea"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureAcceptsValidSignature(t *testing.T) {
	a := &Adapter{}
	body := []byte(`{"a":1}`)
	assert.True(t, a.VerifySignature(body, sign("secret", body), "secret"))
}

func TestVerifySignatureRejectsBadSignature(t *testing.T) {
	a := &Adapter{}
	body := []byte(`{"a":1}`)
	assert.False(t, a.VerifySignature(body, "sha256=deadbeef", "secret"))
}

func TestSplitRepoID(t *testing.T) {
	owner, repo, err := splitRepoID("octocat/test-repo")
	assert.NoError(t, err)
	assert.Equal(t, "octocat", owner)
	assert.Equal(t, "test-repo", repo)

	_, _, err = splitRepoID("invalid")
	assert.Error(t, err)
}

func TestSplitUnifiedDiffSeparatesFiles(t *testing.T) {
	raw := []byte(
		"diff --git a/a.go b/a.go\n--- a/a.go\n+++ b/a.go\n@@ -1,1 +1,1 @@\n-old\n+new\n" +
			"diff --git a/b.go b/b.go\n--- a/b.go\n+++ b/b.go\n@@ -1,1 +1,1 @@\n-x\n+y\n",
	)

	blocks := splitUnifiedDiff(raw)
	assert.Len(t, blocks, 2)
	assert.Contains(t, blocks[0], "a.go")
	assert.Contains(t, blocks[1], "b.go")
}

func TestSplitUnifiedDiffEmpty(t *testing.T) {
	assert.Empty(t, splitUnifiedDiff([]byte("")))
	assert.Empty(t, splitUnifiedDiff([]byte("   \n")))
}

func TestDetermineReviewStateNoComments(t *testing.T) {
	assert.Equal(t, sdk.ReviewStateApproved, determineReviewState(nil))
}

func TestDetermineReviewStateEscalatesOnHighSeverity(t *testing.T) {
	comments := []domain.ReviewComment{{Severity: domain.SeverityHigh}}
	assert.Equal(t, sdk.ReviewStateRequestChanges, determineReviewState(comments))
}

func TestDetermineReviewStateCommentOnLowSeverity(t *testing.T) {
	comments := []domain.ReviewComment{{Severity: domain.SeverityNit}}
	assert.Equal(t, sdk.ReviewStateComment, determineReviewState(comments))
}

func TestBuildReviewCommentsUsesLineNumberDirectly(t *testing.T) {
	comments := []domain.ReviewComment{{FilePath: "a.go", LineStart: 12, Severity: domain.SeverityLow, Type: "style", Message: "nit"}}
	built := buildReviewComments(comments)
	assert.Len(t, built, 1)
	assert.Equal(t, "a.go", built[0].Path)
	assert.Equal(t, int64(12), built[0].NewLineNum)
}

func TestBuildPushSummaryListsComments(t *testing.T) {
	review := domain.ReviewResponse{
		Summary: "overview",
		Comments: []domain.ReviewComment{
			{FilePath: "a.go", LineStart: 4, Message: "issue"},
		},
	}
	out := buildPushSummary(review)
	assert.Contains(t, out, "overview")
	assert.Contains(t, out, "a.go:4")
}

var _ platform.Adapter = (*Adapter)(nil)
