package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/adapter/queue"
	"github.com/aegisreview/aegis/internal/domain"
	platformerrors "github.com/aegisreview/aegis/internal/platform/errors"
	"github.com/aegisreview/aegis/internal/platform/metrics"
)

type stubAdapter struct {
	meta     domain.PRMetadata
	parseErr error
	sigOK    bool
}

func (a *stubAdapter) ParseWebhook(eventType string, payload []byte) (domain.PRMetadata, error) {
	if a.parseErr != nil {
		return domain.PRMetadata{}, a.parseErr
	}
	return a.meta, nil
}
func (a *stubAdapter) GetDiff(ctx context.Context, metadata domain.PRMetadata) ([]string, error) {
	return nil, nil
}
func (a *stubAdapter) PostReview(ctx context.Context, metadata domain.PRMetadata, review domain.ReviewResponse) error {
	return nil
}
func (a *stubAdapter) VerifySignature(body []byte, headerValue, secret string) bool {
	return a.sigOK
}

type stubEnqueuer struct {
	enqueued []domain.ReviewTask
	queues   []string
	err      error
}

func (e *stubEnqueuer) Enqueue(ctx context.Context, queueName string, task domain.ReviewTask) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, task)
	e.queues = append(e.queues, queueName)
	return nil
}

type stubTaskGetter struct {
	task domain.ReviewTask
	err  error
}

func (g *stubTaskGetter) Get(ctx context.Context, taskID string) (domain.ReviewTask, error) {
	if g.err != nil {
		return domain.ReviewTask{}, g.err
	}
	return g.task, nil
}

type stubDeliveries struct {
	store map[string]string
}

func newStubDeliveries() *stubDeliveries { return &stubDeliveries{store: map[string]string{}} }

func (d *stubDeliveries) GetFingerprint(ctx context.Context, fingerprint string) (string, error) {
	v, ok := d.store[fingerprint]
	if !ok {
		return "", queue.ErrTaskNotFound
	}
	return v, nil
}
func (d *stubDeliveries) PutFingerprint(ctx context.Context, fingerprint, taskID string) error {
	d.store[fingerprint] = taskID
	return nil
}

type stubReindex struct {
	registered []domain.IndexingRequest
}

func (r *stubReindex) PutReindexRequest(ctx context.Context, req domain.IndexingRequest) error {
	r.registered = append(r.registered, req)
	return nil
}

type stubFeedbackProcessor struct {
	record domain.FeedbackRecord
	err    error
}

func (f *stubFeedbackProcessor) Process(ctx context.Context, req FeedbackRequest) (domain.FeedbackRecord, error) {
	if f.err != nil {
		return domain.FeedbackRecord{}, f.err
	}
	return f.record, nil
}

func testMeta() domain.PRMetadata {
	return domain.PRMetadata{
		RepoID:   "acme/widgets",
		PRNumber: 7,
		BaseSHA:  "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		HeadSHA:  "cafef00dcafef00dcafef00dcafef00dcafef00d",
		Platform: domain.PlatformGitHub,
		Source:   domain.SourceWebhook,
	}
}

func newTestServer(adapter platform.Adapter, enq *stubEnqueuer) (*Server, *stubDeliveries) {
	deliveries := newStubDeliveries()
	s := New(Deps{
		Platforms:  platform.Registry{domain.PlatformGitHub: adapter},
		Secrets:    map[string]string{domain.PlatformGitHub: "s3cret"},
		Queue:      enq,
		Results:    &stubTaskGetter{},
		Deliveries: deliveries,
		Feedback:   &stubFeedbackProcessor{},
		Metrics:    metrics.New(),
	}, DefaultOptions())
	return s, deliveries
}

func TestHandleWebhookEnqueuesOnValidSignature(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=whatever")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.enqueued, 1)
	assert.Equal(t, "code_review", enq.queues[0])
	assert.Equal(t, "acme/widgets", enq.enqueued[0].Metadata.RepoID)

	var body webhookAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body.Status)
	assert.NotEmpty(t, body.TaskID)
}

func TestHandleWebhookRejectsBadSignature(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: false}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=bad")
	req.Header.Set("X-GitHub-Event", "pull_request")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, enq.enqueued)
}

func TestHandleWebhookAcceptsWithWarningWhenSecretMissing(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: false}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)
	s.deps.Secrets = map[string]string{} // no secret configured for github

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-GitHub-Event", "pull_request")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, enq.enqueued, 1)
}

func TestHandleWebhookReturnsBadRequestForUnknownPlatform(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	req := httptest.NewRequest(http.MethodPost, "/webhook/bitbucket", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhookIgnoresUnsupportedEvent(t *testing.T) {
	adapter := &stubAdapter{parseErr: platform.ErrUnsupportedEvent, sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=whatever")
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, enq.enqueued)
}

func TestHandleWebhookShortCircuitsDuplicateDelivery(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, deliveries := newTestServer(adapter, enq)
	deliveries.store[deliveryKey(domain.PlatformGitHub, "delivery-1")] = "prior-task"

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=whatever")
	req.Header.Set("X-GitHub-Event", "pull_request")
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, enq.enqueued, "a duplicate delivery must not be re-enqueued")

	var body webhookAccepted
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "prior-task", body.TaskID)
}

func TestHandleWebhookReturns503WhenQueueUnreachable(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{err: errors.New("nats: no responders")}
	s, _ := newTestServer(adapter, enq)

	req := httptest.NewRequest(http.MethodPost, "/webhook/github", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Hub-Signature-256", "sha256=whatever")
	req.Header.Set("X-GitHub-Event", "pull_request")
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleFeedbackReturns202(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	s, _ := newTestServer(adapter, &stubEnqueuer{})
	s.deps.Feedback = &stubFeedbackProcessor{record: domain.FeedbackRecord{ID: "fb-1"}}

	body, _ := json.Marshal(FeedbackRequest{RepoID: "acme/widgets", CommentID: "c1", Action: domain.FeedbackAccepted, DeveloperComment: "ok"})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var record domain.FeedbackRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, "fb-1", record.ID)
}

func TestHandleFeedbackPropagatesValidationError(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	s, _ := newTestServer(adapter, &stubEnqueuer{})
	s.deps.Feedback = &stubFeedbackProcessor{err: platformerrors.New(platformerrors.KindValidation, "feedback", "comment_id is required")}

	body, _ := json.Marshal(FeedbackRequest{Action: domain.FeedbackAccepted})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleIndexEnqueuesJob(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	body, _ := json.Marshal(domain.IndexingRequest{GitURL: "https://example.com/acme/widgets.git", Branch: "main"})
	req := httptest.NewRequest(http.MethodPost, "/repositories/acme-widgets/index", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.enqueued, 1)
	assert.Equal(t, "indexing", enq.queues[0])
	require.NotNil(t, enq.enqueued[0].Indexing)
	assert.Equal(t, "acme-widgets", enq.enqueued[0].Indexing.RepoID)
}

func TestHandleIndexRegistersPeriodicReindexWhenFlagged(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)
	reindex := &stubReindex{}
	s.deps.Reindex = reindex

	body, _ := json.Marshal(domain.IndexingRequest{
		GitURL: "https://example.com/acme/widgets.git", Branch: "main", PeriodicReindex: true,
	})
	req := httptest.NewRequest(http.MethodPost, "/repositories/acme-widgets/index", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, reindex.registered, 1)
	assert.Equal(t, "acme-widgets", reindex.registered[0].RepoID)
}

func TestHandleIndexDoesNotRegisterWhenFlagAbsent(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)
	reindex := &stubReindex{}
	s.deps.Reindex = reindex

	body, _ := json.Marshal(domain.IndexingRequest{GitURL: "https://example.com/acme/widgets.git", Branch: "main"})
	req := httptest.NewRequest(http.MethodPost, "/repositories/acme-widgets/index", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, reindex.registered)
}

func TestHandleIndexRejectsMissingGitURL(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	enq := &stubEnqueuer{}
	s, _ := newTestServer(adapter, enq)

	body, _ := json.Marshal(domain.IndexingRequest{Branch: "main"})
	req := httptest.NewRequest(http.MethodPost, "/repositories/acme-widgets/index", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, enq.enqueued)
}

func TestHandleGetTaskReturnsStoredTask(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	s, _ := newTestServer(adapter, &stubEnqueuer{})
	s.deps.Results = &stubTaskGetter{task: domain.ReviewTask{TaskID: "t-1", Status: domain.ReviewStatusCompleted}}

	req := httptest.NewRequest(http.MethodGet, "/tasks/t-1", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var task domain.ReviewTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, domain.ReviewStatusCompleted, task.Status)
}

func TestHandleGetTaskReturns404WhenMissing(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	s, _ := newTestServer(adapter, &stubEnqueuer{})
	s.deps.Results = &stubTaskGetter{err: queue.ErrTaskNotFound}

	req := httptest.NewRequest(http.MethodGet, "/tasks/missing", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleManifestServesConfiguredManifest(t *testing.T) {
	adapter := &stubAdapter{meta: testMeta(), sigOK: true}
	s, _ := newTestServer(adapter, &stubEnqueuer{})
	s.deps.Manifest = domain.MCPManifest{Name: "aegis", Version: "0.1.0"}

	req := httptest.NewRequest(http.MethodGet, "/mcp/manifest", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var manifest domain.MCPManifest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &manifest))
	assert.Equal(t, "aegis", manifest.Name)
}
