package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aegisreview/aegis/internal/domain"
)

// ErrTaskNotFound is returned by ResultStore.Get when no task with the
// given ID has been recorded (or its result TTL has expired).
var ErrTaskNotFound = errors.New("queue: task not found")

// ResultStore is the O(1) GET /tasks/{id} backend: a JetStream KV
// bucket keyed by task_id, each value a JSON-encoded domain.ReviewTask.
// TTL is enforced by the bucket's own MaxAge rather than an
// application-level sweep, grounded on the teacher-adjacent repo's
// stateBucket jetstream.KeyValue usage.
type ResultStore struct {
	kv jetstream.KeyValue
}

// Get looks up a task by ID.
func (r *ResultStore) Get(ctx context.Context, taskID string) (domain.ReviewTask, error) {
	entry, err := r.kv.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return domain.ReviewTask{}, ErrTaskNotFound
		}
		return domain.ReviewTask{}, fmt.Errorf("get task %s: %w", taskID, err)
	}

	var task domain.ReviewTask
	if err := json.Unmarshal(entry.Value(), &task); err != nil {
		return domain.ReviewTask{}, fmt.Errorf("unmarshal task %s: %w", taskID, err)
	}
	return task, nil
}

// Put writes (or overwrites) a task's current state.
func (r *ResultStore) Put(ctx context.Context, task domain.ReviewTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task %s: %w", task.TaskID, err)
	}
	if _, err := r.kv.Put(ctx, task.TaskID, data); err != nil {
		return fmt.Errorf("put task %s: %w", task.TaskID, err)
	}
	return nil
}

// indexProgressKey namespaces indexing-job progress under the same KV
// bucket review tasks use, rather than opening a second bucket for a
// single extra entry kind per (repo_id, task_id).
func indexProgressKey(repoID, taskID string) string {
	return "index." + repoID + "." + taskID
}

// PutIndexProgress records the current stage/percentage of a long-running
// indexing job so GET /indexing/{repo_id}/{task_id} is servable without a
// second storage backend.
func (r *ResultStore) PutIndexProgress(ctx context.Context, repoID, taskID string, progress domain.IndexingProgress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal index progress %s/%s: %w", repoID, taskID, err)
	}
	if _, err := r.kv.Put(ctx, indexProgressKey(repoID, taskID), data); err != nil {
		return fmt.Errorf("put index progress %s/%s: %w", repoID, taskID, err)
	}
	return nil
}

// GetIndexProgress looks up an indexing job's last recorded progress.
func (r *ResultStore) GetIndexProgress(ctx context.Context, repoID, taskID string) (domain.IndexingProgress, error) {
	entry, err := r.kv.Get(ctx, indexProgressKey(repoID, taskID))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return domain.IndexingProgress{}, ErrTaskNotFound
		}
		return domain.IndexingProgress{}, fmt.Errorf("get index progress %s/%s: %w", repoID, taskID, err)
	}
	var progress domain.IndexingProgress
	if err := json.Unmarshal(entry.Value(), &progress); err != nil {
		return domain.IndexingProgress{}, fmt.Errorf("unmarshal index progress %s/%s: %w", repoID, taskID, err)
	}
	return progress, nil
}

// fingerprintKey namespaces the review-idempotency index under the same
// bucket, rather than opening a third bucket for one more entry kind.
func fingerprintKey(fingerprint string) string {
	return "fingerprint." + fingerprint
}

// PutFingerprint records which task produced the externally-visible
// review for a given (repo_id, head_sha, review_config_hash)
// fingerprint, so a retried task with an identical fingerprint can be
// detected and short-circuited (spec's "no duplicate noise on retry").
func (r *ResultStore) PutFingerprint(ctx context.Context, fingerprint, taskID string) error {
	if _, err := r.kv.Put(ctx, fingerprintKey(fingerprint), []byte(taskID)); err != nil {
		return fmt.Errorf("put fingerprint %s: %w", fingerprint, err)
	}
	return nil
}

// GetFingerprint returns the task ID that previously produced a review
// for fingerprint, if any is still within the result TTL.
func (r *ResultStore) GetFingerprint(ctx context.Context, fingerprint string) (string, error) {
	entry, err := r.kv.Get(ctx, fingerprintKey(fingerprint))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return "", ErrTaskNotFound
		}
		return "", fmt.Errorf("get fingerprint %s: %w", fingerprint, err)
	}
	return string(entry.Value()), nil
}

// reindexKeyPrefix namespaces periodic-reindex bookkeeping under the
// same bucket as task results, fingerprints, and index progress.
const reindexKeyPrefix = "reindex."

func reindexKey(repoID string) string {
	return reindexKeyPrefix + repoID
}

// PutReindexRequest records (or clears) repoID's standing indexing
// request so the scheduler's periodic re-index job can replay it
// without the caller having to resubmit git_url/access_token/branch
// on every nightly run. Only requests with PeriodicReindex set are
// worth recording; callers should call DeleteReindexRequest once a
// repo opts back out.
func (r *ResultStore) PutReindexRequest(ctx context.Context, req domain.IndexingRequest) error {
	if req.RepoID == "" {
		return fmt.Errorf("put reindex request: repo_id is required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal reindex request %s: %w", req.RepoID, err)
	}
	if _, err := r.kv.Put(ctx, reindexKey(req.RepoID), data); err != nil {
		return fmt.Errorf("put reindex request %s: %w", req.RepoID, err)
	}
	return nil
}

// DeleteReindexRequest removes repoID's standing periodic re-index
// registration.
func (r *ResultStore) DeleteReindexRequest(ctx context.Context, repoID string) error {
	if err := r.kv.Delete(ctx, reindexKey(repoID)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete reindex request %s: %w", repoID, err)
	}
	return nil
}

// ListReindexRequests returns every repo currently registered for
// periodic re-indexing, for the scheduler's nightly sweep.
func (r *ResultStore) ListReindexRequests(ctx context.Context) ([]domain.IndexingRequest, error) {
	lister, err := r.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list reindex keys: %w", err)
	}
	defer lister.Stop()

	var reqs []domain.IndexingRequest
	for key := range lister.Keys() {
		if len(key) <= len(reindexKeyPrefix) || key[:len(reindexKeyPrefix)] != reindexKeyPrefix {
			continue
		}
		entry, err := r.kv.Get(ctx, key)
		if err != nil {
			if errors.Is(err, jetstream.ErrKeyNotFound) {
				continue
			}
			return nil, fmt.Errorf("get reindex request %s: %w", key, err)
		}
		var req domain.IndexingRequest
		if err := json.Unmarshal(entry.Value(), &req); err != nil {
			return nil, fmt.Errorf("unmarshal reindex request %s: %w", key, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
