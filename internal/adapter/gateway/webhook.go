package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aegisreview/aegis/internal/adapter/platform"
	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
)

type webhookAccepted struct {
	TaskID  string `json:"task_id"`
	TraceID string `json:"trace_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// handleWebhook implements POST /webhook/{platform}: verify, normalize,
// and enqueue an inbound forge event for async review.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platformName := mux.Vars(r)["platform"]
	headers, known := knownPlatforms[platformName]
	if !known {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown platform %q", platformName))
		return
	}

	adapter, ok := s.deps.Platforms.For(platformName)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("no adapter registered for platform %q", platformName))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.WebhookMaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "request body too large or unreadable")
		return
	}

	if !s.verifySignature(adapter, platformName, r.Header.Get(headers.signature), body) {
		writeError(w, http.StatusUnauthorized, "signature verification failed")
		return
	}

	deliveryID := r.Header.Get(headers.delivery)
	if dup, taskID := s.isDuplicateDelivery(r.Context(), platformName, deliveryID); dup {
		writeJSON(w, http.StatusAccepted, webhookAccepted{TaskID: taskID, Status: "pending"})
		return
	}

	eventType := r.Header.Get(headers.event)
	metadata, err := adapter.ParseWebhook(eventType, body)
	if err != nil {
		if errors.Is(err, platform.ErrUnsupportedEvent) {
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		writeDomainError(w, err)
		return
	}

	task := domain.ReviewTask{
		TaskID:    uuid.NewString(),
		Status:    domain.ReviewStatusQueued,
		TraceID:   uuid.NewString(),
		CreatedAt: now(),
		Metadata:  metadata,
		Config:    domain.DefaultReviewConfig(),
	}

	if err := s.deps.Queue.Enqueue(r.Context(), s.deps.ReviewQueue, task); err != nil {
		s.logError("gateway: enqueue review task failed", err, logging.Fields{"repo_id": metadata.RepoID})
		writeError(w, http.StatusServiceUnavailable, "task queue unreachable")
		return
	}

	if s.deps.Deliveries != nil && deliveryID != "" {
		if err := s.deps.Deliveries.PutFingerprint(r.Context(), deliveryKey(platformName, deliveryID), task.TaskID); err != nil {
			s.logWarn("gateway: failed to record delivery dedup key", logging.Fields{"error": err.Error()})
		}
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.WebhooksReceived.WithLabelValues(platformName, eventType).Inc()
	}

	writeJSON(w, http.StatusAccepted, webhookAccepted{TaskID: task.TaskID, TraceID: task.TraceID, Status: "pending"})
}

// verifySignature enforces the per-platform HMAC check, accepting with
// a logged warning (rather than failing closed) when verification is
// required but no secret is configured for the platform — an
// intentionally permissive default for first-run setups that haven't
// wired a secret yet.
func (s *Server) verifySignature(adapter platform.Adapter, platformName, headerValue string, body []byte) bool {
	if !s.opts.RequireSignature {
		return true
	}
	secret := s.deps.Secrets[platformName]
	if secret == "" {
		s.logWarn("gateway: webhook signature verification required but no secret configured", logging.Fields{"platform": platformName})
		return true
	}
	return adapter.VerifySignature(body, headerValue, secret)
}

func deliveryKey(platformName, deliveryID string) string {
	return "delivery:" + platformName + ":" + deliveryID
}

// isDuplicateDelivery checks the delivery-dedup index; a miss or a
// disabled store is treated as "not a duplicate" so delivery tracking
// never blocks ingestion.
func (s *Server) isDuplicateDelivery(ctx context.Context, platformName, deliveryID string) (bool, string) {
	if s.deps.Deliveries == nil || deliveryID == "" {
		return false, ""
	}
	taskID, err := s.deps.Deliveries.GetFingerprint(ctx, deliveryKey(platformName, deliveryID))
	if err != nil {
		return false, ""
	}
	return true, taskID
}
