package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/aegisreview/aegis/internal/domain"
	"github.com/aegisreview/aegis/internal/platform/logging"
)

type indexAccepted struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
	RepoID string `json:"repo_id"`
}

// handleIndex implements POST /repositories/{repo_id}/index: enqueue a
// repository indexing job for the knowledge store (C8).
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	repoID := mux.Vars(r)["repo_id"]
	if repoID == "" {
		writeError(w, http.StatusBadRequest, "repo_id is required")
		return
	}

	var req domain.IndexingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed indexing request body")
		return
	}
	if req.GitURL == "" {
		writeError(w, http.StatusUnprocessableEntity, "git_url is required")
		return
	}
	req.RepoID = repoID

	task := domain.ReviewTask{
		TaskID:    uuid.NewString(),
		Status:    domain.ReviewStatusQueued,
		TraceID:   uuid.NewString(),
		CreatedAt: now(),
		Indexing:  &req,
	}

	if err := s.deps.Queue.Enqueue(r.Context(), s.deps.IndexQueue, task); err != nil {
		s.logError("gateway: enqueue indexing task failed", err, logging.Fields{"repo_id": repoID})
		writeError(w, http.StatusServiceUnavailable, "task queue unreachable")
		return
	}

	if req.PeriodicReindex && s.deps.Reindex != nil {
		if err := s.deps.Reindex.PutReindexRequest(r.Context(), req); err != nil {
			s.logWarn("gateway: register periodic reindex failed", logging.Fields{"repo_id": repoID, "error": err.Error()})
		}
	}

	writeJSON(w, http.StatusAccepted, indexAccepted{TaskID: task.TaskID, Status: "queued", RepoID: repoID})
}
