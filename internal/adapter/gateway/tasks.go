package gateway

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aegisreview/aegis/internal/adapter/queue"
)

// handleGetTask implements GET /tasks/{task_id}: an O(1) lookup of a
// previously enqueued task's current status and, once terminal, its
// result or error.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	task, err := s.deps.Results.Get(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "task lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, task)
}
