package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/aegisreview/aegis/internal/domain"
)

// FeedbackRequest is the POST /feedback wire body.
type FeedbackRequest struct {
	RepoID            string                `json:"repo_id"`
	ReviewID          string                `json:"review_id"`
	CommentID         string                `json:"comment_id"`
	UserID            string                `json:"user_id"`
	Action            domain.FeedbackAction `json:"action"`
	Reason            domain.FeedbackReason `json:"reason,omitempty"`
	CommentType       string                `json:"comment_type,omitempty"`
	DeveloperComment  string                `json:"developer_comment"`
	FinalCodeSnapshot string                `json:"final_code_snapshot,omitempty"`
	TraceID           string                `json:"trace_id,omitempty"`
}

// handleFeedback implements POST /feedback: hand a developer's
// accept/reject/modify decision on a posted comment to the feedback
// processor (C10).
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed feedback request body")
		return
	}

	record, err := s.deps.Feedback.Process(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, record)
}
