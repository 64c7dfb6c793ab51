// Package domain holds the platform-agnostic entities shared by every
// component: the normalized webhook payload, the async task envelope,
// the review output shape, and the knowledge/learning records.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Severity levels for review comments, ordered weakest to strongest.
const (
	SeverityNit      = "nit"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityNit:      0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// MeetsThreshold reports whether severity is at or above the given threshold.
// Unknown severities never meet a threshold.
func MeetsThreshold(severity, threshold string) bool {
	s, ok := severityRank[severity]
	if !ok {
		return false
	}
	t, ok := severityRank[threshold]
	if !ok {
		return false
	}
	return s >= t
}

// Platform identifiers recognized by the ingress gateway and the
// platform adapter registry.
const (
	PlatformGitHub = "github"
	PlatformGitea  = "gitea"
)

// RequestSource distinguishes how a review was triggered.
const (
	SourceWebhook = "webhook"
	SourceCLI     = "cli"
	SourceMCP     = "mcp"
)

// PRMetadata is the normalized webhook payload abstracting
// platform-specific differences (§3).
type PRMetadata struct {
	RepoID      string `json:"repo_id"`
	PRNumber    int    `json:"pr_number"`
	BaseSHA     string `json:"base_sha"`
	HeadSHA     string `json:"head_sha"`
	Author      string `json:"author,omitempty"`
	Platform    string `json:"platform"`
	Title       string `json:"title,omitempty"`
	Source      string `json:"source"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// IndexDepth controls how thoroughly the indexer processes a repository.
type IndexDepth string

const (
	IndexDepthShallow IndexDepth = "shallow"
	IndexDepthDeep    IndexDepth = "deep"
)

// ReviewConfig controls RAG retrieval, RLHF suppression, and review
// generation parameters for a single task.
type ReviewConfig struct {
	UseRAGContext            bool     `json:"use_rag_context"`
	ApplyLearnedSuppressions bool     `json:"apply_learned_suppressions"`
	SeverityThreshold        string   `json:"severity_threshold"`
	IncludeAutoFixPatches    bool     `json:"include_auto_fix_patches"`
	Personas                 []string `json:"personas,omitempty"`
	MaxContextMatches        int      `json:"max_context_matches"`
}

// DefaultReviewConfig returns the configuration baseline used when a
// webhook does not specify overrides.
func DefaultReviewConfig() ReviewConfig {
	return ReviewConfig{
		UseRAGContext:             true,
		ApplyLearnedSuppressions:  true,
		SeverityThreshold:         SeverityLow,
		IncludeAutoFixPatches:     false,
		MaxContextMatches:         10,
	}
}

// ReviewStatus tracks a ReviewTask through its lifecycle.
type ReviewStatus string

const (
	ReviewStatusQueued     ReviewStatus = "queued"
	ReviewStatusProcessing ReviewStatus = "processing"
	ReviewStatusCompleted  ReviewStatus = "completed"
	ReviewStatusFailed     ReviewStatus = "failed"
)

// ReviewTask is the async job envelope tracked from enqueue to
// completion (queued -> processing -> {completed, failed}).
type ReviewTask struct {
	TaskID      string       `json:"task_id"`
	Status      ReviewStatus `json:"status"`
	TraceID     string       `json:"trace_id"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Metadata    PRMetadata   `json:"metadata"`
	Config      ReviewConfig `json:"config"`
	Result      *ReviewResponse `json:"result,omitempty"`
	Error       string       `json:"error,omitempty"`
	RetryCount  int          `json:"retry_count"`

	// Indexing carries the repository indexing payload when this task
	// was enqueued onto the Indexing queue. The same envelope/worker
	// machinery (C7) multiplexes both task kinds; the queue name a task
	// arrived on, not a separate type, tells a worker which one it got.
	Indexing *IndexingRequest `json:"indexing,omitempty"`
}

// ReviewComment is a single issue surfaced by the review pipeline,
// optionally carrying RAG citations.
type ReviewComment struct {
	ID              string   `json:"id"`
	FilePath        string   `json:"file_path"`
	LineStart       int      `json:"line_start"`
	LineEnd         int      `json:"line_end"`
	Type            string   `json:"type"` // security, bug, performance, style, nit
	Severity        string   `json:"severity"`
	Message         string   `json:"message"`
	Suggestion      string   `json:"suggestion,omitempty"`
	ConfidenceScore float64  `json:"confidence_score"`
	FixPatch        string   `json:"fix_patch,omitempty"`
	Citations       []string `json:"citations,omitempty"`
}

// Fingerprint returns a stable identifier for this comment that is
// insensitive to line-number drift caused by unrelated edits. Used both
// for posting idempotency and for matching against learned constraints.
func (c ReviewComment) Fingerprint() string {
	return NewCommentFingerprint(c.FilePath, c.Type, c.Severity, c.Message)
}

// NewCommentFingerprint builds a stable 32-hex-char identifier from the
// parts of a comment that do not shift when unrelated code moves.
// Line numbers are intentionally excluded.
func NewCommentFingerprint(file, kind, severity, message string) string {
	msgRunes := []rune(message)
	prefix := message
	if len(msgRunes) > 100 {
		prefix = string(msgRunes[:100])
	}
	payload := fmt.Sprintf("%s|%s|%s|%s", file, kind, severity, prefix)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:16]) // 32 hex chars
}

// TaskFingerprint derives the idempotency key for a review task from
// the triple that must produce at most one externally visible review
// artifact: (repo_id, head_sha, review_config_hash).
func TaskFingerprint(repoID, headSHA, configHash string) string {
	payload := fmt.Sprintf("%s|%s|%s", repoID, headSHA, configHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ConfigHash computes the review_config_hash component of the
// idempotency key from a ReviewConfig's effective fields.
func ConfigHash(cfg ReviewConfig) string {
	payload := fmt.Sprintf("%t|%t|%s|%t|%d", cfg.UseRAGContext, cfg.ApplyLearnedSuppressions,
		cfg.SeverityThreshold, cfg.IncludeAutoFixPatches, cfg.MaxContextMatches)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:8])
}

// ReviewStats captures execution statistics for a single review.
type ReviewStats struct {
	TotalIssues           int  `json:"total_issues"`
	Critical              int  `json:"critical"`
	High                  int  `json:"high"`
	Medium                int  `json:"medium"`
	Low                   int  `json:"low"`
	Nit                   int  `json:"nit"`
	ExecutionTimeMS       int64 `json:"execution_time_ms"`
	RAGContextUsed        bool `json:"rag_context_used"`
	RAGMatchesFound       int  `json:"rag_matches_found"`
	RLHFConstraintsApplied int `json:"rlhf_constraints_applied"`
	TokensUsed            int  `json:"tokens_used"`
}

// Tally updates the severity breakdown and total count for a comment.
func (s *ReviewStats) Tally(severity string) {
	s.TotalIssues++
	switch severity {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh:
		s.High++
	case SeverityMedium:
		s.Medium++
	case SeverityLow:
		s.Low++
	case SeverityNit:
		s.Nit++
	}
}

// ReviewResponse is the complete review output posted back to the
// originating platform.
type ReviewResponse struct {
	ReviewID string          `json:"review_id"`
	Summary  string          `json:"summary"`
	Comments []ReviewComment `json:"comments"`
	Stats    ReviewStats     `json:"stats"`
}

// ChunkMetadata carries the provenance of a KnowledgeChunk beyond its
// (repo_id, file_path, chunk_index) identity. PRNumber and LineNumber
// are optional: a full-repo index (as opposed to a PR-scoped one) never
// sets them.
type ChunkMetadata struct {
	Branch    string `json:"branch"`
	FileSize  int64  `json:"file_size"`
	PRNumber  int    `json:"pr_number,omitempty"`
	LineNumber int   `json:"line_number,omitempty"`
}

// KnowledgeChunk is a single embedded slice of repository content in the
// RAG knowledge base.
type KnowledgeChunk struct {
	ID         string        `json:"id"`
	RepoID     string        `json:"repo_id"`
	FilePath   string        `json:"file_path"`
	ChunkIndex int           `json:"chunk_index"`
	Content    string        `json:"content"`
	Embedding  []float32     `json:"embedding"`
	Metadata   ChunkMetadata `json:"metadata"`
	CreatedAt  time.Time     `json:"created_at"`
}

// LearnedConstraint is a negative example produced when a developer
// rejects a review comment (RLHF-style retrieval-time suppression, not
// gradient training).
type LearnedConstraint struct {
	ID              string    `json:"id"`
	RepoID          string    `json:"repo_id"`
	ViolationReason string    `json:"violation_reason"`
	CodePattern     string    `json:"code_pattern"`
	UserReason      string    `json:"user_reason"`
	Embedding       []float32 `json:"embedding"`
	ConfidenceScore float64   `json:"confidence_score"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	Version         int       `json:"version"`
}

// Expired reports whether the constraint's 90-day (or custom) window
// has elapsed as of now.
func (c LearnedConstraint) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return now.After(*c.ExpiresAt)
}

// Reinforce applies the +0.1 (capped at 1.0) confidence bump used when a
// future review hits the same constraint again.
func (c LearnedConstraint) Reinforce() LearnedConstraint {
	next := c
	next.ConfidenceScore = minFloat(c.ConfidenceScore+0.1, 1.0)
	next.Version = c.Version + 1
	return next
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// FeedbackAction records what a developer did with a review comment.
type FeedbackAction string

const (
	FeedbackAccepted FeedbackAction = "accepted"
	FeedbackRejected FeedbackAction = "rejected"
	FeedbackModified FeedbackAction = "modified"
)

// FeedbackReason categorizes why a developer took the recorded action.
type FeedbackReason string

const (
	ReasonFalsePositive   FeedbackReason = "false_positive"
	ReasonLogicError      FeedbackReason = "logic_error"
	ReasonStylePreference FeedbackReason = "style_preference"
	ReasonHallucination   FeedbackReason = "hallucination"
)

// FeedbackRecord is an append-only audit log entry for a single
// developer feedback submission.
type FeedbackRecord struct {
	ID                string         `json:"id"`
	RepoID            string         `json:"repo_id"`
	ReviewID          string         `json:"review_id"`
	CommentID         string         `json:"comment_id"`
	UserID            string         `json:"user_id"`
	Action            FeedbackAction `json:"action"`
	Reason            string         `json:"reason"`
	DeveloperComment  string         `json:"developer_comment"`
	FinalCodeSnapshot string         `json:"final_code_snapshot"`
	TraceID           string         `json:"trace_id"`
	CreatedAt         time.Time      `json:"created_at"`
}

// IndexingRequest triggers repository indexing for the RAG knowledge base.
type IndexingRequest struct {
	RepoID      string     `json:"repo_id"`
	GitURL      string     `json:"git_url"`
	AccessToken string     `json:"access_token"`
	Branch      string     `json:"branch"`
	Depth       IndexDepth `json:"index_depth"`
	// PeriodicReindex flags this repo for the scheduler's nightly
	// re-index job to pick up without a fresh webhook-triggered request.
	PeriodicReindex bool `json:"periodic_reindex,omitempty"`
}

// IndexingStage enumerates the indexer's pipeline stages in order.
type IndexingStage string

const (
	StageQueued             IndexingStage = "queued"
	StageCloning             IndexingStage = "cloning"
	StageScanning            IndexingStage = "scanning"
	StageChunking            IndexingStage = "chunking"
	StageSecretScanning      IndexingStage = "secret_scanning"
	StageGeneratingEmbeddings IndexingStage = "generating_embeddings"
	StageStoring             IndexingStage = "storing"
	StageCompleted           IndexingStage = "completed"
	StageFailed              IndexingStage = "failed"
)

// IndexingProgress tracks a long-running indexing task.
type IndexingProgress struct {
	Stage          IndexingStage  `json:"stage"`
	FilesProcessed int            `json:"files_processed"`
	TotalFiles     int            `json:"total_files"`
	ChunksIndexed  int            `json:"chunks_indexed"`
	SecretsFound   map[string]int `json:"secrets_found,omitempty"`
	Percentage     float64        `json:"percentage"`
	ErrorMessage   string         `json:"error_message,omitempty"`
}

// Percent computes files-processed-over-total as a 0-100 percentage,
// the formula used to populate Percentage as the pipeline advances.
func Percent(processed, total int) float64 {
	if total <= 0 {
		return 0
	}
	pct := float64(processed) / float64(total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// MCPTool describes a single tool exposed through the MCP manifest.
type MCPTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// MCPManifest is served at GET /mcp/manifest for IDE agent discovery.
type MCPManifest struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Tools       []MCPTool `json:"tools"`
}
