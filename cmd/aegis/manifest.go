package main

import (
	"github.com/aegisreview/aegis/internal/config"
	"github.com/aegisreview/aegis/internal/domain"
)

// buildManifest constructs the static MCP tool manifest served at
// GET /mcp/manifest (spec.md §6), describing the same four operations
// the HTTP ingress exposes so an IDE agent can discover them without
// out-of-band documentation.
func buildManifest(cfg config.MCPConfig) domain.MCPManifest {
	name := cfg.ServerName
	if name == "" {
		name = "aegis"
	}
	version := cfg.ServerVersion
	if version == "" {
		version = "0.1.0"
	}
	return domain.MCPManifest{
		Name:        name,
		Version:     version,
		Description: "Multi-tenant, RAG/RLHF-backed code review automation platform",
		Tools: []domain.MCPTool{
			{
				Name:        "analyze_diff",
				Description: "Queue an asynchronous review of a pull request or push event's diff",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"platform": map[string]any{"type": "string", "enum": []string{domain.PlatformGitHub, domain.PlatformGitea}},
						"repo_id":  map[string]any{"type": "string"},
						"pr_number": map[string]any{"type": "integer"},
						"head_sha": map[string]any{"type": "string"},
					},
					"required": []string{"platform", "repo_id", "head_sha"},
				},
			},
			{
				Name:        "index_repository",
				Description: "Queue a clone/chunk/embed indexing pass that populates the RAG knowledge base for a repository",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"git_url":      map[string]any{"type": "string"},
						"access_token": map[string]any{"type": "string"},
						"branch":       map[string]any{"type": "string"},
						"index_depth":  map[string]any{"type": "string", "enum": []string{string(domain.IndexDepthShallow), string(domain.IndexDepthDeep)}},
					},
					"required": []string{"git_url"},
				},
			},
			{
				Name:        "submit_feedback",
				Description: "Record a developer's accept/reject/modify disposition on a posted review comment",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"repo_id":            map[string]any{"type": "string"},
						"review_id":          map[string]any{"type": "string"},
						"comment_id":         map[string]any{"type": "string"},
						"action":             map[string]any{"type": "string", "enum": []string{string(domain.FeedbackAccepted), string(domain.FeedbackRejected), string(domain.FeedbackModified)}},
						"developer_comment":  map[string]any{"type": "string"},
					},
					"required": []string{"comment_id", "action", "developer_comment"},
				},
			},
			{
				Name:        "get_task_status",
				Description: "Look up the status and, if complete, result of a previously queued review or indexing task",
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"task_id": map[string]any{"type": "string"},
					},
					"required": []string{"task_id"},
				},
			},
		},
	}
}
