package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/opsdesk/opsdesk/internal/alloc"
	"github.com/opsdesk/opsdesk/internal/audit"
	"github.com/opsdesk/opsdesk/internal/models"
	"github.com/opsdesk/opsdesk/internal/store"
	"github.com/opsdesk/opsdesk/internal/triage"
)

// Server wraps the opsdesk data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
	alloc *alloc.Allocator
	audit *audit.Recorder
	actor string
}

// NewServer creates the MCP server wrapper. Mutating tools run as the given
// actor, which must resolve to an admin user.
func NewServer(s store.Store, actor string) *Server {
	return &Server{
		store: s,
		alloc: alloc.New(s),
		audit: audit.NewRecorder(s),
		actor: actor,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("opsdesk", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.getIssueTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.triageReportTool())
	srv.AddTool(s.repairDuplicatesTool())
	srv.AddTool(s.backfillIDsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// findIssue resolves a display ID ("EC-12") or storage ULID to an issue.
func (s *Server) findIssue(ctx context.Context, id string) (*models.Issue, error) {
	if _, _, ok := alloc.ParseDisplayID(id); ok {
		return s.store.GetIssueByDisplayID(ctx, id)
	}
	return s.store.GetIssue(ctx, id)
}

type issueOut struct {
	ID             string `json:"id"`
	DisplayID      string `json:"display_id"`
	App            string `json:"app"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Severity       string `json:"severity"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	Classification string `json:"classification,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func issueToOut(issue *models.Issue) issueOut {
	return issueOut{
		ID:             issue.ID,
		DisplayID:      issue.DisplayID,
		App:            issue.App,
		Title:          issue.Title,
		Description:    issue.Description,
		Severity:       string(issue.Severity),
		Status:         string(issue.Status),
		Type:           string(issue.Type),
		Classification: string(issue.Classification),
		CreatedAt:      issue.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      issue.UpdatedAt.Format(time.RFC3339),
	}
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// opsdesk_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_list_issues",
		mcp.WithDescription("List issues, optionally filtered by app, status, and/or severity. Returns a JSON array of issues. Each issue has: display_id (e.g. EC-12), app, title, severity (S1-S4), status, and type."),
		mcp.WithString("app", mcp.Description("App filter: examcoach, mathdrills, writinglab")),
		mcp.WithString("status", mcp.Description("Status filter, e.g. new, reviewed, in_progress, closed")),
		mcp.WithString("severity", mcp.Description("Severity filter: S1, S2, S3, S4")),
		mcp.WithBoolean("open_only", mcp.Description("Only return issues not in a terminal status")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{
		App:      request.GetString("app", ""),
		Status:   models.IssueStatus(request.GetString("status", "")),
		Severity: models.Severity(request.GetString("severity", "")),
		OpenOnly: request.GetBool("open_only", false),
	}

	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	out := make([]issueOut, len(issues))
	for i, issue := range issues {
		out[i] = issueToOut(issue)
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_get_issue
func (s *Server) getIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_get_issue",
		mcp.WithDescription("Get one issue by display ID (e.g. EC-12) or storage ID. Returns the issue as JSON including its notes."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Display ID or storage ID")),
	)
	return tool, s.handleGetIssue
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %s", issueID)), nil
	}

	notes := make([]map[string]string, len(issue.Notes))
	for i, n := range issue.Notes {
		notes[i] = map[string]string{
			"author":     n.Author,
			"body":       n.Body,
			"created_at": n.CreatedAt.Format(time.RFC3339),
		}
	}

	result := map[string]any{
		"issue": issueToOut(issue),
		"notes": notes,
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_create_issue
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_create_issue",
		mcp.WithDescription("Create a new issue for an app. A display ID is allocated automatically. Returns the created issue as JSON."),
		mcp.WithString("app", mcp.Required(), mcp.Description("App key: examcoach, mathdrills, writinglab")),
		mcp.WithString("title", mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString("description", mcp.Description("Issue description")),
		mcp.WithString("severity", mcp.Description("Severity: S1, S2, S3, S4 (default: S3)")),
		mcp.WithString("type", mcp.Description("Category, e.g. auth_account_access, assessment_scoring, cosmetic_visual")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	app, err := request.RequireString("app")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: app"), nil
	}
	title, err := request.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: title"), nil
	}

	displayID, err := s.alloc.NextIDForApp(ctx, app)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to allocate ID: %v", err)), nil
	}

	issue := &models.Issue{
		DisplayID:   displayID,
		App:         app,
		Title:       title,
		Description: request.GetString("description", ""),
		Severity:    models.Severity(request.GetString("severity", "")),
		Type:        models.IssueType(request.GetString("type", "")),
	}

	if err := s.store.CreateIssue(ctx, issue); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create issue: %v", err)), nil
	}
	s.audit.Record(ctx, s.actor, models.AuditActionIssueCreate, []string{issue.ID}, nil, issue)

	data, err := json.Marshal(issueToOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_update_issue
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_update_issue",
		mcp.WithDescription("Update an existing issue. Provide the issue ID (display ID or storage ID) and at least one field to update. The display ID itself cannot be changed. Returns the updated issue as JSON."),
		mcp.WithString("issue_id", mcp.Required(), mcp.Description("Display ID or storage ID")),
		mcp.WithString("status", mcp.Description("New status, e.g. reviewed, in_progress, resolved, closed")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("severity", mcp.Description("New severity: S1, S2, S3, S4")),
		mcp.WithString("classification", mcp.Description("Explicit triage classification: blocking, misleading, trust, cosmetic")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issueID, err := request.RequireString("issue_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: issue_id"), nil
	}

	issue, err := s.findIssue(ctx, issueID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issue not found: %s", issueID)), nil
	}
	before := *issue

	updated := false
	if status := request.GetString("status", ""); status != "" {
		issue.Status = models.IssueStatus(status)
		updated = true
	}
	if title := request.GetString("title", ""); title != "" {
		issue.Title = title
		updated = true
	}
	if desc := request.GetString("description", ""); desc != "" {
		issue.Description = desc
		updated = true
	}
	if severity := request.GetString("severity", ""); severity != "" {
		if !models.Severity(severity).Valid() {
			return mcp.NewToolResultError(fmt.Sprintf("invalid severity: %s", severity)), nil
		}
		issue.Severity = models.Severity(severity)
		updated = true
	}
	if classification := request.GetString("classification", ""); classification != "" {
		issue.Classification = models.Classification(classification)
		updated = true
	}

	if !updated {
		return mcp.NewToolResultError("no fields provided to update; specify at least one of: status, title, description, severity, classification"), nil
	}

	if err := s.store.UpdateIssue(ctx, issue); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to update issue: %v", err)), nil
	}
	s.audit.Record(ctx, s.actor, models.AuditActionIssueUpdate, []string{issue.ID}, &before, issue)

	data, err := json.Marshal(issueToOut(issue))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issue: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_triage_report
func (s *Server) triageReportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_triage_report",
		mcp.WithDescription("Build the triage report over open issues: Fix-Now, Fix-Next, and Parked buckets with per-issue reasons, plus severity counts and risk flags."),
		mcp.WithString("app", mcp.Description("Limit the report to one app")),
	)
	return tool, s.handleTriageReport
}

func (s *Server) handleTriageReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.IssueListFilter{App: request.GetString("app", ""), OpenOnly: true}
	issues, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}

	report := triage.Classify(issues)
	composed := triage.Compose(report, func(userID string) (string, bool) {
		u, err := s.store.GetUser(ctx, userID)
		if err != nil {
			return "", false
		}
		return u.Name, true
	})

	data, err := json.Marshal(composed)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal report: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_repair_duplicates
func (s *Server) repairDuplicatesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_repair_duplicates",
		mcp.WithDescription("Scan all issues for colliding display IDs and reassign every duplicate except the earliest-created holder. Returns the repair log as JSON."),
	)
	return tool, s.handleRepairDuplicates
}

func (s *Server) handleRepairDuplicates(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.alloc.RepairDuplicates(ctx, s.actor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("repair failed: %v", err)), nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opsdesk_backfill_ids
func (s *Server) backfillIDsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opsdesk_backfill_ids",
		mcp.WithDescription("Assign display IDs to live issues that have none, in creation order. Returns the number of IDs assigned."),
	)
	return tool, s.handleBackfillIDs
}

func (s *Server) handleBackfillIDs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	assigned, err := s.alloc.AssignMissing(ctx, s.actor)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("backfill failed: %v", err)), nil
	}

	data, err := json.Marshal(map[string]int{"assigned": assigned})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
